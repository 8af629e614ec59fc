package api

import (
	"net/http"
	"strconv"

	"github.com/kbralten/vxi-dash/internal/domain"
)

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.store.ListInstruments()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instruments)
}

func (s *Server) handleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var in domain.Instrument
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, domain.NewValidationError("", "invalid JSON body"))
		return
	}
	created, err := s.store.CreateInstrument(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateInstrument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.NewValidationError("id", "must be an integer"))
		return
	}
	existing, err := s.store.GetInstrument(id)
	if err != nil {
		writeError(w, err)
		return
	}
	var in domain.Instrument
	if err := mergePatch(r, existing, &in); err != nil {
		writeError(w, domain.NewValidationError("", "invalid JSON body"))
		return
	}
	updated, err := s.store.UpdateInstrument(id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.NewValidationError("id", "must be an integer"))
		return
	}
	if err := s.store.DeleteInstrument(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Response string `json:"response"`
}

// handleInstrumentCommand sends an arbitrary command directly to an
// instrument, bypassing C4/C5 (§6.2 "command passthrough" — used for manual
// probing from a client, not part of a sampling pass).
func (s *Server) handleInstrumentCommand(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.NewValidationError("id", "must be an integer"))
		return
	}
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil || req.Command == "" {
		writeError(w, domain.NewValidationError("command", "is required"))
		return
	}

	in, err := s.store.GetInstrument(id)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.transport.Open(r.Context(), in.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sess.Close()

	if len(req.Command) > 0 && req.Command[len(req.Command)-1] == '?' {
		reply, err := sess.Query(r.Context(), req.Command)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{Response: reply})
		return
	}

	if err := sess.Write(r.Context(), req.Command); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Response: ""})
}
