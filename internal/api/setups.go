package api

import (
	"net/http"
	"strconv"

	"github.com/kbralten/vxi-dash/internal/domain"
)

func (s *Server) handleListSetups(w http.ResponseWriter, r *http.Request) {
	setups, err := s.store.ListSetups()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setups)
}

func (s *Server) handleCreateSetup(w http.ResponseWriter, r *http.Request) {
	var setup domain.Setup
	if err := decodeJSON(r, &setup); err != nil {
		writeError(w, domain.NewValidationError("", "invalid JSON body"))
		return
	}
	created, err := s.store.CreateSetup(setup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateSetup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.NewValidationError("id", "must be an integer"))
		return
	}
	existing, err := s.store.GetSetup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	var setup domain.Setup
	if err := mergePatch(r, existing, &setup); err != nil {
		writeError(w, domain.NewValidationError("", "invalid JSON body"))
		return
	}
	updated, err := s.store.UpdateSetup(id, setup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSetup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.NewValidationError("id", "must be an integer"))
		return
	}
	if err := s.store.DeleteSetup(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setupIDFromPath(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, domain.NewValidationError("id", "must be an integer")
	}
	return id, nil
}
