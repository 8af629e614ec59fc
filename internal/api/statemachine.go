package api

import "net/http"

func (s *Server) handleSMStart(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.statem.Start(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statem.Status(id))
}

func (s *Server) handleSMStop(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.statem.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runningResponse{Running: false})
}

func (s *Server) handleSMStatus(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statem.Status(id))
}
