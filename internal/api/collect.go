package api

import "net/http"

type runningResponse struct {
	Running bool `json:"running"`
}

func (s *Server) handleCollectStart(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.collector.Start(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runningResponse{Running: true})
}

func (s *Server) handleCollectStop(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.collector.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runningResponse{Running: false})
}

func (s *Server) handleCollectOnce(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reading, err := s.collector.CollectNow(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleCollectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.collector.Status(id))
}
