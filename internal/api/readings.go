package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kbralten/vxi-dash/internal/domain"
)

// handleListReadings serves GET /readings?setup_id&limit&since (§6.2,
// SPEC_FULL.md "Historical range query"). setup_id is required; since, when
// present, is a Go duration string ("1h30m") bounding the age of returned
// readings instead of limit.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	setupID, err := strconv.Atoi(r.URL.Query().Get("setup_id"))
	if err != nil {
		writeError(w, domain.NewValidationError("setup_id", "is required and must be an integer"))
		return
	}

	if sinceParam := r.URL.Query().Get("since"); sinceParam != "" {
		d, err := time.ParseDuration(sinceParam)
		if err != nil {
			writeError(w, domain.NewValidationError("since", "must be a duration like 1h30m"))
			return
		}
		readings, err := s.ring.Since(setupID, d)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, readings)
		return
	}

	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err = strconv.Atoi(limitParam)
		if err != nil {
			writeError(w, domain.NewValidationError("limit", "must be an integer"))
			return
		}
	}

	readings, err := s.ring.Latest(setupID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// handleResetReadings serves DELETE /readings?setup_id= (SPEC_FULL.md
// "reset_monitoring_data", grounded in dashboard.py::reset_monitoring_data).
func (s *Server) handleResetReadings(w http.ResponseWriter, r *http.Request) {
	setupID, err := strconv.Atoi(r.URL.Query().Get("setup_id"))
	if err != nil {
		writeError(w, domain.NewValidationError("setup_id", "is required and must be an integer"))
		return
	}

	removed, err := s.ring.Reset(setupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Status: "reset", Removed: removed, SetupID: setupID})
}

type resetResponse struct {
	Status  string `json:"status"`
	Removed int    `json:"removed"`
	SetupID int    `json:"setup_id"`
}

// handleExportReadingsCSV streams every retained reading for a setup as CSV
// (§6.2 "GET /readings/export.csv"), one row per (reading, target, signal)
// triple so multi-instrument, multi-signal setups flatten cleanly.
func (s *Server) handleExportReadingsCSV(w http.ResponseWriter, r *http.Request) {
	setupID, err := strconv.Atoi(r.URL.Query().Get("setup_id"))
	if err != nil {
		writeError(w, domain.NewValidationError("setup_id", "is required and must be an integer"))
		return
	}

	readings, err := s.ring.Latest(setupID, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"setup-%d-readings.csv\"", setupID))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"timestamp", "instrument_id", "instrument_name", "mode_name", "signal_name", "value", "raw_value", "unit", "error"})

	// readings.Latest returns newest-first; the export reads top-to-bottom
	// chronologically, so reverse it.
	for i := len(readings) - 1; i >= 0; i-- {
		rd := readings[i]
		for _, block := range rd.Targets {
			for signalName, sr := range block.Signals {
				_ = cw.Write([]string{
					rd.Timestamp.Format(time.RFC3339Nano),
					strconv.Itoa(block.InstrumentID),
					block.InstrumentName,
					block.ModeName,
					signalName,
					floatOrEmpty(sr.Value),
					floatOrEmpty(sr.RawValue),
					sr.Unit,
					sr.Error,
				})
			}
		}
	}
	cw.Flush()
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
