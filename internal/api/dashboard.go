package api

import (
	"net/http"
	"time"
)

// dashboardSummary is the GET /dashboard/summary response shape
// (SPEC_FULL.md "Dashboard summary", grounded in dashboard.py::dashboard_summary).
type dashboardSummary struct {
	Timestamp              time.Time `json:"timestamp"`
	TotalSetups            int       `json:"total_setups"`
	ConnectedInstruments   int       `json:"connected_instruments"`
	RunningCollectorIDs    []int     `json:"running_collector_setup_ids"`
	RunningStateMachineIDs []int     `json:"running_state_machine_setup_ids"`
}

// handleDashboardSummary aggregates counts over C2 state and the two
// engines' live status; it reads existing state and persists nothing, so it
// does not reintroduce the rendered-UI Non-goal.
func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	setups, err := s.store.ListSetups()
	if err != nil {
		writeError(w, err)
		return
	}

	connected := make(map[int]struct{})
	for _, setup := range setups {
		for _, target := range setup.Targets {
			connected[target.InstrumentID] = struct{}{}
		}
	}

	writeJSON(w, http.StatusOK, dashboardSummary{
		Timestamp:              time.Now().UTC(),
		TotalSetups:            len(setups),
		ConnectedInstruments:   len(connected),
		RunningCollectorIDs:    orEmpty(s.collector.ActiveSetupIDs()),
		RunningStateMachineIDs: orEmpty(s.statem.ActiveSetupIDs()),
	})
}

// orEmpty normalizes a nil slice to an empty one so the JSON response uses
// "[]" rather than "null".
func orEmpty(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
