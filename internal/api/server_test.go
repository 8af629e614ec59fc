package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/kbralten/vxi-dash/internal/adapters/configstore"
	"github.com/kbralten/vxi-dash/internal/adapters/observability"
	"github.com/kbralten/vxi-dash/internal/adapters/readings"
	transportadapter "github.com/kbralten/vxi-dash/internal/adapters/transport"
	"github.com/kbralten/vxi-dash/internal/app/collector"
	"github.com/kbralten/vxi-dash/internal/app/shared"
	"github.com/kbralten/vxi-dash/internal/app/statemachine"
	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *configstore.FileStore, *transportadapter.Mock) {
	t.Helper()
	dir := t.TempDir()
	store, err := configstore.New(dir)
	require.NoError(t, err)

	ring, err := readings.New(filepath.Join(dir, "readings.json"), 0)
	require.NoError(t, err)

	mock := transportadapter.NewMock()
	mock.Responses["MEAS:V?"] = "3.3"

	obs := observability.New(prometheus.NewRegistry(), zerolog.Disabled)
	overrides := shared.NewModeOverrides()
	col := collector.New(store, ring, mock, obs, overrides)
	sm := statemachine.New(store, ring, mock, col, overrides, obs, 10*time.Millisecond)

	srv := NewServer(":0", store, ring, mock, col, sm, obs, nil)
	return srv, store, mock
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	return rec
}

func TestInstrumentsCRUD(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cap := domain.Capability{
		Signals: []domain.Signal{{ID: "v", Name: "v", MeasureCommand: "MEAS:V?"}},
		Modes:   []domain.Mode{{ID: "run", Name: "run", EnableCommands: []string{"OUTP ON"}}},
		SignalModeConfigs: []domain.SignalModeConfig{
			{ModeID: "run", SignalID: "v", Unit: "V", ScalingFactor: 1.0},
		},
	}
	desc, err := configstore.EncodeCapability(cap)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/instruments", domain.Instrument{
		Name: "psu1", Address: "10.0.0.5/inst0", IsActive: true, Description: desc,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Instrument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "psu1", created.Name)

	// duplicate name -> 409
	rec = doJSON(t, srv, http.MethodPost, "/instruments", domain.Instrument{
		Name: "psu1", Address: "10.0.0.6/inst0", IsActive: true,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/instruments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Instrument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = doJSON(t, srv, http.MethodDelete, "/instruments/"+strconv.Itoa(created.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateInstrumentPartialBodyMergesOntoExisting(t *testing.T) {
	srv, store, _ := newTestServer(t)

	cap := domain.Capability{
		Signals: []domain.Signal{{ID: "v", Name: "v", MeasureCommand: "MEAS:V?"}},
		Modes:   []domain.Mode{{ID: "run", Name: "run", EnableCommands: []string{"OUTP ON"}}},
	}
	desc, err := configstore.EncodeCapability(cap)
	require.NoError(t, err)

	in, err := store.CreateInstrument(domain.Instrument{
		Name: "psu1", Address: "10.0.0.5/inst0", IsActive: true, Description: desc,
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPut, "/instruments/"+strconv.Itoa(in.ID), map[string]any{
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated domain.Instrument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.False(t, updated.IsActive)
	require.Equal(t, "psu1", updated.Name)
	require.Equal(t, "10.0.0.5/inst0", updated.Address)

	stored, err := store.GetInstrument(in.ID)
	require.NoError(t, err)
	require.Equal(t, "run", stored.Capability.Modes[0].ID, "capability must survive an unrelated partial update")
}

func TestInstrumentDeleteBlockedBySetupReference(t *testing.T) {
	srv, store, _ := newTestServer(t)

	in, err := store.CreateInstrument(domain.Instrument{Name: "psu1", Address: "10.0.0.5/inst0", IsActive: true})
	require.NoError(t, err)

	_, err = store.CreateSetup(domain.Setup{
		Name: "bench1", FrequencyHz: 1,
		Targets: []domain.Target{{InstrumentID: in.ID}},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodDelete, "/instruments/"+strconv.Itoa(in.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCollectOnceAndStatus(t *testing.T) {
	srv, store, _ := newTestServer(t)

	cap := domain.Capability{
		Signals: []domain.Signal{{ID: "v", Name: "v", MeasureCommand: "MEAS:V?"}},
		Modes:   []domain.Mode{{ID: "run", Name: "run", EnableCommands: []string{"OUTP ON"}}},
		SignalModeConfigs: []domain.SignalModeConfig{
			{ModeID: "run", SignalID: "v", Unit: "V", ScalingFactor: 1.0},
		},
	}
	desc, err := configstore.EncodeCapability(cap)
	require.NoError(t, err)

	in, err := store.CreateInstrument(domain.Instrument{Name: "psu1", Address: "10.0.0.5/inst0", IsActive: true, Description: desc})
	require.NoError(t, err)
	setup, err := store.CreateSetup(domain.Setup{
		Name: "bench1", FrequencyHz: 10,
		Targets: []domain.Target{{InstrumentID: in.ID, Parameters: domain.TargetParameters{ModeID: "run"}}},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/collect/"+strconv.Itoa(setup.ID)+"/once", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reading domain.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
	require.Len(t, reading.Targets, 1)

	rec = doJSON(t, srv, http.MethodGet, "/readings?setup_id="+strconv.Itoa(setup.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []domain.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
}

func TestDashboardSummary(t *testing.T) {
	srv, store, _ := newTestServer(t)

	in, err := store.CreateInstrument(domain.Instrument{Name: "psu1", Address: "10.0.0.5/inst0", IsActive: true})
	require.NoError(t, err)
	_, err = store.CreateSetup(domain.Setup{
		Name: "bench1", FrequencyHz: 1,
		Targets: []domain.Target{{InstrumentID: in.ID}},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary dashboardSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, 1, summary.TotalSetups)
	require.Equal(t, 1, summary.ConnectedInstruments)
}
