package statemachine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kbralten/vxi-dash/internal/adapters/configstore"
	"github.com/kbralten/vxi-dash/internal/adapters/observability"
	"github.com/kbralten/vxi-dash/internal/adapters/readings"
	transportadapter "github.com/kbralten/vxi-dash/internal/adapters/transport"
	"github.com/kbralten/vxi-dash/internal/app/collector"
	"github.com/kbralten/vxi-dash/internal/app/shared"
	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/kbralten/vxi-dash/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *configstore.FileStore
	ring  ports.ReadingsRing
	mock  *transportadapter.Mock
	col   *collector.Collector
	eng   *Engine
}

func newFixture(t *testing.T, tickPeriod time.Duration) *fixture {
	t.Helper()
	store, err := configstore.New(t.TempDir())
	require.NoError(t, err)

	ring, err := readings.New(filepath.Join(t.TempDir(), "readings.json"), 0)
	require.NoError(t, err)

	mock := transportadapter.NewMock()
	mock.Responses["MEAS:V?"] = "0.0"

	obs := observability.New(prometheus.NewRegistry(), zerolog.Disabled)
	overrides := shared.NewModeOverrides()
	col := collector.New(store, ring, mock, obs, overrides)
	eng := New(store, ring, mock, col, overrides, obs, tickPeriod)

	return &fixture{store: store, ring: ring, mock: mock, col: col, eng: eng}
}

func seedSetup(t *testing.T, store *configstore.FileStore, states []domain.State, transitions []domain.Transition, initial string) domain.Setup {
	t.Helper()
	cap := domain.Capability{
		Signals: []domain.Signal{{ID: "v", Name: "v", MeasureCommand: "MEAS:V?"}},
		Modes:   []domain.Mode{{ID: "run", Name: "run", EnableCommands: []string{"OUTP ON"}, DisableCommands: []string{"OUTP OFF"}}},
		SignalModeConfigs: []domain.SignalModeConfig{
			{ModeID: "run", SignalID: "v", Unit: "V", ScalingFactor: 1.0},
		},
	}
	desc, err := configstore.EncodeCapability(cap)
	require.NoError(t, err)

	in, err := store.CreateInstrument(domain.Instrument{
		Name:        "psu1",
		Address:     "10.0.0.5/inst0",
		IsActive:    true,
		Description: desc,
	})
	require.NoError(t, err)

	setup, err := store.CreateSetup(domain.Setup{
		Name:        "bench1",
		FrequencyHz: 50,
		Targets: []domain.Target{
			{InstrumentID: in.ID, Parameters: domain.TargetParameters{ModeID: "run"}},
		},
		States:         states,
		Transitions:    transitions,
		InitialStateID: initial,
	})
	require.NoError(t, err)
	return setup
}

// scenario 1: idle, tick, then reach an end state purely on elapsed time.
func TestEngine_TimeInStateReachesEndState(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	setup := seedSetup(t,
		f.store,
		[]domain.State{
			{ID: "idle", Name: "idle"},
			{ID: "done", Name: "done", IsEndState: true},
		},
		[]domain.Transition{
			{ID: "t1", SourceStateID: "idle", TargetStateID: "done", Rules: []domain.Rule{
				{Type: domain.RuleTimeInState, Seconds: 0.03},
			}},
		},
		"idle",
	)

	require.NoError(t, f.eng.Start(setup.ID))

	require.Eventually(t, func() bool {
		return !f.eng.Status(setup.ID).Running
	}, 2*time.Second, 5*time.Millisecond)

	st := f.eng.Status(setup.ID)
	require.Equal(t, "done", st.CurrentStateID)

	all, err := f.ring.All(0)
	require.NoError(t, err)
	found := false
	for _, r := range all {
		if r.EndState != nil && r.EndState.StateID == "done" {
			found = true
		}
	}
	require.True(t, found, "expected an end-state marker reading")
}

// scenario 2: a sensor rule gates the transition; it only fires once the
// measured signal crosses the threshold.
func TestEngine_SensorRuleGatesTransition(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	setup := seedSetup(t,
		f.store,
		[]domain.State{
			{ID: "wait", Name: "wait"},
			{ID: "tripped", Name: "tripped", IsEndState: true},
		},
		[]domain.Transition{
			{ID: "t1", SourceStateID: "wait", TargetStateID: "tripped", Rules: []domain.Rule{
				{Type: domain.RuleSensor, SignalName: "v", Operator: domain.OpGreater, Threshold: 5.0},
			}},
		},
		"wait",
	)

	require.NoError(t, f.eng.Start(setup.ID))

	time.Sleep(40 * time.Millisecond)
	require.True(t, f.eng.Status(setup.ID).Running, "must not transition before the signal crosses the threshold")

	f.mock.Responses["MEAS:V?"] = "10.0"

	require.Eventually(t, func() bool {
		return !f.eng.Status(setup.ID).Running
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, "tripped", f.eng.Status(setup.ID).CurrentStateID)
}

// scenario 3: a transition with two rules only fires once both hold.
func TestEngine_MultiRuleTransitionRequiresAllRulesToHold(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	setup := seedSetup(t,
		f.store,
		[]domain.State{
			{ID: "run1", Name: "run1"},
			{ID: "done", Name: "done", IsEndState: true},
		},
		[]domain.Transition{
			{ID: "t1", SourceStateID: "run1", TargetStateID: "done", Rules: []domain.Rule{
				{Type: domain.RuleSensor, SignalName: "v", Operator: domain.OpGreater, Threshold: 5.0},
				{Type: domain.RuleTimeInState, Seconds: 0.05},
			}},
		},
		"run1",
	)

	require.NoError(t, f.eng.Start(setup.ID))

	// Signal crosses the threshold immediately, but time-in-state has not
	// elapsed yet: the AND must keep the session running.
	f.mock.Responses["MEAS:V?"] = "10.0"
	time.Sleep(20 * time.Millisecond)
	require.True(t, f.eng.Status(setup.ID).Running)

	require.Eventually(t, func() bool {
		return !f.eng.Status(setup.ID).Running
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "done", f.eng.Status(setup.ID).CurrentStateID)
}

func TestEngine_StartRejectsEndStateAsInitial(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	setup := seedSetup(t,
		f.store,
		[]domain.State{{ID: "done", Name: "done", IsEndState: true}},
		nil,
		"done",
	)

	err := f.eng.Start(setup.ID)
	require.Error(t, err)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestEngine_StartStopIdempotent(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	setup := seedSetup(t,
		f.store,
		[]domain.State{
			{ID: "idle", Name: "idle"},
			{ID: "done", Name: "done", IsEndState: true},
		},
		nil, // no transitions: session stays in idle until Stop
		"idle",
	)

	require.NoError(t, f.eng.Start(setup.ID))
	require.NoError(t, f.eng.Start(setup.ID))
	require.NoError(t, f.eng.Stop(setup.ID))
	require.NoError(t, f.eng.Stop(setup.ID))
	require.False(t, f.eng.Status(setup.ID).Running)
}

func TestEngine_StartFailsHardOnMissingModeParameter(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)

	cap := domain.Capability{
		Signals: []domain.Signal{{ID: "v", Name: "v", MeasureCommand: "MEAS:V?"}},
		Modes: []domain.Mode{{
			ID: "run", Name: "run",
			EnableCommands: []string{"VOLT {setpoint}"},
			Parameters:     []domain.ModeParameter{{Name: "setpoint"}},
		}},
		SignalModeConfigs: []domain.SignalModeConfig{
			{ModeID: "run", SignalID: "v", Unit: "V", ScalingFactor: 1.0},
		},
	}
	desc, err := configstore.EncodeCapability(cap)
	require.NoError(t, err)

	in, err := f.store.CreateInstrument(domain.Instrument{
		Name: "psu1", Address: "10.0.0.5/inst0", IsActive: true, Description: desc,
	})
	require.NoError(t, err)

	setup, err := f.store.CreateSetup(domain.Setup{
		Name:        "bench1",
		FrequencyHz: 50,
		Targets:     []domain.Target{{InstrumentID: in.ID}},
		States: []domain.State{
			{ID: "idle", Name: "idle", InstrumentSettings: map[string]domain.InstrumentSetting{
				// missing the "setpoint" param the mode's command requires.
				"1": {ModeID: "run"},
			}},
			{ID: "done", Name: "done", IsEndState: true},
		},
		InitialStateID: "idle",
	})
	require.NoError(t, err)

	err = f.eng.Start(setup.ID)
	require.Error(t, err)

	require.False(t, f.eng.Status(setup.ID).Running)
	require.NotEmpty(t, f.eng.Status(setup.ID).LastError)
	require.False(t, f.col.Status(setup.ID).Running, "collector must not be left running after a failed start")
}

func TestEngine_StopSendsDisableCommandsAndClearsOverride(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)

	setup := seedSetup(t,
		f.store,
		[]domain.State{
			{ID: "idle", Name: "idle", InstrumentSettings: map[string]domain.InstrumentSetting{}},
			{ID: "done", Name: "done", IsEndState: true},
		},
		nil,
		"idle",
	)

	// Wire instrument_settings now that we know the instrument id.
	insts, err := f.store.ListInstruments()
	require.NoError(t, err)
	require.Len(t, insts, 1)
	setup.States[0].InstrumentSettings = map[string]domain.InstrumentSetting{
		"1": {ModeID: "run"},
	}
	_, err = f.store.UpdateSetup(setup.ID, setup)
	require.NoError(t, err)

	require.NoError(t, f.eng.Start(setup.ID))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.eng.Stop(setup.ID))

	found := false
	for _, w := range f.mock.Writes {
		if w.Command == "OUTP OFF" {
			found = true
		}
	}
	require.True(t, found, "expected a disable command on teardown")
	require.False(t, f.col.Status(setup.ID).Running, "teardown must also stop the collector")
	_, overridden := f.eng.overrides.Get(setup.ID, 1)
	require.False(t, overridden, "teardown must clear the mode override")
}
