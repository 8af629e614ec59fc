// Package statemachine implements C5, the per-setup state machine engine.
// Grounded on internal/app/collector's drift-corrected tick loop for the
// scheduling shape (this package's loop is the same idiom at the engine's
// configured cadence instead of a setup's sampling frequency) and on the
// teacher's pkg/aegisflow.EdgeRuntime for the cancellable Start/Stop
// lifecycle around a background goroutine.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kbralten/vxi-dash/internal/app/shared"
	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/kbralten/vxi-dash/internal/ports"
)

// Collector is the subset of internal/app/collector.Collector the state
// machine engine drives (§9 "no back-pointer between the two engines": this
// is the only coupling, one direction, through a narrow interface).
type Collector interface {
	Start(setupID int) error
	Stop(setupID int) error
	ActivateNow(ctx context.Context, setupID int) error
}

// Status is the snapshot returned by Status and embedded in the
// GET /sm/{id}/status response (§4.5).
type Status struct {
	Running              bool
	CurrentStateID       string
	CurrentStateName     string
	SessionStartedAt     *time.Time
	StateEnteredAt       *time.Time
	TimeInCurrentStateS  float64
	TotalSessionTimeS    float64
	LastError            string
}

// Engine is the C5 engine: one cancellable tick loop per started setup,
// evaluating outgoing transitions against the setup's latest reading and
// elapsed-time clocks (§4.5).
type Engine struct {
	store      ports.ConfigStore
	ring       ports.ReadingsRing
	transport  ports.Transport
	collector  Collector
	overrides  *shared.ModeOverrides
	obs        ports.Observability
	tickPeriod time.Duration

	mu       sync.Mutex
	sessions map[int]*session
}

// New builds an Engine. tickPeriod is the evaluation cadence (SPEC_FULL.md
// default 1s, configurable via Engine.StateMachineTick).
func New(store ports.ConfigStore, ring ports.ReadingsRing, transport ports.Transport, collector Collector, overrides *shared.ModeOverrides, obs ports.Observability, tickPeriod time.Duration) *Engine {
	if tickPeriod <= 0 {
		tickPeriod = time.Second
	}
	return &Engine{
		store:      store,
		ring:       ring,
		transport:  transport,
		collector:  collector,
		overrides:  overrides,
		obs:        obs,
		tickPeriod: tickPeriod,
		sessions:   make(map[int]*session),
	}
}

type session struct {
	opMu sync.Mutex // serializes start/stop against this one setup

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}

	teardownOnce *sync.Once

	currentStateID   string
	currentStateName string
	sessionStartedAt time.Time
	stateEnteredAt   time.Time
	lastError        string
}

func (e *Engine) sessionFor(setupID int) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[setupID]
	if !ok {
		s = &session{}
		e.sessions[setupID] = s
	}
	return s
}

// Start validates the setup's state machine configuration, enters its
// initial state, and begins the per-tick evaluation loop (§4.5 "start").
// Idempotent: starting an already-running setup returns nil.
func (e *Engine) Start(setupID int) error {
	sess := e.sessionFor(setupID)
	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	sess.mu.Lock()
	already := sess.running
	sess.mu.Unlock()
	if already {
		return nil
	}

	setup, err := e.store.GetSetup(setupID)
	if err != nil {
		return err
	}
	if !setup.HasStateMachine() {
		return domain.NewValidationError("initial_state_id", "setup has no state machine")
	}
	if setup.InitialStateID == "" {
		return domain.NewValidationError("initial_state_id", "must be set to start the state machine")
	}
	initial, ok := setup.StateByID(setup.InitialStateID)
	if !ok {
		return domain.NewValidationError("initial_state_id", "references no existing state")
	}
	if initial.IsEndState {
		return domain.NewValidationError("initial_state_id", "must not be an end state")
	}
	if err := e.checkReachable(setup); err != nil {
		return err
	}

	if err := e.collector.Start(setupID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess.mu.Lock()
	sess.cancel = cancel
	sess.doneCh = make(chan struct{})
	sess.teardownOnce = &sync.Once{}
	sess.running = true
	sess.sessionStartedAt = time.Now()
	sess.lastError = ""
	sess.mu.Unlock()

	if stop := e.enterState(ctx, sess, setup, initial); stop {
		// enterState signals stop only via a state-entry hard error here,
		// since the initial state was already validated not to be an end
		// state (§7 "ParameterMissing ... session stops and reports").
		cancel()
		sess.teardownOnce.Do(func() { e.teardown(setupID, sess) })
		close(sess.doneCh)
		sess.mu.Lock()
		lastErr := sess.lastError
		sess.mu.Unlock()
		return fmt.Errorf("state machine failed to enter initial state %q: %s", initial.ID, lastErr)
	}

	e.obs.IncCounter("vxidash_statemachine_sessions_started_total", 1)
	go e.loop(ctx, sess, setupID)

	return nil
}

// Stop cancels the tick loop and waits for its teardown (disable commands,
// collector stop, override clear) to finish (§4.5 "stop"). Idempotent.
func (e *Engine) Stop(setupID int) error {
	sess := e.sessionFor(setupID)
	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	sess.mu.Lock()
	if !sess.running {
		sess.mu.Unlock()
		return nil
	}
	cancel := sess.cancel
	done := sess.doneCh
	sess.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Status returns the current snapshot for setupID.
func (e *Engine) Status(setupID int) Status {
	sess := e.sessionFor(setupID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	st := Status{
		Running:          sess.running,
		CurrentStateID:   sess.currentStateID,
		CurrentStateName: sess.currentStateName,
		LastError:        sess.lastError,
	}
	if sess.running || !sess.sessionStartedAt.IsZero() {
		if !sess.sessionStartedAt.IsZero() {
			started := sess.sessionStartedAt
			st.SessionStartedAt = &started
			st.TotalSessionTimeS = time.Since(started).Seconds()
		}
		if !sess.stateEnteredAt.IsZero() {
			entered := sess.stateEnteredAt
			st.StateEnteredAt = &entered
			st.TimeInCurrentStateS = time.Since(entered).Seconds()
		}
	}
	return st
}

// ActiveSetupIDs returns the ids of every setup with a running state
// machine session (SPEC_FULL.md "Dashboard summary").
func (e *Engine) ActiveSetupIDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []int
	for id, sess := range e.sessions {
		sess.mu.Lock()
		running := sess.running
		sess.mu.Unlock()
		if running {
			ids = append(ids, id)
		}
	}
	return ids
}

// checkReachable opens and immediately closes a session to every distinct
// instrument the setup targets, failing fast if any is unreachable (§4.5
// "start" precondition: "transport reachable for referenced instruments").
func (e *Engine) checkReachable(setup domain.Setup) error {
	seen := make(map[int]bool)
	for _, target := range setup.Targets {
		if seen[target.InstrumentID] {
			continue
		}
		seen[target.InstrumentID] = true

		in, err := e.store.GetInstrument(target.InstrumentID)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sess, err := e.transport.Open(ctx, in.Address)
		cancel()
		if err != nil {
			return domain.NewValidationError("instruments", "instrument "+in.Name+" is unreachable: "+err.Error())
		}
		_ = sess.Close()
	}
	return nil
}

// enterState applies a state's instrument settings to the shared override
// cell, asks the collector to activate them immediately, stamps the
// entry-time clock, and appends an end-state marker reading if this state
// is terminal (§4.5 "Enter state"). Returns whether the caller should stop
// ticking: either the state is an end state, or activation failed with a
// *domain.ParameterMissingError, which §7 designates a state-entry hard
// error the session must stop and report rather than continue past.
func (e *Engine) enterState(ctx context.Context, sess *session, setup domain.Setup, state domain.State) bool {
	sess.mu.Lock()
	sess.currentStateID = state.ID
	sess.currentStateName = state.Name
	sess.stateEnteredAt = time.Now()
	sess.mu.Unlock()

	for instIDStr, setting := range state.InstrumentSettings {
		instID, err := strconv.Atoi(instIDStr)
		if err != nil {
			continue
		}
		e.overrides.Set(setup.ID, instID, shared.ModeSetting{ModeID: setting.ModeID, ModeParams: setting.ModeParams})
	}

	if err := e.collector.ActivateNow(ctx, setup.ID); err != nil {
		var paramErr *domain.ParameterMissingError
		if errors.As(err, &paramErr) {
			e.obs.LogCritical("state entry failed on missing parameter", err, ports.Field{Key: "setup_id", Value: setup.ID}, ports.Field{Key: "state_id", Value: state.ID})
			sess.mu.Lock()
			sess.lastError = err.Error()
			sess.mu.Unlock()
			return true
		}
		e.obs.LogError("activate mode on state entry failed", err, ports.Field{Key: "setup_id", Value: setup.ID}, ports.Field{Key: "state_id", Value: state.ID})
	}

	e.obs.LogInfo("entered state", ports.Field{Key: "setup_id", Value: setup.ID}, ports.Field{Key: "state_id", Value: state.ID})

	if state.IsEndState {
		e.appendEndStateMarker(setup, state)
	}
	return state.IsEndState
}

func (e *Engine) appendEndStateMarker(setup domain.Setup, state domain.State) {
	reading := domain.Reading{
		Timestamp: time.Now(),
		SetupID:   setup.ID,
		SetupName: setup.Name,
		EndState: &domain.EndStateMarker{
			StateID:   state.ID,
			StateName: state.Name,
			ReachedAt: time.Now(),
		},
	}
	if err := e.ring.Append(reading); err != nil {
		e.obs.LogError("append end-state marker failed", err, ports.Field{Key: "setup_id", Value: setup.ID})
	}
	e.obs.IncCounter("vxidash_state_transitions_total", 1)
}

func (e *Engine) loop(ctx context.Context, sess *session, setupID int) {
	// Deferred calls run last-in first-out: teardown finishes before doneCh
	// is closed, so Stop returns only after teardown is done.
	defer close(sess.doneCh)
	defer sess.teardownOnce.Do(func() { e.teardown(setupID, sess) })

	next := time.Now().Add(e.tickPeriod)
	for {
		wait := time.Until(next)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if reachedEnd := e.tick(ctx, sess, setupID); reachedEnd {
			return
		}

		next = next.Add(e.tickPeriod)
		if time.Now().After(next) {
			next = time.Now().Add(e.tickPeriod)
		}
	}
}

// tick evaluates every outgoing transition of the current state in
// declaration order and takes the first whose rules all hold (§4.5 "Tick",
// "deterministic first-match in declaration order"). Returns whether the
// resulting state is an end state.
func (e *Engine) tick(ctx context.Context, sess *session, setupID int) bool {
	setup, err := e.store.GetSetup(setupID)
	if err != nil {
		e.obs.LogCritical("setup vanished while state machine running", err, ports.Field{Key: "setup_id", Value: setupID})
		return true
	}

	sess.mu.Lock()
	currentID := sess.currentStateID
	stateEnteredAt := sess.stateEnteredAt
	startedAt := sess.sessionStartedAt
	sess.mu.Unlock()

	now := time.Now()
	ec := evalContext{
		latest:      e.latestSample(setupID),
		timeInState: now.Sub(stateEnteredAt),
		totalTime:   now.Sub(startedAt),
	}

	for _, t := range setup.OutgoingTransitions(currentID) {
		if !transitionHolds(t.Rules, ec) {
			continue
		}
		target, ok := setup.StateByID(t.TargetStateID)
		if !ok {
			continue
		}
		return e.enterState(ctx, sess, setup, target)
	}
	return false
}

func (e *Engine) latestSample(setupID int) *domain.Reading {
	readings, err := e.ring.Latest(setupID, 1)
	if err != nil || len(readings) == 0 {
		return nil
	}
	return &readings[0]
}

// teardown runs exactly once per session (guarded by sess.teardownOnce): it
// sends best-effort disable commands for the current mode of every
// instrument the final state configured, stops the collector, clears the
// shared override cell, and marks the session stopped (§4.5 "stop").
func (e *Engine) teardown(setupID int, sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	setup, err := e.store.GetSetup(setupID)
	if err == nil {
		if state, ok := setup.StateByID(sess.currentStateID); ok {
			e.sendDisableCommands(ctx, state)
		}
	}

	if err := e.collector.Stop(setupID); err != nil {
		e.obs.LogError("stop collector during state machine teardown failed", err, ports.Field{Key: "setup_id", Value: setupID})
	}
	e.overrides.Clear(setupID)

	sess.mu.Lock()
	sess.running = false
	sess.mu.Unlock()

	e.obs.LogInfo("state machine session stopped", ports.Field{Key: "setup_id", Value: setupID})
}

func (e *Engine) sendDisableCommands(ctx context.Context, state domain.State) {
	for instIDStr, setting := range state.InstrumentSettings {
		instID, err := strconv.Atoi(instIDStr)
		if err != nil {
			continue
		}
		in, err := e.store.GetInstrument(instID)
		if err != nil {
			continue
		}
		mode, ok := in.Capability.ModeByID(setting.ModeID)
		if !ok {
			continue
		}
		sess, err := e.transport.Open(ctx, in.Address)
		if err != nil {
			e.obs.LogError("open session for teardown disable commands failed", err, ports.Field{Key: "instrument_id", Value: instID})
			continue
		}
		for _, cmd := range mode.DisableCommands {
			resolved, err := shared.Substitute(cmd, instID, setting.ModeID, setting.ModeParams)
			if err != nil {
				e.obs.LogError("resolve disable command failed", err, ports.Field{Key: "instrument_id", Value: instID})
				continue
			}
			if err := sess.Write(ctx, resolved); err != nil {
				e.obs.LogError("send disable command failed", err, ports.Field{Key: "instrument_id", Value: instID})
			}
		}
		_ = sess.Close()
	}
}
