// Package collector implements C4, the per-setup periodic sampling engine.
// Grounded on the teacher's pkg/aegisflow.EdgeRuntime for the lifecycle
// shape (Start/Stop/Run-until-cancelled, per-resource pooling) and on
// internal/app/pipeline's per-tick loop for the drift-corrected scheduling
// idiom, reworked from a WAL/queue ingest pipeline into a direct
// sample-and-append loop against C3.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kbralten/vxi-dash/internal/app/shared"
	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/kbralten/vxi-dash/internal/ports"
)

// Status is the snapshot returned by Status and embedded in the
// GET /collect/{id}/status response (§4.4).
type Status struct {
	Running       bool
	LastSuccessTS *time.Time
	LastError     string
}

// Collector is the C4 engine: one cancellable tick loop per started setup,
// each producing readings at that setup's configured cadence.
type Collector struct {
	store     ports.ConfigStore
	ring      ports.ReadingsRing
	transport ports.Transport
	obs       ports.Observability
	overrides *shared.ModeOverrides

	mu   sync.Mutex
	runs map[int]*setupRun
}

// New builds a Collector. overrides is the shared mode-override cell the
// state machine engine writes into (§9); pass shared.NewModeOverrides() if
// this collector is never driven by a state machine.
func New(store ports.ConfigStore, ring ports.ReadingsRing, transport ports.Transport, obs ports.Observability, overrides *shared.ModeOverrides) *Collector {
	return &Collector{
		store:     store,
		ring:      ring,
		transport: transport,
		obs:       obs,
		overrides: overrides,
		runs:      make(map[int]*setupRun),
	}
}

type modeSignature struct {
	modeID string
	params string // stable-joined params, so a params-only change is also edge-triggered
}

// activeMode records what a run last activated on an instrument, so Stop
// can send the matching disable commands (SPEC_FULL.md
// "disable_mode_for_setup" applied to a collector-only stop).
type activeMode struct {
	sig    modeSignature
	params map[string]string
}

type setupRun struct {
	opMu sync.Mutex // serializes start/stop against this one setup (§5)

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	doneCh   chan struct{}
	sessions map[string]ports.Session // keyed by instrument address
	lastMode map[int]activeMode       // instrumentID -> last activated mode

	statusMu sync.Mutex
	status   Status
}

func (c *Collector) runFor(setupID int) *setupRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[setupID]
	if !ok {
		r = &setupRun{sessions: make(map[string]ports.Session), lastMode: make(map[int]activeMode)}
		c.runs[setupID] = r
	}
	return r
}

// Start begins the per-tick sampling loop for setupID (§4.4 "start").
// Idempotent: starting an already-running setup returns nil.
func (c *Collector) Start(setupID int) error {
	run := c.runFor(setupID)
	run.opMu.Lock()
	defer run.opMu.Unlock()

	run.mu.Lock()
	alreadyRunning := run.running
	run.mu.Unlock()
	if alreadyRunning {
		return nil
	}

	setup, err := c.store.GetSetup(setupID)
	if err != nil {
		return err
	}
	if setup.FrequencyHz <= 0 {
		return domain.NewValidationError("frequency_hz", "must be > 0 to start collecting")
	}

	ctx, cancel := context.WithCancel(context.Background())
	run.mu.Lock()
	run.cancel = cancel
	run.doneCh = make(chan struct{})
	run.running = true
	run.mu.Unlock()

	run.statusMu.Lock()
	run.status.Running = true
	run.statusMu.Unlock()

	c.obs.IncCounter("vxidash_active_setups", 1)

	period := time.Duration(float64(time.Second) / setup.FrequencyHz)
	go c.loop(ctx, run, setupID, period)

	return nil
}

// Stop cancels the tick loop, sends each currently-active instrument's
// disable commands once (best effort — SPEC_FULL.md
// "disable_mode_for_setup"), and releases pooled sessions (§4.4 "stop").
// Idempotent.
func (c *Collector) Stop(setupID int) error {
	run := c.runFor(setupID)
	run.opMu.Lock()
	defer run.opMu.Unlock()

	run.mu.Lock()
	if !run.running {
		run.mu.Unlock()
		return nil
	}
	cancel := run.cancel
	done := run.doneCh
	run.mu.Unlock()

	cancel()
	<-done

	c.sendDisableCommands(run)

	run.mu.Lock()
	for _, sess := range run.sessions {
		_ = sess.Close()
	}
	run.sessions = make(map[string]ports.Session)
	run.lastMode = make(map[int]activeMode)
	run.running = false
	run.mu.Unlock()

	run.statusMu.Lock()
	run.status.Running = false
	run.statusMu.Unlock()

	c.obs.IncCounter("vxidash_active_setups", -1)
	return nil
}

func (c *Collector) sendDisableCommands(run *setupRun) {
	run.mu.Lock()
	active := make(map[int]activeMode, len(run.lastMode))
	for id, am := range run.lastMode {
		active[id] = am
	}
	run.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for instID, am := range active {
		in, err := c.store.GetInstrument(instID)
		if err != nil {
			continue
		}
		mode, ok := in.Capability.ModeByID(am.sig.modeID)
		if !ok {
			continue
		}
		sess, err := c.transport.Open(ctx, in.Address)
		if err != nil {
			c.obs.LogError("open session for disable commands failed", err, ports.Field{Key: "instrument_id", Value: instID})
			continue
		}
		for _, cmd := range mode.DisableCommands {
			resolved, err := shared.Substitute(cmd, instID, am.sig.modeID, am.params)
			if err != nil {
				c.obs.LogError("resolve disable command failed", err, ports.Field{Key: "instrument_id", Value: instID})
				continue
			}
			if err := sess.Write(ctx, resolved); err != nil {
				c.obs.LogError("send disable command failed", err, ports.Field{Key: "instrument_id", Value: instID})
			}
		}
		_ = sess.Close()
	}
}

// CollectNow performs one sampling pass synchronously and returns the
// resulting reading (§4.4 "collect_now"). It does not bypass edge-triggered
// mode activation or force a re-enable (DESIGN.md open-question
// decision: collect_now observes the same activation state a running
// collector would).
func (c *Collector) CollectNow(setupID int) (domain.Reading, error) {
	run := c.runFor(setupID)
	run.mu.Lock()
	owned := run.running
	run.mu.Unlock()

	if owned {
		return c.runPass(context.Background(), run, setupID)
	}

	// No active run: sample with a throwaway session pool and no activation
	// memory, then discard it — a one-off pass leaves no running state.
	tmp := &setupRun{sessions: make(map[string]ports.Session), lastMode: make(map[int]activeMode)}
	defer func() {
		for _, sess := range tmp.sessions {
			_ = sess.Close()
		}
	}()
	return c.runPass(context.Background(), tmp, setupID)
}

// ActivateNow applies the current mode overrides for setupID immediately,
// without waiting for the next scheduled tick (§4.5 "Enter state": "request
// C4 to activate that mode ... immediately if driving"). A no-op if the
// setup has no active collector run. It attempts every target even if one
// fails, but returns the first per-target activation error encountered —
// notably a *domain.ParameterMissingError, which the caller must treat as a
// state-entry hard error (§7) rather than a transport hiccup.
func (c *Collector) ActivateNow(ctx context.Context, setupID int) error {
	run := c.runFor(setupID)
	run.mu.Lock()
	owned := run.running
	run.mu.Unlock()
	if !owned {
		return nil
	}

	setup, err := c.store.GetSetup(setupID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, target := range setup.Targets {
		in, err := c.store.GetInstrument(target.InstrumentID)
		if err != nil {
			continue
		}
		mode, params := c.effectiveMode(setupID, target)
		if mode == "" {
			continue
		}
		sess, err := c.session(ctx, run, in)
		if err != nil {
			continue
		}
		if err := c.activateIfChanged(ctx, run, in, mode, params, sess); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status returns the current snapshot for setupID.
func (c *Collector) Status(setupID int) Status {
	run := c.runFor(setupID)
	run.statusMu.Lock()
	defer run.statusMu.Unlock()
	return run.status
}

// ActiveSetupIDs returns the ids of every setup with a running collector
// (SPEC_FULL.md "Dashboard summary").
func (c *Collector) ActiveSetupIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int
	for id, run := range c.runs {
		run.mu.Lock()
		running := run.running
		run.mu.Unlock()
		if running {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Collector) loop(ctx context.Context, run *setupRun, setupID int, period time.Duration) {
	defer close(run.doneCh)

	next := time.Now().Add(period)
	for {
		wait := time.Until(next)
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		} else {
			// Next tick's deadline already passed while the prior pass was
			// still running: coalesce into a single immediate pass (§5
			// "Back-pressure", at most one tick queued, no unbounded pile-up).
			c.obs.IncCounter("vxidash_ticks_coalesced_total", 1)
		}

		if _, err := c.runPass(ctx, run, setupID); err != nil {
			if ctx.Err() != nil {
				return
			}
			var notFound *domain.NotFoundError
			var invalid *domain.ValidationError
			if errors.As(err, &notFound) || errors.As(err, &invalid) {
				c.obs.LogCritical("collector stopping after fatal error", err, ports.Field{Key: "setup_id", Value: setupID})
				c.stopAfterFatal(run, err)
				return
			}
			c.obs.LogError("collect pass failed", err, ports.Field{Key: "setup_id", Value: setupID})
		}

		next = next.Add(period)
		if time.Now().After(next) {
			next = time.Now().Add(period)
		}
	}
}

// stopAfterFatal marks run stopped and records err after the tick loop
// exits on its own (§4.4 "A fatal error (setup deleted, configuration
// invalid) stops the collector and reports it"), mirroring what Stop does
// for an operator-initiated stop minus the disable-command best effort,
// since the setup or its configuration is no longer known-good.
func (c *Collector) stopAfterFatal(run *setupRun, err error) {
	run.mu.Lock()
	if run.cancel != nil {
		run.cancel()
	}
	run.running = false
	run.mu.Unlock()

	run.statusMu.Lock()
	run.status.Running = false
	run.status.LastError = err.Error()
	run.statusMu.Unlock()

	c.obs.IncCounter("vxidash_active_setups", -1)
}

func (c *Collector) effectiveMode(setupID int, target domain.Target) (string, map[string]string) {
	if setting, ok := c.overrides.Get(setupID, target.InstrumentID); ok {
		return setting.ModeID, setting.ModeParams
	}
	return target.Parameters.ModeID, target.Parameters.ModeParams
}

func (c *Collector) session(ctx context.Context, run *setupRun, in domain.Instrument) (ports.Session, error) {
	run.mu.Lock()
	sess, ok := run.sessions[in.Address]
	run.mu.Unlock()
	if ok {
		return sess, nil
	}

	sess, err := c.transport.Open(ctx, in.Address)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	run.sessions[in.Address] = sess
	run.mu.Unlock()
	return sess, nil
}

// activateIfChanged sends modeID's enable commands iff the effective mode
// for instrument in changed since the last activation on this run (§4.4
// step 2, §8 "Mode-enable commands are sent iff the target's effective
// mode changed").
func (c *Collector) activateIfChanged(ctx context.Context, run *setupRun, in domain.Instrument, modeID string, params map[string]string, sess ports.Session) error {
	sig := modeSignature{modeID: modeID, params: joinParams(params)}

	run.mu.Lock()
	last, seen := run.lastMode[in.ID]
	run.mu.Unlock()
	if seen && last.sig == sig {
		return nil
	}

	mode, ok := in.Capability.ModeByID(modeID)
	if !ok {
		return fmt.Errorf("instrument %d has no mode %q", in.ID, modeID)
	}
	for _, cmd := range mode.EnableCommands {
		resolved, err := shared.Substitute(cmd, in.ID, modeID, params)
		if err != nil {
			return err
		}
		if err := sess.Write(ctx, resolved); err != nil {
			return err
		}
	}

	run.mu.Lock()
	run.lastMode[in.ID] = activeMode{sig: sig, params: params}
	run.mu.Unlock()
	return nil
}

func joinParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += k + "=" + params[k] + ";"
	}
	return s
}
