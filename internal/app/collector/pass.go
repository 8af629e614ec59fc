package collector

import (
	"context"
	"time"

	"github.com/kbralten/vxi-dash/internal/adapters/transport"
	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/kbralten/vxi-dash/internal/ports"
)

// runPass performs one sampling pass for setupID against run's pooled
// sessions and activation memory (§4.4 "Sampling pass").
func (c *Collector) runPass(ctx context.Context, run *setupRun, setupID int) (domain.Reading, error) {
	start := time.Now()

	setup, err := c.store.GetSetup(setupID)
	if err != nil {
		c.recordError(run, err.Error())
		return domain.Reading{}, err
	}

	reading := domain.Reading{
		Timestamp: time.Now().UTC(),
		SetupID:   setup.ID,
		SetupName: setup.Name,
	}

	var lastErr string
	for _, target := range setup.Targets {
		block, errStr := c.sampleTarget(ctx, run, setup.ID, target)
		reading.Targets = append(reading.Targets, block)
		if errStr != "" {
			lastErr = errStr
		}
	}

	if err := c.ring.Append(reading); err != nil {
		c.recordError(run, err.Error())
		return reading, err
	}

	c.obs.IncCounter("vxidash_readings_total", 1)
	c.obs.SetGauge("vxidash_readings_ring_length", float64(c.ring.Len()))
	c.obs.ObserveLatency("vxidash_collect_pass_seconds", time.Since(start).Seconds())

	run.statusMu.Lock()
	now := reading.Timestamp
	run.status.Running = true
	run.status.LastSuccessTS = &now
	run.status.LastError = lastErr
	run.statusMu.Unlock()

	return reading, nil
}

// sampleTarget runs steps 1-3 of §4.4 for one target: resolve the effective
// mode, edge-trigger activation, then query every signal configured for
// that mode.
func (c *Collector) sampleTarget(ctx context.Context, run *setupRun, setupID int, target domain.Target) (domain.TargetBlock, string) {
	in, err := c.store.GetInstrument(target.InstrumentID)
	if err != nil {
		return domain.TargetBlock{InstrumentID: target.InstrumentID}, err.Error()
	}
	if !in.IsActive {
		return domain.TargetBlock{InstrumentID: in.ID, InstrumentName: in.Name}, "instrument inactive"
	}

	block := domain.TargetBlock{
		InstrumentID:   in.ID,
		InstrumentName: in.Name,
		Signals:        make(map[string]domain.SignalReading),
	}

	modeID, params := c.effectiveMode(setupID, target)
	if modeID == "" {
		return block, ""
	}
	mode, ok := in.Capability.ModeByID(modeID)
	if !ok {
		return block, "mode not found: " + modeID
	}
	block.ModeName = mode.Name

	sess, err := c.session(ctx, run, in)
	if err != nil {
		return block, err.Error()
	}

	var lastErr string
	if err := c.activateIfChanged(ctx, run, in, modeID, params, sess); err != nil {
		c.obs.IncCounter("vxidash_reading_errors_total", 1)
		return block, err.Error()
	}

	for _, sc := range in.Capability.SignalsForMode(modeID) {
		sr, errStr := c.querySignal(ctx, sess, sc)
		block.Signals[sc.Signal.Name] = sr
		if errStr != "" {
			lastErr = errStr
		}
	}

	return block, lastErr
}

func (c *Collector) querySignal(ctx context.Context, sess ports.Session, sc domain.SignalWithConfig) (domain.SignalReading, string) {
	raw, err := sess.Query(ctx, sc.Signal.MeasureCommand)
	if err != nil {
		c.obs.IncCounter("vxidash_reading_errors_total", 1)
		return domain.SignalReading{Unit: sc.Config.Unit, Error: err.Error()}, err.Error()
	}

	scale := sc.Config.ScalingFactor
	if scale == 0 {
		scale = 1.0
	}

	rawVal, ok := transport.ParseNumeric(raw)
	sr := domain.SignalReading{Unit: sc.Config.Unit, RawResponse: raw}
	if !ok {
		sr.Error = "unparseable reply"
		c.obs.IncCounter("vxidash_reading_errors_total", 1)
		return sr, sr.Error
	}

	scaled := rawVal * scale
	sr.RawValue = &rawVal
	sr.Value = &scaled
	return sr, ""
}

func (c *Collector) recordError(run *setupRun, msg string) {
	run.statusMu.Lock()
	run.status.LastError = msg
	run.statusMu.Unlock()
}
