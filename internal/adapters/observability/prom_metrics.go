// Package observability implements ports.Observability with structured
// zerolog logging and Prometheus metrics, grounded on the teacher's
// PromObs (internal/adapters/observability/prom_metrics.go), with the
// WAL/DLQ-specific metric names replaced by this domain's collector and
// state-machine metrics and log.Printf swapped for zerolog per
// mutker/nvidiactl's logging style.
package observability

import (
	"os"

	"github.com/kbralten/vxi-dash/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var _ ports.Observability = (*PromObs)(nil)

// PromObs backs ports.Observability with Prometheus counters/gauges/
// histograms and a zerolog logger.
type PromObs struct {
	log zerolog.Logger

	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// New builds a PromObs and registers its metrics against reg. cmd/vxid and
// the tests each pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer, level zerolog.Level) *PromObs {
	readingsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vxidash_readings_total",
		Help: "Total readings appended to the readings ring.",
	})
	readingErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vxidash_reading_errors_total",
		Help: "Total per-signal read errors (transport failures, parse failures).",
	})
	transitions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vxidash_state_transitions_total",
		Help: "Total state machine transitions taken across all setups.",
	})
	readingsRingLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vxidash_readings_ring_length",
		Help: "Current number of readings retained in the ring.",
	})
	activeSetups := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vxidash_active_setups",
		Help: "Number of setups with a running collector and/or state machine.",
	})
	collectLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vxidash_collect_pass_seconds",
		Help:    "Wall time of one collector sampling pass across all targets of a setup.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	ticksCoalesced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vxidash_ticks_coalesced_total",
		Help: "Total collector ticks coalesced because the prior pass was still running.",
	})
	smSessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vxidash_statemachine_sessions_started_total",
		Help: "Total state machine sessions started across all setups.",
	})

	reg.MustRegister(readingsTotal, readingErrors, transitions, readingsRingLen, activeSetups, collectLatency, ticksCoalesced, smSessionsStarted)

	return &PromObs{
		log: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger(),
		counters: map[string]prometheus.Counter{
			"vxidash_readings_total":                      readingsTotal,
			"vxidash_reading_errors_total":                readingErrors,
			"vxidash_state_transitions_total":              transitions,
			"vxidash_ticks_coalesced_total":                ticksCoalesced,
			"vxidash_statemachine_sessions_started_total":  smSessionsStarted,
		},
		gauges: map[string]prometheus.Gauge{
			"vxidash_readings_ring_length": readingsRingLen,
			"vxidash_active_setups":        activeSetups,
		},
		histos: map[string]prometheus.Observer{
			"vxidash_collect_pass_seconds": collectLatency,
		},
	}
}

func withFields(e *zerolog.Event, fields []ports.Field) *zerolog.Event {
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	return e
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	withFields(p.log.Info(), fields).Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err), fields).Msg(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err).Bool("critical", true), fields).Msg(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	} else if g, ok := p.gauges[name]; ok {
		// up/down gauges such as vxidash_active_setups are adjusted by delta
		g.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}
