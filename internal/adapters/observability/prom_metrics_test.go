package observability

import (
	"testing"

	"github.com/kbralten/vxi-dash/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg, zerolog.ErrorLevel)

	obs.IncCounter("vxidash_readings_total", 5)
	if got := testutil.ToFloat64(obs.counters["vxidash_readings_total"]); got != 5 {
		t.Fatalf("expected readings counter 5, got %f", got)
	}

	obs.IncCounter("vxidash_reading_errors_total", 2)
	if got := testutil.ToFloat64(obs.counters["vxidash_reading_errors_total"]); got != 2 {
		t.Fatalf("expected reading error counter 2, got %f", got)
	}

	obs.SetGauge("vxidash_readings_ring_length", 42)
	if got := testutil.ToFloat64(obs.gauges["vxidash_readings_ring_length"]); got != 42 {
		t.Fatalf("expected ring length gauge 42, got %f", got)
	}

	obs.ObserveLatency("vxidash_collect_pass_seconds", 0.5)
	hCollector := obs.histos["vxidash_collect_pass_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	// unregistered names are no-ops, not panics
	obs.IncCounter("does_not_exist", 1)
	obs.SetGauge("does_not_exist", 1)
	obs.ObserveLatency("does_not_exist", 1)
}

func TestPromObsLogging(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg, zerolog.Disabled)

	obs.LogInfo("collector started", ports.Field{Key: "setup_id", Value: 1})
	obs.LogError("transport query failed", nil, ports.Field{Key: "instrument_id", Value: 2})
	obs.LogCritical("readings ring corrupted", nil)
}
