package ports

// Observability is the logging/metrics port the collector and state machine
// engines emit through, grounded on the teacher's ports.Observability
// (github.com/ghalamif/AegisFlow). Kept identical in shape so the pattern
// (structured fields, named counters/gauges) carries over unchanged; the
// WAL-specific RecordDLQ method is dropped along with the WAL/DLQ concept,
// which has no counterpart in this domain.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)
	SetGauge(name string, v float64)
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}
