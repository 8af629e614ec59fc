package domain

import "time"

// Reading is one produced sample for a setup at one instant (§3 "Reading").
type Reading struct {
	Timestamp time.Time      `json:"timestamp"`
	SetupID   int            `json:"setup_id"`
	SetupName string         `json:"setup_name"`
	Targets   []TargetBlock  `json:"targets"`

	// EndState is set only on the synthetic marker reading appended when a
	// state machine session reaches an end state (SPEC_FULL.md
	// "record_end_state").
	EndState *EndStateMarker `json:"end_state,omitempty"`
}

// EndStateMarker records which end state a session reached and when.
type EndStateMarker struct {
	StateID   string    `json:"state_id"`
	StateName string    `json:"state_name"`
	ReachedAt time.Time `json:"reached_at"`
}

// TargetBlock is the per-target block of a Reading.
type TargetBlock struct {
	InstrumentID   int                       `json:"instrument_id"`
	InstrumentName string                    `json:"instrument_name"`
	ModeName       string                    `json:"mode_name"`
	Signals        map[string]SignalReading  `json:"signals"`
}

// SignalReading is one signal's measured value within a TargetBlock.
type SignalReading struct {
	Value       *float64 `json:"value"`
	RawValue    *float64 `json:"raw_value"`
	Unit        string   `json:"unit"`
	RawResponse string   `json:"raw_response"`
	Error       string   `json:"error,omitempty"`
}
