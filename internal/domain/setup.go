package domain

// Setup is a named, persistent configuration binding a set of instruments
// (Targets), a sampling cadence (FrequencyHz), and an optional state
// machine (States/Transitions/InitialStateID).
type Setup struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	FrequencyHz   float64      `json:"frequency_hz"`
	Targets       []Target     `json:"instruments"`
	States        []State      `json:"states,omitempty"`
	Transitions   []Transition `json:"transitions,omitempty"`
	InitialStateID string      `json:"initialStateID,omitempty"`
}

// Target pairs an instrument with the per-setup parameters used to drive it
// when no state machine (or no state machine entry for this instrument) is
// overriding the mode.
type Target struct {
	InstrumentID int               `json:"instrument_id"`
	Parameters   TargetParameters  `json:"parameters"`
}

// TargetParameters is the parameter bag a target's collector pass reads the
// active mode (ModeID) and mode parameters from when the state machine is
// not driving this instrument.
type TargetParameters struct {
	ModeID     string            `json:"modeId"`
	ModeParams map[string]string `json:"modeParams,omitempty"`
}

// HasStateMachine reports whether the setup defines a state machine.
func (s Setup) HasStateMachine() bool {
	return s.InitialStateID != "" || len(s.States) > 0
}

// StateByID returns the state with the given id, if any.
func (s Setup) StateByID(id string) (State, bool) {
	for _, st := range s.States {
		if st.ID == id {
			return st, true
		}
	}
	return State{}, false
}

// OutgoingTransitions returns the transitions whose source is stateID, in
// the order they appear in s.Transitions — the deterministic tie-break
// order required by §4.5.
func (s Setup) OutgoingTransitions(stateID string) []Transition {
	var out []Transition
	for _, t := range s.Transitions {
		if t.SourceStateID == stateID {
			out = append(out, t)
		}
	}
	return out
}

// State is one node of a setup's state machine.
type State struct {
	ID                 string                          `json:"id"`
	Name               string                          `json:"name"`
	IsEndState         bool                             `json:"isEndState"`
	InstrumentSettings map[string]InstrumentSetting     `json:"instrumentSettings"`
}

// InstrumentSetting is the mode (and mode parameters) a state applies to one
// instrument on entry. The map key in State.InstrumentSettings is the
// instrument id formatted as a decimal string.
type InstrumentSetting struct {
	ModeID     string            `json:"modeId"`
	ModeParams map[string]string `json:"modeParams,omitempty"`
}

// Transition is an edge from SourceStateID to TargetStateID gated by the
// conjunction of Rules.
type Transition struct {
	ID             string `json:"id"`
	SourceStateID  string `json:"sourceStateID"`
	TargetStateID  string `json:"targetStateID"`
	Rules          []Rule `json:"rules"`
}

// RuleKind discriminates the tagged variant Rule.
type RuleKind string

const (
	RuleSensor       RuleKind = "sensor"
	RuleTimeInState  RuleKind = "timeInState"
	RuleTotalTime    RuleKind = "totalTime"
)

// Operator is a sensor rule's comparison operator.
type Operator string

const (
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// Rule is a tagged variant: exactly one of a sensor threshold, a
// time-in-state bound, or a total-session-time bound. Evaluation lives in
// the statemachine package's evaluateRule(rule, ec) function (§9 design note:
// avoid a class hierarchy for rule kinds).
type Rule struct {
	Type RuleKind `json:"type"`

	// sensor
	SignalName string   `json:"signalName,omitempty"`
	Operator   Operator `json:"operator,omitempty"`
	Threshold  float64  `json:"value,omitempty"`

	// timeInState / totalTime
	Seconds float64 `json:"seconds,omitempty"`
}
