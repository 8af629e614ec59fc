// Package domain defines the core types shared by the configuration store,
// the data collector, and the state machine engine.
package domain

// Instrument is a physical device reachable over the text-command protocol
// at Address ("host/device"). Its Capability describes what it can measure
// and how it can be configured.
type Instrument struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	IsActive   bool       `json:"is_active"`
	Capability Capability `json:"-"`

	// Description carries the capability JSON verbatim, for compatibility
	// with the on-disk document shape (§6.1): the capability is parsed out
	// of this field on load and serialized back into it on save.
	Description string `json:"description"`
}

// Capability describes the signals and modes an instrument supports, and
// the signal×mode matrix mapping each pair to a unit and scale factor.
type Capability struct {
	Signals           []Signal           `json:"signals"`
	Modes             []Mode             `json:"modes"`
	SignalModeConfigs []SignalModeConfig `json:"signalModeConfigs"`
}

// Signal is a named measurable quantity with an opaque query command.
type Signal struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MeasureCommand string `json:"measureCommand"`
}

// Mode is a named instrument configuration with ordered enable/disable
// command scripts and the parameter names referenced by {name} placeholders
// in those commands.
type Mode struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	EnableCommands  []string         `json:"enableCommands"`
	DisableCommands []string         `json:"disableCommands"`
	Parameters      []ModeParameter  `json:"parameters"`
}

// ModeParameter names a placeholder a mode's commands reference.
type ModeParameter struct {
	Name string `json:"name"`
}

// SignalModeConfig is one cell of the signal×mode matrix: the unit and
// scale factor used when Signal is measured while Mode is active. Absence
// of an entry means the signal is not measured in that mode.
type SignalModeConfig struct {
	ModeID        string  `json:"modeId"`
	SignalID      string  `json:"signalId"`
	Unit          string  `json:"unit"`
	ScalingFactor float64 `json:"scalingFactor"`
}

// SignalByName returns the signal with the given name, if any.
func (c Capability) SignalByName(name string) (Signal, bool) {
	for _, s := range c.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}

// ModeByID returns the mode with the given id, if any.
func (c Capability) ModeByID(id string) (Mode, bool) {
	for _, m := range c.Modes {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}

// SignalsForMode returns every signal configured for modeID, together with
// its unit and scale factor, in the order declared in c.Signals.
func (c Capability) SignalsForMode(modeID string) []SignalWithConfig {
	configByID := make(map[string]SignalModeConfig, len(c.SignalModeConfigs))
	for _, cfg := range c.SignalModeConfigs {
		if cfg.ModeID == modeID {
			configByID[cfg.SignalID] = cfg
		}
	}

	out := make([]SignalWithConfig, 0, len(configByID))
	for _, sig := range c.Signals {
		if cfg, ok := configByID[sig.ID]; ok {
			out = append(out, SignalWithConfig{Signal: sig, Config: cfg})
		}
	}
	return out
}

// SignalWithConfig pairs a signal with its unit/scale for a particular mode.
type SignalWithConfig struct {
	Signal Signal
	Config SignalModeConfig
}

// ConfigFor returns the signal×mode entry for (signalID, modeID), if present.
func (c Capability) ConfigFor(signalID, modeID string) (SignalModeConfig, bool) {
	for _, cfg := range c.SignalModeConfigs {
		if cfg.SignalID == signalID && cfg.ModeID == modeID {
			return cfg, true
		}
	}
	return SignalModeConfig{}, false
}
