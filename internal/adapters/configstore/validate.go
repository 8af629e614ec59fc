package configstore

import (
	"fmt"
	"strconv"

	"github.com/kbralten/vxi-dash/internal/domain"
)

func validateInstrumentName(existing []domain.Instrument, name string, excludeID int) error {
	if name == "" {
		return domain.NewValidationError("name", "name is required")
	}
	for _, in := range existing {
		if in.ID != excludeID && in.Name == name {
			return domain.NewConflictError(fmt.Sprintf("instrument name %q already exists", name))
		}
	}
	return nil
}

func validateSetupName(existing []domain.Setup, name string, excludeID int) error {
	if name == "" {
		return domain.NewValidationError("name", "name is required")
	}
	for _, st := range existing {
		if st.ID != excludeID && st.Name == name {
			return domain.NewConflictError(fmt.Sprintf("setup name %q already exists", name))
		}
	}
	return nil
}

// validateSetup enforces the §3 invariants that reference other
// collections: instrument existence/activity, state/transition
// referential integrity, and signal×mode matrix resolution.
func validateSetup(setup domain.Setup, instruments []domain.Instrument) error {
	if setup.FrequencyHz <= 0 {
		return domain.NewValidationError("frequency_hz", "must be > 0")
	}
	if len(setup.Targets) == 0 {
		return domain.NewValidationError("instruments", "at least one target is required")
	}

	instrumentsByID := make(map[int]domain.Instrument, len(instruments))
	for _, in := range instruments {
		instrumentsByID[in.ID] = in
	}

	for _, target := range setup.Targets {
		in, ok := instrumentsByID[target.InstrumentID]
		if !ok {
			return domain.NewValidationError("instruments", fmt.Sprintf("instrument %d does not exist", target.InstrumentID))
		}
		if !in.IsActive {
			return domain.NewValidationError("instruments", fmt.Sprintf("instrument %d is not active", target.InstrumentID))
		}
		if target.Parameters.ModeID != "" {
			if _, ok := in.Capability.ModeByID(target.Parameters.ModeID); !ok {
				return domain.NewValidationError("instruments", fmt.Sprintf("instrument %d has no mode %q", target.InstrumentID, target.Parameters.ModeID))
			}
		}
	}

	if !setup.HasStateMachine() {
		return nil
	}

	statesByID := make(map[string]domain.State, len(setup.States))
	for _, st := range setup.States {
		statesByID[st.ID] = st
	}

	if setup.InitialStateID != "" {
		if _, ok := statesByID[setup.InitialStateID]; !ok {
			return domain.NewValidationError("initialStateID", "must reference a state in this setup")
		}
	}

	for _, t := range setup.Transitions {
		if _, ok := statesByID[t.SourceStateID]; !ok {
			return domain.NewValidationError("transitions", fmt.Sprintf("transition %q: source state %q does not exist", t.ID, t.SourceStateID))
		}
		if _, ok := statesByID[t.TargetStateID]; !ok {
			return domain.NewValidationError("transitions", fmt.Sprintf("transition %q: target state %q does not exist", t.ID, t.TargetStateID))
		}
	}

	for _, st := range setup.States {
		for instIDStr, setting := range st.InstrumentSettings {
			instID, err := strconv.Atoi(instIDStr)
			if err != nil {
				return domain.NewValidationError("states", fmt.Sprintf("state %q: invalid instrument id key %q", st.ID, instIDStr))
			}
			in, ok := instrumentsByID[instID]
			if !ok {
				return domain.NewValidationError("states", fmt.Sprintf("state %q: instrument %d does not exist", st.ID, instID))
			}
			if !in.IsActive {
				return domain.NewValidationError("states", fmt.Sprintf("state %q: instrument %d is not active", st.ID, instID))
			}
			mode, ok := in.Capability.ModeByID(setting.ModeID)
			if !ok {
				return domain.NewValidationError("states", fmt.Sprintf("state %q: instrument %d has no mode %q", st.ID, instID, setting.ModeID))
			}
			// The mode must have at least one signal configured in the
			// instrument's signal×mode matrix, unless the instrument declares
			// no signals at all (§3 invariant 4).
			if len(in.Capability.SignalsForMode(mode.ID)) == 0 && len(in.Capability.Signals) > 0 {
				return domain.NewValidationError("states", fmt.Sprintf("state %q: instrument %d mode %q has no configured signals", st.ID, instID, mode.ID))
			}
		}
	}

	return nil
}
