package configstore

import (
	"encoding/json"
	"fmt"

	"github.com/kbralten/vxi-dash/internal/domain"
)

// ParseCapability parses the capability JSON embedded in an instrument's
// Description field (§6.1). An empty description yields an empty, valid
// capability — a freshly created instrument may not have one yet. Any
// non-empty description that fails to parse is a hard error (§9 design
// note: "Reject unparseable capability JSON at load with a clear error;
// do not silently default").
func ParseCapability(description string) (domain.Capability, error) {
	if description == "" {
		return domain.Capability{}, nil
	}
	var cap domain.Capability
	if err := json.Unmarshal([]byte(description), &cap); err != nil {
		return domain.Capability{}, fmt.Errorf("parse capability json: %w", err)
	}
	return cap, nil
}

// EncodeCapability serializes a capability back into the Description field
// shape, for compatibility with the persisted document (§6.1, §9: "persist
// back into the same field for compatibility with existing files").
func EncodeCapability(cap domain.Capability) (string, error) {
	b, err := json.Marshal(cap)
	if err != nil {
		return "", fmt.Errorf("encode capability json: %w", err)
	}
	return string(b), nil
}

// hydrate parses an instrument's Description into its Capability field,
// returning a ValidationError (not the raw parse error) so API callers get
// the §7 "Corruption" treatment consistently.
func hydrate(in *domain.Instrument) error {
	cap, err := ParseCapability(in.Description)
	if err != nil {
		return domain.NewValidationError("description", err.Error())
	}
	in.Capability = cap
	return nil
}
