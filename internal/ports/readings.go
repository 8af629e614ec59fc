package ports

import (
	"time"

	"github.com/kbralten/vxi-dash/internal/domain"
)

// ReadingsRing is the append-only bounded log of per-setup samples (§4.3,
// C3). It is single-writer per setup but safe for concurrent multi-reader
// access.
type ReadingsRing interface {
	// Append adds r to the log, trimming the oldest entries if the log
	// exceeds its configured cap (§3 invariant 6).
	Append(r domain.Reading) error

	// Latest returns the most recent k readings for setupID, newest-first.
	Latest(setupID int, k int) ([]domain.Reading, error)

	// Since returns readings for setupID no older than d, newest-first.
	Since(setupID int, d time.Duration) ([]domain.Reading, error)

	// All returns every reading currently retained across all setups,
	// newest-first; limit > 0 caps how many are returned.
	All(limit int) ([]domain.Reading, error)

	// Reset removes every retained reading for setupID and reports how many
	// were removed (SPEC_FULL.md "reset_monitoring_data").
	Reset(setupID int) (int, error)

	// Len reports how many readings are currently retained.
	Len() int
}
