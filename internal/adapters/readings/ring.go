// Package readings implements C3: the bounded, JSON-file-backed readings
// ring shared by the data collector and the state machine engine. Grounded
// on internal/adapters/wal/file_wal.go's append/bootstrap/persist shape and
// internal/adapters/configstore's atomic whole-file replace, adapted from a
// record-oriented append log into a capped in-memory ring synced to disk.
package readings

import (
	"sync"
	"time"

	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/kbralten/vxi-dash/internal/ports"
)

// FileRing is the ports.ReadingsRing implementation. It keeps every
// retained reading in memory, newest-last, and rewrites the backing file on
// every mutation (§4.3: the ring is trimmed, not the file appended to
// forever, so whole-file replace stays cheap at the configured cap).
type FileRing struct {
	mu   sync.RWMutex
	path string
	cap  int
	data []domain.Reading
}

var _ ports.ReadingsRing = (*FileRing)(nil)

// New loads the readings document at path, capped at n (the spec's N_max,
// §3 invariant 6); a missing file starts an empty ring and is created on the
// first Append. n <= 0 means unbounded.
func New(path string, n int) (*FileRing, error) {
	r := &FileRing{path: path, cap: n}
	var data []domain.Reading
	if err := readJSONFile(path, &data); err != nil {
		return nil, err
	}
	r.data = trim(data, n)
	return r, nil
}

func (r *FileRing) Append(reading domain.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data = append(r.data, reading)
	r.data = trim(r.data, r.cap)
	return writeJSONFileAtomic(r.path, r.data)
}

// Latest returns the k most recent readings for setupID, newest-first. k<=0
// means all matching readings.
func (r *FileRing) Latest(setupID int, k int) ([]domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.forSetupNewestFirstLocked(setupID)
	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}
	return matched, nil
}

// Since returns readings for setupID no older than d, newest-first.
func (r *FileRing) Since(setupID int, d time.Duration) ([]domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.forSetupNewestFirstLocked(setupID)
	cutoff := referenceNow(matched).Add(-d)
	out := matched[:0:0]
	for _, rd := range matched {
		if !rd.Timestamp.Before(cutoff) {
			out = append(out, rd)
		}
	}
	return out, nil
}

func (r *FileRing) All(limit int) ([]domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Reading, len(r.data))
	for i, rd := range r.data {
		out[len(r.data)-1-i] = rd
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FileRing) Reset(setupID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.data[:0:0]
	removed := 0
	for _, rd := range r.data {
		if rd.SetupID == setupID {
			removed++
			continue
		}
		kept = append(kept, rd)
	}
	r.data = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, writeJSONFileAtomic(r.path, r.data)
}

func (r *FileRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *FileRing) forSetupNewestFirstLocked(setupID int) []domain.Reading {
	var matched []domain.Reading
	for i := len(r.data) - 1; i >= 0; i-- {
		if r.data[i].SetupID == setupID {
			matched = append(matched, r.data[i])
		}
	}
	return matched
}

// trim drops the oldest entries once len(data) exceeds n (§3 invariant 6:
// "the readings log never exceeds N_max; the oldest entries are dropped
// first"). n <= 0 disables the cap.
func trim(data []domain.Reading, n int) []domain.Reading {
	if n <= 0 || len(data) <= n {
		return data
	}
	return append([]domain.Reading{}, data[len(data)-n:]...)
}

// referenceNow anchors Since's cutoff to the newest of the given readings
// (Since passes the requested setup's readings) rather than wall-clock time,
// so Since stays deterministic in tests that replay historical readings.
func referenceNow(data []domain.Reading) time.Time {
	if len(data) == 0 {
		return time.Now()
	}
	latest := data[0].Timestamp
	for _, rd := range data {
		if rd.Timestamp.After(latest) {
			latest = rd.Timestamp
		}
	}
	return latest
}
