// Package configstore implements C2: JSON-file persistence for instruments
// and setups, with whole-file atomic replacement, monotonic id assignment,
// and the referential-integrity invariants of spec.md §3. Grounded on
// original_source/backend/app/storage/file_storage.py's FileStorage (same
// id-assignment and "load all, mutate, replace" shape), reworked with the
// teacher's (ghalamif/AegisFlow) per-resource mutex and atomic-replace
// discipline from internal/adapters/wal/file_wal.go.
package configstore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/kbralten/vxi-dash/internal/ports"
)

// FileStore is the JSON-file-backed ports.ConfigStore.
type FileStore struct {
	instrumentsPath string
	setupsPath      string

	instMu   sync.RWMutex
	setupMu  sync.RWMutex
}

var _ ports.ConfigStore = (*FileStore)(nil)

// New returns a FileStore for the instruments.json and setups.json
// documents under dataDir. It does not touch the files: a missing file reads
// as an empty collection and is created on the first write.
func New(dataDir string) (*FileStore, error) {
	return &FileStore{
		instrumentsPath: filepath.Join(dataDir, "instruments.json"),
		setupsPath:      filepath.Join(dataDir, "setups.json"),
	}, nil
}

// ---- instruments ----------------------------------------------------

func (s *FileStore) ListInstruments() ([]domain.Instrument, error) {
	s.instMu.RLock()
	defer s.instMu.RUnlock()
	return s.loadInstrumentsLocked()
}

func (s *FileStore) GetInstrument(id int) (domain.Instrument, error) {
	s.instMu.RLock()
	defer s.instMu.RUnlock()
	instruments, err := s.loadInstrumentsLocked()
	if err != nil {
		return domain.Instrument{}, err
	}
	for _, in := range instruments {
		if in.ID == id {
			return in, nil
		}
	}
	return domain.Instrument{}, domain.NewNotFoundError("instrument", id)
}

func (s *FileStore) CreateInstrument(in domain.Instrument) (domain.Instrument, error) {
	s.instMu.Lock()
	defer s.instMu.Unlock()

	instruments, err := s.loadInstrumentsLocked()
	if err != nil {
		return domain.Instrument{}, err
	}

	if err := hydrate(&in); err != nil {
		return domain.Instrument{}, err
	}
	if err := validateInstrumentName(instruments, in.Name, 0); err != nil {
		return domain.Instrument{}, err
	}

	in.ID = nextID(instrumentIDs(instruments))
	instruments = append(instruments, in)
	if err := s.saveInstrumentsLocked(instruments); err != nil {
		return domain.Instrument{}, err
	}
	return in, nil
}

func (s *FileStore) UpdateInstrument(id int, in domain.Instrument) (domain.Instrument, error) {
	s.instMu.Lock()
	defer s.instMu.Unlock()

	instruments, err := s.loadInstrumentsLocked()
	if err != nil {
		return domain.Instrument{}, err
	}

	idx := indexOfInstrument(instruments, id)
	if idx < 0 {
		return domain.Instrument{}, domain.NewNotFoundError("instrument", id)
	}

	if err := hydrate(&in); err != nil {
		return domain.Instrument{}, err
	}
	if err := validateInstrumentName(instruments, in.Name, id); err != nil {
		return domain.Instrument{}, err
	}

	in.ID = id
	instruments[idx] = in
	if err := s.saveInstrumentsLocked(instruments); err != nil {
		return domain.Instrument{}, err
	}
	return in, nil
}

func (s *FileStore) DeleteInstrument(id int) error {
	s.instMu.Lock()
	defer s.instMu.Unlock()

	instruments, err := s.loadInstrumentsLocked()
	if err != nil {
		return err
	}
	idx := indexOfInstrument(instruments, id)
	if idx < 0 {
		return domain.NewNotFoundError("instrument", id)
	}

	s.setupMu.RLock()
	setups, err := s.loadSetupsLocked()
	s.setupMu.RUnlock()
	if err != nil {
		return err
	}
	if referenced, setupName := setupReferencingInstrument(setups, id); referenced {
		return domain.NewConflictError(fmt.Sprintf("instrument %d is referenced by setup %q", id, setupName))
	}

	instruments = append(instruments[:idx], instruments[idx+1:]...)
	return s.saveInstrumentsLocked(instruments)
}

// ---- setups -----------------------------------------------------------

func (s *FileStore) ListSetups() ([]domain.Setup, error) {
	s.setupMu.RLock()
	defer s.setupMu.RUnlock()
	return s.loadSetupsLocked()
}

func (s *FileStore) GetSetup(id int) (domain.Setup, error) {
	s.setupMu.RLock()
	defer s.setupMu.RUnlock()
	setups, err := s.loadSetupsLocked()
	if err != nil {
		return domain.Setup{}, err
	}
	for _, st := range setups {
		if st.ID == id {
			return st, nil
		}
	}
	return domain.Setup{}, domain.NewNotFoundError("setup", id)
}

func (s *FileStore) CreateSetup(setup domain.Setup) (domain.Setup, error) {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	setups, err := s.loadSetupsLocked()
	if err != nil {
		return domain.Setup{}, err
	}

	instruments, err := s.ListInstruments()
	if err != nil {
		return domain.Setup{}, err
	}

	if err := validateSetupName(setups, setup.Name, 0); err != nil {
		return domain.Setup{}, err
	}
	if err := validateSetup(setup, instruments); err != nil {
		return domain.Setup{}, err
	}

	setup.ID = nextID(setupIDs(setups))
	setups = append(setups, setup)
	if err := s.saveSetupsLocked(setups); err != nil {
		return domain.Setup{}, err
	}
	return setup, nil
}

func (s *FileStore) UpdateSetup(id int, setup domain.Setup) (domain.Setup, error) {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	setups, err := s.loadSetupsLocked()
	if err != nil {
		return domain.Setup{}, err
	}
	idx := indexOfSetup(setups, id)
	if idx < 0 {
		return domain.Setup{}, domain.NewNotFoundError("setup", id)
	}

	instruments, err := s.ListInstruments()
	if err != nil {
		return domain.Setup{}, err
	}

	if err := validateSetupName(setups, setup.Name, id); err != nil {
		return domain.Setup{}, err
	}
	if err := validateSetup(setup, instruments); err != nil {
		return domain.Setup{}, err
	}

	setup.ID = id
	setups[idx] = setup
	if err := s.saveSetupsLocked(setups); err != nil {
		return domain.Setup{}, err
	}
	return setup, nil
}

func (s *FileStore) DeleteSetup(id int) error {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	setups, err := s.loadSetupsLocked()
	if err != nil {
		return err
	}
	idx := indexOfSetup(setups, id)
	if idx < 0 {
		return domain.NewNotFoundError("setup", id)
	}
	setups = append(setups[:idx], setups[idx+1:]...)
	return s.saveSetupsLocked(setups)
}

// ---- locked helpers -----------------------------------------------------

func (s *FileStore) loadInstrumentsLocked() ([]domain.Instrument, error) {
	var instruments []domain.Instrument
	if err := readJSONFile(s.instrumentsPath, &instruments); err != nil {
		return nil, err
	}
	for i := range instruments {
		if err := hydrate(&instruments[i]); err != nil {
			return nil, err
		}
	}
	return instruments, nil
}

func (s *FileStore) saveInstrumentsLocked(instruments []domain.Instrument) error {
	for i := range instruments {
		enc, err := EncodeCapability(instruments[i].Capability)
		if err != nil {
			return err
		}
		instruments[i].Description = enc
	}
	return writeJSONFileAtomic(s.instrumentsPath, instruments)
}

func (s *FileStore) loadSetupsLocked() ([]domain.Setup, error) {
	var setups []domain.Setup
	if err := readJSONFile(s.setupsPath, &setups); err != nil {
		return nil, err
	}
	return setups, nil
}

func (s *FileStore) saveSetupsLocked(setups []domain.Setup) error {
	return writeJSONFileAtomic(s.setupsPath, setups)
}

// ---- id assignment ------------------------------------------------------

// nextID assigns the smallest integer id greater than any existing id
// (§4.2 "create ... assigns smallest integer id greater than any existing").
func nextID(existing []int) int {
	max := 0
	for _, id := range existing {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func instrumentIDs(in []domain.Instrument) []int {
	ids := make([]int, len(in))
	for i, v := range in {
		ids[i] = v.ID
	}
	return ids
}

func setupIDs(in []domain.Setup) []int {
	ids := make([]int, len(in))
	for i, v := range in {
		ids[i] = v.ID
	}
	return ids
}

func indexOfInstrument(in []domain.Instrument, id int) int {
	for i, v := range in {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func indexOfSetup(in []domain.Setup, id int) int {
	for i, v := range in {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func setupReferencingInstrument(setups []domain.Setup, instrumentID int) (bool, string) {
	for _, setup := range setups {
		for _, target := range setup.Targets {
			if target.InstrumentID == instrumentID {
				return true, setup.Name
			}
		}
		for _, state := range setup.States {
			key := fmt.Sprintf("%d", instrumentID)
			if _, ok := state.InstrumentSettings[key]; ok {
				return true, setup.Name
			}
		}
	}
	return false, ""
}
