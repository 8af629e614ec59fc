package ports

import "github.com/kbralten/vxi-dash/internal/domain"

// ConfigStore persists instruments and setups as JSON documents (§4.2, C2).
// Mutating operations on a single collection are serialized under a
// per-file mutex; readers may proceed concurrently with other readers.
type ConfigStore interface {
	ListInstruments() ([]domain.Instrument, error)
	GetInstrument(id int) (domain.Instrument, error)
	CreateInstrument(in domain.Instrument) (domain.Instrument, error)
	UpdateInstrument(id int, in domain.Instrument) (domain.Instrument, error)
	DeleteInstrument(id int) error

	ListSetups() ([]domain.Setup, error)
	GetSetup(id int) (domain.Setup, error)
	CreateSetup(s domain.Setup) (domain.Setup, error)
	UpdateSetup(id int, s domain.Setup) (domain.Setup, error)
	DeleteSetup(id int) error
}
