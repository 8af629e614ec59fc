package domain

import "fmt"

// ValidationError carries a field-level message for a rejected create/update
// (§4.2, §7 "Validation").
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a *ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError indicates a uniqueness violation (name taken) or a
// referential-integrity violation blocking a delete (§7, §8 scenario 5).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NewConflictError builds a *ConflictError.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// NotFoundError indicates the referenced id does not exist.
type NotFoundError struct {
	Kind string
	ID   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// NewNotFoundError builds a *NotFoundError.
func NewNotFoundError(kind string, id int) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// TransportErrorKind classifies a transport failure (§4.1).
type TransportErrorKind string

const (
	TransportUnreachable    TransportErrorKind = "unreachable"
	TransportTimeout        TransportErrorKind = "timeout"
	TransportProtocolError  TransportErrorKind = "protocol_error"
	TransportLocked         TransportErrorKind = "locked"
)

// TransportError wraps a transport failure with its classification.
type TransportError struct {
	Kind    TransportErrorKind
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport %s (%s): %v", e.Kind, e.Address, e.Err)
	}
	return fmt.Sprintf("transport %s (%s)", e.Kind, e.Address)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a *TransportError.
func NewTransportError(kind TransportErrorKind, address string, err error) *TransportError {
	return &TransportError{Kind: kind, Address: address, Err: err}
}

// ParameterMissingError is a state-entry hard error (§4.4 "Parameter
// substitution", §7): a mode's command referenced a {placeholder} that was
// not supplied in mode_params.
type ParameterMissingError struct {
	InstrumentID int
	ModeID       string
	Parameter    string
}

func (e *ParameterMissingError) Error() string {
	return fmt.Sprintf("instrument %d mode %s: missing parameter %q", e.InstrumentID, e.ModeID, e.Parameter)
}
