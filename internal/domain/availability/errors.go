package availability

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGrid reports generator bounds that can never produce a grid.
	// It comes from static configuration and is not retryable.
	ErrInvalidGrid = errors.New("invalid slot grid configuration")

	ErrSessionActive  = errors.New("an edit session is already open")
	ErrNoSession      = errors.New("no edit session is open")
	ErrUnknownSlot    = errors.New("slot is not part of the current day")
	ErrSaveInProgress = errors.New("a save is already in progress")
)

// FailureKind separates store failures the user can only retry from ones the
// server rejected on their merits.
type FailureKind int

const (
	TransportFailure FailureKind = iota
	ValidationFailure
)

func (k FailureKind) String() string {
	if k == ValidationFailure {
		return "validation"
	}
	return "transport"
}

// StoreError is returned by Store implementations for every failed call.
type StoreError struct {
	Kind    FailureKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a server-side rejection.
func IsValidation(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == ValidationFailure
}

// IsTransport reports whether err is a network or server availability failure.
func IsTransport(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == TransportFailure
}
