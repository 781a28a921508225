package circuit

import (
	"errors"
	"fmt"
)

// Sentinel errors for topology operations.
var (
	ErrUnknownVariant    = errors.New("unknown component variant")
	ErrComponentNotFound = errors.New("component not found")
	ErrWireNotFound      = errors.New("wire not found")
	ErrMeterNotFound     = errors.New("meter not found")
	ErrTerminalNotFound  = errors.New("terminal not found")
	ErrSelfLoop          = errors.New("wire endpoints are the same terminal")
	ErrNoWirePath        = errors.New("wire endpoints do not resolve")
	ErrNoWirePoint       = errors.New("wire has no interior point")
	ErrPropsKind         = errors.New("props kind does not match component")
	ErrInvalidMeter      = errors.New("invalid meter")
	ErrInvalidRotation   = errors.New("rotation must be a multiple of 90")
	ErrNotInteractive    = errors.New("component has no interactive control")
)

// RefError names the entity an operation could not resolve.
type RefError struct {
	Kind    string
	ID      string
	Wrapped error
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.ID, e.Wrapped)
}

func (e *RefError) Unwrap() error { return e.Wrapped }

// NewRefError creates a RefError.
func NewRefError(kind, id string, wrapped error) *RefError {
	return &RefError{Kind: kind, ID: id, Wrapped: wrapped}
}
