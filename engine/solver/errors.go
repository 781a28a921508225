package solver

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse = errors.New("solver returned an empty response")
	ErrNoTransport   = errors.New("no solver transport configured")
)

// ServiceError is a request the solver service understood and rejected.
// Message is the service's own text, shown to the user as is.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("solver: status %d", e.Status)
}

// IsServiceError reports whether err carries a ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
