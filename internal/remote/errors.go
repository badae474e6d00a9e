package remote

import (
	"errors"
	"fmt"
)

// ErrUnauthorized signals a 401 from the remote ledger: the step-up token
// was rejected or has expired server-side.
var ErrUnauthorized = errors.New("remote ledger rejected authorization")

// ValidationError is a non-401 4xx: the remote understood the request and
// refused it. Not retryable.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote ledger rejected request (%d): %s", e.Status, e.Message)
}

// NetworkError covers transport failures, 5xx responses and unparseable
// bodies. Transient: the caller may retry later with the same payload.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("remote ledger unreachable during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
