// Package remote holds the error type shared by clients of remote model endpoints.
package remote

import "fmt"

// ServiceError is returned when an embedding or chat endpoint call fails.
// It is never retried by the component that raised it.
type ServiceError struct {
	Service string // "embedding" or "chat"
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s service error: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s service error during %s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err for the named service and operation
func NewServiceError(service, op string, err error) *ServiceError {
	return &ServiceError{Service: service, Op: op, Err: err}
}
