package usecase

import (
	"errors"
	"fmt"
)

// ErrFeatureDisabled is returned by operations whose collaborator is not configured.
var ErrFeatureDisabled = errors.New("feature not configured")

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StorageError reports that the backing store was unreachable or rejected an operation.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UpstreamError reports a failing external collaborator.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConflictError reports that a uniquely keyed resource already exists.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func storageError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Operation: operation, Err: err}
}

func upstreamError(service string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Service: service, Err: err}
}
