package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrPermissionDenied is returned when the Caller may not perform an operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAccountLocked is returned when a locked student or teacher reaches a gated surface.
	ErrAccountLocked = errors.New("account locked")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field, msg string) error {
	return &ValidationError{Err: errors.New(msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports an unknown resource (batch, enrollment, payment, plan, teacher).
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string {
	return err.Resource + " not found"
}

// InvalidStateError reports a transition attempted from a non-pending state.
type InvalidStateError struct {
	Resource string
	Current  string
}

func NewInvalidStateError(resource, current string) error {
	return &InvalidStateError{Resource: resource, Current: current}
}

func (err InvalidStateError) Error() string {
	return fmt.Sprintf("%s is already %s", err.Resource, err.Current)
}

type QuotaExceededError struct {
	MaxBatches    int
	ActiveBatches int
}

func NewQuotaExceededError(maxBatches, active int) error {
	return &QuotaExceededError{MaxBatches: maxBatches, ActiveBatches: active}
}

func (err QuotaExceededError) Error() string {
	return fmt.Sprintf("batch quota exceeded: %d of %d batches in use", err.ActiveBatches, err.MaxBatches)
}

// StorageError wraps a blob store failure.
type StorageError struct {
	Err error
}

func NewStorageError(err error) error {
	return &StorageError{Err: err}
}

func (err StorageError) Error() string {
	if err.Err == nil {
		return "storage failure"
	}
	return "storage failure: " + err.Err.Error()
}

func (err StorageError) Unwrap() error { return err.Err }

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsInvalidState(err error) bool {
	_, ok := errors.Cause(err).(*InvalidStateError)
	return ok
}

func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
