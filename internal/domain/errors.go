package domain

import (
	"errors"
	"fmt"
)

// BusinessError means a request could not be computed from the data available.
// Invalid marks malformed input rejected before any work was done.
type BusinessError struct {
	Message string
	Invalid bool
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a business error
func NewBusinessError(format string, args ...interface{}) *BusinessError {
	return &BusinessError{Message: fmt.Sprintf(format, args...)}
}

// InvalidInput creates a business error for malformed input
func InvalidInput(format string, args ...interface{}) *BusinessError {
	return &BusinessError{Message: fmt.Sprintf(format, args...), Invalid: true}
}

// NotFoundError means the requested resource does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// TransientError wraps a failure the caller may retry, such as a timeout
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// CacheError wraps a failure of the performance cache store
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// IsBusiness reports whether err is a business error
func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

// IsInvalidInput reports whether err is a business error for malformed input
func IsInvalidInput(err error) bool {
	var be *BusinessError
	return errors.As(err, &be) && be.Invalid
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransient reports whether err is retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
