// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Store and external service errors
	ErrStore              = errors.New("store error")
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "social", "notification"
	Op      string // Operation that failed, e.g., "Follow", "RecordView"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e == t
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StoreFailure wraps a failed store call. The result matches ErrStore.
func StoreFailure(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStore, "store call failed", err)
}

// Social domain errors
var (
	ErrEmptyUserID      = NewDomainError("social", "Validate", ErrEmptyValue, "user id is required")
	ErrInvalidUserID    = NewDomainError("social", "Validate", ErrInvalidID, "user id contains forbidden characters")
	ErrSelfFollow       = NewDomainError("social", "Follow", ErrInvalidInput, "cannot follow yourself")
	ErrUserNotFound     = NewDomainError("social", "Find", ErrNotFound, "user not found")
	ErrViewerNotFound   = NewDomainError("social", "Find", ErrNotFound, "viewer not found")
	ErrAlreadyFollowing = NewDomainError("social", "Follow", ErrAlreadyExists, "already following")
	ErrNotFollowing     = NewDomainError("social", "Unfollow", ErrValidation, "not following")
	ErrUserExists       = NewDomainError("social", "Register", ErrAlreadyExists, "user already exists")
)

// Notification domain errors
var (
	ErrNotificationNotFound = NewDomainError("notification", "Find", ErrNotFound, "notification not found")
	ErrInvalidNotification  = NewDomainError("notification", "Validate", ErrInvalidInput, "invalid notification")
)

// Authorization errors surfaced by the HTTP layer.
var (
	ErrMissingToken  = NewDomainError("auth", "Authenticate", ErrUnauthorized, "missing bearer token")
	ErrInvalidToken  = NewDomainError("auth", "Authenticate", ErrUnauthorized, "invalid token")
	ErrSubjectDenied = NewDomainError("auth", "Authorize", ErrForbidden, "token subject does not match user")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsUnauthorized checks if the error is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if the error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsStore checks if the error comes from the backing store.
func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrStore) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
// Request paths never retry; startup and event handlers do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
