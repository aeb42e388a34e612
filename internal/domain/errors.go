package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while collecting or aggregating lists.
var (
	// ErrMalformedInput indicates that an input record could not be parsed.
	// Malformed records are skipped and counted, never fatal on their own.
	ErrMalformedInput = errors.New("malformed input")

	// ErrMalformedOutput indicates that a generated response could not be
	// parsed into a list. The collector retries these.
	ErrMalformedOutput = errors.New("malformed output")

	// ErrEmptyCorpus indicates that a group had no usable lists to fit.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrNoUsableInput indicates that no usable list was found across the
	// whole run. This is the only fatal aggregation condition.
	ErrNoUsableInput = errors.New("no usable input")

	// ErrInvalidList indicates that a generated list failed item validation.
	ErrInvalidList = errors.New("invalid list")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnknownMethod indicates that a requested scoring method is not registered.
	ErrUnknownMethod = errors.New("unknown scoring method")
)

// GroupError represents a failure confined to one aggregation group.
// The batch continues with the remaining groups.
type GroupError struct {
	// Group is the group key that failed.
	Group string

	// Stage names the aggregation step that failed.
	Stage string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for GroupError.
func (e *GroupError) Error() string {
	return fmt.Sprintf("group error: group=%s, stage=%s, err=%v", e.Group, e.Stage, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *GroupError) Unwrap() error { return e.Err }

// NewGroupError creates a new GroupError with the given details.
func NewGroupError(group, stage string, err error) *GroupError {
	return &GroupError{
		Group: group,
		Stage: stage,
		Err:   err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
