package services

import (
	"errors"
	"fmt"
)

// ValidationError represents a validation failure on a specific field
type ValidationError struct {
	Field       string   `json:"field"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("%s: %s. Suggestions: %v", e.Field, e.Message, e.Suggestions)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, suggestions []string) *ValidationError {
	return &ValidationError{
		Field:       field,
		Message:     message,
		Suggestions: suggestions,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr, true
	}
	return nil, false
}

// ConflictError represents a resource conflict (e.g., already exists)
type ConflictError struct {
	Resource string `json:"resource"`
	Message  string `json:"message"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

// NewConflictError creates a new conflict error
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{
		Resource: resource,
		Message:  message,
	}
}

// IsConflictError checks if an error is a ConflictError
func IsConflictError(err error) (*ConflictError, bool) {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr, true
	}
	return nil, false
}

// StateError represents an operation applied in a state that does not
// accept it (e.g., resuming a subscription past its grace window).
type StateError struct {
	Operation string `json:"operation"`
	State     string `json:"state"`
	Message   string `json:"message"`
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in state %s: %s", e.Operation, e.State, e.Message)
}

// NewStateError creates a new state error
func NewStateError(operation, state, message string) *StateError {
	return &StateError{
		Operation: operation,
		State:     state,
		Message:   message,
	}
}

// IsStateError checks if an error is a StateError
func IsStateError(err error) (*StateError, bool) {
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return stateErr, true
	}
	return nil, false
}

// ProcessorError wraps a payment processor failure. The processor message is
// carried verbatim so clients see what the processor reported; Retryable
// tells them whether trying again can help.
type ProcessorError struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("payment processor %s failed: %s", e.Operation, e.Message)
}

// NewProcessorError creates a new processor error
func NewProcessorError(operation string, err error, retryable bool) *ProcessorError {
	return &ProcessorError{
		Operation: operation,
		Message:   err.Error(),
		Retryable: retryable,
	}
}

// IsProcessorError checks if an error is a ProcessorError
func IsProcessorError(err error) (*ProcessorError, bool) {
	var procErr *ProcessorError
	if errors.As(err, &procErr) {
		return procErr, true
	}
	return nil, false
}
