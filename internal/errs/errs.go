// Package errs defines the error taxonomy shared by the messaging core.
// Every error carries a stable code so callers outside the core can map it
// to their own surface without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown       = "UNKNOWN"
	CodeDatabase      = "DATABASE"
	CodeValidation    = "VALIDATION"
	CodeNotFound      = "NOT_FOUND"
	CodeCycleDetected = "CYCLE_DETECTED"
	CodeTransaction   = "TRANSACTION"
	CodeConfig        = "CONFIG"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if it doesn't have one.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// ValidationError reports bad input: empty content, missing fields and
// policy violations. No state changes when it is returned.
type ValidationError struct {
	base Error
}

func (e *ValidationError) Error() string { return e.base.Error() }
func (e *ValidationError) Code() string  { return e.base.Code() }
func (e *ValidationError) Unwrap() error { return e.base.Unwrap() }

func NewValidationError(message string, cause error) error {
	return &ValidationError{base: Error{code: CodeValidation, message: message, err: cause}}
}

// NotFoundError reports an unknown message or user id.
type NotFoundError struct {
	base Error
	// Kind is the entity that was looked up ("message", "user").
	Kind string
	// ID is the identifier that did not resolve.
	ID string
}

func (e *NotFoundError) Error() string { return e.base.Error() }
func (e *NotFoundError) Code() string  { return e.base.Code() }
func (e *NotFoundError) Unwrap() error { return e.base.Unwrap() }

func NewNotFoundError(kind, id string) error {
	return &NotFoundError{
		base: Error{code: CodeNotFound, message: fmt.Sprintf("%s %q not found", kind, id)},
		Kind: kind,
		ID:   id,
	}
}

// CycleDetectedError reports a corrupted parent chain found while walking a
// thread. It is a data-integrity fault, not a caller mistake.
type CycleDetectedError struct {
	base Error
	// MessageID is the node that was reached twice.
	MessageID string
}

func (e *CycleDetectedError) Error() string { return e.base.Error() }
func (e *CycleDetectedError) Code() string  { return e.base.Code() }
func (e *CycleDetectedError) Unwrap() error { return e.base.Unwrap() }

func NewCycleDetectedError(messageID string) error {
	return &CycleDetectedError{
		base:      Error{code: CodeCycleDetected, message: fmt.Sprintf("cycle detected in thread at message %q", messageID)},
		MessageID: messageID,
	}
}

// TransactionError reports a failed commit or a side effect that aborted the
// transaction. Nothing written by the operation is visible afterwards.
type TransactionError struct {
	base Error
}

func (e *TransactionError) Error() string { return e.base.Error() }
func (e *TransactionError) Code() string  { return e.base.Code() }
func (e *TransactionError) Unwrap() error { return e.base.Unwrap() }

func NewTransactionError(message string, cause error) error {
	return &TransactionError{base: Error{code: CodeTransaction, message: message, err: cause}}
}

type DatabaseError struct {
	base Error
}

func (e *DatabaseError) Error() string { return e.base.Error() }
func (e *DatabaseError) Code() string  { return e.base.Code() }
func (e *DatabaseError) Unwrap() error { return e.base.Unwrap() }

func NewDatabaseError(message string, cause error) error {
	return &DatabaseError{base: Error{code: CodeDatabase, message: message, err: cause}}
}

type ConfigError struct {
	base Error
}

func (e *ConfigError) Error() string { return e.base.Error() }
func (e *ConfigError) Code() string  { return e.base.Code() }
func (e *ConfigError) Unwrap() error { return e.base.Unwrap() }

func NewConfigError(message string, cause error) error {
	return &ConfigError{base: Error{code: CodeConfig, message: message, err: cause}}
}

// IsValidation reports whether err carries CodeValidation.
func IsValidation(err error) bool { return Code(err) == CodeValidation }

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return Code(err) == CodeNotFound }

// IsCycleDetected reports whether err carries CodeCycleDetected.
func IsCycleDetected(err error) bool { return Code(err) == CodeCycleDetected }

// IsTransaction reports whether err carries CodeTransaction.
func IsTransaction(err error) bool { return Code(err) == CodeTransaction }
