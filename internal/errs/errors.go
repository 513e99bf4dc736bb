// Package errs defines the two error kinds the planner surfaces to callers:
// validation failures caught before any storage mutation, and referential
// violations (uniqueness, restricted deletes) raised by the storage layer.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ValidationError rejects an operation before storage is touched. Field names
// the offending input so callers can surface it next to the right form field.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(entity, field, reason string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: reason}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// ReferentialError wraps a storage uniqueness or foreign-key violation
// unchanged, tagged with the operation that triggered it.
type ReferentialError struct {
	Op  string
	Err error
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ReferentialError) Unwrap() error {
	return e.Err
}

// IsReferential reports whether err carries a ReferentialError.
func IsReferential(err error) bool {
	var target *ReferentialError
	return errors.As(err, &target)
}

// Referential tags a storage violation with its operation. Errors that are
// not constraint violations pass through unwrapped.
func Referential(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConstraintViolation(err) {
		return &ReferentialError{Op: op, Err: err}
	}
	return err
}

// ServiceError codes an internal failure as operation.reason for logs and
// API payloads.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

// Service builds a coded ServiceError.
func Service(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IsConstraintViolation detects uniqueness and foreign-key failures as the
// sqlite driver surfaces them through gorm.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "UNIQUE constraint failed") ||
		strings.Contains(message, "FOREIGN KEY constraint failed") ||
		strings.Contains(message, "constraint failed")
}
