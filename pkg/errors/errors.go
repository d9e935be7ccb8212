package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidFileFormat  = errors.New("invalid file format")
	ErrSchemaValidation   = errors.New("schema validation failed")
	ErrFileTooLarge       = errors.New("file too large")
	ErrEmptyFile          = errors.New("empty file")
	ErrWebhookUnavailable = errors.New("webhook endpoint unavailable")
	ErrFileNotStored      = errors.New("file was never stored")
)

// ValidationError rejects input before any state is touched.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

func NewValidationError(field string, value interface{}, message string) error {
	return ValidationError{Field: field, Value: value, Message: message}
}

// ConflictError means the row moved under the caller: the guard on its current
// state no longer matched.
type ConflictError struct {
	Entity  string
	ID      string
	Current string
	Target  string
}

func (e ConflictError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("conflict on %s %s: transition to '%s' rejected", e.Entity, e.ID, e.Target)
	}
	return fmt.Sprintf("conflict on %s %s: cannot move from '%s' to '%s'",
		e.Entity, e.ID, e.Current, e.Target)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func NewNotFoundError(entity, id string) error {
	return NotFoundError{Entity: entity, ID: id}
}

// DependencyError wraps a failure of the object store or the webhook target.
type DependencyError struct {
	Dependency string
	StatusCode int
	Err        error
}

func (e DependencyError) Error() string {
	var b strings.Builder
	b.WriteString(e.Dependency)
	b.WriteString(" failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e DependencyError) Unwrap() error {
	return e.Err
}

func NewDependencyError(dependency string, err error) error {
	return DependencyError{Dependency: dependency, Err: err}
}

// PersistenceError marks a failed or rolled back transaction.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}

func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return PersistenceError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsDependency(err error) bool {
	var target DependencyError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target PersistenceError
	return errors.As(err, &target)
}
