package ports

import (
	"errors"
	"fmt"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// Common infrastructure errors that can occur during collaborator calls.
var (
	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProviderNotRegistered indicates a provider name with no factory.
	ErrProviderNotRegistered = errors.New("provider not registered")
)

// StoreError represents a failed storage operation. It matches
// domain.ErrPersistence under errors.Is regardless of the underlying cause.
type StoreError struct {
	// Entity is the kind of record involved, e.g. "grade" or "audit_log".
	Entity string

	// Operation is the name of the storage operation that failed.
	Operation string

	// Err is the underlying driver or encoding error.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, entity=%s, err=%v", e.Operation, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// Is reports whether target is domain.ErrPersistence.
func (e *StoreError) Is(target error) bool { return target == domain.ErrPersistence }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// Is reports whether target is domain.ErrInvalidConfiguration.
func (e *ConfigError) Is(target error) bool { return target == domain.ErrInvalidConfiguration }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
