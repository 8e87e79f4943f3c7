// Package errs defines the error taxonomy exposed at the engine API
// boundary. Callers distinguish the kinds with errors.As.
package errs

import (
	"fmt"
	"strings"
)

// FieldError describes a single field-level validation violation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Reason
}

// ValidationError reports one or more field-level violations on an
// insert payload or a query. Never retried; the caller corrects input.
type ValidationError struct {
	Resource   string
	Violations []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid %s: %s", e.Resource, strings.Join(parts, "; "))
}

// DuplicateError reports a uniqueness conflict. Key names the
// conflicting identifier so the caller can fetch instead of create.
type DuplicateError struct {
	Resource string
	Key      string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Resource, e.Key)
}

// ReferenceError reports that a referenced parent record does not
// exist. Kept distinct from StorageError so callers can present a
// precise message instead of an opaque constraint violation.
type ReferenceError struct {
	Resource string
	ID       string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Resource, e.ID)
}

// StorageError wraps a failure from the underlying store. The cause is
// preserved for diagnostics; it may be transient.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
