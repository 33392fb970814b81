// Package errors defines the error taxonomy shared by the ingestion path and
// the request-handling path.
//
// Errors local to one frame (DecodeError) or one request (ValidationError,
// ErrNotFound) are handled where they occur. PersistenceError is always
// returned after the store has rolled back. TransportError ends one feed
// connection and SchemaError ends the process.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound reports that a referenced record id does not exist.
var ErrNotFound = errors.New("not found")

// As is a convenience wrapper for errors.As
var As = errors.As

// DecodeError reports a malformed or incomplete feed frame.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode frame: %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a write request that is missing required fields
// or carries values of the wrong type.
type ValidationError struct {
	Missing []string
	Invalid map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("invalid %s: %s", k, e.Invalid[k]))
		}
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return strings.Join(parts, "; ")
}

// AddMissing records a required field that was absent.
func (e *ValidationError) AddMissing(field string) {
	e.Missing = append(e.Missing, field)
}

// AddInvalid records a field whose value could not be accepted.
func (e *ValidationError) AddInvalid(field, reason string) {
	if e.Invalid == nil {
		e.Invalid = make(map[string]string)
	}
	e.Invalid[field] = reason
}

// Err returns nil when nothing was recorded.
func (e *ValidationError) Err() error {
	if len(e.Missing) == 0 && len(e.Invalid) == 0 {
		return nil
	}
	return e
}

// PersistenceError reports a store failure. The transaction it belonged to
// has already been rolled back when the error is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TransportError reports a lost or failed feed connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("feed %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SchemaError reports that the store could not be reached or provisioned.
// Op names the startup step that failed: "parse config", "connect",
// "ping" or "initialize schema".
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPersistence returns true if err is a store failure.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

// IsTransport returns true if err is a feed connection failure.
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
