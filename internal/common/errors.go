// Package common defines shared constants and sentinel errors used across
// the session and data layers. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Authentication errors.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountExists        = errors.New("account already exists")
	ErrInvalidOrExpiredLink = errors.New("invalid or expired access link")
	ErrUnauthorized         = errors.New("unauthorized")

	// Transport errors.
	ErrUnavailable = errors.New("backend unavailable")

	// Repository errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// Client-side field rules.
	ErrValidation = errors.New("validation error")
)

// ValidationError collects field-level messages produced before any network
// call is made.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns a ValidationError with a single field message.
func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// Add appends msg to the messages of field.
func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

// Empty reports whether no message was recorded.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// OrNil returns v as an error, or nil when it holds no messages.
func (v *ValidationError) OrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	if v.Empty() {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(v.Fields[name], ", ")))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
