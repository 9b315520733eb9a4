package updateexpr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid update")
	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("conflicting update")
)

// ValidationError reports malformed or missing input to a factory or to Merge.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + " " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation, msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErr(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports two actions that cannot be part of the same update.
//
// Attribute is set when two actions mutate the same attribute in incompatible ways,
// Placeholder when one placeholder is bound to two different names or values.
type ConflictError struct {
	Attribute   string
	Placeholder string
	Clauses     []ClauseType
	Reason      string
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	b.WriteString(ErrConflict.Error())
	if e.Attribute != "" {
		fmt.Fprintf(&b, " on attribute %q", e.Attribute)
	}
	if e.Placeholder != "" {
		fmt.Fprintf(&b, " on placeholder %q", e.Placeholder)
	}
	if len(e.Clauses) > 0 {
		names := make([]string, len(e.Clauses))
		for i, c := range e.Clauses {
			names[i] = c.String()
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(names, " vs "))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
