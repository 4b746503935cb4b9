// Package errors provides the error type shared by the join packages.
// JoinError carries the failing operation, the offending setting if any, and
// a Kind that callers match with errors.Is against the sentinels below.
package errors

import (
	"fmt"
)

// Kind classifies a JoinError.
type Kind int

const (
	// KindConfiguration marks an invalid construction parameter, such as a
	// bucket count that is not a power of two.
	KindConfiguration Kind = iota + 1
	// KindPrecondition marks workload or thread settings that break a
	// divisibility requirement of the static scheduler or the generator.
	KindPrecondition
	// KindInternal marks a failure inside a phase.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindPrecondition:
		return "precondition"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// JoinError represents errors raised while configuring or running a join
type JoinError struct {
	Op      string // Operation name (e.g., "NewTable", "Partition", "Probe")
	Field   string // Setting name if applicable
	Kind    Kind
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *JoinError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s %s error on '%s': %s", e.Op, e.Kind, e.Field, msg)
	}
	return fmt.Sprintf("%s %s error: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *JoinError) Unwrap() error {
	return e.Cause
}

// Is matches a sentinel (no Op) by Kind and any other JoinError by value.
func (e *JoinError) Is(target error) bool {
	je, ok := target.(*JoinError)
	if !ok {
		return false
	}
	if je.Op == "" {
		return e.Kind == je.Kind
	}
	return e.Op == je.Op && e.Field == je.Field && e.Kind == je.Kind && e.Message == je.Message
}

// NewConfigurationError creates an error for an invalid construction parameter
func NewConfigurationError(op, field, message string) *JoinError {
	return &JoinError{
		Op:      op,
		Field:   field,
		Kind:    KindConfiguration,
		Message: message,
	}
}

// NewPreconditionError creates an error for a violated divisibility requirement
func NewPreconditionError(op, field, message string) *JoinError {
	return &JoinError{
		Op:      op,
		Field:   field,
		Kind:    KindPrecondition,
		Message: message,
	}
}

// NewInternalError creates an error for a failure inside a phase
func NewInternalError(op string, cause error) *JoinError {
	return &JoinError{
		Op:      op,
		Kind:    KindInternal,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// Sentinels for errors.Is.
var (
	ErrConfiguration = &JoinError{Kind: KindConfiguration, Message: "invalid configuration"}
	ErrPrecondition  = &JoinError{Kind: KindPrecondition, Message: "precondition violated"}
	ErrInternal      = &JoinError{Kind: KindInternal, Message: "internal error"}
)
