package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownCapability is returned when a capability name cannot be parsed.
	ErrUnknownCapability = errors.New("unknown capability")
)

// ErrorKind classifies a failure of a protected capability.
// Kinds are recorded into the health monitor and returned to callers
// instead of raw upstream errors.
type ErrorKind string

const (
	// KindNone is the zero kind carried by successful results.
	KindNone ErrorKind = ""

	// KindConcurrencyExceeded means the synthesis gate was full.
	KindConcurrencyExceeded ErrorKind = "concurrency_exceeded"

	// KindAudioEmpty means the engine finished without producing audio.
	KindAudioEmpty ErrorKind = "audio_empty"

	// KindAudioTooSmall means the engine produced less audio than the minimum threshold.
	KindAudioTooSmall ErrorKind = "audio_too_small"

	// KindTimeout means the overall deadline expired before usable data arrived.
	KindTimeout ErrorKind = "timeout"

	// KindUpstreamException covers every other upstream failure.
	KindUpstreamException ErrorKind = "upstream_exception"

	// KindConnectionLost means the persistent store stayed unreachable after reconnecting.
	KindConnectionLost ErrorKind = "connection_lost"

	// KindSessionNotFound means a session id has no stored record.
	KindSessionNotFound ErrorKind = "session_not_found"
)

// String returns the kind as a plain string.
func (k ErrorKind) String() string {
	return string(k)
}

// Error is a classified failure. Op names the operation that failed and
// Err holds the underlying cause, which may be nil.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind.
// This allows errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// KindOf extracts the kind of the first *Error in err's chain.
// Nil errors have KindNone, unclassified errors are KindUpstreamException.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamException
}

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
