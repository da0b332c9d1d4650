package tts

import (
	"errors"
	"fmt"
)

// Common errors for the playback engine.
var (
	// Controller errors
	ErrSuperseded = errors.New("playback superseded by a newer request")
	ErrDisposed   = errors.New("engine has been disposed")
	ErrNotPlaying = errors.New("no playback in progress")
	ErrEmptyLine  = errors.New("line is empty after normalization")

	// Configuration errors
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrNoProviderConfigured = errors.New("no synthesis provider configured")
	ErrInvalidProvider      = errors.New("unknown synthesis provider")

	// Device errors
	ErrDeviceNotReady = errors.New("audio device is not ready")
	ErrDeviceUnlock   = errors.New("audio device unlock failed")

	// Synthesis errors
	ErrSynthesisFailed = errors.New("synthesis failed")
	ErrStartTimeout    = errors.New("playback did not start in time")
	ErrPlaybackStalled = errors.New("playback stalled mid-clip")
)

// Kind classifies an error per the engine's failure taxonomy. Every
// failure that crosses the controller boundary carries exactly one Kind.
type Kind int

const (
	// KindConfiguration marks misconfiguration. Fail fast, never retried.
	KindConfiguration Kind = iota
	// KindTimeout marks an operation that exceeded its deadline.
	KindTimeout
	// KindSynthesis marks a provider failure.
	KindSynthesis
	// KindPlaybackStart marks audio that failed to begin playing.
	KindPlaybackStart
	// KindSuperseded marks work abandoned because a newer request won.
	KindSuperseded
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTimeout:
		return "timeout"
	case KindSynthesis:
		return "synthesis"
	case KindPlaybackStart:
		return "playback_start"
	case KindSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Error wraps a failure with its taxonomy kind and the operation that
// produced it.
type Error struct {
	Kind Kind   // Failure class
	Op   string // Operation, e.g. "synthesize", "device.unlock"
	Err  error  // Underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain. ok is false
// when no *Error is present in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsTimeout reports whether err classifies as a timeout.
func IsTimeout(err error) bool {
	if k, ok := KindOf(err); ok {
		return k == KindTimeout
	}
	return false
}

// IsSuperseded reports whether err means the work was abandoned in favor
// of a newer request. Superseded errors are always swallowed before they
// reach callbacks.
func IsSuperseded(err error) bool {
	if errors.Is(err, ErrSuperseded) {
		return true
	}
	if k, ok := KindOf(err); ok {
		return k == KindSuperseded
	}
	return false
}

// IsConfiguration reports whether err is a configuration failure.
func IsConfiguration(err error) bool {
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrNoProviderConfigured) {
		return true
	}
	if k, ok := KindOf(err); ok {
		return k == KindConfiguration
	}
	return false
}

// SynthesisError is the cause inside a KindSynthesis Error when a
// provider answered with a failure status. It preserves what the
// provider said.
type SynthesisError struct {
	Provider string // Provider name
	Status   int    // HTTP status or protocol code, 0 if none
	Body     string // Trimmed response body or close message
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("provider %s failed: %s", e.Provider, e.Body)
}

// Is lets errors.Is match any SynthesisError against ErrSynthesisFailed.
func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesisFailed
}
