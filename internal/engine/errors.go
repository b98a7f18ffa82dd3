package engine

import (
	"errors"
	"fmt"
)

// Sentinel results distinct from the terminal error taxonomy below.
var (
	// ErrBusy reports a reentrant Generate call on a Generator that
	// already has a generation in flight.
	ErrBusy = errors.New("engine: generation already in progress")

	// ErrCancelled reports a cooperative stop via the caller's
	// context. It is not a failure: no Done event was emitted and
	// history was left untouched.
	ErrCancelled = errors.New("engine: generation cancelled")
)

// TemplateError wraps a chat-template parse or render failure.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string { return fmt.Sprintf("template: %v", e.Err) }
func (e *TemplateError) Unwrap() error { return e.Err }

// EncodeError wraps a tokenizer encode failure.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError wraps a tokenizer decode failure.
type DecodeError struct {
	Token int
	Err   error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode token %d: %v", e.Token, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// ModelError wraps a backend forward-pass failure. The underlying
// cause is opaque to this layer.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return fmt.Sprintf("model: %v", e.Err) }
func (e *ModelError) Unwrap() error { return e.Err }

// SamplingError reports an invariant violation in the logits handed to
// the sampler, which indicates an upstream bug rather than bad input.
type SamplingError struct {
	Reason string
}

func (e *SamplingError) Error() string { return fmt.Sprintf("sampling: %s", e.Reason) }
