package manager

import (
	"fmt"
	"strings"
	"time"

	"voiced/pkg/types"
)

// unknownModelError reports a logical key absent from the catalog.
type unknownModelError struct{ key string }

func (e unknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s", e.key)
}

// ErrUnknownModel constructs an unknown-model error for the given key.
func ErrUnknownModel(key string) error { return unknownModelError{key: key} }

// IsUnknownModel reports whether err is an unknown-model error.
func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}

// capabilityError reports a backend that is not present or cannot serve.
type capabilityError struct{ capability string }

func (e capabilityError) Error() string {
	return fmt.Sprintf("capability unavailable: %s", e.capability)
}

// ErrCapabilityUnavailable constructs a capability-unavailable error.
func ErrCapabilityUnavailable(capability string) error {
	return capabilityError{capability: capability}
}

// IsCapabilityUnavailable reports whether err is a capability error.
func IsCapabilityUnavailable(err error) bool {
	_, ok := err.(capabilityError)
	return ok
}

// stageTimeoutError reports a load stage that exceeded its budget.
type stageTimeoutError struct {
	stage string
	after time.Duration
}

func (e stageTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.stage, e.after)
}

// ErrStageTimeout constructs a stage-timeout error.
func ErrStageTimeout(stage string, after time.Duration) error {
	return stageTimeoutError{stage: stage, after: after}
}

// IsStageTimeout reports whether err is a stage-timeout error.
func IsStageTimeout(err error) bool {
	_, ok := err.(stageTimeoutError)
	return ok
}

// loadFailedError reports a backend load failure for one identifier.
type loadFailedError struct {
	identifier string
	cause      error
}

func (e loadFailedError) Error() string {
	return fmt.Sprintf("load %s: %v", e.identifier, e.cause)
}

func (e loadFailedError) Unwrap() error { return e.cause }

// ErrLoadFailed constructs a load error wrapping the backend cause.
func ErrLoadFailed(identifier string, cause error) error {
	return loadFailedError{identifier: identifier, cause: cause}
}

// IsLoadFailed reports whether err is a load error.
func IsLoadFailed(err error) bool {
	_, ok := err.(loadFailedError)
	return ok
}

// generationError reports a backend inference failure. Inference is never
// retried by the manager: a conversational call repeated silently could
// duplicate upstream side effects.
type generationError struct{ cause error }

func (e generationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.cause)
}

func (e generationError) Unwrap() error { return e.cause }

// ErrGeneration constructs a generation error wrapping the backend cause.
func ErrGeneration(cause error) error { return generationError{cause: cause} }

// IsGeneration reports whether err is a generation error.
func IsGeneration(err error) bool {
	_, ok := err.(generationError)
	return ok
}

// notLoadedError reports an inference call against a key with no ready
// handle.
type notLoadedError struct{ key string }

func (e notLoadedError) Error() string {
	return fmt.Sprintf("model not loaded: %s", e.key)
}

// ErrNotLoaded constructs a not-loaded error for the given key.
func ErrNotLoaded(key string) error { return notLoadedError{key: key} }

// IsNotLoaded reports whether err is a not-loaded error.
func IsNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}

// Attempt records one failed identifier inside a fallback cascade.
type Attempt struct {
	Identifier string
	Backend    types.Capability
	Err        error
}

// FallbackError reports an exhausted fallback cascade. Cause is the
// failure that triggered the cascade; Attempts holds exactly one entry
// per plan candidate plus one for the emergency identifier, in the order
// they were tried.
type FallbackError struct {
	Key      string
	Cause    error
	Attempts []Attempt
}

func (e *FallbackError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all fallbacks exhausted for %s", e.Key)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (after: %v)", e.Cause)
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s@%s: %v", a.Identifier, a.Backend, a.Err)
	}
	return b.String()
}

func (e *FallbackError) Unwrap() error { return e.Cause }

// IsFallbackExhausted reports whether err is an exhausted-cascade error.
func IsFallbackExhausted(err error) bool {
	_, ok := err.(*FallbackError)
	return ok
}
