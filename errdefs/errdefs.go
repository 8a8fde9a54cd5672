// Package errdefs - Error taxonomy shared by the batch detection pipeline.
//
// Every failure surfaced by the core wraps exactly one of the sentinels below, so
// callers can branch with errors.Is regardless of how much context was added on
// the way up.
package errdefs

import "errors"

var (
	// ErrInvalidInput is returned for a bad batch capacity, malformed geometry or a
	// tensor whose shape does not match what the consumer expects.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingResource is returned when a referenced image does not exist.
	ErrMissingResource = errors.New("missing resource")
	// ErrInference is returned when the external predictor fails.
	ErrInference = errors.New("inference failed")
	// ErrInvalidConfig is returned for out-of-range thresholds and other
	// configuration values that cannot be honoured.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownModel is returned when a model name is not registered.
	ErrUnknownModel = errors.New("unknown model name")
)

// IsInvalidInput reports whether err wraps ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsMissingResource reports whether err wraps ErrMissingResource.
func IsMissingResource(err error) bool { return errors.Is(err, ErrMissingResource) }

// IsInference reports whether err wraps ErrInference.
func IsInference(err error) bool { return errors.Is(err, ErrInference) }

// IsInvalidConfig reports whether err wraps ErrInvalidConfig.
func IsInvalidConfig(err error) bool { return errors.Is(err, ErrInvalidConfig) }
