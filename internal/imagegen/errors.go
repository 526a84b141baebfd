package imagegen

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrMalformedInput    = errors.New("malformed image input")
	ErrProviderRefused   = errors.New("provider refused")
	ErrProviderTransport = errors.New("provider transport failure")
	ErrCanceled          = errors.New("composition canceled")
)

// ErrorKind is the stable classification exposed to callers.
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindMalformedInput    ErrorKind = "malformed_input"
	KindProviderRefused   ErrorKind = "provider_refused"
	KindProviderTransport ErrorKind = "provider_transport"
	KindCanceled          ErrorKind = "canceled"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err. Malformed input is checked before invalid request
// so the more specific kind wins.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrProviderRefused):
		return KindProviderRefused
	case errors.Is(err, ErrProviderTransport):
		return KindProviderTransport
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Retryable reports whether a caller may retry the whole request unchanged.
func Retryable(err error) bool {
	return KindOf(err) == KindProviderTransport
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// ProviderError is returned by Editor and VisionModel implementations.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Reason     string
	Err        error
}

// Refused builds a refusal error for provider.
func Refused(provider, reason string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindProviderRefused, Reason: reason}
}

// Transport builds a transport error for provider. status is zero when no
// response was received.
func Transport(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindProviderTransport, StatusCode: status, Err: err}
}

func (e *ProviderError) Error() string {
	msg := e.Provider + ": "
	if e.Kind == KindProviderRefused {
		msg += "refused"
	} else {
		msg += "transport"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProviderRefused:
		return e.Kind == KindProviderRefused
	case ErrProviderTransport:
		return e.Kind == KindProviderTransport
	}
	return false
}

// StepError records which step of a composition failed.
type StepError struct {
	Step int
	Slot SlotID
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Slot, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ResourceCleanupWarning reports a temporary artifact that could not be
// removed. It is logged, never returned to callers.
type ResourceCleanupWarning struct {
	Path string
	Err  error
}

func (w *ResourceCleanupWarning) Error() string {
	return fmt.Sprintf("cleanup %s: %v", w.Path, w.Err)
}

func (w *ResourceCleanupWarning) Unwrap() error { return w.Err }
