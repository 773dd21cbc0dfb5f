package workitems

import (
	"errors"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/breakdown"
	"github.com/joescharf/ado/internal/settings"
)

// ErrInvalidInput is returned for input rejected before any request is sent.
var ErrInvalidInput = errors.New("invalid input")

// Kind classifies an error for display and transport.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindRemote        Kind = "remote"
	KindUnknown       Kind = "unknown"
)

// KindOf returns the kind of err. A nil error has no kind.
func KindOf(err error) Kind {
	var remote *azure.RemoteError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, settings.ErrNotConfigured), errors.Is(err, settings.ErrNoTargetSelected):
		return KindConfiguration
	case errors.Is(err, ErrInvalidInput), errors.Is(err, settings.ErrNotFound),
		errors.Is(err, settings.ErrInvalid), errors.Is(err, breakdown.ErrNoTargets):
		return KindValidation
	case errors.As(err, &remote):
		return KindRemote
	default:
		return KindUnknown
	}
}

// StatusCode returns the remote HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var remote *azure.RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode
	}
	return 0
}

// Message returns a user-facing message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error occurred"
}
