// Package llm provides the internal representations of conversation turns and
// LLM inference requests shared by the providers, the responder and the UI.
package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse represents an error returned to HTTP clients.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Failure categories. Match them with errors.Is.
var (
	// ErrConfiguration means the provider rejected the credential. It also
	// matches ErrProviderUnavailable since the connection could not be set up.
	ErrConfiguration = errors.New("provider configuration error")

	// ErrProviderUnavailable means the provider could not be reached or refused
	// to open a stream.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderError means the provider was reachable but the stream failed
	// before signalling completion.
	ErrProviderError = errors.New("provider error")
)

// ProviderErr is a categorized provider failure.
type ProviderErr struct {
	Kind       error
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderErr) Error() string {
	msg := e.Provider + ": " + e.Kind.Error()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderErr) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Is lets a configuration failure also read as an unavailable provider.
func (e *ProviderErr) Is(target error) bool {
	return e.Kind == ErrConfiguration && target == ErrProviderUnavailable
}

// Unavailable wraps a transport failure while opening a stream.
func Unavailable(provider string, cause error) error {
	return &ProviderErr{Kind: ErrProviderUnavailable, Provider: provider, Cause: cause}
}

// Failed reports a mid-stream failure.
func Failed(provider, message string, cause error) error {
	return &ProviderErr{Kind: ErrProviderError, Provider: provider, Message: message, Cause: cause}
}

// StatusError categorizes a non-2xx response received while opening a stream.
func StatusError(provider string, status int, body string) error {
	kind := ErrProviderUnavailable
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = ErrConfiguration
	}
	return &ProviderErr{Kind: kind, Provider: provider, StatusCode: status, Message: body}
}
