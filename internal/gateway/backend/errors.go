package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransportError covers everything between issuing the request and reading a
// well-formed payload: network failures, non-2xx statuses without a provider
// message, and bodies that are not the expected JSON.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.StatusCode != 0 {
		msg := http.StatusText(e.StatusCode)
		if e.Err != nil {
			msg = e.Err.Error()
		}
		if msg == "" {
			return fmt.Sprintf("backend returned http %d", e.StatusCode)
		}
		return fmt.Sprintf("backend returned http %d: %s", e.StatusCode, msg)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + " " + e.URL + ": transport error"
	}
	return "transport error"
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProviderError is a failure the backend reported in the payload's error field.
// Its text is exactly that message.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return "provider error"
	}
	return msg
}

// AsTransportError reports whether err is, or wraps, a TransportError.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// AsProviderError reports whether err is, or wraps, a ProviderError.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
