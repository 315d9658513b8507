package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind decides whether a failed call may be retried.
type ErrorKind int

const (
	// KindPermanent failures are surfaced at once.
	KindPermanent ErrorKind = iota
	// KindTransient failures (timeouts, 429, 503, network) are retried.
	KindTransient
	// KindConfig means a key or id is missing; nothing was sent.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConfig:
		return "config"
	default:
		return "permanent"
	}
}

// Error is returned by every provider call.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransient
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConfig
}

func configError(provider, msg string) *Error {
	return &Error{Provider: provider, Kind: KindConfig, Message: msg}
}

// statusError classifies a non-2xx response. The upstream message is taken
// from {"error":{"message":..}} when present.
func statusError(provider string, status int, body []byte) *Error {
	return &Error{
		Provider:   provider,
		Kind:       statusKind(status),
		StatusCode: status,
		Message:    upstreamMessage(body, http.StatusText(status)),
		Body:       string(body),
	}
}

// statusKind marks rate limiting, an unavailable upstream and a gateway
// timeout as transient. Any other status, 500 included, fails at once.
func statusKind(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindTransient
	}
	return KindPermanent
}

// transportError classifies a failure to get any response.
func transportError(provider string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Provider: provider, Kind: KindPermanent, Message: "request cancelled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: provider, Kind: KindTransient, Message: "request timeout", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Provider: provider, Kind: KindTransient, Message: "request timeout", Err: err}
	}
	return &Error{Provider: provider, Kind: KindTransient, Message: "network error", Err: err}
}
