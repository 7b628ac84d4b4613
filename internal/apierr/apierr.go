// Package apierr defines the client-facing error taxonomy.
//
// Every error that can reach an HTTP client is an *Error. Public is the only
// text a client ever sees; Err carries the detail that is logged server-side.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindNotAllowed
	KindNotFound
	KindConfig
	KindUpstream
	KindTooLarge
	KindRateLimited
	KindTimeout
)

var kindNames = map[Kind]string{
	KindInternal:    "internal",
	KindInput:       "input",
	KindNotAllowed:  "not_allowed",
	KindNotFound:    "not_found",
	KindConfig:      "configuration",
	KindUpstream:    "upstream",
	KindTooLarge:    "payload_too_large",
	KindRateLimited: "rate_limited",
	KindTimeout:     "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure with an HTTP status and a safe message.
type Error struct {
	Kind   Kind
	Status int
	Public string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Public, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Public)
}

func (e *Error) Unwrap() error { return e.Err }

// Input reports a missing or malformed request parameter.
func Input(public string) *Error {
	return &Error{Kind: KindInput, Status: http.StatusBadRequest, Public: public}
}

// NotAllowed reports a channel outside the allow-list.
func NotAllowed(channel string) *Error {
	return &Error{
		Kind:   KindNotAllowed,
		Status: http.StatusForbidden,
		Public: "Channel not allowed",
		Err:    fmt.Errorf("channel %q is not allow-listed", channel),
	}
}

// NotFound reports a channel the upstream does not know.
func NotFound(public string, err error) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Public: public, Err: err}
}

// Config reports a server misconfiguration. The detail stays in the logs.
func Config(err error) *Error {
	return &Error{
		Kind:   KindConfig,
		Status: http.StatusInternalServerError,
		Public: "Server configuration error",
		Err:    err,
	}
}

// Upstream reports a provider failure. A status outside 4xx/5xx becomes 502.
func Upstream(status int, public string, err error) *Error {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return &Error{Kind: KindUpstream, Status: status, Public: public, Err: err}
}

// Unavailable is the generic upstream failure that leaks no detail.
func Unavailable(err error) *Error {
	return Upstream(http.StatusServiceUnavailable, "Service temporarily unavailable", err)
}

// TooLarge reports an upstream body over limit bytes.
func TooLarge(limit int64) *Error {
	return &Error{
		Kind:   KindTooLarge,
		Status: http.StatusRequestEntityTooLarge,
		Public: "Upstream response too large",
		Err:    fmt.Errorf("body exceeds %d bytes", limit),
	}
}

// RateLimited reports a rejected request.
func RateLimited() *Error {
	return &Error{
		Kind:   KindRateLimited,
		Status: http.StatusTooManyRequests,
		Public: "Too many requests, please try again later",
	}
}

// Timeout reports an upstream call that hit its deadline.
func Timeout(err error) *Error {
	return &Error{
		Kind:   KindTimeout,
		Status: http.StatusServiceUnavailable,
		Public: "Upstream request timed out",
		Err:    err,
	}
}

// StatusOf returns the HTTP status for err, 500 for unclassified errors.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-safe text for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Public != "" {
		return e.Public
	}
	return "Internal server error"
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
