// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fault classifies pipeline failures so callers can decide whether
// to retry, cache, skip, or abort.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the failure class.
type Kind int

const (
	// Unknown is any error not classified below.
	Unknown Kind = iota
	// Config covers missing credentials and invalid thresholds; fatal at startup.
	Config
	// ProviderTransient covers timeouts, 5xx, and rate limits; retried with backoff.
	ProviderTransient
	// ProviderPermanent covers auth failures and malformed requests; not retried.
	ProviderPermanent
	// Blocked covers paywalls, 401/403/404, blacklisted hosts, and block redirects.
	Blocked
	// ModelSpecific covers LLM refusals and malformed output; retried once on a stronger tier.
	ModelSpecific
	// DuplicateInRun is silently skipped.
	DuplicateInRun
	// Validation covers state store coercion failures.
	Validation
	// Cancelled is surfaced immediately.
	Cancelled
)

var kindNames = map[Kind]string{
	Unknown:           "unknown",
	Config:            "config",
	ProviderTransient: "provider_transient",
	ProviderPermanent: "provider_permanent",
	Blocked:           "blocked",
	ModelSpecific:     "model_specific",
	DuplicateInRun:    "duplicate_in_run",
	Validation:        "validation",
	Cancelled:         "cancelled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the failing operation (e.g. "tavily search", "scrape").
	Op string
	// Status is the HTTP status when one was observed.
	Status int
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, fault.New(fault.Blocked, "", nil)) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err. Context cancellation maps to Cancelled
// and deadline expiry to ProviderTransient when err is not already classified.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ProviderTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ProviderTransient
	}
	return Unknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromStatus classifies an HTTP status code. 2xx and 3xx return Unknown.
func FromStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests, code >= 500:
		return ProviderTransient
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusNotFound:
		return Blocked
	case code >= 400:
		return ProviderPermanent
	default:
		return Unknown
	}
}

// FromResponse builds a classified error for a non-2xx response.
func FromResponse(op string, code int, body string) *Error {
	kind := FromStatus(code)
	if kind == Blocked {
		// 401/403/404 from an API is a permanent provider failure, not a scrape block.
		kind = ProviderPermanent
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return &Error{Kind: kind, Op: op, Status: code, Err: fmt.Errorf("HTTP %d: %s", code, body)}
}

// Retryable reports whether err should be retried with backoff.
func Retryable(err error) bool {
	k := KindOf(err)
	if k == ProviderTransient {
		return true
	}
	if k == Unknown {
		var ne net.Error
		return errors.As(err, &ne)
	}
	return false
}

// Persistent reports whether a blocked status should be cached at the
// domain level rather than only for the URL.
func Persistent(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound
}
