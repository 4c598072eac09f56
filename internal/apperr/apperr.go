// Package apperr defines the error taxonomy shared across the market data
// pipeline. Components wrap failures in a *Error with a Kind instead of
// inventing ad-hoc sentinel values, so callers (schedulers, HTTP handlers)
// can branch on Kind without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/reporting policy. See spec §7.
type Kind string

const (
	ConfigInvalid      Kind = "config_invalid"
	ProviderEmpty      Kind = "provider_empty"
	ProviderHTTP       Kind = "provider_http"
	ProviderParse      Kind = "provider_parse"
	RateLimitExhausted Kind = "rate_limit_exhausted"
	RedisUnavailable   Kind = "redis_unavailable"
	NotReady           Kind = "not_ready"
	NotFound           Kind = "not_found"
	BadInput           Kind = "bad_input"
	ConflictSingleton  Kind = "conflict_singleton"
	Cancelled          Kind = "cancelled"
	Internal           Kind = "internal"
)

// Error wraps an underlying cause with a Kind and an optional free-form
// message describing the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given kind and message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a Kind and operation name to an existing error.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapMsg attaches a Kind, operation name, message and underlying error.
func WrapMsg(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal for unrecognised
// errors (e.g. from the standard library or third-party clients).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err (or any error in its chain) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// LocalRecovery reports whether the error kind is one the fetch fabric
// should retry/fail-over on locally rather than surfacing to the caller.
func LocalRecovery(kind Kind) bool {
	switch kind {
	case ProviderEmpty, ProviderHTTP, ProviderParse, RateLimitExhausted:
		return true
	default:
		return false
	}
}
