// Package apierr defines the small closed set of error kinds the
// resolution core can surface. Call sites construct errors with the
// New/Wrap helpers and callers distinguish kinds with errors.Is against
// the Kind sentinels, never by matching message strings.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of RPC status mapping and
// retry policy. Kinds are sentinel errors so errors.Is works through
// wrapping.
type Kind error

var (
	// InvalidArgument marks a caller-supplied value that is malformed or
	// missing (bad email, empty message).
	InvalidArgument Kind = errors.New("invalid_argument")

	// NotFound marks a lookup that found nothing (no endpoints for the
	// user, unknown endpoint id).
	NotFound Kind = errors.New("not_found")

	// FailedPrecondition marks a required upstream dependency that is
	// unavailable (catalog unreachable at startup, no endpoint config).
	FailedPrecondition Kind = errors.New("failed_precondition")

	// Transient marks an error that is safe to retry in the generic
	// engine-step sense (provider hiccup, malformed JSON response). It is
	// not, by itself, a signal to fall back to general conversation; see
	// ErrNoSuitableEndpoint for the narrower class that is.
	Transient Kind = errors.New("transient")

	// Fatal marks a configuration or startup error that will not resolve
	// by retrying (bad config, missing credential, unresolvable DSN).
	Fatal Kind = errors.New("fatal")
)

// ErrNoSuitableEndpoint marks the one Transient failure the actionable
// orchestration retries and ultimately falls back to general conversation
// on: endpoint_matching found no endpoint for the sentence. Every other
// Transient error (a provider hiccup, a JSON-shape failure further down
// the workflow) is retried only at the step level by the workflow engine
// and propagates as-is past that point. Wrap a step's "no suitable
// endpoint" failure with this sentinel via NewNoSuitableEndpoint so
// callers can test for it with IsNoSuitableEndpoint instead of the
// broader Transient Kind.
var ErrNoSuitableEndpoint = errors.New("no suitable endpoint")

// NewNoSuitableEndpoint builds a Transient error classified as the narrow
// "no suitable endpoint" failure, distinguishable via IsNoSuitableEndpoint.
func NewNoSuitableEndpoint(op, msg string) error {
	return &Error{Kind: Transient, Op: op, Err: fmt.Errorf("%s: %w", msg, ErrNoSuitableEndpoint)}
}

// IsNoSuitableEndpoint reports whether err is the narrow "no suitable
// endpoint" failure class, as opposed to any other Transient error.
func IsNoSuitableEndpoint(err error) bool {
	return errors.Is(err, ErrNoSuitableEndpoint)
}

// Error wraps an underlying cause with one of the Kind sentinels so it
// can be tested with errors.Is(err, apierr.NotFound) and still carry a
// descriptive message via Error().
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// New builds a Kind-classified error from a message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap classifies an existing error under kind, preserving it for
// errors.Is/As and %w-style unwrapping.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
