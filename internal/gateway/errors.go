package gateway

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable indicates the retry budget was exhausted. It is
// deliberately distinct from the last provider error, which is kept in the
// message for debugging but not in the unwrap chain.
var ErrModelUnavailable = errors.New("model unavailable after retries")

// Kind classifies a model-backend failure. Retry logic switches on Kind,
// never on message text; the provider adapter owns the mapping from raw
// provider errors to kinds.
type Kind int

const (
	// KindFatal is a non-retryable failure (bad request, auth, programming
	// error). Propagated immediately.
	KindFatal Kind = iota

	// KindRateLimited is a quota or rate-limit rejection. Retried with
	// exponential backoff.
	KindRateLimited

	// KindTransient is a temporary server or network failure. Retried with
	// exponential backoff.
	KindTransient
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Error is a model-backend failure tagged with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps err with the given kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("model backend (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyKind extracts the Kind from err. Errors not produced by a backend
// adapter are treated as fatal: an unclassified failure must not be retried.
func ClassifyKind(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindFatal
}

// retryable reports whether err should trigger another attempt.
func retryable(err error) bool {
	switch ClassifyKind(err) {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}
