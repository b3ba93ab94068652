// Package apperr holds the error taxonomy shared by the API client, the
// coordination layer and the UI.
//
//   - Auth: the credential was rejected (HTTP 403). Global: the session is reset.
//   - Cancelled: the user navigated away. Silent, never surfaced or logged as an error.
//   - Transient: any other HTTP or connectivity failure. One compact notification.
//   - Validation: rejected locally before any network call.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindCancelled
	KindTransient
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindCancelled:
		return "cancelled"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

var (
	// ErrAuth reports a rejected admin credential.
	ErrAuth = errors.New("credential rejected")
	// ErrCancelled reports an operation abandoned through its cancellation signal.
	ErrCancelled = errors.New("cancelled")
)

// TransientError wraps a non-403 HTTP failure or a connectivity failure.
type TransientError struct {
	Op     string
	Status int // 0 for connectivity failures
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for op.
func Transient(op string, status int, err error) error {
	if err == nil {
		err = errors.New("request failed")
	}
	return &TransientError{Op: op, Status: status, Err: err}
}

// ValidationError is a locally detected invalid input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// Validation builds a ValidationError.
func Validation(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

// Classify maps err onto the taxonomy. Context cancellation counts as
// Cancelled; deadline expiry is a transient failure.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ve *ValidationError
	var te *TransientError
	switch {
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsCancelled reports whether err is a silent cancellation outcome.
func IsCancelled(err error) bool { return Classify(err) == KindCancelled }

// Compact renders err on one line of at most n runes for notifications.
func Compact(err error, n int) string {
	if err == nil {
		return ""
	}
	s := strings.Join(strings.Fields(err.Error()), " ")
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
