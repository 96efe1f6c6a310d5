package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping. Every error returned by the
// identity core resolves to exactly one Kind via KindOf.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnprocessableInput
	KindDisabledService
	KindUnverifiedEmail
	KindInvalidCredential
	KindUpstreamFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnprocessableInput:
		return "unprocessable_input"
	case KindDisabledService:
		return "disabled_service"
	case KindUnverifiedEmail:
		return "unverified_email"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindUpstreamFailure:
		return "upstream_failure"
	default:
		return "internal_error"
	}
}

// Error is a classified error. Sentinels below are compared by identity with
// errors.Is; NewError creates additional classified sentinels.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// NewError returns a new classified sentinel.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// One sentinel per kind. Wrap with fmt.Errorf("...: %w", ErrX) to add context.
var (
	ErrNotFound           = NewError(KindNotFound, "not found")
	ErrConflict           = NewError(KindConflict, "conflict")
	ErrUnprocessableInput = NewError(KindUnprocessableInput, "unprocessable input")
	ErrDisabledService    = NewError(KindDisabledService, "service disabled")
	ErrUnverifiedEmail    = NewError(KindUnverifiedEmail, "email not verified")
	ErrInvalidCredential  = NewError(KindInvalidCredential, "invalid credential")
	ErrUpstreamFailure    = NewError(KindUpstreamFailure, "upstream failure")
	ErrInternal           = NewError(KindInternal, "internal error")
)

// KindOf returns the kind of the outermost classified error in err's chain.
// Unclassified errors (including all infrastructure failures) are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Classify wraps err so that it resolves to the given sentinel's kind while
// keeping err in the chain for diagnostics.
func Classify(sentinel *Error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
