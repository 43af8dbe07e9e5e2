// Package apperr defines the error kinds surfaced by the gateway services.
//
// Every service operation returns either nil or an error whose kind can be
// recovered with KindOf. The HTTP layer maps kinds to status codes; lower
// layers keep wrapping with fmt.Errorf and %w as usual.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	// KindInternal is an unexpected local failure.
	KindInternal Kind = iota
	// KindValidation is a missing or malformed request field.
	KindValidation
	// KindExternalService is an unreachable or failing chain node or resolver.
	KindExternalService
	// KindChainRejection is a transaction reverted or rejected by the contract.
	KindChainRejection
)

// String returns the stable, machine-readable code of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindExternalService:
		return "external_service_error"
	case KindChainRejection:
		return "chain_rejection_error"
	default:
		return "internal_error"
	}
}

// Error is a classified error. Msg is safe to return to callers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a KindValidation error with a formatted message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// InvalidInput wraps err as a KindValidation error.
func InvalidInput(err error, format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...), Err: err}
}

// External wraps err as a KindExternalService error.
func External(err error, format string, args ...any) error {
	return &Error{Kind: KindExternalService, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Rejected wraps err as a KindChainRejection error.
func Rejected(err error, format string, args ...any) error {
	return &Error{Kind: KindChainRejection, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Internal wraps err as a KindInternal error.
func Internal(err error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public returns the message of err that may be shown to callers.
//
// Validation and rejection errors describe the caller's own input, so the
// full chain is returned. External and internal errors can carry node URLs
// or other deployment details, so only Msg is returned.
func Public(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case KindValidation, KindChainRejection:
		return err.Error()
	}
	if e.Msg == "" {
		return "internal server error"
	}
	return e.Msg
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
