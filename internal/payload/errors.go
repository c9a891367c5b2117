package payload

import (
	"errors"
	"fmt"
)

// Kind is the portable error taxonomy shared by the repository, lease, and
// manager layers. Backends translate their native error types into a Kind
// so that callers above the repository boundary never depend on a
// particular driver's error values.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindInvalidState
	KindLeaseConflict
	KindResourceExhausted
	KindBusy
	KindIOError
	KindCorruption
	KindUnsupported
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindLeaseConflict:
		return "lease_conflict"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindBusy:
		return "busy"
	case KindIOError:
		return "io_error"
	case KindCorruption:
		return "corruption"
	case KindUnsupported:
		return "unsupported"
	case KindInternal:
		return "internal"
	default:
		return "unspecified"
	}
}

// Error is the single error type returned across package boundaries in
// this module. It carries a Kind for programmatic handling plus a message
// and optional wrapped cause for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is enables errors.Is(err, payload.ErrNotFound) style checks against the
// sentinel values below by comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// NewError constructs an *Error with no wrapped cause.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError constructs an *Error wrapping cause.
func WrapError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinel errors for errors.Is comparisons against bare kinds, mirroring
// the teacher's storage.Err* convention (pkg/storage/types.go).
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists, Message: "already exists"}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrInvalidState      = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrLeaseConflict     = &Error{Kind: KindLeaseConflict, Message: "lease conflict"}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted, Message: "resource exhausted"}
	ErrBusy              = &Error{Kind: KindBusy, Message: "busy"}
	ErrIOError           = &Error{Kind: KindIOError, Message: "io error"}
	ErrCorruption        = &Error{Kind: KindCorruption, Message: "corruption"}
	ErrUnsupported       = &Error{Kind: KindUnsupported, Message: "unsupported"}
	ErrInternal          = &Error{Kind: KindInternal, Message: "internal error"}
)

// KindOf extracts the Kind from err, walking the cause chain. Returns
// KindUnspecified if err is nil and KindInternal if err is not one of ours.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnspecified
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
