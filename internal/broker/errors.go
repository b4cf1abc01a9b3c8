package broker

import (
	"errors"
	"fmt"
)

// Kind classifies a broker error for callers that branch on failure class
// rather than message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers bad caller input. Not retryable.
	KindValidation
	// KindNotFound covers unknown assets or rows that do not exist.
	KindNotFound
	// KindAssetInactive marks trades against a delisted or suspended asset.
	KindAssetInactive
	// KindPriceUnavailable means the asset exists but carries no usable quote.
	KindPriceUnavailable
	// KindExternalSource covers upstream feed failures during ingestion.
	KindExternalSource
	// KindPersistence covers storage failures. Candidate for caller retry.
	KindPersistence
	// KindUnauthenticated means no caller identity was present.
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAssetInactive:
		return "asset_inactive"
	case KindPriceUnavailable:
		return "price_unavailable"
	case KindExternalSource:
		return "external_source"
	case KindPersistence:
		return "persistence"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching. A *Error matches the sentinel of its kind.
var (
	ErrValidation       = &Error{kind: KindValidation, msg: "validation failed"}
	ErrNotFound         = &Error{kind: KindNotFound, msg: "not found"}
	ErrAssetInactive    = &Error{kind: KindAssetInactive, msg: "asset inactive"}
	ErrPriceUnavailable = &Error{kind: KindPriceUnavailable, msg: "price unavailable"}
	ErrExternalSource   = &Error{kind: KindExternalSource, msg: "external source failure"}
	ErrPersistence      = &Error{kind: KindPersistence, msg: "persistence failure"}
	ErrUnauthenticated  = &Error{kind: KindUnauthenticated, msg: "unauthenticated"}
)

// Error is a kinded broker error with a human-readable message.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind reports the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Is matches any *Error of the same kind, so errors.Is(err, ErrValidation)
// holds for every validation error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// Validationf builds a validation error with a caller-facing reason.
func Validationf(format string, args ...any) *Error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

// AssetInactivef builds an inactive-asset error.
func AssetInactivef(format string, args ...any) *Error {
	return &Error{kind: KindAssetInactive, msg: fmt.Sprintf(format, args...)}
}

// PriceUnavailablef builds a no-usable-quote error.
func PriceUnavailablef(format string, args ...any) *Error {
	return &Error{kind: KindPriceUnavailable, msg: fmt.Sprintf(format, args...)}
}

// ExternalSource wraps an upstream feed failure.
func ExternalSource(msg string, cause error) *Error {
	return &Error{kind: KindExternalSource, msg: msg, cause: cause}
}

// Persistence wraps a storage failure.
func Persistence(msg string, cause error) *Error {
	return &Error{kind: KindPersistence, msg: msg, cause: cause}
}

// Unauthenticated reports a missing caller identity.
func Unauthenticated() *Error {
	return &Error{kind: KindUnauthenticated, msg: "no caller identity"}
}

// KindOf extracts the Kind from err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.kind
	}
	return KindUnknown
}
