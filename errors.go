package kewtag

import (
	"errors"
	"fmt"
)

// Decode and build sentinel errors.
// These errors drive distinct caller messaging, so they are always reachable
// through errors.Is even when wrapped in a *PayloadError.
//
// Example usage:
//
//	p, err := kewtag.Deserialize(scanned)
//	switch {
//	case errors.Is(err, kewtag.ErrMalformedPayload):
//	    // "unreadable code"
//	case errors.Is(err, kewtag.ErrIncompletePayload):
//	    // "incomplete code"
//	case errors.Is(err, kewtag.ErrInvalidKind):
//	    // "not a valid identity tag"
//	}
var (
	// ErrInvalidKind indicates the kind is absent or not one of
	// asset, inventory, location or unit. Always a caller bug; it is
	// never coerced to a default kind.
	ErrInvalidKind = errors.New("invalid tag kind")

	// ErrIncompletePayload indicates one of the mandatory fields
	// (kind, id, code) is missing, null or empty.
	ErrIncompletePayload = errors.New("incomplete tag payload")

	// ErrMalformedPayload indicates the text is not a structured payload
	// at all, e.g. a corrupted or partial scan.
	ErrMalformedPayload = errors.New("malformed tag payload")

	// ErrMalformedCode is returned by ParseUniqueCode for strings that do not
	// follow the PREFIX-TIMESTAMP-SUFFIX layout.
	ErrMalformedCode = errors.New("malformed unique code")

	// ErrNoRenderer is returned by RenderForDisplay when the codec has no
	// renderer configured.
	ErrNoRenderer = errors.New("no tag renderer configured")
)

// PayloadError describes a rejected build or decode.
// It unwraps to one of the sentinel errors above.
type PayloadError struct {
	Op    string // "build", "serialize" or "deserialize"
	Field string // offending field, empty when not field specific
	Err   error  // sentinel
	Cause error  // underlying parser error, if any
}

func (e *PayloadError) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

func payloadErr(op, field string, sentinel, cause error) error {
	return &PayloadError{Op: op, Field: field, Err: sentinel, Cause: cause}
}

// Failure classifies a codec error for user-facing messaging.
type Failure int

const (
	// FailureNone - no error
	FailureNone Failure = iota
	// FailureInvalidKind - kind is not one of the enumerated values
	FailureInvalidKind
	// FailureIncomplete - a mandatory field is missing
	FailureIncomplete
	// FailureUnreadable - the text is not a structured payload
	FailureUnreadable
	// FailureUnknown - any other error
	FailureUnknown
)

// ClassifyError determines the failure class of an error returned by the codec.
// Returns FailureNone if err is nil and FailureUnknown for errors that do not
// wrap one of the codec sentinels.
func ClassifyError(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrMalformedPayload):
		return FailureUnreadable
	case errors.Is(err, ErrIncompletePayload):
		return FailureIncomplete
	case errors.Is(err, ErrInvalidKind):
		return FailureInvalidKind
	default:
		return FailureUnknown
	}
}

// String returns the machine-readable name of the failure class.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureInvalidKind:
		return "invalid_kind"
	case FailureIncomplete:
		return "incomplete"
	case FailureUnreadable:
		return "unreadable"
	case FailureUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// Message returns the text shown to the person holding the scanner.
func (f Failure) Message() string {
	switch f {
	case FailureNone:
		return ""
	case FailureInvalidKind:
		return "not a valid identity tag"
	case FailureIncomplete:
		return "incomplete code"
	case FailureUnreadable:
		return "unreadable code"
	default:
		return "tag could not be processed"
	}
}
