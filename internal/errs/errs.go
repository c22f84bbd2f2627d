// Package errs defines the closed set of error kinds the service can return
// and maps them to HTTP status codes at the veneer boundary.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error conditions from the error handling design.
type Kind int

const (
	Internal Kind = iota
	BadInput
	NotFound
	TooLarge
	Unresolved
	CorruptPdf
	FevRequired
	Cancelled
	OcrDisabled
	MetaBusy
)

func (k Kind) String() string {
	switch k {
	case BadInput:
		return "bad_input"
	case NotFound:
		return "not_found"
	case TooLarge:
		return "too_large"
	case Unresolved:
		return "unresolved"
	case CorruptPdf:
		return "corrupt_pdf"
	case FevRequired:
		return "fev_required"
	case Cancelled:
		return "cancelled"
	case OcrDisabled:
		return "ocr_disabled"
	case MetaBusy:
		return "meta_busy"
	default:
		return "internal"
	}
}

// StatusCode maps a Kind to its HTTP status code.
func (k Kind) StatusCode() int {
	switch k {
	case BadInput, CorruptPdf, FevRequired:
		return 400
	case NotFound:
		return 404
	case TooLarge:
		return 413
	case Unresolved:
		return 422
	case OcrDisabled, MetaBusy:
		return 503
	default:
		return 500
	}
}

// Error is the service's single exported error type, carrying a Kind and
// wrapping the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Unresolved detail, set only when Kind == Unresolved.
	NitDetected  *string
	OcfeDetected *string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

func NewBadInput(msg string) *Error              { return newErr(BadInput, msg, nil) }
func NewNotFound(msg string) *Error              { return newErr(NotFound, msg, nil) }
func NewTooLarge(msg string) *Error              { return newErr(TooLarge, msg, nil) }
func NewCorruptPdf(msg string) *Error            { return newErr(CorruptPdf, msg, nil) }
func NewFevRequired(msg string) *Error           { return newErr(FevRequired, msg, nil) }
func NewCancelled() *Error                       { return newErr(Cancelled, "operation cancelled", nil) }
func NewOcrDisabled(msg string) *Error           { return newErr(OcrDisabled, msg, nil) }
func NewMetaBusy(msg string) *Error              { return newErr(MetaBusy, msg, nil) }
func NewInternal(msg string, cause error) *Error { return newErr(Internal, msg, cause) }

// NewUnresolved reports a missing NIT and/or invoice code after extraction
// and override have both been attempted.
func NewUnresolved(msg string, nit, ocfe *string) *Error {
	e := newErr(Unresolved, msg, nil)
	e.NitDetected = nit
	e.OcfeDetected = ocfe
	return e
}

// As extracts a *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusCode returns the HTTP status code err should be reported as,
// defaulting to 500 for errors that are not of type *Error.
func StatusCode(err error) int {
	if e, ok := As(err); ok {
		return e.Kind.StatusCode()
	}
	return 500
}

// KindOf returns the Kind of err, defaulting to Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// IsCancelled reports whether err signals cooperative cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == Cancelled
}
