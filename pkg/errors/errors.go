package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-facing identifier carried in error envelopes.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeStateConflict   Code = "STATE_CONFLICT"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"
	CodeInvalidAmount   Code = "INVALID_AMOUNT"
	CodeInvalidProduct  Code = "INVALID_PRODUCT"
	CodeConflictingRule Code = "CONFLICTING_RULE"
	CodeLedgerBusy      Code = "LEDGER_BUSY"
	// CodeDataIntegrity marks a condition that is logged and tolerated, never returned to callers.
	CodeDataIntegrity Code = "DATA_INTEGRITY_WARNING"
)

// Metadata is the transport policy for a code.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// ExposeMessage lets the caller-supplied message replace PublicMessage.
	ExposeMessage  bool
	DetailsAllowed bool
}

type policy uint8

const (
	retryable policy = 1 << iota
	exposeMessage
	withDetails
)

func meta(status int, public string, p policy) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      p&retryable != 0,
		ExposeMessage:  p&exposeMessage != 0,
		DetailsAllowed: p&withDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:      meta(http.StatusBadRequest, "validation failed", exposeMessage|withDetails),
	CodeNotFound:        meta(http.StatusNotFound, "resource not found", exposeMessage),
	CodeConflict:        meta(http.StatusConflict, "conflict detected", exposeMessage),
	CodeStateConflict:   meta(http.StatusUnprocessableEntity, "state transition disallowed", exposeMessage|withDetails),
	CodeIdempotency:     meta(http.StatusConflict, "idempotency key reused", exposeMessage|withDetails),
	CodeInternal:        meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:      meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
	CodeInvalidAmount:   meta(http.StatusBadRequest, "amount must be greater than zero", exposeMessage|withDetails),
	CodeInvalidProduct:  meta(http.StatusUnprocessableEntity, "product cannot be priced", exposeMessage|withDetails),
	CodeConflictingRule: meta(http.StatusConflict, "conflicting pricing rule", exposeMessage|withDetails),
	CodeLedgerBusy:      meta(http.StatusServiceUnavailable, "ledger busy, retry later", retryable),
	CodeDataIntegrity:   meta(http.StatusInternalServerError, "data integrity warning", 0),
}

// MetadataFor falls back to the internal-error policy for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns across package boundaries.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Status() int {
	return MetadataFor(e.Code()).HTTPStatus
}

func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so sentinel values compare with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stdErrors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.code == other.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
