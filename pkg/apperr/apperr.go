package apperr

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeBillingRejected    Code = "BILLING_REJECTED"
	CodeGatewayUnavailable Code = "GATEWAY_UNAVAILABLE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInternal           Code = "INTERNAL_ERROR"
)

var httpStatusByCode = map[Code]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeBillingRejected:    http.StatusBadRequest,
	CodeGatewayUnavailable: http.StatusInternalServerError,
	CodeNotFound:           http.StatusNotFound,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeInternal:           http.StatusInternalServerError,
}

// FieldError is a field-level rejection reported by an upstream API.
type FieldError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// Error is the typed error carried through services up to the HTTP layer.
type Error struct {
	code    Code
	message string
	fields  []FieldError
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// Rejected builds a BILLING_REJECTED error holding the upstream user errors.
func Rejected(message string, fields []FieldError) *Error {
	return &Error{code: CodeBillingRejected, message: message, fields: fields}
}

// WithFields builds an error of code carrying field-level details.
func WithFields(code Code, message string, fields []FieldError) *Error {
	return &Error{code: code, message: message, fields: fields}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

func (e *Error) Message() string { return e.message }

func (e *Error) Fields() []FieldError { return e.fields }

func (e *Error) HTTPStatus() int {
	if s, ok := httpStatusByCode[e.code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Is matches on code so errors.Is(err, apperr.New(CodeNotFound, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf reports the code of err, CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e := As(err); e != nil {
		return e.code
	}
	return CodeInternal
}

func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
