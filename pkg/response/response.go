package response

import "github.com/fatflowers/pcbuilder/pkg/apperr"

type APIResponseCode int

const (
	APIResponseCodeOK              APIResponseCode = 0
	APIResponseCodeBadRequest      APIResponseCode = 40000
	APIResponseCodeUnauthorized    APIResponseCode = 40100
	APIResponseCodeNotFound        APIResponseCode = 40400
	APIResponseCodeBillingRejected APIResponseCode = 40200
	APIResponseCodeError           APIResponseCode = 50000
	APIResponseCodeGatewayError    APIResponseCode = 50200
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:              "ok",
	APIResponseCodeBadRequest:      "invalid input",
	APIResponseCodeUnauthorized:    "unauthorized",
	APIResponseCodeNotFound:        "not found",
	APIResponseCodeBillingRejected: "billing rejected",
	APIResponseCodeError:           "internal error",
	APIResponseCodeGatewayError:    "billing gateway unavailable",
}

var codeByAppErr = map[apperr.Code]APIResponseCode{
	apperr.CodeInvalidInput:       APIResponseCodeBadRequest,
	apperr.CodeUnauthorized:       APIResponseCodeUnauthorized,
	apperr.CodeNotFound:           APIResponseCodeNotFound,
	apperr.CodeBillingRejected:    APIResponseCodeBillingRejected,
	apperr.CodeGatewayUnavailable: APIResponseCodeGatewayError,
	apperr.CodeInternal:           APIResponseCodeError,
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// ErrorBody is the data payload of a failed call.
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

// FromError maps err to an HTTP status and envelope. Internal failures never
// leak their cause to the client.
func FromError(err error) (int, *APIResponse[ErrorBody]) {
	e := apperr.As(err)
	if e == nil {
		e = apperr.Wrap(apperr.CodeInternal, err, "internal server error")
	}
	body := ErrorBody{Error: e.Message(), Fields: e.Fields()}
	if e.Code() == apperr.CodeInternal {
		body = ErrorBody{Error: "internal server error"}
	}
	code, ok := codeByAppErr[e.Code()]
	if !ok {
		code = APIResponseCodeError
	}
	return e.HTTPStatus(), ErrorT(code, body)
}
