package oauth2

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes of RFC 6749 §5.2, as rendered in the error field of the wire
// body.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeUnauthorizedClient   = "unauthorized_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeServerError          = "server_error"
)

// Error is the classified failure every engine component produces. It maps
// one-to-one onto the wire body {error, error_description} plus an HTTP
// status; everything except server_error renders 400.
type Error struct {
	HTTPStatus  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Err         error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error { return e.Err }

// WithCause returns a copy carrying the underlying error for logs. The
// cause is never serialized to the client.
func (e *Error) WithCause(err error) *Error {
	ne := *e
	ne.Err = err
	return &ne
}

func invalidRequest(desc string) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Code: CodeInvalidRequest, Description: desc}
}

func invalidClient(desc string) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Code: CodeInvalidClient, Description: desc}
}

func unauthorizedClient(desc string) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Code: CodeUnauthorizedClient, Description: desc}
}

func invalidGrant(desc string) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Code: CodeInvalidGrant, Description: desc}
}

func unsupportedGrantType(desc string) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Code: CodeUnsupportedGrantType, Description: desc}
}

func serverError(desc string, cause error) *Error {
	return &Error{HTTPStatus: http.StatusInternalServerError, Code: CodeServerError, Description: desc, Err: cause}
}

// classify coerces any error into an *Error, mapping unknown failures to
// server_error.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	if oe, ok := err.(*Error); ok {
		return oe
	}
	return serverError("internal error", err)
}

// WriteError renders an error as the wire JSON body. Embedders mounting
// the engine behind their own recovery layers may reuse it.
func WriteError(w http.ResponseWriter, err error) {
	oe := classify(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(oe.HTTPStatus)
	_ = json.NewEncoder(w).Encode(oe)
}
