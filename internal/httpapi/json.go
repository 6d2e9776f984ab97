// Package httpapi collects the small JSON request/response conventions
// shared by the server's HTTP surfaces: a structured error envelope, a
// strict request decoder, and the status-code/error-code mapping between
// them.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxJSONBodyBytes = 1 << 20 // 1 MiB

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type codedError interface {
	Code() string
}

type statusError interface {
	StatusCode() int
}

// RequestError is a structured API error carrying an HTTP status and a
// machine-readable code.
type RequestError struct {
	Status  int
	CodeVal string
	Message string
	Err     error
}

func (e RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.StatusCode())
}

func (e RequestError) Unwrap() error { return e.Err }

func (e RequestError) Code() string {
	if e.CodeVal != "" {
		return e.CodeVal
	}
	return codeForStatus(e.StatusCode())
}

func (e RequestError) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// NotFound builds a RequestError for a missing resource.
func NotFound(message string) RequestError {
	return RequestError{Status: http.StatusNotFound, CodeVal: "not_found", Message: message}
}

// ValidationError builds a RequestError for invalid user input.
func ValidationError(message string) RequestError {
	return RequestError{Status: http.StatusBadRequest, CodeVal: "validation_failed", Message: message}
}

// Conflict builds a RequestError for a request that cannot be applied to
// the resource's current state.
func Conflict(message string) RequestError {
	return RequestError{Status: http.StatusConflict, CodeVal: "conflict", Message: message}
}

// WriteJSON writes payload as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes a structured error envelope with the given status. The
// machine-readable code is taken from err when it implements codedError and
// otherwise derived from status.
func WriteError(w http.ResponseWriter, status int, err error) {
	code := codeForStatus(status)
	if coder, ok := err.(codedError); ok {
		if c := coder.Code(); c != "" {
			code = c
		}
	}
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	WriteJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// WriteRequestError writes err using the status it carries when it
// implements statusError, or 500 otherwise.
func WriteRequestError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if serr, ok := err.(statusError); ok {
		status = serr.StatusCode()
	}
	WriteError(w, status, err)
}

// WriteMethodNotAllowed writes a 405 response and sets the Allow header.
func WriteMethodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	WriteRequestError(w, RequestError{
		Status:  http.StatusMethodNotAllowed,
		CodeVal: "method_not_allowed",
		Message: fmt.Sprintf("method %s not allowed", r.Method),
	})
}

// DecodeJSON parses a JSON body into dest, rejecting unknown fields and
// enforcing a body size limit.
func DecodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return RequestError{Status: http.StatusBadRequest, CodeVal: "validation_failed", Message: "request body is required"}
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes+1))
	if err != nil {
		return RequestError{Status: http.StatusBadRequest, CodeVal: "invalid_json", Message: "unable to read request body", Err: err}
	}
	if len(body) > maxJSONBodyBytes {
		return RequestError{Status: http.StatusRequestEntityTooLarge, CodeVal: "request_too_large", Message: fmt.Sprintf("request body must not exceed %d bytes", maxJSONBodyBytes)}
	}
	if len(body) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return classifyDecodeError(err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return classifyDecodeError(err)
	}
	return nil
}

// DecodeAndValidate decodes the request body into dest, writing a
// structured error response and returning false on failure.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := DecodeJSON(r, dest); err != nil {
		WriteRequestError(w, err)
		return false
	}
	return true
}

func classifyDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &syntaxErr):
		return RequestError{Status: http.StatusBadRequest, CodeVal: "invalid_json", Message: "malformed JSON", Err: err}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return RequestError{Status: http.StatusBadRequest, CodeVal: "invalid_json", Message: "malformed JSON", Err: err}
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return RequestError{Status: http.StatusBadRequest, CodeVal: "validation_failed", Message: fmt.Sprintf("invalid value for %s", typeErr.Field), Err: err}
		}
		return RequestError{Status: http.StatusBadRequest, CodeVal: "validation_failed", Message: "invalid value", Err: err}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return RequestError{Status: http.StatusBadRequest, CodeVal: "validation_failed", Message: fmt.Sprintf("unknown field %s", field), Err: err}
	default:
		return RequestError{Status: http.StatusBadRequest, CodeVal: "invalid_json", Message: "invalid JSON payload", Err: err}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		if status >= 500 {
			return "internal_error"
		}
		return "error"
	}
}
