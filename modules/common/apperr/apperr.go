// Package apperr defines the error taxonomy shared by the proxy, the script
// client and the wizard API, and the JSON envelope used to report it.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeBadRequest             = "BAD_REQUEST"
	CodeServerMisconfigured    = "SERVER_MISCONFIGURED"
	CodeUpstreamError          = "UPSTREAM_ERROR"
	CodeScriptGenerationFailed = "SCRIPT_GENERATION_FAILED"
	CodeScriptDecodeFailed     = "SCRIPT_DECODE_FAILED"
	CodeGenerationFailed       = "GENERATION_FAILED"
	CodePreconditionFailed     = "PRECONDITION_FAILED"
	CodeWrongStage             = "WRONG_STAGE"
	CodeNotFound               = "NOT_FOUND"
	CodeNotImplemented         = "NOT_IMPLEMENTED"
	CodeInternal               = "INTERNAL_ERROR"
)

var defaultStatus = map[string]int{
	CodeBadRequest:             http.StatusBadRequest,
	CodeServerMisconfigured:    http.StatusInternalServerError,
	CodeUpstreamError:          http.StatusBadGateway,
	CodeScriptGenerationFailed: http.StatusBadGateway,
	CodeScriptDecodeFailed:     http.StatusBadGateway,
	CodeGenerationFailed:       http.StatusBadGateway,
	CodePreconditionFailed:     http.StatusUnprocessableEntity,
	CodeWrongStage:             http.StatusConflict,
	CodeNotFound:               http.StatusNotFound,
	CodeNotImplemented:         http.StatusNotImplemented,
	CodeInternal:               http.StatusInternalServerError,
}

// Error is a classified failure. Status is the HTTP status it maps to; zero
// means the code's default.
type Error struct {
	Code    string
	Message string
	Status  int
	Details json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinels declared with New work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// HTTPStatus returns the explicit status or the code's default
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if s, ok := defaultStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates an error with the given code and message
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies an underlying error
func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Upstream builds an UPSTREAM_ERROR carrying the remote status and payload
func Upstream(status int, message string, details json.RawMessage) *Error {
	return &Error{Code: CodeUpstreamError, Message: message, Status: status, Details: details}
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf returns the HTTP status for any error
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// MessageOf returns the user-facing message for any error
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// Response - error envelope returned to wizard clients
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details,omitempty"`
}

// WriteJSON writes err as the wizard error envelope
func WriteJSON(w http.ResponseWriter, err error) {
	resp := Response{
		Success: false,
		Error:   MessageOf(err),
		Code:    CodeOf(err),
	}
	var e *Error
	if errors.As(err, &e) {
		resp.Details = e.Details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusOf(err))
	json.NewEncoder(w).Encode(resp)
}
