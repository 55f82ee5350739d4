// Package apperror defines the operational error taxonomy and the gin
// middleware that turns any recorded error into the response envelope.
package apperror

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindDuplicateKey   Kind = "duplicate_key"
	KindInvalidID      Kind = "invalid_id"
	KindTokenInvalid   Kind = "token_invalid"
	KindTokenExpired   Kind = "token_expired"
	KindUnauthorized   Kind = "unauthorized"
	KindPermission     Kind = "permission_denied"
	KindUploadType     Kind = "upload_type_rejected"
	KindUploadCount    Kind = "upload_count_exceeded"
	KindMail           Kind = "mail_misconfigured"
	KindMalformed      Kind = "malformed_request"
	KindTooLarge       Kind = "payload_too_large"
	KindRateLimited    Kind = "rate_limited"
	KindBadRequest     Kind = "bad_request"
	KindNotImplemented Kind = "not_implemented"
	KindAuthConfig     Kind = "auth_config"
)

// Error is an operational failure: safe to describe to the caller.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	// Fields holds per-field messages; validation and duplicate-key errors
	// fill it, everything else reports under the "error" key.
	Fields map[string][]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status is "fail" for client errors and "error" for server errors.
func (e *Error) Status() string {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return "fail"
	}
	return "error"
}

// FieldErrors returns the development-mode error map.
func (e *Error) FieldErrors() map[string][]string {
	if len(e.Fields) > 0 {
		return e.Fields
	}
	return map[string][]string{"error": {e.Message}}
}

func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: message}
}

// Wrap attaches the underlying cause, kept for logs only.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func NotFound(message string) *Error {
	return New(KindNotFound, http.StatusNotFound, message)
}

// NoDocument is the not-found error of the generic handlers.
func NoDocument() *Error {
	return NotFound("No document found with that ID")
}

func BadRequest(message string) *Error {
	return New(KindBadRequest, http.StatusBadRequest, message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, http.StatusUnauthorized, message)
}

func Forbidden() *Error {
	return New(KindPermission, http.StatusForbidden, "You do not have permission to perform this action")
}

func TokenInvalid() *Error {
	return New(KindTokenInvalid, http.StatusUnauthorized, "Invalid Token, please login again!")
}

func TokenExpired() *Error {
	return New(KindTokenExpired, http.StatusUnauthorized, "Your token has expired, please login again!")
}

func InvalidID(path, value string) *Error {
	what := "value"
	if path == "_id" {
		what = "ID"
	}
	return New(KindInvalidID, http.StatusBadRequest,
		fmt.Sprintf("Invalid %s: %q. Please provide a valid %s", path, value, what))
}

func UploadType() *Error {
	return New(KindUploadType, http.StatusBadRequest, "Not an image! Please upload only images.")
}

func UploadCount(field string, max int) *Error {
	noun := "images"
	if max == 1 {
		noun = "image"
	}
	return New(KindUploadCount, http.StatusBadRequest,
		fmt.Sprintf("You cannot add more than %d %s to %s", max, noun, field))
}

func UnexpectedUpload(field string) *Error {
	return New(KindUploadCount, http.StatusBadRequest, fmt.Sprintf("Unexpected upload field: %s", field))
}

func Mail(err error) *Error {
	return New(KindMail, http.StatusInternalServerError,
		"There was an error sending the email. Try again later!").Wrap(err)
}

func Malformed(message string) *Error {
	return New(KindMalformed, http.StatusBadRequest, message)
}

func TooLarge() *Error {
	return New(KindTooLarge, http.StatusRequestEntityTooLarge, "Request body is too large")
}

func ImageTooLarge(width, height int) *Error {
	return New(KindTooLarge, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Image is too large (%dx%d). Please upload a smaller image.", width, height))
}

func RateLimited() *Error {
	return New(KindRateLimited, http.StatusTooManyRequests,
		"Too many requests from this IP, please try again in a minute!")
}

func NotImplemented(message string) *Error {
	return New(KindNotImplemented, http.StatusInternalServerError, message)
}

func AuthConfig(err error) *Error {
	return New(KindAuthConfig, http.StatusInternalServerError, "Authentication configuration error").Wrap(err)
}

// Validation builds a per-field validation error.
func Validation(fields map[string][]string) *Error {
	e := New(KindValidation, http.StatusBadRequest, "")
	e.Fields = fields
	e.Message = "Invalid input data. " + joinFields(fields)
	return e
}

// FieldInvalid is a validation error on one field.
func FieldInvalid(field, message string) *Error {
	return Validation(map[string][]string{field: {message}})
}

func Duplicate(field, value string) *Error {
	msg := fmt.Sprintf("The %s ((%s)) already exists. Please choose a different %s.", field, value, field)
	e := New(KindDuplicateKey, http.StatusBadRequest, msg)
	e.Fields = map[string][]string{field: {msg}}
	return e
}

func joinFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, strings.Join(fields[k], " "))
	}
	return strings.Join(parts, " ")
}
