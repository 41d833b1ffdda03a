package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an application error into the response taxonomy.
type Code string

const (
	CodeValidation    Code = "validation_error"
	CodeAuthorization Code = "authorization_error"
	CodeStateConflict Code = "state_conflict"
	CodeNotFound      Code = "not_found"
	CodeStorage       Code = "storage_error"
)

// Error is the error type returned by services. Handlers never inspect
// failure causes themselves; the HTTP error handler maps the code to a
// status and JSON body.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithField attaches a field-level message, used for validation errors.
func (e *Error) WithField(name, msg string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[name] = msg
	return e
}

// HTTPStatus returns the response status for the error's code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeStateConflict:
		return http.StatusUnprocessableEntity
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...interface{}) *Error {
	return &Error{Code: CodeAuthorization, Message: fmt.Sprintf(format, args...)}
}

func StateConflict(format string, args ...interface{}) *Error {
	return &Error{Code: CodeStateConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: resource + " not found"}
}

// Storage wraps a database failure. The cause is preserved for logs but
// never surfaced to clients.
func Storage(op string, cause error) *Error {
	return &Error{Code: CodeStorage, Message: op + " failed", cause: cause}
}

// As unwraps err into an *Error, or nil when err is not one.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if e := As(err); e != nil {
		return e.Code == code
	}
	return false
}
