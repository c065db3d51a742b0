package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries the HTTP status a failure maps to. Components below the
// HTTP layer return these so handlers never have to re-derive a status.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(code int, msg string, args ...interface{}) error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{Code: code, Message: msg}
}

func Wrap(code int, err error) error {
	return &Error{Code: code, Message: err.Error()}
}

// CodeOf extracts the status of an error, defaulting to 500.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return http.StatusInternalServerError
}
