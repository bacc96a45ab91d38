package api

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse is returned when a 2xx body cannot be decoded.
var ErrInvalidResponse = errors.New("invalid response from server")

// ServerError is a non-2xx response from the backend.
type ServerError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
	// Code is an optional machine-readable error code.
	Code string `json:"code,omitempty"`
	// Message is the human-readable text from the server, if any.
	Message string `json:"message,omitempty"`
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api: server returned %d: %s", e.StatusCode, e.Message)
}

// UserMessage returns the server-provided text.
func (e *ServerError) UserMessage() string {
	return e.Message
}

// HTTPStatus returns the response status code.
func (e *ServerError) HTTPStatus() int {
	return e.StatusCode
}

// IsStatus reports whether err is a *ServerError with the given status code.
func IsStatus(err error, status int) bool {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		return false
	}
	return serverErr.StatusCode == status
}

// ServerMessage returns the server-provided text carried by err, if any.
func ServerMessage(err error) (string, bool) {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || serverErr.Message == "" {
		return "", false
	}
	return serverErr.Message, true
}
