// Package apperror defines the error vocabulary shared by the store, the stats
// gateway and the realtime handlers.
//
// Lower layers return (or wrap) an *AppError. The realtime layer maps the
// sentinel at the bottom of the chain to an error code that is sent back to the
// client, so neither the repository nor the gateway needs to know about
// websockets.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrUpstream   = errors.New("upstream error")
)

type AppError struct {
	Err     error  // sentinel
	Message string // human-readable, safe to show to a client
	Field   string // optional: payload field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Upstream reports a failed call to one of the third-party APIs.
// The message names the service only; response bodies are not echoed to clients.
func Upstream(service string, status int) *AppError {
	msg := fmt.Sprintf("%s is unavailable", service)
	if status > 0 {
		msg = fmt.Sprintf("%s returned status %d", service, status)
	}
	return &AppError{
		Err:     ErrUpstream,
		Message: msg,
	}
}

// Code returns the machine-readable code for err, as sent in "error" events.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "internal_error"
	}
}
