package common

import (
	"fmt"
	"net/http"
)

// Error kinds, also used as the serialized code of a DetailedError
const (
	KindUnauthenticated    = "unauthenticated"
	KindNotFound           = "not_found"
	KindFailedPrecondition = "failed_precondition"
	KindResourceExhausted  = "resource_exhausted"
	KindInvalidArgument    = "invalid_argument"
	KindInternal           = "internal"
)

// DetailedError is the error returned to API callers
type DetailedError struct {
	Status          int         `json:"status"`            // Http status code
	ID              string      `json:"id"`                // provided to user so that we can better track down issues
	Code            string      `json:"code"`              // Code which may be used to translate the message to the final user
	Message         string      `json:"message"`           // Understandable message sent to the client
	Details         interface{} `json:"details,omitempty"` // Optional structured payload (reset time...)
	Retryable       bool        `json:"retryable"`
	InternalMessage string      `json:"-"` // used only for logging so we don't want to serialize it out
}

func (d *DetailedError) Error() string {
	if d.InternalMessage != "" {
		return fmt.Sprintf("%s: %s (%s)", d.Code, d.Message, d.InternalMessage)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// SetInternalMessage set the internal message that we will use for logging
func (d DetailedError) SetInternalMessage(internal error) DetailedError {
	if internal != nil {
		d.InternalMessage = internal.Error()
	}
	return d
}

func newError(status int, code string, message string, internal string) *DetailedError {
	return &DetailedError{Status: status, Code: code, Message: message, InternalMessage: internal}
}

func Unauthenticated(message string) *DetailedError {
	return newError(http.StatusUnauthorized, KindUnauthenticated, message, "")
}

func NotFound(message string) *DetailedError {
	return newError(http.StatusNotFound, KindNotFound, message, "")
}

func FailedPrecondition(message string, internal string) *DetailedError {
	return newError(http.StatusPreconditionFailed, KindFailedPrecondition, message, internal)
}

func ResourceExhausted(message string, details interface{}) *DetailedError {
	err := newError(http.StatusTooManyRequests, KindResourceExhausted, message, "")
	err.Details = details
	err.Retryable = true
	return err
}

func InvalidArgument(message string, internal string) *DetailedError {
	return newError(http.StatusBadRequest, KindInvalidArgument, message, internal)
}

// Internal wraps an unexpected failure, the cause is only logged
func Internal(message string, cause error) *DetailedError {
	err := newError(http.StatusInternalServerError, KindInternal, message, "")
	if cause != nil {
		err.InternalMessage = cause.Error()
	}
	return err
}
