package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/godamri/helix-activity/http/response"
)

// ResourceError is the failure type of every Connection call.
// Code follows HTTP status semantics so it survives the HTTP transport unchanged.
type ResourceError struct {
	Code    int
	Reason  string // envelope error code, e.g. RES_NOT_FOUND
	Message string
	Cause   error
}

func (e *ResourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("router: %s (%d): %s: %v", e.Reason, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("router: %s (%d): %s", e.Reason, e.Code, e.Message)
}

func (e *ResourceError) Unwrap() error { return e.Cause }

func NewResourceError(code int, message string, cause error) *ResourceError {
	return &ResourceError{
		Code:    code,
		Reason:  response.CodeForStatus(code),
		Message: message,
		Cause:   cause,
	}
}

func NewBadRequest(message string) *ResourceError {
	return NewResourceError(http.StatusBadRequest, message, nil)
}

func NewNotFound(message string) *ResourceError {
	return NewResourceError(http.StatusNotFound, message, nil)
}

func NewConflict(message string) *ResourceError {
	return NewResourceError(http.StatusConflict, message, nil)
}

func NewUnavailable(message string, cause error) *ResourceError {
	return NewResourceError(http.StatusServiceUnavailable, message, cause)
}

// NewInternalError wraps an arbitrary failure into the generic internal kind.
// The message stays generic; the original error is the Cause and remains
// reachable through errors.Is / errors.As.
func NewInternalError(err error) *ResourceError {
	return NewResourceError(http.StatusInternalServerError, "internal error", err)
}

// AsResourceError reports whether err is, or wraps, a ResourceError.
func AsResourceError(err error) (*ResourceError, bool) {
	var rerr *ResourceError
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}

// IsInternal reports whether err is a ResourceError of the internal kind.
func IsInternal(err error) bool {
	rerr, ok := AsResourceError(err)
	return ok && rerr.Code == http.StatusInternalServerError
}
