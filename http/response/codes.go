package response

import "net/http"

const (
	// General & System
	ErrSystem         = "SYS_INTERNAL_ERROR"
	ErrBadRequest     = "SYS_BAD_REQUEST"
	ErrServiceUnavail = "SYS_SERVICE_UNAVAILABLE"
	ErrGatewayTimeout = "SYS_GATEWAY_TIMEOUT"
	ErrRateLimited    = "SYS_RATE_LIMITED"

	// Validation
	ErrValidation    = "VAL_INVALID_INPUT"
	ErrMissingField  = "VAL_MISSING_FIELD"
	ErrInvalidFormat = "VAL_INVALID_FORMAT"

	// Auth
	ErrMissingToken = "AUTH_MISSING_TOKEN"
	ErrInvalidToken = "AUTH_INVALID_TOKEN"
	ErrForbidden    = "AUTH_FORBIDDEN"

	// Resource / Data (Database Mapped)
	ErrNotFound        = "RES_NOT_FOUND"
	ErrAlreadyExists   = "RES_ALREADY_EXISTS"
	ErrConflict        = "RES_CONFLICT"
	ErrVersionMismatch = "RES_VERSION_MISMATCH"
)

func MapStatus(code string) int {
	switch code {
	case ErrBadRequest, ErrValidation, ErrMissingField, ErrInvalidFormat:
		return http.StatusBadRequest

	case ErrMissingToken, ErrInvalidToken:
		return http.StatusUnauthorized

	case ErrForbidden:
		return http.StatusForbidden

	case ErrNotFound:
		return http.StatusNotFound

	case ErrAlreadyExists, ErrConflict:
		return http.StatusConflict

	case ErrVersionMismatch:
		return http.StatusPreconditionFailed

	case ErrRateLimited:
		return http.StatusTooManyRequests

	case ErrServiceUnavail:
		return http.StatusServiceUnavailable

	case ErrGatewayTimeout:
		return http.StatusGatewayTimeout

	case ErrSystem:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// CodeForStatus is the inverse of MapStatus for the canonical code of each status.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrInvalidToken
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrVersionMismatch
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return ErrServiceUnavail
	case http.StatusGatewayTimeout:
		return ErrGatewayTimeout
	default:
		return ErrSystem
	}
}
