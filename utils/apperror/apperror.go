// Package apperror defines the service-wide error taxonomy. Every error that
// crosses a service boundary carries a stable machine-readable code and the
// HTTP status it maps to, so handlers never switch on error strings.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes. These are part of the public API contract and must not
// be renamed.
const (
	CodeInvalidURL       = "INVALID_URL"
	CodeInvalidAlias     = "INVALID_ALIAS"
	CodeInvalidShortCode = "INVALID_SHORT_CODE"
	CodeValidation       = "VALIDATION_ERROR"

	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	CodeAliasTaken    = "ALIAS_TAKEN"
	CodeDuplicateCode = "DUPLICATE_CODE"

	CodeURLNotFound   = "URL_NOT_FOUND"
	CodeURLExpired    = "URL_EXPIRED"
	CodeRouteNotFound = "ROUTE_NOT_FOUND"

	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

	CodeCacheUnavailable = "CACHE_UNAVAILABLE"
	CodeBusUnavailable   = "BUS_UNAVAILABLE"

	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeStoreQueryFailed = "STORE_QUERY_FAILED"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error is the single concrete error type used across services.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Retryable  bool           `json:"-"`
	Details    map[string]any `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so sentinel comparisons like errors.Is(err, ErrURLNotFound)
// work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithCause attaches an underlying error, returning a copy.
func (e *Error) WithCause(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// WithDetails attaches structured details, returning a copy.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

// Sentinel errors for the common cases. Handlers compare with errors.Is and
// render Code/HTTPStatus from whichever *Error is found in the chain.
var (
	ErrInvalidURL       = New(CodeInvalidURL, "the provided URL is not a valid http(s) URL", http.StatusBadRequest)
	ErrInvalidAlias     = New(CodeInvalidAlias, "custom alias must match [A-Za-z0-9_-]{3,30}", http.StatusBadRequest)
	ErrInvalidShortCode = New(CodeInvalidShortCode, "short code must match [A-Za-z0-9_-]{3,30}", http.StatusBadRequest)
	ErrValidation       = New(CodeValidation, "request validation failed", http.StatusBadRequest)

	ErrUnauthorized = New(CodeUnauthorized, "authentication required", http.StatusUnauthorized)
	ErrForbidden    = New(CodeForbidden, "not the owner of this resource", http.StatusForbidden)

	ErrAliasTaken    = New(CodeAliasTaken, "custom alias is already in use", http.StatusConflict)
	ErrDuplicateCode = New(CodeDuplicateCode, "generated short code collided", http.StatusConflict)

	ErrURLNotFound   = New(CodeURLNotFound, "short URL not found", http.StatusNotFound)
	ErrURLExpired    = New(CodeURLExpired, "short URL has expired", http.StatusGone)
	ErrRouteNotFound = New(CodeRouteNotFound, "no such route", http.StatusNotFound)

	ErrRateLimited = New(CodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests)

	ErrCacheUnavailable = &Error{Code: CodeCacheUnavailable, Message: "distributed cache unavailable", HTTPStatus: http.StatusInternalServerError, Retryable: true}
	ErrBusUnavailable   = &Error{Code: CodeBusUnavailable, Message: "message bus unavailable", HTTPStatus: http.StatusInternalServerError, Retryable: true}
	ErrStoreUnavailable = &Error{Code: CodeStoreUnavailable, Message: "primary store unavailable", HTTPStatus: http.StatusInternalServerError, Retryable: true}

	ErrGenerationFailed = New(CodeGenerationFailed, "could not generate a unique short code", http.StatusInternalServerError)
	ErrInternal         = New(CodeInternal, "internal server error", http.StatusInternalServerError)
)

// FromError extracts the *Error in err's chain, or wraps err as an internal
// error when there is none.
func FromError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// ByCode returns the sentinel for a code, or ErrInternal for codes that have
// no sentinel.
func ByCode(code string) *Error {
	for _, e := range []*Error{
		ErrInvalidURL, ErrInvalidAlias, ErrInvalidShortCode, ErrValidation,
		ErrUnauthorized, ErrForbidden,
		ErrAliasTaken, ErrDuplicateCode,
		ErrURLNotFound, ErrURLExpired, ErrRouteNotFound,
		ErrRateLimited,
		ErrCacheUnavailable, ErrBusUnavailable, ErrStoreUnavailable,
		ErrGenerationFailed,
	} {
		if e.Code == code {
			return e
		}
	}
	return ErrInternal
}

// IsRetryable reports whether err (or anything it wraps) is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
