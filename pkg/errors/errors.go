package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"watchparty/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodePartyNotFound      ErrorCode = "PARTY_NOT_FOUND"
	ErrCodeJoinFailed         ErrorCode = "JOIN_FAILED"
	ErrCodeNotCreator         ErrorCode = "NOT_CREATOR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// FromDomain maps domain sentinels onto HTTP-facing application errors.
// Unknown errors become internal errors that keep the cause.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrPartyNotFound):
		return WrapError(err, ErrCodePartyNotFound, "party not found", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrParticipantNotFound):
		return WrapError(err, ErrCodeNotFound, "participant not found", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrNotCreator):
		return WrapError(err, ErrCodeNotCreator, "only the party creator may control playback", http.StatusForbidden)
	case stderrors.Is(err, domain.ErrEmptyMessage),
		stderrors.Is(err, domain.ErrMessageTooLong),
		stderrors.Is(err, domain.ErrInvalidReaction),
		stderrors.Is(err, domain.ErrInvalidPlayback),
		stderrors.Is(err, domain.ErrInvalidInput):
		return WrapError(err, ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	case stderrors.Is(err, domain.ErrRateLimited):
		return WrapError(err, ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
	case stderrors.Is(err, domain.ErrJoinFailed):
		return WrapError(err, ErrCodeJoinFailed, "failed to join party", http.StatusServiceUnavailable)
	case stderrors.Is(err, domain.ErrTransportClosed):
		return WrapError(err, ErrCodeServiceUnavailable, "realtime transport unavailable", http.StatusServiceUnavailable)
	default:
		return WrapError(err, ErrCodeInternal, "internal server error", http.StatusInternalServerError)
	}
}

func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
