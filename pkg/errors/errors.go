package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies control-plane failures.
type ErrorCode string

const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAuthRejected  ErrorCode = "AUTH_REJECTED"
	ErrCodeCapacityFull  ErrorCode = "CAPACITY_FULL"
	ErrCodeAcquisition   ErrorCode = "ACQUISITION_FAILED"
	ErrCodeSignalingLost ErrorCode = "SIGNALING_LOST"
	ErrCodeStreamStalled ErrorCode = "STREAM_STALLED"
	ErrCodeRateLimit     ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code and optional cause through the control plane.
// Admission and capacity errors stay local to one connection attempt;
// nothing escapes the orchestrator uncaught.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

func NewInvalidInput(message string) *AppError {
	return New(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewAuthRejected(message string) *AppError {
	return New(ErrCodeAuthRejected, message, http.StatusUnauthorized)
}

func NewCapacityFull(message string) *AppError {
	return New(ErrCodeCapacityFull, message, http.StatusConflict)
}

func NewRateLimited() *AppError {
	return New(ErrCodeRateLimit, "too many attempts", http.StatusTooManyRequests)
}

func NewInternal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

// Get extracts an AppError from anywhere in the chain, or nil.
func Get(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the code of err, or ErrCodeInternal for plain errors.
func CodeOf(err error) ErrorCode {
	if appErr := Get(err); appErr != nil {
		return appErr.Code
	}
	return ErrCodeInternal
}
