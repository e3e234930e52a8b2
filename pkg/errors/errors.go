// Package errors defines the visitor-safe error type returned by services and
// rendered by handlers. Message is shown to the visitor; Internal is only logged.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal == nil:
		return e.Message
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is compares codes, so a copy carrying an internal cause still matches its
// sentinel.
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// WithInternal returns a copy carrying err as the logged cause.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Status is the HTTP status to answer with, defaulting to 500.
func (e *AppError) Status() int {
	if e == nil || e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// Request level failures.
var (
	ErrBadRequest    = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrNotFound      = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrRateLimit     = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrCSRFInvalid   = New("CSRF_TOKEN_INVALID", "Invalid security token. Please refresh the page and try again.", http.StatusBadRequest)
	ErrCaptchaFailed = New("CAPTCHA_FAILED", "CAPTCHA verification failed. Please try again.", http.StatusBadRequest)

	ErrInternalServer = New("INTERNAL_SERVER_ERROR",
		"An unexpected error occurred. Please try again later.", http.StatusInternalServerError)
)

// Admin console failures.
var (
	ErrUnauthorized       = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", "Invalid email or password.", http.StatusUnauthorized)
)

// FromError returns err's AppError, or ErrInternalServer wrapping err.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

func NewBadRequest(message string) *AppError {
	return New(ErrBadRequest.Code, message, http.StatusBadRequest)
}

// NewValidation reports a form field that failed validation.
func NewValidation(message string) *AppError {
	return New("VALIDATION_FAILED", message, http.StatusBadRequest)
}
