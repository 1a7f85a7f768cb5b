package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeInvalid             ErrorCode = "INVALID"
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternal            ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches two domain errors by code and message so wrapped sentinels still compare.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrScanNotFound       = NewError(ErrCodeNotFound, "scan event not found")
	ErrInvalidReportType  = NewError(ErrCodeInvalid, "invalid report type")
	ErrInvalidRange       = NewError(ErrCodeInvalid, "invalid date range")
	ErrInvalidPeriod      = NewError(ErrCodeInvalid, "invalid period")
	ErrInvalidPayload     = NewError(ErrCodeInvalid, "invalid payload")
	ErrUnauthorized       = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden          = NewError(ErrCodeForbidden, "forbidden")
	ErrCatalogUnavailable = NewError(ErrCodeUpstreamUnavailable, "product catalog unavailable")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
