/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode classifies failures of the legacy schedule service
type ErrorCode string

const (
	// Storage errors
	ErrNotFound  ErrorCode = "NOT_FOUND"
	ErrIOFailure ErrorCode = "IO_FAILURE"

	// Request errors
	ErrParseFailure    ErrorCode = "PARSE_FAILURE"
	ErrPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrNotAcceptable   ErrorCode = "NOT_ACCEPTABLE"
	ErrInvalidRoute    ErrorCode = "INVALID_ROUTE"

	// Authorization errors
	ErrAuthDenied ErrorCode = "AUTH_DENIED"

	// System errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// LegacyError is a classified error carrying an optional internal cause
type LegacyError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *LegacyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *LegacyError) Unwrap() error {
	return e.Cause
}

// New creates a new LegacyError
func New(code ErrorCode, message string) *LegacyError {
	return &LegacyError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates a new LegacyError with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *LegacyError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new LegacyError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *LegacyError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// Wrapf creates a new LegacyError wrapping an existing error with formatted message
func Wrapf(code ErrorCode, cause error, format string, args ...interface{}) *LegacyError {
	return Wrap(code, fmt.Sprintf(format, args...), cause)
}

// WithDetails adds details to a LegacyError
func (e *LegacyError) WithDetails(details map[string]interface{}) *LegacyError {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to a LegacyError
func (e *LegacyError) WithRequestID(requestID string) *LegacyError {
	e.RequestID = requestID
	return e
}

// GetHTTPStatus returns the HTTP status code for the error
func (e *LegacyError) GetHTTPStatus() int {
	switch e.Code {
	case ErrParseFailure:
		return http.StatusBadRequest
	case ErrAuthDenied:
		return http.StatusForbidden
	case ErrNotFound, ErrInvalidRoute:
		return http.StatusNotFound
	case ErrNotAcceptable:
		return http.StatusNotAcceptable
	case ErrPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrIOFailure, ErrInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewIOFailure reports a failed write. The message is the raw OS error text,
// which the legacy API returns verbatim to scrapers.
func NewIOFailure(cause error) *LegacyError {
	return Wrap(ErrIOFailure, cause.Error(), cause)
}

// NewParseFailure reports an undecodable request body
func NewParseFailure(message string, cause error) *LegacyError {
	return Wrap(ErrParseFailure, message, cause)
}

// NewAuthDenied reports a rejected write or refresh
func NewAuthDenied(message string) *LegacyError {
	return New(ErrAuthDenied, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *LegacyError {
	return Newf(ErrNotFound, "%s not found", resource)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *LegacyError {
	return Wrap(ErrInternalError, message, cause)
}

// AsLegacyError finds the first LegacyError in err's chain
func AsLegacyError(err error) (*LegacyError, bool) {
	var le *LegacyError
	if stderrors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code anywhere in its chain
func IsCode(err error, code ErrorCode) bool {
	le, ok := AsLegacyError(err)
	return ok && le.Code == code
}
