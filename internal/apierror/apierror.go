/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// Ledger taxonomy. Every one of these is raised before any balance is
	// committed, so the caller can treat them as "nothing happened".
	ErrValidation                   ErrorCode = "VALIDATION_ERROR"
	ErrInsufficientAvailableBalance ErrorCode = "INSUFFICIENT_AVAILABLE_BALANCE"
	ErrStateConflict                ErrorCode = "STATE_CONFLICT"
	ErrAuthorizationViolation       ErrorCode = "AUTHORIZATION_VIOLATION"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause when Details carries one.
func (e APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func Validation(format string, args ...interface{}) APIError {
	return APIError{Code: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func InsufficientBalance(format string, args ...interface{}) APIError {
	return APIError{Code: ErrInsufficientAvailableBalance, Message: fmt.Sprintf(format, args...)}
}

func StateConflict(format string, args ...interface{}) APIError {
	return APIError{Code: ErrStateConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) APIError {
	return APIError{Code: ErrAuthorizationViolation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) APIError {
	return APIError{Code: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first APIError in err's chain, or
// ErrInternalServer when there is none.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrStateConflict:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest, ErrValidation:
			return http.StatusBadRequest
		case ErrInsufficientAvailableBalance:
			return http.StatusUnprocessableEntity
		case ErrAuthorizationViolation:
			return http.StatusForbidden
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
