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

package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestTaxonomyHelpers(t *testing.T) {
	err := apierror.InsufficientBalance("spendable %s is below %s", "400", "500")
	assert.Equal(t, "INSUFFICIENT_AVAILABLE_BALANCE: spendable 400 is below 500", err.Error())

	wrapped := fmt.Errorf("approve: %w", apierror.StateConflict("already approved"))
	assert.True(t, apierror.Is(wrapped, apierror.ErrStateConflict))
	assert.False(t, apierror.Is(wrapped, apierror.ErrValidation))
	assert.False(t, apierror.Is(nil, apierror.ErrValidation))
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(errors.New("boom")))
}

func TestUnwrapDetails(t *testing.T) {
	cause := errors.New("connection reset")
	err := apierror.NewAPIError(apierror.ErrInternalServer, "failed to lock account", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "NotFound Error",
			err:      apierror.NotFound("account %s not found", "la_1"),
			expected: http.StatusNotFound,
		},
		{
			name:     "Conflict Error",
			err:      apierror.NewAPIError(apierror.ErrConflict, "Conflict occurred", nil),
			expected: http.StatusConflict,
		},
		{
			name:     "State Conflict",
			err:      apierror.StateConflict("already rejected"),
			expected: http.StatusConflict,
		},
		{
			name:     "Validation Error",
			err:      apierror.Validation("amount must be positive"),
			expected: http.StatusBadRequest,
		},
		{
			name:     "Insufficient Balance",
			err:      apierror.InsufficientBalance("short"),
			expected: http.StatusUnprocessableEntity,
		},
		{
			name:     "Authorization Violation",
			err:      apierror.Unauthorized("maker cannot check"),
			expected: http.StatusForbidden,
		},
		{
			name:     "Unknown Error",
			err:      errors.New("Unknown error"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statusCode := apierror.MapErrorToHTTPStatus(tt.err)
			assert.Equal(t, tt.expected, statusCode)
		})
	}
}
