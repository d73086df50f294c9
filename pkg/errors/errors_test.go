package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without detail",
			err: &AppError{
				Code:    ErrCodeUnauthorized,
				Message: "Authentication required",
			},
			expected: "unauthorized: Authentication required",
		},
		{
			name: "error with detail",
			err: &AppError{
				Code:    ErrCodeBadRequest,
				Message: "Invalid request",
				Detail:  "missing required field 'name'",
			},
			expected: "bad_request: Invalid request (missing required field 'name')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNew(t *testing.T) {
	err := New("test_code", "Test message", http.StatusTeapot)

	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "Test message", err.Message)
	assert.Equal(t, http.StatusTeapot, err.StatusCode)
	assert.Empty(t, err.Detail)
}

func TestNewWithDetail(t *testing.T) {
	err := NewWithDetail(
		"test_code",
		"Test message",
		"Additional details",
		http.StatusBadRequest,
	)

	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "Test message", err.Message)
	assert.Equal(t, "Additional details", err.Detail)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
}

func TestPolicyDenied(t *testing.T) {
	err := PolicyDenied("value exceeds limit")

	assert.Equal(t, ErrCodePolicyDenied, err.Code)
	assert.Equal(t, "Policy denied", err.Message)
	assert.Equal(t, "value exceeds limit", err.Detail)
	assert.Equal(t, http.StatusForbidden, err.StatusCode)
}

func TestInvalidSignature(t *testing.T) {
	err := InvalidSignature("recovered address mismatch")

	assert.Equal(t, ErrCodeInvalidSignature, err.Code)
	assert.Equal(t, "Invalid wallet signature", err.Message)
	assert.Equal(t, "recovered address mismatch", err.Detail)
	assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
}

func TestUserNotFound(t *testing.T) {
	err := UserNotFound("user-123")

	assert.Equal(t, ErrCodeUserNotFound, err.Code)
	assert.Equal(t, "User not found", err.Message)
	assert.Contains(t, err.Detail, "user-123")
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
}

func TestWalletErrors(t *testing.T) {
	cause := errors.New("rpc down")

	tests := []struct {
		name   string
		err    *AppError
		code   string
		detail string
	}{
		{name: "user rejected", err: UserRejected("personal_sign"), code: ErrCodeUserRejected, detail: "personal_sign"},
		{name: "network switch", err: NetworkSwitchFailed("0x89", cause), code: ErrCodeNetworkSwitchFailed, detail: "rpc down"},
		{name: "transaction", err: TransactionRejected(cause), code: ErrCodeTransactionRejected, detail: "rpc down"},
		{name: "balance", err: BalanceQueryFailed(cause), code: ErrCodeBalanceQueryFailed, detail: "rpc down"},
		{name: "nil cause", err: TransactionRejected(nil), code: ErrCodeTransactionRejected, detail: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.detail, tt.err.Detail)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestIsAppError(t *testing.T) {
	t.Run("returns AppError when error is AppError", func(t *testing.T) {
		originalErr := New("test", "test", http.StatusBadRequest)
		appErr, ok := IsAppError(originalErr)

		require.True(t, ok)
		assert.Equal(t, originalErr, appErr)
	})

	t.Run("returns false when error is not AppError", func(t *testing.T) {
		stdErr := errors.New("standard error")
		appErr, ok := IsAppError(stdErr)

		assert.False(t, ok)
		assert.Nil(t, appErr)
	})

	t.Run("works with wrapped errors", func(t *testing.T) {
		originalErr := New("test", "test", http.StatusBadRequest)
		wrappedErr := fmt.Errorf("wrapped: %w", originalErr)

		appErr, ok := IsAppError(wrappedErr)

		require.True(t, ok)
		assert.Equal(t, originalErr, appErr)
	})
}

func TestAppError_Is(t *testing.T) {
	err := fmt.Errorf("sign: %w", NewWithDetail(ErrCodeNoActiveAccount, "No account connected", "signMessage", http.StatusConflict))

	assert.True(t, errors.Is(err, ErrNoActiveAccount))
	assert.False(t, errors.Is(err, ErrProviderUnavailable))
	assert.False(t, errors.Is(errors.New("plain"), ErrNoActiveAccount))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, ErrCodeInternalError, CodeOf(errors.New("boom")))
	assert.Equal(t, ErrCodeUserRejected, CodeOf(fmt.Errorf("wrap: %w", UserRejected(""))))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "MetaMask is not installed", Describe(ErrProviderUnavailable))
	assert.Equal(t, "Transaction rejected: insufficient funds", Describe(TransactionRejected(errors.New("insufficient funds"))))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		statusCode int
	}{
		{"ErrUnauthorized", ErrUnauthorized, ErrCodeUnauthorized, http.StatusUnauthorized},
		{"ErrForbidden", ErrForbidden, ErrCodeForbidden, http.StatusForbidden},
		{"ErrNotFound", ErrNotFound, ErrCodeNotFound, http.StatusNotFound},
		{"ErrBadRequest", ErrBadRequest, ErrCodeBadRequest, http.StatusBadRequest},
		{"ErrInternalError", ErrInternalError, ErrCodeInternalError, http.StatusInternalServerError},
		{"ErrNotImplemented", ErrNotImplemented, ErrCodeNotImplemented, http.StatusNotImplemented},
		{"ErrProviderUnavailable", ErrProviderUnavailable, ErrCodeProviderUnavailable, http.StatusServiceUnavailable},
		{"ErrNoActiveAccount", ErrNoActiveAccount, ErrCodeNoActiveAccount, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.statusCode, tt.err.StatusCode)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestErrorCodeConstants(t *testing.T) {
	codes := []string{
		ErrCodeUnauthorized,
		ErrCodeForbidden,
		ErrCodeNotFound,
		ErrCodeBadRequest,
		ErrCodeConflict,
		ErrCodeRateLimited,
		ErrCodeInternalError,
		ErrCodeNotImplemented,
		ErrCodeInvalidSignature,
		ErrCodeUserNotFound,
		ErrCodeProviderUnavailable,
		ErrCodeUserRejected,
		ErrCodeNoActiveAccount,
		ErrCodeNetworkSwitchFailed,
		ErrCodeTransactionRejected,
		ErrCodeBalanceQueryFailed,
	}

	uniqueCodes := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, uniqueCodes[code], "error code %s is duplicate", code)
		uniqueCodes[code] = true
	}
}
