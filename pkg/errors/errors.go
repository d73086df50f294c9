package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application-level error with HTTP status code
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code, so sentinel values
// such as ErrNoActiveAccount match errors built with extra detail.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common error codes
const (
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeForbidden      = "forbidden"
	ErrCodeNotFound       = "not_found"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeConflict       = "conflict"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternalError  = "internal_error"
	ErrCodeNotImplemented = "not_implemented"

	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeUserNotFound     = "user_not_found"
)

// Wallet error codes. These are the kinds surfaced by the wallet core.
const (
	ErrCodeProviderUnavailable = "provider_unavailable"
	ErrCodeUserRejected        = "user_rejected"
	ErrCodeNoActiveAccount     = "no_active_account"
	ErrCodeNetworkSwitchFailed = "network_switch_failed"
	ErrCodeTransactionRejected = "transaction_rejected"
	ErrCodeBalanceQueryFailed  = "balance_query_failed"
)

// Predefined errors
var (
	ErrUnauthorized = &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       ErrCodeForbidden,
		Message:    "Access denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       ErrCodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrNotImplemented = &AppError{
		Code:       ErrCodeNotImplemented,
		Message:    "Not implemented",
		StatusCode: http.StatusNotImplemented,
	}

	ErrProviderUnavailable = &AppError{
		Code:       ErrCodeProviderUnavailable,
		Message:    "MetaMask is not installed",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrNoActiveAccount = &AppError{
		Code:       ErrCodeNoActiveAccount,
		Message:    "No account connected",
		StatusCode: http.StatusConflict,
	}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

// InvalidSignature creates an invalid signature error
func InvalidSignature(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidSignature,
		Message:    "Invalid wallet signature",
		Detail:     detail,
		StatusCode: http.StatusUnauthorized,
	}
}

// UserRejected reports that the wallet holder declined a prompt.
func UserRejected(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeUserRejected,
		Message:    "User rejected the request",
		Detail:     detail,
		StatusCode: http.StatusForbidden,
	}
}

// NetworkSwitchFailed wraps a failed wallet_switchEthereumChain call.
func NetworkSwitchFailed(chainID string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeNetworkSwitchFailed,
		Message:    fmt.Sprintf("Failed to switch network to %s", chainID),
		Detail:     causeDetail(cause),
		StatusCode: http.StatusBadGateway,
	}
}

// TransactionRejected wraps a declined or failed transaction submission.
func TransactionRejected(cause error) *AppError {
	return &AppError{
		Code:       ErrCodeTransactionRejected,
		Message:    "Transaction rejected",
		Detail:     causeDetail(cause),
		StatusCode: http.StatusBadGateway,
	}
}

// BalanceQueryFailed wraps a failed eth_getBalance call.
func BalanceQueryFailed(cause error) *AppError {
	return &AppError{
		Code:       ErrCodeBalanceQueryFailed,
		Message:    "Failed to fetch balance",
		Detail:     causeDetail(cause),
		StatusCode: http.StatusBadGateway,
	}
}

// UserNotFound creates a user not found error
func UserNotFound(userID string) *AppError {
	return &AppError{
		Code:       ErrCodeUserNotFound,
		Message:    "User not found",
		Detail:     fmt.Sprintf("user_id: %s", userID),
		StatusCode: http.StatusNotFound,
	}
}

func causeDetail(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the AppError code carried by err, or ErrCodeInternalError
// for any other non-nil error.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// Describe renders err as the human-readable text shown to wallet users.
// AppErrors render their message (and detail when present) without the code.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := IsAppError(err)
	if !ok {
		return err.Error()
	}
	if appErr.Detail != "" {
		return appErr.Message + ": " + appErr.Detail
	}
	return appErr.Message
}
