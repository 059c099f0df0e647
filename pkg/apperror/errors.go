package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidAPIKey() *AppError {
	return New("SEC_001", "Invalid API key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid webhook signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("SEC_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrRateLimitExceeded() *AppError {
	return New("SEC_004", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Payment Pipeline (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_001", "Invalid amount", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrMerchantNotActive() *AppError {
	return New("PAY_003", "Merchant account is not active", http.StatusForbidden)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("PAY_004", fmt.Sprintf("Invalid status transition %s -> %s", from, to), http.StatusConflict)
}

func ErrDuplicateEvent() *AppError {
	return New("PAY_005", "Processor event already processed", http.StatusConflict)
}

// ---- Fraud Screening (FRD) ----

func ErrTransactionBlocked(score int) *AppError {
	return New("FRD_001", fmt.Sprintf("Transaction blocked by fraud screening (score %d)", score), http.StatusForbidden)
}

func ErrDuplicateFraudCase() *AppError {
	return New("FRD_002", "Fraud case already exists for transaction", http.StatusConflict)
}

func ErrFraudCaseClosed() *AppError {
	return New("FRD_003", "Fraud case is already resolved", http.StatusConflict)
}

// ---- Ledger (LGR) ----

func ErrNegativeNetAmount() *AppError {
	return New("LGR_001", "Fees exceed transaction amount", http.StatusUnprocessableEntity)
}

func ErrLedgerConflict(err error) *AppError {
	return Wrap("LGR_002", "Concurrent ledger mutation, retry with a fresh balance", http.StatusConflict, err)
}

// ---- Settlement (SET) ----

func ErrDuplicateSettlement() *AppError {
	return New("SET_001", "Settlement already exists for period", http.StatusConflict)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_001-style validation error.
func Validation(message string) *AppError {
	return New("PAY_001", message, http.StatusBadRequest)
}
