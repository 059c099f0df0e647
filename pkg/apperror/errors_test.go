package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New("PAY_001", "Invalid amount", http.StatusBadRequest)
	assert.Equal(t, "[PAY_001] Invalid amount", err.Error())
}

func TestAppError_ErrorWithWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, inner)
	assert.Contains(t, err.Error(), "SYS_001")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := InternalError(fmt.Errorf("query failed: %w", inner))
	assert.True(t, errors.Is(err, inner))
}

func TestErrNotFound_FormatsEntity(t *testing.T) {
	err := ErrNotFound("merchant")
	assert.Equal(t, "PAY_002", err.Code)
	assert.Equal(t, "merchant not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
}

func TestErrInvalidTransition(t *testing.T) {
	err := ErrInvalidTransition("CAPTURED", "PENDING")
	assert.Equal(t, "PAY_004", err.Code)
	assert.Contains(t, err.Message, "CAPTURED -> PENDING")
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{ErrInvalidAPIKey(), http.StatusUnauthorized},
		{ErrInvalidSignature(), http.StatusUnauthorized},
		{ErrMerchantNotActive(), http.StatusForbidden},
		{ErrTransactionBlocked(95), http.StatusForbidden},
		{ErrDuplicateFraudCase(), http.StatusConflict},
		{ErrDuplicateSettlement(), http.StatusConflict},
		{ErrDuplicateEvent(), http.StatusConflict},
		{ErrNegativeNetAmount(), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus, tt.err.Code)
	}
}
