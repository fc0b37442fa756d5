package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStock(t *testing.T) {
	err := InsufficientStock("mat-1", "10", "11")

	assert.True(t, Is(err, ErrInsufficientStock))
	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)
	assert.Equal(t, "10", err.Details["available"])
	assert.Equal(t, "11", err.Details["requested"])
}

func TestRetryable(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")

	err := Retryable(cause)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
	assert.Contains(t, err.Error(), "connection refused")

	unknown := OutcomeUnknown(context.DeadlineExceeded)
	assert.True(t, IsRetryable(unknown))
	assert.Equal(t, "OUTCOME_UNKNOWN", unknown.Code)

	wrapped := fmt.Errorf("issue order code: %w", err)
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(NotFound("material")))
}

func TestDuplicateIdentifier_HidesDetailFromMessage(t *testing.T) {
	err := DuplicateIdentifier("ORD-0007", fmt.Errorf("pq: duplicate key"))

	assert.True(t, Is(err, ErrDuplicateIdentifier))
	assert.Equal(t, "internal server error", err.Message)
	assert.Contains(t, err.Error(), "ORD-0007")
}

func TestAs(t *testing.T) {
	var target *AppError
	err := fmt.Errorf("load: %w", NotFound("material"))

	require.True(t, As(err, &target))
	assert.Equal(t, "NOT_FOUND", target.Code)
	assert.True(t, IsNotFound(err))
}
