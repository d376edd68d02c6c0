package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	err := NewNetworkError(OpDispatch, cause)
	msg := err.Error()
	assert.Contains(t, msg, "dispatch")
	assert.Contains(t, msg, "transport")
	assert.Contains(t, msg, string(ErrCodeNetworkFailure))
	assert.Contains(t, msg, "connection refused")

	// No component, no code.
	plain := New(OpInit, cause)
	assert.Equal(t, "init operation failed: connection refused", plain.Error())
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewStorageError(OpStore, cause)

	assert.True(t, stderrors.Is(err, cause))

	var syncErr *SyncError
	require.True(t, stderrors.As(err, &syncErr))
	assert.Equal(t, ErrCodeStorageFailure, syncErr.Code)
}

func TestRetryability(t *testing.T) {
	cause := fmt.Errorf("boom")

	assert.True(t, IsRetryable(NewNetworkError(OpDispatch, cause)))
	assert.True(t, IsRetryable(NewStorageError(OpStore, cause)))
	assert.True(t, IsRetryable(NewRetryable(OpQueue, cause)))
	assert.True(t, IsRetryable(NewQueueFullError(100)))

	assert.False(t, IsRetryable(NewConflictError(OpConflictResolve, cause)))
	assert.False(t, IsRetryable(NewValidationError(OpValidate, cause)))
	assert.False(t, IsRetryable(NewConfigError(cause)))
	assert.False(t, IsRetryable(cause), "plain errors are not retryable")
	assert.False(t, IsRetryable(nil))
}

func TestRetryableSurvivesWrapping(t *testing.T) {
	inner := NewNetworkError(OpDispatch, fmt.Errorf("timeout"))
	wrapped := fmt.Errorf("processing op-1: %w", inner)
	assert.True(t, IsRetryable(wrapped))
}

func TestIsQueueFull(t *testing.T) {
	err := NewQueueFullError(1000)
	assert.True(t, IsQueueFull(err))
	assert.Contains(t, err.Error(), "1000")

	assert.False(t, IsQueueFull(NewNetworkError(OpDispatch, fmt.Errorf("x"))))
	assert.False(t, IsQueueFull(fmt.Errorf("plain")))
}

func TestWrapOpComponent(t *testing.T) {
	assert.Nil(t, WrapOpComponent(nil, OpStore, "store"))

	cause := fmt.Errorf("boom")
	err := WrapOpComponent(cause, OpStore, "store")
	var syncErr *SyncError
	require.True(t, stderrors.As(err, &syncErr))
	assert.Equal(t, "store", syncErr.Component)
	assert.Equal(t, OpStore, syncErr.Op)
	assert.True(t, stderrors.Is(err, cause))
}
