package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil, "notes"))
}

func TestClassifyError_Context(t *testing.T) {
	timeout := ClassifyError(fmt.Errorf("query: %w", context.DeadlineExceeded), "notes")
	require.NotNil(t, timeout)
	assert.Equal(t, ErrTimeout, timeout.Code)
	assert.Equal(t, "notes", timeout.Stage)
	assert.Equal(t, "operation timed out", timeout.Message)

	cancelled := ClassifyError(context.Canceled, "weights")
	assert.Equal(t, ErrContextCancelled, cancelled.Code)
	assert.Equal(t, "operation cancelled", cancelled.Message)
}

func TestClassifyError_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"configuration", fmt.Errorf("fallback: %w", ErrConfiguration), ErrInvalidConfiguration},
		{"validation", ErrValidation, ErrInvalidConfiguration},
		{"locked", fmt.Errorf("acquire: %w", ErrLocked), ErrLockHeld},
		{"missing dependency", fmt.Errorf("no pets: %w", ErrMissingDependency), ErrStageOutOfOrder},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), ErrConnectionFailed},
		{"no such host", errors.New("lookup db: no such host"), ErrConnectionFailed},
		{"i/o timeout", errors.New("read: i/o timeout"), ErrTimeout},
		{"parse", errors.New("failed to parse weight"), ErrParseError},
		{"fallthrough", errors.New("boom"), ErrProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			me := ClassifyError(tt.err, "stage")
			require.NotNil(t, me)
			assert.Equal(t, tt.want, me.Code)
			assert.ErrorIs(t, me, tt.err)
		})
	}
}

func TestClassifyError_KeepsExistingCode(t *testing.T) {
	original := New(ErrPersistenceFailed, "notes", errors.New("copy failed"))
	wrapped := fmt.Errorf("run: %w", original)

	me := ClassifyError(wrapped, "other")
	assert.Same(t, original, me)
	assert.Equal(t, ErrPersistenceFailed, CodeOf(wrapped))
}

func TestMigrationError_Error(t *testing.T) {
	withStage := &MigrationError{Code: ErrPersistenceFailed, Stage: "notes", Message: "chunk 3"}
	assert.Equal(t, "persistence_failed: notes: chunk 3", withStage.Error())

	noStage := &MigrationError{Code: ErrLockHeld, Message: "held"}
	assert.Equal(t, "lock_held: held", noStage.Error())

	empty := New(ErrLockHeld, "", nil)
	assert.Equal(t, GetDescription(ErrLockHeld), empty.Message)
}

func TestIsTimeoutAndRetryable(t *testing.T) {
	timeout := ClassifyError(context.DeadlineExceeded, "notes")
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsErrorRetryable(timeout))

	persist := New(ErrPersistenceFailed, "notes", errors.New("x"))
	assert.False(t, IsTimeout(persist))
	assert.False(t, IsErrorRetryable(persist))

	assert.False(t, IsErrorRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
