package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a classified migration failure.
type ErrorCode string

const (
	ErrTimeout              ErrorCode = "timeout"
	ErrContextCancelled     ErrorCode = "context_cancelled"
	ErrConnectionFailed     ErrorCode = "connection_failed"
	ErrInvalidConfiguration ErrorCode = "invalid_configuration"
	ErrSourceReadFailed     ErrorCode = "source_read_failed"
	ErrReferenceDataFailed  ErrorCode = "reference_data_failed"
	ErrPersistenceFailed    ErrorCode = "persistence_failed"
	ErrLockHeld             ErrorCode = "lock_held"
	ErrStageOutOfOrder      ErrorCode = "stage_out_of_order"
	ErrParseError           ErrorCode = "parse_error"
	ErrProcessingError      ErrorCode = "processing_error"
)

// MigrationError is a structured error for failures that end a migration run.
type MigrationError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *MigrationError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// New builds a MigrationError with an explicit code.
func New(code ErrorCode, stage string, cause error) *MigrationError {
	me := &MigrationError{Code: code, Stage: stage, Cause: cause}
	if cause != nil {
		me.Message = cause.Error()
	} else {
		me.Message = GetDescription(code)
	}
	return me
}

// ClassifyError inspects an error and returns a *MigrationError with the appropriate code.
// An error that already is a MigrationError keeps its code. Unknown errors map to
// ErrProcessingError.
func ClassifyError(err error, stage string) *MigrationError {
	if err == nil {
		return nil
	}

	var existing *MigrationError
	if errors.As(err, &existing) {
		return existing
	}

	me := &MigrationError{
		Stage: stage,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		me.Code = ErrTimeout
		me.Message = "operation timed out"
		return me
	}

	if errors.Is(err, context.Canceled) {
		me.Code = ErrContextCancelled
		me.Message = "operation cancelled"
		return me
	}

	msg := err.Error()
	me.Message = msg

	switch {
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		me.Code = ErrInvalidConfiguration
	case errors.Is(err, ErrLocked):
		me.Code = ErrLockHeld
	case errors.Is(err, ErrMissingDependency):
		me.Code = ErrStageOutOfOrder
	default:
		me.Code = classifyMessage(strings.ToLower(msg))
	}
	return me
}

func classifyMessage(lower string) ErrorCode {
	switch {
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "failed to connect"),
		strings.Contains(lower, "connection reset"):
		return ErrConnectionFailed
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return ErrTimeout
	case strings.Contains(lower, "parse"):
		return ErrParseError
	default:
		return ErrProcessingError
	}
}

// IsTimeout returns true if the error is a classified timeout.
func IsTimeout(err error) bool {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient and worth re-running.
func IsErrorRetryable(err error) bool {
	var me *MigrationError
	if errors.As(err, &me) {
		return IsRetryable(me.Code)
	}
	return false
}

// CodeOf returns the classified code of err, or "" when err is not a MigrationError.
func CodeOf(err error) ErrorCode {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
