package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allCodes = []ErrorCode{
	ErrTimeout,
	ErrContextCancelled,
	ErrConnectionFailed,
	ErrInvalidConfiguration,
	ErrSourceReadFailed,
	ErrReferenceDataFailed,
	ErrPersistenceFailed,
	ErrLockHeld,
	ErrStageOutOfOrder,
	ErrParseError,
	ErrProcessingError,
}

func TestErrorCodeRegistry_Completeness(t *testing.T) {
	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			info, ok := ErrorCodeRegistry[code]
			assert.True(t, ok, "ErrorCode %s should be in registry", code)
			assert.Equal(t, code, info.Code, "Registry entry should have matching code")
			assert.NotEmpty(t, info.Description, "Description should not be empty")
			assert.NotEmpty(t, info.SuggestedAction, "SuggestedAction should not be empty")
		})
	}
	assert.Len(t, ErrorCodeRegistry, len(allCodes))
}

func TestIsRetryable_ErrorCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{ErrTimeout, true},
		{ErrConnectionFailed, true},
		{ErrSourceReadFailed, true},
		{ErrReferenceDataFailed, true},
		{ErrLockHeld, true},
		{ErrContextCancelled, false},
		{ErrInvalidConfiguration, false},
		{ErrPersistenceFailed, false},
		{ErrStageOutOfOrder, false},
		{ErrParseError, false},
		{ErrProcessingError, false},
		{ErrorCode("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.code))
		})
	}
}

func TestGetDescriptionAndAction_Unknown(t *testing.T) {
	assert.Equal(t, "Unknown error", GetDescription("nope"))
	assert.Equal(t, "Check the run log file for details", GetSuggestedAction("nope"))
	assert.Contains(t, GetSuggestedAction(ErrParseError), "petmig notes parse")
}
