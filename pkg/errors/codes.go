package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Database operation exceeded time limit",
		SuggestedAction: "Re-run the stage; already migrated rows are skipped via the control ledger",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Run cancelled by user or signal",
		SuggestedAction: "Re-run the stage when ready; committed chunks are kept",
	},
	ErrConnectionFailed: {
		Code:            ErrConnectionFailed,
		Retryable:       true,
		Description:     "Could not reach the legacy or destination database",
		SuggestedAction: "Check connectivity: petmig db status",
	},
	ErrInvalidConfiguration: {
		Code:            ErrInvalidConfiguration,
		Retryable:       false,
		Description:     "Run configuration is invalid or incomplete",
		SuggestedAction: "Review ~/.petmig/config.yaml and DEFAULT_VET_FALLBACK_NAME",
	},
	ErrSourceReadFailed: {
		Code:            ErrSourceReadFailed,
		Retryable:       true,
		Description:     "Reading the legacy source tables failed",
		SuggestedAction: "Verify legacy schema access with the configured legacy user",
	},
	ErrReferenceDataFailed: {
		Code:            ErrReferenceDataFailed,
		Retryable:       true,
		Description:     "Loading pet mappings or the clinician roster failed",
		SuggestedAction: "Check that the pets stage ran: petmig ledger status",
	},
	ErrPersistenceFailed: {
		Code:            ErrPersistenceFailed,
		Retryable:       false,
		Description:     "Bulk write to the destination failed; the chunk was rolled back",
		SuggestedAction: "Inspect the destination logs, fix the offending data and re-run",
	},
	ErrLockHeld: {
		Code:            ErrLockHeld,
		Retryable:       true,
		Description:     "Another run holds the tenant lock",
		SuggestedAction: "Wait for the other run to finish or let the lock TTL expire",
	},
	ErrStageOutOfOrder: {
		Code:            ErrStageOutOfOrder,
		Retryable:       false,
		Description:     "A stage ran before the stage whose mappings it needs",
		SuggestedAction: "Run the stages in order: clients, pets, vaccines, vaccinations, weights, notes",
	},
	ErrParseError: {
		Code:            ErrParseError,
		Retryable:       false,
		Description:     "Clinical note text could not be parsed",
		SuggestedAction: "Inspect the blob: petmig notes parse <file>",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Retryable:       false,
		Description:     "Unclassified migration error",
		SuggestedAction: "Check the run log file for details",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check the run log file for details"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
