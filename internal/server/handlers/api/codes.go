package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error

	// Sync errors
	CodeTargetNotFound  = "E_TARGET_NOT_FOUND"  // no configured target with that name
	CodeSyncFailed      = "E_SYNC_FAILED"       // the run aborted, see the error text
	CodeSyncInProgress  = "E_SYNC_IN_PROGRESS"  // a run of the same target is still going
	CodeAuthRequired    = "E_AUTH_REQUIRED"     // the portal session file is missing or unusable
	CodeHistoryDisabled = "E_HISTORY_DISABLED"  // no run history database configured
	CodeHistoryFailed   = "E_HISTORY_QUERY_FAILED"
)
