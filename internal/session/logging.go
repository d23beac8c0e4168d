package session

// Standard log field names for session lifecycle entries
const (
	LogFieldSession    = "session_id"
	LogFieldProvider   = "provider"
	LogFieldState      = "state"
	LogFieldFromState  = "from_state"
	LogFieldOperation  = "operation"
	LogFieldAttempt    = "attempt"
	LogFieldGeneration = "generation"
	LogFieldDelay      = "delay_ms"
	LogFieldCount      = "count"
	LogFieldRestored   = "restored"
)
