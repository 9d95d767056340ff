// Package metrics records session manager activity.
package metrics

// Recorder receives session manager events.
type Recorder interface {
	// RecordLoginAttempt counts a finished login attempt by result label.
	RecordLoginAttempt(result string)
	// RecordLogout counts a logout by whether the remote confirmed it.
	RecordLogout(remoteConfirmed bool)
	// RecordStateTransition counts state machine transitions.
	RecordStateTransition(from, to string)
	// RecordSessionInvalidated counts sessions dropped after the remote rejected the token.
	RecordSessionInvalidated()
}
