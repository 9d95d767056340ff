package metrics

// NoopRecorder is used when metrics are disabled. All methods do nothing.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) RecordLoginAttempt(result string) {}

func (n *NoopRecorder) RecordLogout(remoteConfirmed bool) {}

func (n *NoopRecorder) RecordStateTransition(from, to string) {}

func (n *NoopRecorder) RecordSessionInvalidated() {}

var _ Recorder = (*NoopRecorder)(nil)
