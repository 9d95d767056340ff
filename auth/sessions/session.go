package sessions

import (
	"time"
)

// SessionRecord is the persisted session state of one (endpoint, user) pair.
type SessionRecord struct {
	Endpoint     string    // Base URL of the remote service
	User         string    // Account name as typed by the user
	DeviceID     string    // Device pairing id issued by the remote, empty if never paired
	SessionToken string    // Remote session id; empty once revoked
	Invalid      bool      // Set when the token was revoked locally or rejected remotely
	CreatedAt    time.Time // First successful login for the pair
	UpdatedAt    time.Time // Last write
}

// Active reports whether the record holds a usable session.
func (r *SessionRecord) Active() bool {
	return r != nil && !r.Invalid && r.SessionToken != ""
}

// Paired reports whether the remote has issued a device pairing id for this pair.
func (r *SessionRecord) Paired() bool {
	return r != nil && r.DeviceID != ""
}
