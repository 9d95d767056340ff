package sessions

// Repo defines the interface for persistent session storage.
// There is at most one record per (endpoint, user) pair; every write is atomic.
type Repo interface {
	// IsLoggedIn reports whether a usable session exists for the pair. Never touches the network.
	IsLoggedIn(endpoint, user string) (bool, error)

	// SaveSession creates or replaces the session for the pair.
	// An empty deviceID keeps any previously stored device pairing id.
	SaveSession(endpoint, user, deviceID, token string) error

	// ClearSession deletes the record for the pair. Deleting a missing record is not an error.
	ClearSession(endpoint, user string) error

	// RevokeSession drops the session token but keeps the device pairing id.
	RevokeSession(endpoint, user string) error

	// GetDeviceID returns the stored device pairing id, if any.
	GetDeviceID(endpoint, user string) (string, bool, error)

	// GetSession returns the record for the pair or ErrSessionNotFound.
	GetSession(endpoint, user string) (*SessionRecord, error)

	// List returns every stored record ordered by endpoint then user.
	List() ([]*SessionRecord, error)

	Close() error
}
