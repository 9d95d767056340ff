package auth

import "context"

// LoginResult is what the remote returns for a successful login.
type LoginResult struct {
	SessionToken string
	DeviceID     string // set only when the remote issued a device pairing id
}

// Transport performs the remote calls. Implementations must honour ctx and
// return errors matching the network or authentication kinds in internal/errors.
type Transport interface {
	Login(ctx context.Context, req Request) (*LoginResult, error)
	Logout(ctx context.Context, req Request) error
}
