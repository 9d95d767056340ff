package auth

// State is the authentication state of a Manager.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateLoginFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateLoginFailed:
		return "login_failed"
	default:
		return "unknown"
	}
}

// canLogin reports whether a login may start from s.
func (s State) canLogin() bool {
	return s == StateUnauthenticated || s == StateLoginFailed
}
