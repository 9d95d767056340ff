package auth

import (
	"fmt"

	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

// Credential is what the user typed to log in. The secret is never rendered by
// String, GoString or the zerolog marshaller.
type Credential struct {
	username    string
	secret      string
	oneTimeCode string
}

var _ zerolog.LogObjectMarshaler = Credential{}

// NewCredential builds a credential without a one-time code.
func NewCredential(username, secret string) Credential {
	return Credential{username: username, secret: secret}
}

// WithOneTimeCode returns a copy carrying the given second-factor code.
func (c Credential) WithOneTimeCode(code string) Credential {
	c.oneTimeCode = code
	return c
}

func (c Credential) Username() string {
	return c.username
}

// Secret returns the password. Only the login request builder should call this.
func (c Credential) Secret() string {
	return c.secret
}

func (c Credential) OneTimeCode() string {
	return c.oneTimeCode
}

func (c Credential) HasOneTimeCode() bool {
	return c.oneTimeCode != ""
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential{username: %q, secret: %s, one_time_code: %t}", c.username, redacted, c.HasOneTimeCode())
}

func (c Credential) GoString() string {
	return c.String()
}

// Format keeps %v, %+v and %#v from reaching the unexported secret field.
func (c Credential) Format(f fmt.State, verb rune) {
	switch verb {
	case 'q':
		fmt.Fprintf(f, "%q", c.String())
	default:
		fmt.Fprint(f, c.String())
	}
}

func (c Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Str("username", c.username).
		Str("secret", redacted).
		Bool("one_time_code", c.HasOneTimeCode())
}
