package config

import "time"

const loginTimeoutEnvVar = "SYNOFS_LOGIN_TIMEOUT"

type AuthConfig interface {
	GetLoginTimeout() time.Duration
	GetStoreFileName() string
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetLoginTimeout() time.Duration {
	return GetEnvAsDuration(loginTimeoutEnvVar, 30*time.Second)
}

// GetStoreFileName is the session store file inside the config directory.
func (Auth) GetStoreFileName() string {
	return "credential_store.db"
}
