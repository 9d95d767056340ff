package config

import "time"

const (
	httpTimeoutEnvVar = "SYNOFS_HTTP_TIMEOUT"
	insecureTLSEnvVar = "SYNOFS_INSECURE_TLS"
)

type TransportConfig interface {
	GetHTTPTimeout() time.Duration
	GetInsecureSkipVerify() bool
}

type Transport struct{}

var _ TransportConfig = Transport{}

func (Transport) GetHTTPTimeout() time.Duration {
	return GetEnvAsDuration(httpTimeoutEnvVar, 20*time.Second)
}

// GetInsecureSkipVerify allows self-signed NAS certificates. Off unless explicitly enabled.
func (Transport) GetInsecureSkipVerify() bool {
	return GetEnvAsBool(insecureTLSEnvVar, false)
}
