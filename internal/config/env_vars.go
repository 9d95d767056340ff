package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	configDirEnvVar = "SYNOFS_CONFIG_DIR"
	logLevelEnvVar  = "SYNOFS_LOG_LEVEL"
	envEnvVar       = "SYNOFS_ENV"
)

const (
	appNamePrefix = "engineers_for_exploration"
	appAuthor     = "Engineers for Exploration"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetAppName returns the prefix of the per-application config directory.
// The executable name is appended by userdirs.
func (EnvVars) GetAppName() string {
	return appNamePrefix
}

func (EnvVars) GetAppAuthor() string {
	return appAuthor
}

// GetConfigDir returns an explicit config directory override, or "" when the
// platform default should be used.
func (EnvVars) GetConfigDir() string {
	return GetEnv(configDirEnvVar, "")
}

func (EnvVars) GetLogLevel() string {
	return strings.ToLower(GetEnv(logLevelEnvVar, "info"))
}

func (EnvVars) GetEnv() string {
	return strings.ToUpper(GetEnv(envEnvVar, "PROD"))
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvAsDuration accepts either a Go duration string ("30s") or a bare number of seconds.
func GetEnvAsDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func GetEnvAsBool(envVar string, defaultValue bool) bool {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
