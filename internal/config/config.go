package config

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	AuthConfig
	TransportConfig
}

type EnvConfig interface {
	GetAppName() string
	GetAppAuthor() string
	GetConfigDir() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Auth
	Transport
}

// New returns the process configuration. Values already present in the
// environment win over those loaded from dotenv files.
func New(dotenvFiles ...string) Config {
	loadDotenv(dotenvFiles...)
	return mainConfig{}
}

func loadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			log.Debug().Str("file", f).Msg("No dotenv file loaded")
		}
	}
}
