// Package userdirs resolves the per-user directories and the process identity
// used to label this installation. Everything here is computed once at startup
// and passed by value to the components that need it.
package userdirs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/jrsteele09/synofs/internal/errors"
	"github.com/rs/zerolog/log"
)

// AppInfo identifies the application on disk.
type AppInfo struct {
	Name   string
	Author string
}

// NewAppInfo builds the application identity from a name prefix and the
// current executable name, e.g. "engineers_for_exploration-synofs-auth".
func NewAppInfo(prefix, author string) (AppInfo, error) {
	exe, err := CurrentExeName()
	if err != nil {
		return AppInfo{}, err
	}
	return AppInfo{
		Name:   fmt.Sprintf("%s-%s", prefix, exe),
		Author: author,
	}, nil
}

// CurrentExeName returns the executable's file name without its extension.
func CurrentExeName() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", apperrors.Join(apperrors.ErrExecutableName, err)
	}
	base := filepath.Base(exe)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		return "", apperrors.ErrExecutableName
	}
	return name, nil
}

// ConfigDir returns the application config directory, creating it when missing.
// override takes precedence over the platform default when non-empty.
func ConfigDir(info AppInfo, override string) (string, error) {
	dir := override
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", apperrors.Join(apperrors.ErrConfigDir, err)
		}
		dir = filepath.Join(base, info.Name)
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Info().Str("dir", dir).Msg("Config directory does not exist, creating it")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", apperrors.Join(apperrors.ErrConfigDir, err)
	}
	return dir, nil
}

// Hostname returns the machine host name used in the remote device label.
func Hostname() (string, error) {
	h, err := os.Hostname()
	if err != nil {
		return "", apperrors.Join(apperrors.ErrConfig, err)
	}
	return h, nil
}
