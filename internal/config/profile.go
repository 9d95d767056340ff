package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ProfileFileName is the optional CLI defaults file kept in the config directory.
const ProfileFileName = "config.yaml"

// Profile holds defaults for the command line so users do not have to repeat
// the endpoint and username on every invocation.
type Profile struct {
	Endpoint       string `yaml:"endpoint"`
	Username       string `yaml:"username"`
	PairDevice     bool   `yaml:"pair_device"`
	ForgetOnLogout bool   `yaml:"forget_device_on_logout"`
}

// LoadProfile reads the profile from dir. A missing file yields an empty profile.
func LoadProfile(dir string) (*Profile, error) {
	path := filepath.Join(dir, ProfileFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[config LoadProfile] read %s", path)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "[config LoadProfile] parse %s", path)
	}
	return &p, nil
}

// SaveProfile writes the profile to dir, creating the directory if needed.
func SaveProfile(dir string, p *Profile) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "[config SaveProfile] mkdir %s", dir)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "[config SaveProfile] marshal")
	}
	path := filepath.Join(dir, ProfileFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "[config SaveProfile] write %s", path)
	}
	return nil
}
