package main

import (
	"path/filepath"
	"strings"

	"github.com/jrsteele09/synofs/auth"
	"github.com/jrsteele09/synofs/auth/sessions/sqlitestore"
	"github.com/jrsteele09/synofs/internal/config"
	"github.com/jrsteele09/synofs/internal/logging"
	"github.com/jrsteele09/synofs/internal/userdirs"
	"github.com/jrsteele09/synofs/metrics"
	"github.com/jrsteele09/synofs/synoapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// app holds everything a subcommand needs once the process is set up.
type app struct {
	cfg      config.Config
	dir      string
	profile  *config.Profile
	store    *sqlitestore.Store
	recorder *metrics.PrometheusRecorder
	identity auth.ClientIdentity
}

func newApp(flags *rootFlags) (*app, error) {
	cfg := config.New()

	info, err := userdirs.NewAppInfo(cfg.GetAppName(), cfg.GetAppAuthor())
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] app info")
	}

	override := flags.configDir
	if override == "" {
		override = cfg.GetConfigDir()
	}
	dir, err := userdirs.ConfigDir(info, override)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] config dir")
	}

	level := cfg.GetLogLevel()
	if flags.verbose {
		level = "debug"
	}
	if err := logging.Init(logging.Options{Dir: dir, Level: level, Console: flags.verbose}); err != nil {
		return nil, errors.Wrap(err, "[newApp] logging")
	}

	profile, err := config.LoadProfile(dir)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] profile")
	}

	identity, err := clientIdentity()
	if err != nil {
		return nil, err
	}

	store, err := sqlitestore.Open(filepath.Join(dir, cfg.GetStoreFileName()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] open session store")
	}

	log.Debug().Str("config_dir", dir).Str("env", cfg.GetEnv()).Msg("Application initialised")
	return &app{
		cfg:      cfg,
		dir:      dir,
		profile:  profile,
		store:    store,
		recorder: metrics.NewPrometheusRecorder(),
		identity: identity,
	}, nil
}

func clientIdentity() (auth.ClientIdentity, error) {
	host, err := userdirs.Hostname()
	if err != nil {
		return auth.ClientIdentity{}, errors.Wrap(err, "[clientIdentity] hostname")
	}
	exe, err := userdirs.CurrentExeName()
	if err != nil {
		return auth.ClientIdentity{}, errors.Wrap(err, "[clientIdentity] executable name")
	}
	return auth.ClientIdentity{Hostname: host, ExecutableName: exe}, nil
}

// target resolves the endpoint and user from flags, falling back to the profile.
func (a *app) target(flags *rootFlags) (string, string, error) {
	endpoint := strings.TrimSpace(flags.endpoint)
	if endpoint == "" {
		endpoint = a.profile.Endpoint
	}
	user := strings.TrimSpace(flags.user)
	if user == "" {
		user = a.profile.Username
	}
	if endpoint == "" || user == "" {
		return "", "", errors.Errorf("endpoint and user are required (flags or %s in %s)", config.ProfileFileName, a.dir)
	}
	return endpoint, user, nil
}

func (a *app) manager(endpoint, user string, forgetDevice bool) (*auth.Manager, error) {
	options := []auth.ManagerOption{
		auth.WithLoginTimeout(a.cfg.GetLoginTimeout()),
		auth.WithMetrics(a.recorder),
	}
	if forgetDevice {
		options = append(options, auth.WithForgetDeviceOnLogout())
	}
	return auth.NewManager(endpoint, user, a.store, synoapi.NewClientFromConfig(a.cfg), a.identity, options...)
}

// close writes the metrics textfile when requested and releases the store.
func (a *app) close(metricsPath string) error {
	var firstErr error
	if metricsPath != "" {
		if err := a.recorder.WriteTextfile(metricsPath); err != nil {
			firstErr = errors.Wrap(err, "[app.close] write metrics")
		}
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "[app.close] close store")
	}
	return firstErr
}
