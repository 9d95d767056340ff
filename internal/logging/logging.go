// Package logging owns the process-wide zerolog configuration.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls where log lines go.
type Options struct {
	Dir     string // daily log files are written here when non-empty
	Level   string
	Console bool // human readable output on stderr
}

var (
	initOnce sync.Once
	initErr  error
	logFile  *os.File
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Init configures the global logger. Only the first call has any effect;
// later calls return the first call's error.
func Init(opts Options) error {
	initOnce.Do(func() {
		initErr = setup(opts)
	})
	return initErr
}

func setup(opts Options) error {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	if opts.Dir != "" {
		f, err := openDailyFile(opts.Dir, NowTimeFunc())
		if err != nil {
			return err
		}
		logFile = f
		writers = append(writers, f)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()
	return nil
}

// FileName returns the log file name used for day t.
func FileName(t time.Time) string {
	return "log." + t.Format("2006-01-02")
}

func openDailyFile(dir string, t time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "[logging openDailyFile] mkdir %s", dir)
	}
	path := filepath.Join(dir, FileName(t))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "[logging openDailyFile] open %s", path)
	}
	return f, nil
}

// Close flushes and closes the log file, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}
