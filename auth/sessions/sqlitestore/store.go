// Package sqlitestore persists sessions in a local SQLite file.
package sqlitestore

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/synofs/auth/sessions"
	apperrors "github.com/jrsteele09/synofs/internal/errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var _ sessions.Repo = (*Store)(nil)

// Store is the SQLite implementation of sessions.Repo.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path and brings its schema up to date.
// A missing parent directory is created.
func Open(path string) (*Store, error) {
	dbPath := strings.TrimSpace(path)
	if dbPath == "" {
		return nil, apperrors.ErrNotInitialized
	}

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		log.Debug().Str("dir", filepath.Dir(dbPath)).Msg("Creating directories for session store")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, apperrors.Join(apperrors.ErrIOFailure, errors.Wrap(err, "[sqlitestore Open] mkdir"))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrIOFailure, errors.Wrap(err, "[sqlitestore Open] sql.Open"))
	}
	// One connection serializes every statement and transaction, so readers
	// never observe a half-applied write.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperrors.Join(apperrors.ErrIOFailure, errors.Wrap(err, "[sqlitestore Open] ping"))
	}

	if err := upgrade(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlitestore Open] upgrade")
	}

	log.Debug().Str("path", dbPath).Msg("Session store opened")
	return &Store{db: db}, nil
}

// Version returns the schema version recorded in the store.
func (s *Store) Version() (int, error) {
	v, err := schemaVersion(s.db)
	if err != nil {
		return 0, apperrors.Join(apperrors.ErrSchemaFailure, err)
	}
	return v, nil
}

func (s *Store) IsLoggedIn(endpoint, user string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM Credentials
		WHERE endpoint = ? AND user = ? AND invalid = 0 AND session_token <> ''`,
		endpoint, user,
	).Scan(&n)
	if err != nil {
		return false, storageErr(err, "[Store.IsLoggedIn]")
	}
	return n > 0, nil
}

func (s *Store) SaveSession(endpoint, user, deviceID, token string) error {
	now := NowTimeFunc().Unix()
	return s.inTx("[Store.SaveSession]", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO Credentials (endpoint, user, device_id, session_token, invalid, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(endpoint, user) DO UPDATE SET
				device_id     = CASE WHEN excluded.device_id <> '' THEN excluded.device_id ELSE Credentials.device_id END,
				session_token = excluded.session_token,
				invalid       = 0,
				updated_at    = excluded.updated_at`,
			endpoint, user, deviceID, token, now, now,
		)
		return err
	})
}

func (s *Store) ClearSession(endpoint, user string) error {
	return s.inTx("[Store.ClearSession]", func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM Credentials WHERE endpoint = ? AND user = ?", endpoint, user)
		return err
	})
}

func (s *Store) RevokeSession(endpoint, user string) error {
	now := NowTimeFunc().Unix()
	return s.inTx("[Store.RevokeSession]", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE Credentials SET session_token = '', invalid = 1, updated_at = ?
			WHERE endpoint = ? AND user = ?`,
			now, endpoint, user,
		)
		return err
	})
}

func (s *Store) GetDeviceID(endpoint, user string) (string, bool, error) {
	var deviceID string
	err := s.db.QueryRow(
		"SELECT device_id FROM Credentials WHERE endpoint = ? AND user = ?",
		endpoint, user,
	).Scan(&deviceID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr(err, "[Store.GetDeviceID]")
	}
	return deviceID, deviceID != "", nil
}

func (s *Store) GetSession(endpoint, user string) (*sessions.SessionRecord, error) {
	rec, err := scanRecord(s.db.QueryRow(`
		SELECT endpoint, user, device_id, session_token, invalid, created_at, updated_at
		FROM Credentials WHERE endpoint = ? AND user = ?`,
		endpoint, user,
	))
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, storageErr(err, "[Store.GetSession]")
	}
	return rec, nil
}

func (s *Store) List() ([]*sessions.SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT endpoint, user, device_id, session_token, invalid, created_at, updated_at
		FROM Credentials ORDER BY endpoint, user`)
	if err != nil {
		return nil, storageErr(err, "[Store.List]")
	}
	defer rows.Close()

	var out []*sessions.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr(err, "[Store.List] scan")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "[Store.List] rows")
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*sessions.SessionRecord, error) {
	var (
		rec                  sessions.SessionRecord
		invalid              int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.Endpoint, &rec.User, &rec.DeviceID, &rec.SessionToken, &invalid, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Invalid = invalid != 0
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// inTx runs fn in a transaction. Nothing is visible to readers unless fn succeeds.
func (s *Store) inTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr(err, op+" begin")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return storageErr(err, op)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err, op+" commit")
	}
	return nil
}

func storageErr(err error, op string) error {
	return apperrors.Join(apperrors.ErrIOFailure, errors.Wrap(err, op))
}
