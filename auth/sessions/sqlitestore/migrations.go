package sqlitestore

import (
	"database/sql"
	"strconv"

	apperrors "github.com/jrsteele09/synofs/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	credentialsTable = "Credentials"
	metadataTable    = "Metadata"
	versionKey       = "version"
)

// migration upgrades the schema from version-1 to version. Steps must be safe to
// re-run against a partially upgraded store.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

// migrations is ordered by version. Append new steps; never edit released ones.
// Version 1 is the layout written by earlier releases, keyed by url.
var migrations = []migration{
	{version: 1, name: "create credentials and metadata tables", apply: migrateV1},
	{version: 2, name: "key credentials by endpoint and store sessions", apply: migrateV2},
}

// LatestVersion is the schema version this build writes.
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}

func migrateV1(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS Credentials (
			id        INTEGER PRIMARY KEY,
			url       TEXT NOT NULL,
			user      TEXT NOT NULL,
			device_id TEXT NOT NULL
		)`); err != nil {
		return errors.Wrap(err, "create Credentials")
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS Metadata (
			id    INTEGER PRIMARY KEY,
			key   TEXT NOT NULL,
			value TEXT NOT NULL
		)`); err != nil {
		return errors.Wrap(err, "create Metadata")
	}
	return nil
}

// migrateV2 rebuilds Credentials around (endpoint, user). Device pairing ids
// survive; the newest row wins when a pair appears more than once. Stores that
// already have the endpoint layout are left alone.
func migrateV2(tx *sql.Tx) error {
	columns, err := tableColumns(tx, credentialsTable)
	if err != nil {
		return err
	}
	if columns["endpoint"] {
		return nil
	}
	if !columns["url"] {
		return errors.Errorf("Credentials has neither url nor endpoint column")
	}

	if _, err := tx.Exec(`
		CREATE TABLE Credentials_v2 (
			id            INTEGER PRIMARY KEY,
			endpoint      TEXT NOT NULL,
			user          TEXT NOT NULL,
			device_id     TEXT NOT NULL DEFAULT '',
			session_token TEXT NOT NULL DEFAULT '',
			invalid       INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,
			UNIQUE(endpoint, user)
		)`); err != nil {
		return errors.Wrap(err, "create Credentials_v2")
	}

	now := NowTimeFunc().Unix()
	if _, err := tx.Exec(`
		INSERT INTO Credentials_v2 (endpoint, user, device_id, created_at, updated_at)
		SELECT rtrim(url, '/'), user, device_id, ?, ?
		FROM Credentials
		WHERE id IN (SELECT MAX(id) FROM Credentials GROUP BY rtrim(url, '/'), user)`,
		now, now,
	); err != nil {
		return errors.Wrap(err, "copy credentials")
	}

	if _, err := tx.Exec("DROP TABLE Credentials"); err != nil {
		return errors.Wrap(err, "drop old Credentials")
	}
	if _, err := tx.Exec("ALTER TABLE Credentials_v2 RENAME TO Credentials"); err != nil {
		return errors.Wrap(err, "rename Credentials_v2")
	}
	return nil
}

func tableColumns(tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, errors.Wrapf(err, "table_info %s", table)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrapf(err, "scan table_info %s", table)
		}
		columns[name] = true
	}
	return columns, errors.Wrapf(rows.Err(), "table_info %s", table)
}

// schemaVersion probes the store. No Metadata table, or no version row, means 0.
func schemaVersion(db *sql.DB) (int, error) {
	rows, err := db.Query(
		"SELECT name FROM sqlite_master WHERE type='table' AND name IN (?, ?)",
		credentialsTable, metadataTable,
	)
	if err != nil {
		return 0, errors.Wrap(err, "probe sqlite_master")
	}
	hasMetadata := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, errors.Wrap(err, "scan sqlite_master")
		}
		if name == metadataTable {
			hasMetadata = true
		}
	}
	if err := rows.Close(); err != nil {
		return 0, errors.Wrap(err, "close sqlite_master rows")
	}
	if !hasMetadata {
		return 0, nil
	}

	var value string
	err = db.QueryRow("SELECT value FROM Metadata WHERE key = ?", versionKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read version")
	}
	version, err := strconv.Atoi(value)
	if err != nil || version < 0 {
		return 0, errors.Errorf("unparsable schema version %q", value)
	}
	return version, nil
}

// setVersion updates in place. Version 1 Metadata has no unique key to upsert on.
func setVersion(tx *sql.Tx, version int) error {
	res, err := tx.Exec("UPDATE Metadata SET value = ? WHERE key = ?", strconv.Itoa(version), versionKey)
	if err != nil {
		return errors.Wrap(err, "update version")
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return errors.Wrap(err, "update version")
	}
	_, err = tx.Exec("INSERT INTO Metadata (key, value) VALUES (?, ?)", versionKey, strconv.Itoa(version))
	return errors.Wrap(err, "insert version")
}

// upgrade applies every migration newer than the stored version, each in its
// own transaction together with the version bump.
func upgrade(db *sql.DB) error {
	current, err := schemaVersion(db)
	if err != nil {
		return apperrors.Join(apperrors.ErrSchemaFailure, err)
	}
	log.Info().Int("version", current).Msg("Current session store version")

	if current > LatestVersion() {
		return apperrors.Join(apperrors.ErrSchemaFailure,
			errors.Errorf("store version %d is newer than supported version %d", current, LatestVersion()))
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		log.Info().Int("version", m.version).Str("migration", m.name).Msg("Upgrading session store")
		if err := applyMigration(db, m); err != nil {
			return apperrors.Join(apperrors.ErrSchemaFailure, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin migration %d", m.version)
	}
	defer tx.Rollback()

	if err := m.apply(tx); err != nil {
		return errors.Wrapf(err, "migration %d", m.version)
	}
	if err := setVersion(tx, m.version); err != nil {
		return errors.Wrapf(err, "migration %d", m.version)
	}
	return errors.Wrapf(tx.Commit(), "commit migration %d", m.version)
}
