package catalog

import (
	"database/sql"

	"github.com/fgeck/pgbackctl/internal/models"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		directory TEXT NOT NULL UNIQUE,
		compression INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS connections (
		archive_id INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		dsn TEXT NOT NULL DEFAULT '',
		pghost TEXT NOT NULL DEFAULT '',
		pgport INTEGER NOT NULL DEFAULT -1,
		pguser TEXT NOT NULL DEFAULT '',
		pgdatabase TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (archive_id, type)
	)`,

	`CREATE TABLE IF NOT EXISTS backup_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		compress_type TEXT NOT NULL DEFAULT 'none',
		max_rate INTEGER NOT NULL DEFAULT 0,
		label TEXT NOT NULL DEFAULT '',
		fast_checkpoint INTEGER NOT NULL DEFAULT 0,
		include_wal INTEGER NOT NULL DEFAULT 0,
		wait_for_wal INTEGER NOT NULL DEFAULT 1,
		noverify_checksums INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS backup (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		archive_id INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
		xlogpos TEXT NOT NULL DEFAULT '',
		xlogposend TEXT NOT NULL DEFAULT '',
		timeline INTEGER NOT NULL DEFAULT 0,
		label TEXT NOT NULL DEFAULT '',
		fsentry TEXT NOT NULL DEFAULT '',
		started TEXT NOT NULL DEFAULT '',
		stopped TEXT NOT NULL DEFAULT '',
		pinned INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'in progress',
		systemid TEXT NOT NULL DEFAULT '',
		wal_segment_size INTEGER NOT NULL DEFAULT 0,
		used_profile INTEGER NOT NULL DEFAULT -1
	)`,

	`CREATE TABLE IF NOT EXISTS backup_tablespaces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		backup_id INTEGER NOT NULL REFERENCES backup(id) ON DELETE CASCADE,
		spcoid INTEGER NOT NULL,
		spclocation TEXT NOT NULL DEFAULT '',
		spcsize INTEGER NOT NULL DEFAULT 0,
		UNIQUE (backup_id, spcoid)
	)`,

	`CREATE TABLE IF NOT EXISTS retention (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS retention_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		retention_id INTEGER NOT NULL REFERENCES retention(id) ON DELETE CASCADE,
		type INTEGER NOT NULL,
		value TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS backup_archive_idx ON backup(archive_id)`,
	`CREATE INDEX IF NOT EXISTS backup_status_idx ON backup(status)`,
}

func createSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return &models.CatalogError{Op: "create catalog schema", Err: err}
		}
	}

	// A fresh catalog must always resolve the reserved default profile;
	// start-basebackup falls back to it when no profile is named.
	_, err := db.Exec(`INSERT OR IGNORE INTO backup_profiles (name) VALUES (?)`,
		models.DefaultProfileName)
	if err != nil {
		return &models.CatalogError{Op: "seed default backup profile", Err: err}
	}
	return nil
}
