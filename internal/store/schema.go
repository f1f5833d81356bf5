package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const collectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	vectors_config TEXT NOT NULL,
	created_at TEXT DEFAULT (datetime('now'))
);
`

const pointsTable = `
CREATE TABLE IF NOT EXISTS points (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	uuid TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TEXT DEFAULT (datetime('now')),
	UNIQUE(collection_id, uuid)
);

CREATE INDEX IF NOT EXISTS idx_points_collection_id ON points(collection_id);
`

// point_vectors holds one row per vector of a point. Unnamed vectors use
// the empty name.
const pointVectorsTable = `
CREATE TABLE IF NOT EXISTS point_vectors (
	point_id INTEGER NOT NULL REFERENCES points(id) ON DELETE CASCADE,
	vector_name TEXT NOT NULL,
	embedding BLOB NOT NULL,
	PRIMARY KEY(point_id, vector_name)
);
`

const payloadIndexesTable = `
CREATE TABLE IF NOT EXISTS payload_indexes (
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	field TEXT NOT NULL,
	field_type TEXT NOT NULL,
	PRIMARY KEY(collection_id, field)
);
`

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func migrateV1(db *sql.DB) error {
	log.Debug("Applying migration v1")

	tables := []string{collectionsTable, pointsTable, pointVectorsTable, payloadIndexesTable}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
