// ABOUTME: SQLite database handle using modernc.org/sqlite
// ABOUTME: Opens the database, applies pragmas, and creates the schema

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection shared by all entity stores.
type DB struct {
	sql    *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at the given path.
// Parent directories are created if needed.
func Open(path string) (*DB, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// WAL for concurrent readers; foreign_keys is per-connection, so it
	// goes in the DSN where the driver applies it to every pool member.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	d := &DB{sql: db, logger: logger}

	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return d, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error {
	return d.sql.Close()
}

// createSchema creates the entity tables if they don't exist.
func (d *DB) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS persons (
			id           TEXT PRIMARY KEY,
			created_date TEXT NOT NULL,
			first_name   TEXT NOT NULL DEFAULT '',
			last_name    TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS hosts (
			id           TEXT PRIMARY KEY,
			created_date TEXT NOT NULL,
			owner_id     TEXT REFERENCES persons(id),
			name         TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			visibility   TEXT NOT NULL DEFAULT 'Private',
			secret_hash  TEXT NOT NULL DEFAULT '',
			scopes       TEXT,

			CHECK (visibility IN ('Private', 'Public'))
		);

		CREATE INDEX IF NOT EXISTS idx_hosts_owner ON hosts(owner_id);

		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			created_date TEXT NOT NULL,
			owner_id     TEXT REFERENCES persons(id),
			name         TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			visibility   TEXT NOT NULL DEFAULT 'Private',
			host_id      TEXT NOT NULL DEFAULT '',
			persona      TEXT NOT NULL DEFAULT '',
			enabled      INTEGER NOT NULL DEFAULT 0,

			CHECK (visibility IN ('Private', 'Public'))
		);

		CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner_id);
		CREATE INDEX IF NOT EXISTS idx_agents_host ON agents(host_id);

		CREATE TABLE IF NOT EXISTS plugins (
			id              TEXT PRIMARY KEY,
			created_date    TEXT NOT NULL,
			owner_id        TEXT REFERENCES persons(id),
			name            TEXT NOT NULL DEFAULT '',
			description     TEXT NOT NULL DEFAULT '',
			visibility      TEXT NOT NULL DEFAULT 'Private',
			unique_name     TEXT NOT NULL DEFAULT '',
			plugin_provider TEXT NOT NULL DEFAULT 'Prompt',
			plugin_source   TEXT NOT NULL DEFAULT 'UserDefined',

			CHECK (visibility IN ('Private', 'Public')),
			CHECK (plugin_provider IN ('Prompt', 'SKPlugin', 'Collection')),
			CHECK (plugin_source IN ('UserDefined', 'HostDefined', 'UploadPackage', 'PublicRepository'))
		);

		CREATE INDEX IF NOT EXISTS idx_plugins_owner ON plugins(owner_id);

		CREATE TABLE IF NOT EXISTS functions (
			id           TEXT PRIMARY KEY,
			created_date TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			plugin_id    TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_functions_plugin ON functions(plugin_id);

		CREATE TABLE IF NOT EXISTS connections (
			id            TEXT PRIMARY KEY,
			created_date  TEXT NOT NULL,
			owner_id      TEXT REFERENCES persons(id),
			name          TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			authorizer_id TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_connections_owner ON connections(owner_id);
		CREATE INDEX IF NOT EXISTS idx_connections_name ON connections(owner_id, name);

		CREATE TABLE IF NOT EXISTS authorizers (
			id            TEXT PRIMARY KEY,
			created_date  TEXT NOT NULL,
			owner_id      TEXT REFERENCES persons(id),
			name          TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			visibility    TEXT NOT NULL DEFAULT 'Private',
			auth_type     TEXT NOT NULL DEFAULT 'Public',
			client_id     TEXT NOT NULL DEFAULT '',
			client_secret TEXT NOT NULL DEFAULT '',
			auth_uri      TEXT NOT NULL DEFAULT '',
			token_uri     TEXT NOT NULL DEFAULT '',
			scope         TEXT NOT NULL DEFAULT '',

			CHECK (visibility IN ('Private', 'Public')),
			CHECK (auth_type IN ('Public', 'OAuth2', 'ApiKey'))
		);

		CREATE INDEX IF NOT EXISTS idx_authorizers_owner ON authorizers(owner_id);

		CREATE TABLE IF NOT EXISTS credentials (
			id            TEXT PRIMARY KEY,
			created_date  TEXT NOT NULL,
			agent_id      TEXT NOT NULL,
			connection_id TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'NoAuthorizer',
			access_token  TEXT NOT NULL DEFAULT '',

			UNIQUE (agent_id, connection_id),
			CHECK (status IN ('NoAuthorizer', 'NoCredential', 'Authorized', 'Complete'))
		);

		CREATE INDEX IF NOT EXISTS idx_credentials_agent ON credentials(agent_id);
	`

	_, err := d.sql.Exec(schema)
	return err
}

// isConstraintViolation reports whether err is a SQLite uniqueness violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// isForeignKeyViolation reports whether err is a SQLite foreign key violation.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint")
}

// formatTime renders a timestamp in the canonical column format.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a timestamp column value, logging on malformed input.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		slog.Warn("failed to parse stored timestamp", "value", s, "error", err)
		return time.Time{}
	}
	return t
}

// nullString converts "" to NULL for nullable columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
