// Package store provides SQLite-backed persistence for campaign state:
// processes, campaigns, iterations, proposals, decisions, observations,
// checkpoints, jobs, and campaign locks, using an Open/schema/migrate
// pattern with one repository file per entity.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection shared by every repository file in this
// package.
type Store struct {
	db *sql.DB
}

// Querier is satisfied by both *sql.DB and *sql.Tx, letting every repository
// function in this package run either as an autocommit statement or as part
// of a caller-managed transaction (the ledger opens one *sql.Tx for each of
// its multi-statement operations and threads it through, under the caller's
// write lock).
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// BeginTx starts a new transaction for multi-statement repository calls.
func (s *Store) BeginTx() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return tx, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS processes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version INTEGER NOT NULL,
	spec_yaml TEXT NOT NULL,
	spec_json TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_processes_name ON processes(name);
CREATE UNIQUE INDEX IF NOT EXISTS idx_processes_name_version ON processes(name, version);

CREATE TABLE IF NOT EXISTS campaigns (
	id TEXT PRIMARY KEY,
	process_id TEXT NOT NULL REFERENCES processes(id),
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'created',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_campaigns_process ON campaigns(process_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);

CREATE TABLE IF NOT EXISTS iterations (
	id TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	idx INTEGER NOT NULL,
	strategy TEXT NOT NULL DEFAULT '',
	dataset_hash TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_iterations_campaign ON iterations(campaign_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_iterations_campaign_idx ON iterations(campaign_id, idx);

CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	iteration_id TEXT NOT NULL REFERENCES iterations(id),
	strategy_name TEXT NOT NULL DEFAULT '',
	candidates_raw TEXT NOT NULL,
	candidates_encoded TEXT NOT NULL,
	predicted_mean TEXT NOT NULL DEFAULT '[]',
	predicted_std TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_proposals_iteration ON proposals(iteration_id);
CREATE INDEX IF NOT EXISTS idx_proposals_strategy ON proposals(strategy_name);

CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	iteration_id TEXT NOT NULL UNIQUE REFERENCES iterations(id),
	accepted TEXT NOT NULL DEFAULT '[]',
	note TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observations (
	id TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	iteration_id TEXT REFERENCES iterations(id),
	x_raw TEXT NOT NULL,
	y_raw TEXT NOT NULL,
	feasible INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_observations_campaign ON observations(campaign_id);
CREATE INDEX IF NOT EXISTS idx_observations_iteration ON observations(iteration_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	iteration_index INTEGER NOT NULL,
	strategy TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_size INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_campaign ON checkpoints(campaign_id, created_at);
CREATE INDEX IF NOT EXISTS idx_checkpoints_strategy ON checkpoints(campaign_id, strategy, created_at);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	campaign_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending',
	progress REAL NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at DATETIME,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_campaign ON jobs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_jobs_completed ON jobs(status, completed_at);

CREATE TABLE IF NOT EXISTS campaign_locks (
	campaign_id TEXT PRIMARY KEY,
	holder TEXT NOT NULL,
	acquired_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);
`

// Open creates or opens a SQLite database at the given path and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// migrate applies incremental schema changes for databases created before a
// given column existed, using additive ALTER TABLE statements rather than
// destructive rebuilds.
func migrate(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('campaigns') WHERE name = 'metadata'`).Scan(&count); err != nil {
		return fmt.Errorf("check campaigns metadata column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE campaigns ADD COLUMN metadata TEXT NOT NULL DEFAULT '{}'`); err != nil {
			return fmt.Errorf("add campaigns metadata column: %w", err)
		}
	}

	if err := addColumnIfMissing(db, "proposals", "strategy_name", `ALTER TABLE proposals ADD COLUMN strategy_name TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "decisions", "accepted", `ALTER TABLE decisions ADD COLUMN accepted TEXT NOT NULL DEFAULT '[]'`); err != nil {
		return err
	}
	return nil
}

// addColumnIfMissing runs an additive ALTER TABLE only when the named column
// isn't already present, so repeated Open calls against an existing database
// stay idempotent.
func addColumnIfMissing(db *sql.DB, table, column, alterSQL string) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count); err != nil {
		return fmt.Errorf("check %s.%s column: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(alterSQL); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sql.DB, which callers pass as the Querier to the
// package-level repository functions for autocommit statements (use BeginTx
// for a *sql.Tx when several statements must commit together).
func (s *Store) DB() *sql.DB {
	return s.db
}
