package db

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// migrations use only column types understood by both PostgreSQL and SQLite.
// Job timestamps are epoch milliseconds so scheduling comparisons stay numeric.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_articles_table",
		Up: `
			CREATE TABLE IF NOT EXISTS articles (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				source_url TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'ORIGINAL',
				updated_content TEXT,
				article_references TEXT,
				scraped_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
			CREATE INDEX IF NOT EXISTS idx_articles_scraped_at ON articles(scraped_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_articles_scraped_at;
			DROP INDEX IF EXISTS idx_articles_status;
			DROP TABLE IF EXISTS articles;
		`,
	},
	{
		Version: 2,
		Name:    "create_enhancement_jobs_table",
		Up: `
			CREATE TABLE IF NOT EXISTS enhancement_jobs (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				article_id TEXT NOT NULL,
				state TEXT NOT NULL,
				progress INTEGER NOT NULL DEFAULT 0,
				attempts_made INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 3,
				run_at BIGINT NOT NULL,
				processed_on BIGINT,
				finished_on BIGINT,
				failed_reason TEXT,
				result TEXT,
				created_at BIGINT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_enhancement_jobs_state_run_at ON enhancement_jobs(state, run_at);
			CREATE INDEX IF NOT EXISTS idx_enhancement_jobs_article_id ON enhancement_jobs(article_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_enhancement_jobs_article_id;
			DROP INDEX IF EXISTS idx_enhancement_jobs_state_run_at;
			DROP TABLE IF EXISTS enhancement_jobs;
		`,
	},
	{
		Version: 3,
		Name:    "add_articles_source_url_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_articles_source_url ON articles(source_url);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_articles_source_url;
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	if err := db.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := db.currentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= currentVersion {
			continue
		}

		if err := db.runMigration(m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return sorted
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func (db *DB) ensureMigrationsTable() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// currentVersion returns the highest applied migration version
func (db *DB) currentVersion() (int, error) {
	var version int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration
func (db *DB) runMigration(m Migration) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query, args, err := db.sb.Insert("schema_migrations").
		Columns("version", "name").
		Values(m.Version, m.Name).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Rollback rolls back the last migration
func (db *DB) Rollback() error {
	if err := db.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := db.currentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			target = &migrations[i]
			break
		}
	}

	if target == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	query, args, err := db.sb.Delete("schema_migrations").
		Where(sq.Eq{"version": currentVersion}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

// GetMigrationStatus returns the current migration status
func (db *DB) GetMigrationStatus() ([]MigrationStatus, error) {
	if err := db.ensureMigrationsTable(); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := db.currentVersion()
	if err != nil {
		return nil, err
	}

	var status []MigrationStatus
	for _, m := range sortedMigrations() {
		status = append(status, MigrationStatus{
			Version: m.Version,
			Name:    m.Name,
			Applied: m.Version <= currentVersion,
		})
	}

	return status, nil
}
