package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/logger"
	"github.com/jmoiron/sqlx"
)

// Migration represents a single database migration
type Migration struct {
	Version     int
	Description string
	Up          string
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db  *sqlx.DB
	log *logger.Logger
}

func NewMigrationRunner(db *sqlx.DB, log *logger.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:  db,
		log: log,
	}
}

// GetAllMigrations returns all available migrations in order
func GetAllMigrations() []Migration {
	// body is JSON rather than JSONB: JSONB rejects \u0000 inside strings, which valid responses may carry
	return []Migration{
		{
			Version:     1,
			Description: "Create idor_runs table",
			Up: `
				CREATE TABLE IF NOT EXISTS idor_runs (
					id TEXT PRIMARY KEY,
					endpoint TEXT NOT NULL,
					selector TEXT NOT NULL,
					cookie_name TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					started_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create idor_probes table",
			Up: `
				CREATE TABLE IF NOT EXISTS idor_probes (
					run_id TEXT NOT NULL REFERENCES idor_runs(id) ON DELETE CASCADE,
					idx BIGINT NOT NULL,
					url TEXT NOT NULL,
					status_code INTEGER NOT NULL,
					fingerprint TEXT NOT NULL,
					duplicate_of BIGINT,
					body JSON NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (run_id, idx)
				);
				CREATE INDEX IF NOT EXISTS idx_idor_probes_fingerprint ON idor_probes(fingerprint);
			`,
		},
	}
}

func (mr *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := mr.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return nil
}

func (mr *MigrationRunner) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := mr.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// RunMigrations applies all pending migrations
func (mr *MigrationRunner) RunMigrations(ctx context.Context) error {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	appliedMigrations, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	allMigrations := GetAllMigrations()
	sort.Slice(allMigrations, func(i, j int) bool {
		return allMigrations[i].Version < allMigrations[j].Version
	})

	applied := 0
	for _, migration := range allMigrations {
		if appliedMigrations[migration.Version] {
			continue
		}

		if err := mr.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		applied++
	}

	mr.log.Debugw("Database schema is up to date",
		"latest_version", allMigrations[len(allMigrations)-1].Version,
		"migrations_applied", applied,
	)

	return nil
}

func (mr *MigrationRunner) applyMigration(ctx context.Context, migration Migration) error {
	mr.log.Infow("Applying migration",
		"version", migration.Version,
		"description", migration.Description,
	)

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	recordQuery := `
		INSERT INTO schema_migrations (version, description, applied_at)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, recordQuery, migration.Version, migration.Description, time.Now()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}
