package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/config"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/core"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idorenum/pkg/types"
)

type sqlStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to PostgreSQL and brings the probe schema up to date.
func NewStore(ctx context.Context, cfg config.RecorderConfig, log *logger.Logger) (core.ProbeStore, error) {
	log = log.WithComponent("database")

	start := time.Now()
	ctx, span := log.StartOperation(ctx, "database.NewStore", "dsn_masked", maskDSN(cfg.DSN))

	store, err := openStore(ctx, cfg, log)
	log.FinishOperation(ctx, span, "database.NewStore", start, err)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openStore(ctx context.Context, cfg config.RecorderConfig, log *logger.Logger) (*sqlStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := NewMigrationRunner(db, log).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &sqlStore{db: db, logger: log}, nil
}

// maskDSN hides the password in a DSN for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return "***"
	}
	return u.Redacted()
}

func (s *sqlStore) SaveRun(ctx context.Context, run *types.Run) error {
	query := `
		INSERT INTO idor_runs (id, endpoint, selector, cookie_name, status, started_at, updated_at)
		VALUES (:id, :endpoint, :selector, :cookie_name, :status, :started_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *sqlStore) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus) error {
	query := `UPDATE idor_runs SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

func (s *sqlStore) SaveProbe(ctx context.Context, probe *types.Probe) error {
	query := `
		INSERT INTO idor_probes (run_id, idx, url, status_code, fingerprint, duplicate_of, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var duplicateOf sql.NullInt64
	if probe.DuplicateOf != nil {
		duplicateOf = sql.NullInt64{Int64: *probe.DuplicateOf, Valid: true}
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		probe.RunID,
		probe.Index,
		probe.URL,
		probe.StatusCode,
		probe.Fingerprint,
		duplicateOf,
		string(probe.Body),
		probe.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save probe %d: %w", probe.Index, err)
	}

	s.logger.Debugw("Probe recorded",
		"run_id", probe.RunID,
		"index", probe.Index,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

type probeRow struct {
	RunID       string        `db:"run_id"`
	Index       int64         `db:"idx"`
	URL         string        `db:"url"`
	StatusCode  int           `db:"status_code"`
	Fingerprint string        `db:"fingerprint"`
	DuplicateOf sql.NullInt64 `db:"duplicate_of"`
	Body        string        `db:"body"`
	CreatedAt   time.Time     `db:"created_at"`
}

func (s *sqlStore) GetProbes(ctx context.Context, runID string) ([]types.Probe, error) {
	query := `
		SELECT run_id, idx, url, status_code, fingerprint, duplicate_of, body::text AS body, created_at
		FROM idor_probes
		WHERE run_id = $1
		ORDER BY idx ASC
	`

	var rows []probeRow
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get probes: %w", err)
	}

	probes := make([]types.Probe, 0, len(rows))
	for _, row := range rows {
		probe := types.Probe{
			RunID:       row.RunID,
			Index:       row.Index,
			URL:         row.URL,
			StatusCode:  row.StatusCode,
			Fingerprint: row.Fingerprint,
			Body:        json.RawMessage(row.Body),
			CreatedAt:   row.CreatedAt,
		}
		if row.DuplicateOf.Valid {
			dup := row.DuplicateOf.Int64
			probe.DuplicateOf = &dup
		}
		probes = append(probes, probe)
	}
	return probes, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
