package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/peaking-cli/internal/db"
	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/resilience"
)

// Schema holds the registry and the published dashboard tables.
const Schema = "city_data"

// Qualified table names.
const (
	RegistryTable  = Schema + ".city_peak_emissions"
	RunsTable      = Schema + ".peaking_runs"
	EmissionsTable = Schema + ".peaking_emissions"
	AuditTable     = Schema + ".peaking_audit"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	clock   clockwork.Clock
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Connecting and
// the initial ping are retried on transient failures.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, retry resilience.RetryConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("postgres connect")
	}
	pool, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: create pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "postgres: ping")
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, clock: clockwork.NewRealClock()}, nil
}

// Pool returns the underlying pool for publishing the dashboard tables.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

var postgresMigration = fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.city_peak_emissions (
	c40_city_name TEXT PRIMARY KEY,
	data_source   TEXT NOT NULL,
	added_by      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.peaking_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input_path   TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	dry_run      BOOLEAN NOT NULL DEFAULT false,
	summary      JSONB,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_peaking_runs_status ON %[1]s.peaking_runs(status);
CREATE INDEX IF NOT EXISTS idx_peaking_runs_started_at ON %[1]s.peaking_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS %[1]s.peaking_emissions (
	city              TEXT NOT NULL,
	year              INTEGER NOT NULL,
	data_source       TEXT NOT NULL,
	rank              INTEGER NOT NULL,
	status            TEXT NOT NULL,
	use_for_dashboard BOOLEAN NOT NULL DEFAULT true,
	emissions         DOUBLE PRECISION NOT NULL,
	peak_year         INTEGER NOT NULL DEFAULT 0,
	run_id            TEXT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (city, year)
);

CREATE TABLE IF NOT EXISTS %[1]s.peaking_audit (
	city              TEXT NOT NULL,
	year              INTEGER NOT NULL,
	data_source       TEXT NOT NULL,
	rank              INTEGER NOT NULL,
	status            TEXT NOT NULL,
	use_for_dashboard BOOLEAN NOT NULL,
	emissions         DOUBLE PRECISION NOT NULL,
	peak_year         INTEGER NOT NULL DEFAULT 0,
	run_id            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_peaking_audit_city ON %[1]s.peaking_audit(city);
`, Schema)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

func (s *PostgresStore) ListPeaked(ctx context.Context) ([]model.RegistryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c40_city_name, data_source, added_by, created_at, updated_at FROM `+RegistryTable+`
		 ORDER BY c40_city_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list peaked")
	}
	defer rows.Close()

	var out []model.RegistryEntry
	for rows.Next() {
		var e model.RegistryEntry
		var source string
		if err := rows.Scan(&e.City, &source, &e.AddedBy, &e.AddedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan peaked")
		}
		e.Source = model.DataSource(source)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list peaked iterate")
}

func (s *PostgresStore) AppendPeaked(ctx context.Context, entries []model.RegistryEntry) (int, error) {
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return 0, err
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append peaked begin")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	now := s.now()
	added := 0
	for _, e := range entries {
		tag, err := tx.Exec(ctx,
			`INSERT INTO `+RegistryTable+` (c40_city_name, data_source, added_by, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (c40_city_name) DO NOTHING`,
			e.City, string(e.Source), e.AddedBy, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: append peaked %s", e.City)
		}
		added += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: append peaked commit")
	}
	committed = true
	return added, nil
}

func (s *PostgresStore) PutPeaked(ctx context.Context, e model.RegistryEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	now := s.now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+RegistryTable+` (c40_city_name, data_source, added_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (c40_city_name) DO UPDATE SET
		   data_source = EXCLUDED.data_source,
		   added_by = EXCLUDED.added_by,
		   updated_at = EXCLUDED.updated_at`,
		e.City, string(e.Source), e.AddedBy, now, now,
	)
	return eris.Wrapf(err, "postgres: put peaked %s", e.City)
}

func (s *PostgresStore) RemovePeaked(ctx context.Context, city string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+RegistryTable+` WHERE c40_city_name = $1`, city)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove peaked %s", city)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "registry city %s", city)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, inputPath string, dryRun bool) (*model.Run, error) {
	id := uuid.New().String()
	now := s.now()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+RunsTable+` (id, input_path, status, dry_run, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, inputPath, string(model.RunStatusRunning), dryRun, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{
		ID:        id,
		InputPath: inputPath,
		Status:    model.RunStatusRunning,
		DryRun:    dryRun,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+RunsTable+` SET status = $1, summary = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), summaryJSON, s.now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+RunsTable+` SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), errorText(runErr), s.now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, input_path, status, dry_run, summary, error, started_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM `+RunsTable+` WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM ` + RunsTable + ` WHERE 1=1`
	var args []any
	argN := 1
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argN)
		args = append(args, string(filter.Status))
		argN++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argN)
	args = append(args, runLimit(filter))
	argN++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs scan")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var (
		r           model.Run
		status      string
		summaryJSON []byte
	)
	if err := row.Scan(&r.ID, &r.InputPath, &status, &r.DryRun, &summaryJSON, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(summaryJSON) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
