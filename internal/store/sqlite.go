package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/peaking-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local runs
// and tests; production uses PostgresStore.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, clock: clockwork.NewRealClock()}, nil
}

// WithClock replaces the clock used for timestamps.
func (s *SQLiteStore) WithClock(c clockwork.Clock) *SQLiteStore {
	s.clock = c
	return s
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS city_peak_emissions (
	c40_city_name TEXT PRIMARY KEY,
	data_source   TEXT NOT NULL,
	added_by      TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS peaking_runs (
	id           TEXT PRIMARY KEY,
	input_path   TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	dry_run      INTEGER NOT NULL DEFAULT 0,
	summary      TEXT,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_peaking_runs_status ON peaking_runs(status);
CREATE INDEX IF NOT EXISTS idx_peaking_runs_started_at ON peaking_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListPeaked(ctx context.Context) ([]model.RegistryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c40_city_name, data_source, added_by, created_at, updated_at
		 FROM city_peak_emissions ORDER BY c40_city_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list peaked")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RegistryEntry
	for rows.Next() {
		var e model.RegistryEntry
		var source string
		if err := rows.Scan(&e.City, &source, &e.AddedBy, &e.AddedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan peaked")
		}
		e.Source = model.DataSource(source)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list peaked iterate")
}

func (s *SQLiteStore) AppendPeaked(ctx context.Context, entries []model.RegistryEntry) (int, error) {
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return 0, err
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: append peaked begin")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	now := s.clock.Now().UTC()
	added := 0
	for _, e := range entries {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO city_peak_emissions (c40_city_name, data_source, added_by, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?) ON CONFLICT (c40_city_name) DO NOTHING`,
			e.City, string(e.Source), e.AddedBy, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: append peaked %s", e.City)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: append peaked commit")
	}
	committed = true
	return added, nil
}

func (s *SQLiteStore) PutPeaked(ctx context.Context, e model.RegistryEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO city_peak_emissions (c40_city_name, data_source, added_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (c40_city_name) DO UPDATE SET
		   data_source = excluded.data_source,
		   added_by = excluded.added_by,
		   updated_at = excluded.updated_at`,
		e.City, string(e.Source), e.AddedBy, now, now,
	)
	return eris.Wrapf(err, "sqlite: put peaked %s", e.City)
}

func (s *SQLiteStore) RemovePeaked(ctx context.Context, city string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM city_peak_emissions WHERE c40_city_name = ?`, city)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove peaked %s", city)
	}
	return checkRowsAffected(res, "registry city", city)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, inputPath string, dryRun bool) (*model.Run, error) {
	id := uuid.New().String()
	now := s.clock.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO peaking_runs (id, input_path, status, dry_run, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, inputPath, string(model.RunStatusRunning), dryRun, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{
		ID:        id,
		InputPath: inputPath,
		Status:    model.RunStatusRunning,
		DryRun:    dryRun,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE peaking_runs SET status = ?, summary = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(summaryJSON), s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE peaking_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errorText(runErr), s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, input_path, status, dry_run, summary, error, started_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM peaking_runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM peaking_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, runLimit(filter))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var (
		r           model.Run
		status      string
		summaryJSON sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.InputPath, &status, &r.DryRun, &summaryJSON, &r.Error, &r.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
