// Package journal keeps a local sqlite history of converge runs.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// sqlite driver
	_ "modernc.org/sqlite"

	"github.com/datashades/converge/internal/logger"
	"github.com/datashades/converge/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal records run reports.
type Journal struct {
	db   *sql.DB
	path string
}

// RunSummary is one row of run history.
type RunSummary struct {
	RunID      string
	Recipe     string
	DryRun     bool
	Started    time.Time
	Finished   time.Time
	Error      string
	Applied    int
	Skipped    int
	Failed     int
	WouldApply int
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Open opens (creating if needed) the journal at path and applies pending
// migrations. log receives migration progress and may be nil.
func Open(ctx context.Context, path string, log *logger.Logger) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.migrate(log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(log *logger.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load journal migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(j.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("journal migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("journal migrations: %w", err)
	}
	if log != nil {
		m.Log = log
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Path returns the database file.
func (j *Journal) Path() string { return j.path }

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record stores report and its steps in one transaction.
func (j *Journal) Record(ctx context.Context, report *model.RunReport) (err error) {
	if report == nil {
		return errors.New("journal: nil report")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	runErr := ""
	if report.Err != nil {
		runErr = report.Err.Error()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, recipe, dry_run, started_at, finished_at, error) VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Recipe, report.DryRun, report.Started.UnixNano(), report.Finished.UnixNano(), runErr,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	for i, step := range report.Steps {
		stepErr := ""
		if step.Error != nil {
			stepErr = step.Error.Error()
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO step_results (run_id, position, identity, kind, status, message, error, duration_ms, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, i, step.StepID, step.Kind, step.Status, step.Message, stepErr,
			step.Duration.Milliseconds(), step.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert step %s: %w", step.StepID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit journal: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. recipe filters by name
// when set.
func (j *Journal) Recent(ctx context.Context, recipe string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.recipe, r.dry_run, r.started_at, r.finished_at, r.error,
		       COALESCE(SUM(s.status = 'applied'), 0),
		       COALESCE(SUM(s.status = 'skipped'), 0),
		       COALESCE(SUM(s.status = 'failed'), 0),
		       COALESCE(SUM(s.status = 'would_apply'), 0)
		FROM runs r
		LEFT JOIN step_results s ON s.run_id = r.id
		WHERE (? = '' OR r.recipe = ?)
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?`, recipe, recipe, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished int64
		if err := rows.Scan(&s.RunID, &s.Recipe, &s.DryRun, &started, &finished, &s.Error,
			&s.Applied, &s.Skipped, &s.Failed, &s.WouldApply); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.Started = time.Unix(0, started)
		s.Finished = time.Unix(0, finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Steps returns the recorded steps of a run in execution order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]model.StepResult, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT identity, kind, status, message, error, duration_ms, finished_at
		FROM step_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []model.StepResult
	for rows.Next() {
		var (
			step     model.StepResult
			errText  string
			duration int64
			finished int64
		)
		if err := rows.Scan(&step.StepID, &step.Kind, &step.Status, &step.Message, &errText, &duration, &finished); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if errText != "" {
			step.Error = errors.New(errText)
		}
		step.Duration = time.Duration(duration) * time.Millisecond
		step.Timestamp = time.Unix(0, finished)
		out = append(out, step)
	}
	return out, rows.Err()
}
