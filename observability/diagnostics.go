package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Failure is one recorded file failure or skip.
type Failure struct {
	RunID     string
	Path      string
	Group     string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Run is one recorded run with its metrics.
type Run struct {
	RunID      string
	Status     string
	FinishedAt time.Time
	Metrics    map[string]float64
}

// Diagnostics records failures and run metrics for one run ID.
type Diagnostics struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger
}

// NewDiagnostics creates a recorder bound to runID.
func NewDiagnostics(db *sql.DB, runID string, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{db: db, runID: runID, logger: logger}
}

// RunID returns the run the recorder is bound to.
func (d *Diagnostics) RunID() string { return d.runID }

// RecordFailure stores one file failure. Non-blocking on error: failures are
// logged via slog but do not propagate.
func (d *Diagnostics) RecordFailure(ctx context.Context, path, group, kind, detail string) {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO file_failures (run_id, path, group_key, kind, detail, created_at)
		VALUES (?,?,?,?,?,?)`,
		d.runID, path, group, kind, detail, time.Now().Unix())
	if err != nil {
		d.logger.Error("diagnostics failure record failed", "error", err, "path", path, "kind", kind)
	}
}

// RecordRun stores the run status and metrics in one transaction. A second
// call for the same run replaces the first.
func (d *Diagnostics) RecordRun(ctx context.Context, status string, metrics map[string]float64) {
	if err := d.recordRun(ctx, status, metrics); err != nil {
		d.logger.Error("diagnostics run record failed", "error", err, "run_id", d.runID)
	}
}

func (d *Diagnostics) recordRun(ctx context.Context, status string, metrics map[string]float64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, finished_at) VALUES (?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET status = excluded.status, finished_at = excluded.finished_at`,
		d.runID, status, time.Now().Unix()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_metrics WHERE run_id = ?`, d.runID); err != nil {
		return fmt.Errorf("clear metrics: %w", err)
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_metrics (run_id, metric_name, value) VALUES (?,?,?)`,
			d.runID, name, metrics[name]); err != nil {
			return fmt.Errorf("insert metric %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Failures returns the failures recorded for runID, oldest first.
func Failures(ctx context.Context, db *sql.DB, runID string) ([]Failure, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, path, group_key, kind, COALESCE(detail, ''), created_at
		FROM file_failures WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var ts int64
		if err := rows.Scan(&f.RunID, &f.Path, &f.Group, &f.Kind, &f.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.CreatedAt = time.Unix(ts, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Runs returns every recorded run with its metrics, most recent first.
func Runs(ctx context.Context, db *sql.DB) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id, status, finished_at FROM runs ORDER BY finished_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		var r Run
		var ts int64
		if err := rows.Scan(&r.RunID, &r.Status, &ts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.FinishedAt = time.Unix(ts, 0)
		r.Metrics = map[string]float64{}
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		mrows, err := db.QueryContext(ctx, `SELECT metric_name, value FROM run_metrics WHERE run_id = ?`, runs[i].RunID)
		if err != nil {
			return nil, fmt.Errorf("query metrics: %w", err)
		}
		for mrows.Next() {
			var name string
			var v float64
			if err := mrows.Scan(&name, &v); err != nil {
				mrows.Close()
				return nil, fmt.Errorf("scan metric: %w", err)
			}
			runs[i].Metrics[name] = v
		}
		mrows.Close()
		if err := mrows.Err(); err != nil {
			return nil, err
		}
	}
	return runs, nil
}
