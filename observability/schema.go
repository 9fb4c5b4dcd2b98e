package observability

import "database/sql"

// Schema contains the DDL for the ingestion diagnostics tables.
// Call Init(db) to apply it, or embed this constant in your own schema
// management.
const Schema = `
-- Per-file failures and skips
CREATE TABLE IF NOT EXISTS file_failures (
    failure_id TEXT PRIMARY KEY DEFAULT ('ff_' || hex(randomblob(16))),
    run_id TEXT NOT NULL,
    path TEXT NOT NULL,
    group_key TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_failures_run ON file_failures(run_id, created_at);
CREATE INDEX IF NOT EXISTS idx_failures_kind ON file_failures(kind);

-- Run summaries
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    finished_at INTEGER NOT NULL
);

-- Run-level metrics, one row per metric
CREATE TABLE IF NOT EXISTS run_metrics (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    metric_name TEXT NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (run_id, metric_name)
);

-- Metadata registry
CREATE TABLE IF NOT EXISTS _observability_metadata (
    table_name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    description TEXT
);
INSERT OR IGNORE INTO _observability_metadata (table_name, description) VALUES
    ('file_failures', 'Files that failed or were skipped during ingestion'),
    ('runs', 'Ingestion run outcomes'),
    ('run_metrics', 'Aggregated statistics per run');
`

// Init applies the diagnostics schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
