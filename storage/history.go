package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"eventAwareness/core"
)

// RunHistory persists analysis run results in a local SQLite database.
type RunHistory struct {
	db *sql.DB
}

// OpenRunHistory opens the run history database, creating the file and its
// directory if needed.
func OpenRunHistory(path string) (*RunHistory, error) {
	dbPath := path
	if idx := strings.Index(path, "?"); idx != -1 {
		dbPath = path[:idx]
	}
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	dsn := path
	if !strings.Contains(dsn, "_busy_timeout") {
		if strings.Contains(dsn, "?") {
			dsn += "&_busy_timeout=5000"
		} else {
			dsn += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}
	if err := createRunsTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %s", err)
	}
	return &RunHistory{db: db}, nil
}

func createRunsTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS runs (
        run_id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        frames_analyzed INTEGER NOT NULL DEFAULT 0,
        zones_analyzed INTEGER NOT NULL DEFAULT 0,
        warning_count INTEGER NOT NULL DEFAULT 0,
        started_at DATETIME NOT NULL,
        finished_at DATETIME,
        detail TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
    `
	_, err := db.Exec(query)
	return err
}

// RecordRun stores one completed run. The full result is kept as JSON in the
// detail column; the scalar columns exist for quick listing and filtering.
func (h *RunHistory) RecordRun(result core.RunResult) error {
	detail, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("error marshaling run detail: %s", err)
	}
	_, err = h.db.Exec(`
		INSERT OR REPLACE INTO runs (
			run_id, status, frames_analyzed, zones_analyzed,
			warning_count, started_at, finished_at, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Status,
		result.FramesAnalyzed,
		result.ZonesAnalyzed,
		len(result.Warnings),
		result.StartTime,
		result.EndTime,
		string(detail),
	)
	if err != nil {
		return fmt.Errorf("error storing run: %s", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (h *RunHistory) RecentRuns(limit int) ([]core.RunResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(`
		SELECT detail FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %s", err)
	}
	defer rows.Close()

	var results []core.RunResult
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("error scanning run: %s", err)
		}
		var result core.RunResult
		if err := json.Unmarshal([]byte(detail), &result); err != nil {
			return nil, fmt.Errorf("error unmarshaling run detail: %s", err)
		}
		results = append(results, result)
	}
	return results, nil
}

// TotalRuns reports how many runs are recorded.
func (h *RunHistory) TotalRuns() (int, error) {
	var count int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting runs: %s", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (h *RunHistory) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}
