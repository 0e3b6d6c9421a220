// Package archive keeps a request-level history in SQLite. The daily JSON
// files only hold per-session sums and the time series forgets anything older
// than its window; the archive is where individual completed requests remain
// queryable. It is strictly optional: any failure here is logged by the
// caller and the hook carries on.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Dreamlaunchersarc/token-stats/internal/model"
)

// DB wraps the archive database connection.
type DB struct {
	*sql.DB
}

// Open opens (and if needed creates) the archive at dbPath.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// WAL plus a busy timeout keeps concurrent hook invocations from
	// tripping over "database is locked".
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure archive: %w", err)
		}
	}

	// The hook is single-threaded; one connection is all it needs.
	db.SetMaxOpenConns(1)

	a := &DB{db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS completed_requests (
		request_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		project TEXT,
		model TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		duration_seconds REAL NOT NULL,
		output_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		cost REAL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_completed_timestamp ON completed_requests(timestamp);
	CREATE INDEX IF NOT EXISTS idx_completed_session ON completed_requests(session_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// InsertCompleted records completed requests for a session, skipping request
// ids already archived. Returns the number of newly inserted rows.
func (db *DB) InsertCompleted(sessionID, project string, requests []model.CompletedRequest) (int64, error) {
	if len(requests) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO completed_requests
		(request_id, session_id, project, model, timestamp, duration_seconds,
		 output_tokens, total_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for _, r := range requests {
		result, err := stmt.Exec(
			r.RequestID, sessionID, project, r.Model, r.Timestamp.UTC(),
			r.DurationSeconds, r.OutputTokens, r.TotalTokens, r.Cost,
		)
		if err != nil {
			return 0, err
		}
		n, _ := result.RowsAffected()
		inserted += n
	}

	return inserted, tx.Commit()
}

// PruneBefore deletes archived requests older than cutoff and returns the
// number of rows removed.
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM completed_requests WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Vacuum reclaims space after a prune.
func (db *DB) Vacuum() error {
	_, err := db.Exec("VACUUM")
	return err
}

// SessionTotals sums the archived requests for one session. Kept for external
// consumers of the archive (reporting tools); the hook itself never reads back.
type SessionTotals struct {
	RequestCount int64
	OutputTokens int64
	TotalTokens  int64
	Cost         float64
}

// TotalsForSession returns archive sums for sessionID.
func (db *DB) TotalsForSession(sessionID string) (SessionTotals, error) {
	var t SessionTotals
	err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM completed_requests
		WHERE session_id = ?
	`, sessionID).Scan(&t.RequestCount, &t.OutputTokens, &t.TotalTokens, &t.Cost)
	return t, err
}
