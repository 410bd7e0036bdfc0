// Package store provides a SQLite-backed archive of intervention entries.
//
// DESIGN: The in-memory audit log only keeps the last 50 entries. The
// archive keeps all of them for offline review. It is append-only and is
// never read on the request path; session state is not persisted.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mandyss10/Sentinel/internal/monitoring"

	_ "modernc.org/sqlite" // register sqlite driver
)

// DefaultQueryLimit caps Query when no limit is given.
const DefaultQueryLimit = 100

// MaxQueryLimit caps Query regardless of the requested limit.
const MaxQueryLimit = 1000

// Archive is an append-only intervention store. Implements monitoring.AuditSink.
type Archive struct {
	db *sql.DB
}

// Open opens or creates the archive database at the given path.
func Open(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the archive database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Record inserts one entry. Re-recording an entry id is a no-op.
func (a *Archive) Record(e monitoring.InterventionEntry) error {
	_, err := a.db.Exec(`INSERT OR IGNORE INTO interventions
		(entry_id, recorded_at, session_id, request_id, model, reason, snippet, savings_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.SessionID, e.RequestID,
		e.Model, string(e.Reason), e.Snippet, e.SavingsUSD,
	)
	if err != nil {
		return fmt.Errorf("archiving intervention %s: %w", e.ID, err)
	}
	return nil
}

// Query returns archived entries, newest first. An empty sessionID matches all sessions.
func (a *Archive) Query(ctx context.Context, sessionID string, limit int) ([]monitoring.InterventionEntry, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	limit = min(limit, MaxQueryLimit)

	query := `SELECT entry_id, recorded_at, session_id, request_id, model, reason, snippet, savings_usd
		FROM interventions`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []monitoring.InterventionEntry
	for rows.Next() {
		var e monitoring.InterventionEntry
		var recordedAt, reason string
		if err := rows.Scan(&e.ID, &recordedAt, &e.SessionID, &e.RequestID, &e.Model, &reason, &e.Snippet, &e.SavingsUSD); err != nil {
			return nil, err
		}
		e.Reason = monitoring.Reason(reason)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, recordedAt)
		result = append(result, e)
	}
	return result, rows.Err()
}

// ReasonCount is one row of Totals.
type ReasonCount struct {
	Reason     monitoring.Reason `json:"reason"`
	Count      int               `json:"count"`
	SavingsUSD float64           `json:"savings_usd"`
}

// Totals aggregates the whole archive by reason.
func (a *Archive) Totals(ctx context.Context) ([]ReasonCount, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT reason, COUNT(*), COALESCE(SUM(savings_usd), 0)
		FROM interventions GROUP BY reason ORDER BY reason`)
	if err != nil {
		return nil, fmt.Errorf("aggregating archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		var reason string
		if err := rows.Scan(&reason, &rc.Count, &rc.SavingsUSD); err != nil {
			return nil, err
		}
		rc.Reason = monitoring.Reason(reason)
		result = append(result, rc)
	}
	return result, rows.Err()
}
