// Package progress implements the completion transition for an ingestion
// source: the single conditional update that moves a source from
// processing to completed once every discovered message has been
// accounted for.
package progress

import (
	"context"
	"database/sql"
	"fmt"

	"hybridmail/internal/domain"
	"hybridmail/internal/tenant"
)

// Tracker runs the completion check against the relational store's
// underlying database directly, rather than through the store package,
// since its correctness rests entirely on the exact RowsAffected() == 1
// check below and is easier to audit in isolation.
type Tracker struct {
	db *sql.DB
}

// New builds a Tracker over db, typically sqlite.Store.DB().
func New(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// TryComplete attempts the completion transition for a source and reports
// whether it took effect. Concurrent callers racing this check are safe:
// only the call that observes the predicate true while still processing
// flips the row, and SQLite's BEGIN IMMEDIATE serializes that check against
// concurrent writers on the same source row.
func (t *Tracker) TryComplete(ctx context.Context, scope tenant.Scope, sourceID int64) (bool, error) {
	conn, err := t.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("progress: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return false, fmt.Errorf("progress: begin immediate: %w", err)
	}

	res, err := conn.ExecContext(ctx, `
		UPDATE sources SET status = ?, completed_at = datetime('now')
		WHERE tenant_id = ? AND id = ? AND status = ?
		  AND expected > 0 AND (succeeded + failed) >= expected
	`, domain.SourceStatusCompleted, scope.ID(), sourceID, domain.SourceStatusProcessing)
	if err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return false, fmt.Errorf("progress: completion update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return false, fmt.Errorf("progress: rows affected: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return false, fmt.Errorf("progress: commit: %w", err)
	}

	return rows == 1, nil
}
