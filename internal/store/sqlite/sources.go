package sqlite

import (
	"context"
	"database/sql"
	"time"

	"hybridmail/internal/domain"
	"hybridmail/internal/tenant"
)

// CreateSource inserts a new source row in pending state and returns its id.
func (s *Store) CreateSource(ctx context.Context, src domain.Source) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (tenant_id, name, kind, file_name, status, included_in_search)
		VALUES (?, ?, ?, ?, ?, ?)
	`, src.TenantID, src.Name, src.Kind, src.FileName, domain.SourceStatusPending, src.IncludedInSearch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSource returns a source by id, scoped to scope.
func (s *Store) GetSource(ctx context.Context, scope tenant.Scope, id int64) (domain.Source, error) {
	var src domain.Source
	var startedAt, completedAt sql.NullTime
	var errMsg sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, kind, file_name, status, expected, succeeded, failed,
		       included_in_search, error, started_at, completed_at, created_at
		FROM sources WHERE tenant_id = ? AND id = ?
	`, scope.ID(), id)
	if err := row.Scan(&src.ID, &src.TenantID, &src.Name, &src.Kind, &src.FileName, &src.Status,
		&src.Expected, &src.Succeeded, &src.Failed, &src.IncludedInSearch, &errMsg,
		&startedAt, &completedAt, &src.CreatedAt); err != nil {
		return domain.Source{}, err
	}
	src.Error = errMsg.String
	if startedAt.Valid {
		src.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		src.CompletedAt = &completedAt.Time
	}
	return src, nil
}

// IncrementExpected bumps a source's expected message count by delta, the
// number of messages a chunk handler just emitted, and transitions the
// source from pending to processing on its first call. expected is a
// running sum across chunks; it is only final once the last chunk has been
// processed (chunks are chained, so arrival order is guaranteed). Returns
// the new total.
func (s *Store) IncrementExpected(ctx context.Context, scope tenant.Scope, sourceID, delta int64) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET expected = expected + ?,
		       status = CASE WHEN status = ? THEN ? ELSE status END
		WHERE tenant_id = ? AND id = ?
	`, delta, domain.SourceStatusPending, domain.SourceStatusProcessing, scope.ID(), sourceID)
	if err != nil {
		return 0, err
	}
	var expected int64
	err = s.db.QueryRowContext(ctx, `SELECT expected FROM sources WHERE tenant_id = ? AND id = ?`, scope.ID(), sourceID).Scan(&expected)
	return expected, err
}

// IncrementCounters atomically bumps succeeded/failed by the given deltas,
// used by the materializer as each message (or failure) is processed.
func (s *Store) IncrementCounters(ctx context.Context, scope tenant.Scope, sourceID int64, succeededDelta, failedDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET succeeded = succeeded + ?, failed = failed + ?
		WHERE tenant_id = ? AND id = ?
	`, succeededDelta, failedDelta, scope.ID(), sourceID)
	return err
}

// MarkFailed transitions a source to failed with an error message.
func (s *Store) MarkFailed(ctx context.Context, scope tenant.Scope, sourceID int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET status = ?, error = ?, completed_at = ? WHERE tenant_id = ? AND id = ?
	`, domain.SourceStatusFailed, errMsg, time.Now().UTC(), scope.ID(), sourceID)
	return err
}
