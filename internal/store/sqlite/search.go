package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hybridmail/internal/tenant"
)

// SearchFilters narrows a lexical or dense retrieval pass. A zero value
// matches everything in tenant scope.
type SearchFilters struct {
	SenderEmail    string
	CompanyDomain  string
	DateFrom       *time.Time
	DateTo         *time.Time
	HasAttachments *bool
	SourceIDs      []int64
}

// LexicalHit is one BM25-ranked lexical match, joined back to the message
// fields a search result needs to render without a second round trip.
type LexicalHit struct {
	MessageID int64
	Score     float64 // bm25(); more negative is a better match
	Subject   string
	Snippet   string
	FromEmail string
	FromName  string
	SentAt    time.Time
}

// LexicalSearch runs an FTS5 MATCH query over subject/body_text scoped to a
// tenant, ranked by bm25(), with the structured filters and source
// visibility rule applied. matchExpr is the caller-built FTS query string
// (AND within a query variant, OR across variants); this method does not
// reinterpret it, only escapes nothing further.
//
// Per the source-visibility rule, rows are restricted to sources with
// included_in_search=1 unless filters.SourceIDs is non-empty, in which case
// the explicit id set overrides visibility.
func (s *Store) LexicalSearch(ctx context.Context, scope tenant.Scope, matchExpr string, filters SearchFilters, limit int) ([]LexicalHit, error) {
	if strings.TrimSpace(matchExpr) == "" {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(`
		SELECT m.id, bm25(messages_fts) AS score,
		       m.subject, snippet(messages_fts, 1, '<mark>', '</mark>', '...', 32) AS snip,
		       c.email, c.name, m.sent_at
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		JOIN contacts c ON c.id = m.from_contact_id
		LEFT JOIN companies co ON co.id = c.company_id
		WHERE messages_fts MATCH ? AND m.tenant_id = ?
	`)
	args := []interface{}{matchExpr, scope.ID()}

	if len(filters.SourceIDs) > 0 {
		placeholders := make([]string, len(filters.SourceIDs))
		for i, id := range filters.SourceIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		fmt.Fprintf(&b, " AND m.source_id IN (%s)", strings.Join(placeholders, ","))
	} else {
		b.WriteString(" AND m.source_id IN (SELECT id FROM sources WHERE tenant_id = ? AND included_in_search = 1)")
		args = append(args, scope.ID())
	}
	if filters.SenderEmail != "" {
		b.WriteString(" AND c.email = ?")
		args = append(args, strings.ToLower(filters.SenderEmail))
	}
	if filters.CompanyDomain != "" {
		b.WriteString(" AND co.domain = ?")
		args = append(args, strings.ToLower(filters.CompanyDomain))
	}
	if filters.DateFrom != nil {
		b.WriteString(" AND m.sent_at >= ?")
		args = append(args, *filters.DateFrom)
	}
	if filters.DateTo != nil {
		b.WriteString(" AND m.sent_at <= ?")
		args = append(args, *filters.DateTo)
	}
	if filters.HasAttachments != nil {
		b.WriteString(" AND m.has_attachments = ?")
		args = append(args, *filters.HasAttachments)
	}

	b.WriteString(" ORDER BY score LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.MessageID, &h.Score, &h.Subject, &h.Snippet, &h.FromEmail, &h.FromName, &h.SentAt); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// VerifyTenantMessageIDs returns the subset of ids that belong to scope,
// the secondary relational check the dense retrieval branch runs against
// vector-store hits to defend against stale metadata.
func (s *Store) VerifyTenantMessageIDs(ctx context.Context, scope tenant.Scope, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := queryInChunks(s.db, ids, []interface{}{scope.ID()}, `
		SELECT id FROM messages WHERE tenant_id = ? AND id IN (%s)
	`, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		out[id] = true
		return nil
	})
	return out, err
}
