package sqlite

import (
	"context"
	"database/sql"

	"hybridmail/internal/domain"
	"hybridmail/internal/tenant"
)

// FindContactsByEmail returns the contacts matching the given emails for a
// tenant, keyed by lowercased email. Used by the materializer to figure out
// which of a message's participants already exist before creating the rest,
// in batches of at most 50 addresses per spec — well under this helper's
// internal chunk size.
func (s *Store) FindContactsByEmail(ctx context.Context, scope tenant.Scope, emails []string) (map[string]domain.Contact, error) {
	result := make(map[string]domain.Contact, len(emails))
	if len(emails) == 0 {
		return result, nil
	}
	err := queryInChunks(s.db, emails, []interface{}{scope.ID()}, `
		SELECT id, tenant_id, email, name, company_id, first_seen, last_seen, email_count
		FROM contacts WHERE tenant_id = ? AND email IN (%s)
	`, func(rows *sql.Rows) error {
		var c domain.Contact
		var companyID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Email, &c.Name, &companyID, &c.FirstSeen, &c.LastSeen, &c.EmailCount); err != nil {
			return err
		}
		if companyID.Valid {
			id := companyID.Int64
			c.CompanyID = &id
		}
		result[c.Email] = c
		return nil
	})
	return result, err
}

// CreateContact inserts a new contact and returns its id. email_count starts
// at zero; it is incremented per message by the caller via TouchContact.
func (s *Store) CreateContact(ctx context.Context, scope tenant.Scope, email, name string, companyID *int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (tenant_id, email, name, company_id) VALUES (?, ?, ?, ?)
	`, scope.ID(), email, name, companyID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// TouchContact bumps email_count and last_seen for a contact that appeared
// on a newly-materialized message.
func (s *Store) TouchContact(ctx context.Context, scope tenant.Scope, contactID int64, seenAt interface{}) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET email_count = email_count + 1, last_seen = ?
		WHERE tenant_id = ? AND id = ?
	`, seenAt, scope.ID(), contactID)
	return err
}

// FindCompanyByDomain returns the company for a tenant's domain, if any.
func (s *Store) FindCompanyByDomain(ctx context.Context, scope tenant.Scope, domainName string) (domain.Company, bool, error) {
	var c domain.Company
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, domain, name, total_emails, first_contact, last_contact
		FROM companies WHERE tenant_id = ? AND domain = ?
	`, scope.ID(), domainName)
	var firstContact, lastContact sql.NullTime
	if err := row.Scan(&c.ID, &c.TenantID, &c.Domain, &c.Name, &c.TotalEmails, &firstContact, &lastContact); err != nil {
		if err == sql.ErrNoRows {
			return domain.Company{}, false, nil
		}
		return domain.Company{}, false, err
	}
	c.FirstContact = firstContact.Time
	c.LastContact = lastContact.Time
	return c, true, nil
}

// CreateCompany inserts a new company derived from a non-free-webmail
// domain and returns its id.
func (s *Store) CreateCompany(ctx context.Context, scope tenant.Scope, domainName, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (tenant_id, domain, name) VALUES (?, ?, ?)
	`, scope.ID(), domainName, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// TouchCompany bumps a company's aggregate email count and contact span.
func (s *Store) TouchCompany(ctx context.Context, scope tenant.Scope, companyID int64, seenAt interface{}) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE companies SET total_emails = total_emails + 1,
		       first_contact = COALESCE(first_contact, ?),
		       last_contact = ?
		WHERE tenant_id = ? AND id = ?
	`, seenAt, seenAt, scope.ID(), companyID)
	return err
}
