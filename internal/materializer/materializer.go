// Package materializer turns parsed email messages into durable relational
// rows, contacts, companies, and vector embeddings. It is the write side of
// the ingestion pipeline: everything it does is idempotent on message_id so
// at-least-once queue delivery never double-counts.
package materializer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hybridmail/internal/concurrency"
	"hybridmail/internal/domain"
	"hybridmail/internal/modelruntime"
	"hybridmail/internal/tenant"
)

// contactBatchSize bounds how many addresses go into one FindContactsByEmail
// call, well under that helper's own internal chunk size.
const contactBatchSize = 50

// creationConcurrency bounds parallel contact/company creation.
const creationConcurrency = 10

// Store is the subset of the relational store the materializer needs.
type Store interface {
	FindContactsByEmail(ctx context.Context, scope tenant.Scope, emails []string) (map[string]domain.Contact, error)
	CreateContact(ctx context.Context, scope tenant.Scope, email, name string, companyID *int64) (int64, error)
	TouchContact(ctx context.Context, scope tenant.Scope, contactID int64, seenAt interface{}) error
	FindCompanyByDomain(ctx context.Context, scope tenant.Scope, domainName string) (domain.Company, bool, error)
	CreateCompany(ctx context.Context, scope tenant.Scope, domainName, name string) (int64, error)
	TouchCompany(ctx context.Context, scope tenant.Scope, companyID int64, seenAt interface{}) error
	FindThreadID(ctx context.Context, scope tenant.Scope, hints domain.ThreadHints) (*int64, error)
	UpsertMessage(ctx context.Context, msg domain.Message) (id int64, inserted bool, err error)
	InsertRecipients(ctx context.Context, recipients []domain.Recipient) error
	IncrementCounters(ctx context.Context, scope tenant.Scope, sourceID int64, succeededDelta, failedDelta int64) error
}

// VectorStore is the subset of the embedding store the materializer needs.
type VectorStore interface {
	UpsertBatch(ctx context.Context, entries []domain.VectorEntry) error
}

// ModelRuntime is the subset of the model-backed runtime the materializer
// needs for step 8.
type ModelRuntime interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Materializer implements the parallel email materializer.
type Materializer struct {
	Store   Store
	Vectors VectorStore
	Models  ModelRuntime
	Log     zerolog.Logger

	companyMu sync.Mutex
}

// Result is the outcome of materializing one batch.
type Result struct {
	Processed int
	Failed    int
	Errors    []error
}

// materialized is the bookkeeping the materializer carries per message
// between steps 3 and 8, once it is known whether the message is new.
type materialized struct {
	id          int64
	fromContact int64
	fromCompany *int64
	parsed      domain.ParsedMessage
}

// MaterializeBatch runs the full algorithm over a set of messages that share
// (tenantID, sourceID): contact/company resolution, thread resolution,
// idempotent message + recipient insertion, aggregate counters, and batched
// embedding. It never returns an error for a single bad message; per-message
// failures are reflected in the returned Result, not the error return. A
// non-nil error means a failure affecting the whole batch (a store outage),
// and the caller should leave the queue message unacked for retry.
func (m *Materializer) MaterializeBatch(ctx context.Context, scope tenant.Scope, sourceID int64, messages []domain.ParsedMessage) (Result, error) {
	if len(messages) == 0 {
		return Result{}, nil
	}

	contactsByEmail, err := m.resolveContacts(ctx, scope, messages)
	if err != nil {
		return Result{}, fmt.Errorf("materializer: resolve contacts: %w", err)
	}

	result := Result{}
	var newlyInserted []materialized
	var recipients []domain.Recipient

	for _, parsed := range messages {
		fromContact, ok := contactsByEmail[strings.ToLower(parsed.FromEmail)]
		if !ok {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("materializer: no contact resolved for sender %s", parsed.FromEmail))
			continue
		}

		threadID, err := m.Store.FindThreadID(ctx, scope, parsed.ThreadHints)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("materializer: resolve thread for %s: %w", parsed.MessageID, err))
			continue
		}

		msg := domain.Message{
			TenantID:      scope.ID(),
			SourceID:      sourceID,
			MessageID:     parsed.MessageID,
			ThreadID:      threadID,
			Subject:       parsed.Subject,
			BodyText:      parsed.BodyText,
			BodyHTML:      parsed.BodyHTML,
			SentAt:        parsed.SentAt,
			FromContactID: fromContact.ID,
		}
		id, inserted, err := m.Store.UpsertMessage(ctx, msg)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("materializer: upsert message %s: %w", parsed.MessageID, err))
			continue
		}
		if !inserted {
			// Already materialized by a prior delivery; steps 5-8 are skipped.
			result.Processed++
			continue
		}

		for _, to := range parsed.To {
			if c, ok := contactsByEmail[strings.ToLower(to.Email)]; ok {
				recipients = append(recipients, domain.Recipient{MessageID: id, ContactID: c.ID, Role: domain.RecipientTo})
			}
		}
		for _, cc := range parsed.Cc {
			if c, ok := contactsByEmail[strings.ToLower(cc.Email)]; ok {
				recipients = append(recipients, domain.Recipient{MessageID: id, ContactID: c.ID, Role: domain.RecipientCc})
			}
		}

		newlyInserted = append(newlyInserted, materialized{
			id: id, fromContact: fromContact.ID, fromCompany: fromContact.CompanyID, parsed: parsed,
		})
		result.Processed++
	}

	if len(recipients) > 0 {
		if err := m.Store.InsertRecipients(ctx, recipients); err != nil {
			m.Log.Error().Err(err).Int64("source_id", sourceID).Msg("insert recipients failed")
		}
	}

	for _, mat := range newlyInserted {
		if err := m.touchSender(ctx, scope, mat.fromContact, mat.fromCompany, mat.parsed.SentAt); err != nil {
			m.Log.Warn().Err(err).Str("message_id", mat.parsed.MessageID).Msg("touch sender aggregates failed")
		}
	}

	if len(newlyInserted) > 0 {
		m.embedBatch(ctx, scope, newlyInserted)
	}

	if err := m.Store.IncrementCounters(ctx, scope, sourceID, int64(result.Processed), int64(result.Failed)); err != nil {
		return result, fmt.Errorf("materializer: increment source counters: %w", err)
	}

	return result, nil
}

// resolveContacts runs steps 1 and 2: find existing contacts for every
// address referenced by the batch, then create the ones missing, deriving
// companies along the way.
func (m *Materializer) resolveContacts(ctx context.Context, scope tenant.Scope, messages []domain.ParsedMessage) (map[string]domain.Contact, error) {
	addresses := collectAddresses(messages)

	found := make(map[string]domain.Contact, len(addresses))
	emails := make([]string, len(addresses))
	for i, a := range addresses {
		emails[i] = a.Email
	}
	for _, batch := range concurrency.Batches(emails, contactBatchSize) {
		hits, err := m.Store.FindContactsByEmail(ctx, scope, batch)
		if err != nil {
			return nil, err
		}
		for email, c := range hits {
			found[email] = c
		}
	}

	var missing []string
	for _, a := range addresses {
		if _, ok := found[a.Email]; !ok {
			missing = append(missing, a.Email)
		}
	}

	var mu sync.Mutex
	namesByEmail := addressNames(messages)
	err := concurrency.ForEachBounded(ctx, len(missing), creationConcurrency, func(ctx context.Context, i int) error {
		email := missing[i]
		contact, err := m.createContact(ctx, scope, email, namesByEmail[email])
		if err != nil {
			return fmt.Errorf("create contact %s: %w", email, err)
		}
		mu.Lock()
		found[email] = contact
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

func (m *Materializer) createContact(ctx context.Context, scope tenant.Scope, email, name string) (domain.Contact, error) {
	var companyID *int64
	if domainKey, companyName, ok := companyDomainAndName(email); ok {
		id, err := m.resolveCompany(ctx, scope, domainKey, companyName)
		if err != nil {
			return domain.Contact{}, err
		}
		companyID = &id
	}
	id, err := m.Store.CreateContact(ctx, scope, email, name, companyID)
	if err != nil {
		return domain.Contact{}, err
	}
	return domain.Contact{ID: id, TenantID: scope.ID(), Email: email, Name: name, CompanyID: companyID}, nil
}

// resolveCompany finds or creates the company for a domain, serializing
// creation so two concurrent contact creations for the same new domain don't
// race each other into a unique-constraint violation.
func (m *Materializer) resolveCompany(ctx context.Context, scope tenant.Scope, domainKey, name string) (int64, error) {
	m.companyMu.Lock()
	defer m.companyMu.Unlock()

	if existing, ok, err := m.Store.FindCompanyByDomain(ctx, scope, domainKey); err != nil {
		return 0, err
	} else if ok {
		return existing.ID, nil
	}
	return m.Store.CreateCompany(ctx, scope, domainKey, name)
}

func (m *Materializer) touchSender(ctx context.Context, scope tenant.Scope, contactID int64, companyID *int64, sentAt time.Time) error {
	if err := m.Store.TouchContact(ctx, scope, contactID, sentAt); err != nil {
		return err
	}
	if companyID == nil {
		return nil
	}
	return m.Store.TouchCompany(ctx, scope, *companyID, sentAt)
}

func (m *Materializer) embedBatch(ctx context.Context, scope tenant.Scope, batch []materialized) {
	inputs := make([]string, len(batch))
	for i, mat := range batch {
		inputs[i] = modelruntime.ComposeEmbeddingInput(mat.parsed.Subject, mat.parsed.BodyText)
	}
	vectors, err := m.Models.EmbedBatch(ctx, inputs)
	if err != nil {
		m.Log.Warn().Err(err).Str("tenant_id", scope.ID()).Int("count", len(batch)).Msg("embedding batch failed")
		return
	}
	entries := make([]domain.VectorEntry, 0, len(batch))
	for i, mat := range batch {
		if i >= len(vectors) {
			break
		}
		entries = append(entries, domain.VectorEntry{
			MessageID: mat.id,
			Values:    vectors[i],
			Metadata: domain.VectorMetadata{
				TenantID:  scope.ID(),
				MessageID: mat.id,
				Subject:   mat.parsed.Subject,
				SentAt:    mat.parsed.SentAt,
				FromEmail: mat.parsed.FromEmail,
			},
		})
	}
	if err := m.Vectors.UpsertBatch(ctx, entries); err != nil {
		m.Log.Warn().Err(err).Str("tenant_id", scope.ID()).Int("count", len(entries)).Msg("vector upsert failed")
	}
}

// collectAddresses returns the deduplicated, lowercased set of every address
// (sender, to, cc) referenced across a batch of messages.
func collectAddresses(messages []domain.ParsedMessage) []domain.Address {
	seen := make(map[string]bool)
	var out []domain.Address
	add := func(a domain.Address) {
		email := strings.ToLower(a.Email)
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		out = append(out, domain.Address{Name: a.Name, Email: email})
	}
	for _, msg := range messages {
		add(domain.Address{Name: msg.FromName, Email: msg.FromEmail})
		for _, a := range msg.To {
			add(a)
		}
		for _, a := range msg.Cc {
			add(a)
		}
	}
	return out
}

// addressNames maps each lowercased address to the first non-empty display
// name seen for it across the batch, used to set a new contact's name.
func addressNames(messages []domain.ParsedMessage) map[string]string {
	names := make(map[string]string)
	set := func(a domain.Address) {
		email := strings.ToLower(a.Email)
		if email == "" {
			return
		}
		if _, ok := names[email]; !ok && a.Name != "" {
			names[email] = a.Name
		}
	}
	for _, msg := range messages {
		set(domain.Address{Name: msg.FromName, Email: msg.FromEmail})
		for _, a := range msg.To {
			set(a)
		}
		for _, a := range msg.Cc {
			set(a)
		}
	}
	return names
}
