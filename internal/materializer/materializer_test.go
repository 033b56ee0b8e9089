package materializer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"hybridmail/internal/domain"
	"hybridmail/internal/tenant"
)

var tenantA = tenant.MustScope("tenant-a")

type fakeStore struct {
	mu         sync.Mutex
	contacts   map[string]domain.Contact
	companies  map[string]domain.Company
	messages   map[string]domain.Message
	nextID     int64
	recipients []domain.Recipient
	succeeded  int64
	failed     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts:  make(map[string]domain.Contact),
		companies: make(map[string]domain.Company),
		messages:  make(map[string]domain.Message),
	}
}

func (s *fakeStore) alloc() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) FindContactsByEmail(ctx context.Context, scope tenant.Scope, emails []string) (map[string]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Contact)
	for _, e := range emails {
		if c, ok := s.contacts[e]; ok {
			out[e] = c
		}
	}
	return out, nil
}

func (s *fakeStore) CreateContact(ctx context.Context, scope tenant.Scope, email, name string, companyID *int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.alloc()
	s.contacts[email] = domain.Contact{ID: id, TenantID: scope.ID(), Email: email, Name: name, CompanyID: companyID}
	return id, nil
}

func (s *fakeStore) TouchContact(ctx context.Context, scope tenant.Scope, contactID int64, seenAt interface{}) error {
	return nil
}

func (s *fakeStore) FindCompanyByDomain(ctx context.Context, scope tenant.Scope, domainName string) (domain.Company, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[domainName]
	return c, ok, nil
}

func (s *fakeStore) CreateCompany(ctx context.Context, scope tenant.Scope, domainName, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.companies[domainName]; ok {
		return c.ID, nil
	}
	id := s.alloc()
	s.companies[domainName] = domain.Company{ID: id, TenantID: scope.ID(), Domain: domainName, Name: name}
	return id, nil
}

func (s *fakeStore) TouchCompany(ctx context.Context, scope tenant.Scope, companyID int64, seenAt interface{}) error {
	return nil
}

func (s *fakeStore) FindThreadID(ctx context.Context, scope tenant.Scope, hints domain.ThreadHints) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := hints.References
	if hints.InReplyTo != "" {
		candidates = append([]string{hints.InReplyTo}, candidates...)
	}
	for _, ref := range candidates {
		if m, ok := s.messages[scope.ID()+"|"+ref]; ok {
			if m.ThreadID != nil {
				return m.ThreadID, nil
			}
			id := m.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpsertMessage(ctx context.Context, msg domain.Message) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := msg.TenantID + "|" + msg.MessageID
	if existing, ok := s.messages[key]; ok {
		return existing.ID, false, nil
	}
	msg.ID = s.alloc()
	s.messages[key] = msg
	return msg.ID, true, nil
}

func (s *fakeStore) InsertRecipients(ctx context.Context, recipients []domain.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = append(s.recipients, recipients...)
	return nil
}

func (s *fakeStore) IncrementCounters(ctx context.Context, scope tenant.Scope, sourceID int64, succeededDelta, failedDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded += succeededDelta
	s.failed += failedDelta
	return nil
}

type fakeVectors struct {
	mu      sync.Mutex
	entries []domain.VectorEntry
}

func (v *fakeVectors) UpsertBatch(ctx context.Context, entries []domain.VectorEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = append(v.entries, entries...)
	return nil
}

type fakeModels struct {
	calls int
}

func (m *fakeModels) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func newTestMaterializer() (*Materializer, *fakeStore, *fakeVectors, *fakeModels) {
	store := newFakeStore()
	vectors := &fakeVectors{}
	models := &fakeModels{}
	return &Materializer{Store: store, Vectors: vectors, Models: models}, store, vectors, models
}

func TestMaterializeBatch_NewContactAndCompany(t *testing.T) {
	m, store, vectors, models := newTestMaterializer()
	ctx := context.Background()

	msg := domain.ParsedMessage{
		MessageID: "<m1@acme.com>",
		Subject:   "hello",
		FromEmail: "alice@acme.com",
		FromName:  "Alice",
		To:        []domain.Address{{Email: "bob@example.com"}},
		SentAt:    time.Now(),
		BodyText:  "hi bob",
	}

	result, err := m.MaterializeBatch(ctx, tenantA, 1, []domain.ParsedMessage{msg})
	if err != nil {
		t.Fatalf("MaterializeBatch: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}

	alice, ok := store.contacts["alice@acme.com"]
	if !ok {
		t.Fatal("expected alice contact to be created")
	}
	if alice.CompanyID == nil {
		t.Fatal("expected alice's company to be set")
	}
	company := store.companies["acme.com"]
	if company.Name != "Acme" {
		t.Errorf("company name = %q, want Acme", company.Name)
	}

	bob, ok := store.contacts["bob@example.com"]
	if !ok {
		t.Fatal("expected bob contact to be created")
	}
	if bob.CompanyID == nil {
		t.Fatal("expected bob's company (example.com) to be set")
	}

	if len(store.recipients) != 1 || store.recipients[0].Role != domain.RecipientTo {
		t.Errorf("recipients = %+v", store.recipients)
	}
	if models.calls != 1 {
		t.Errorf("expected one embedding batch call, got %d", models.calls)
	}
	if len(vectors.entries) != 1 {
		t.Errorf("expected one vector entry, got %d", len(vectors.entries))
	}
	if store.succeeded != 1 || store.failed != 0 {
		t.Errorf("counters succeeded=%d failed=%d", store.succeeded, store.failed)
	}
}

func TestMaterializeBatch_FreeWebmailSkipsCompany(t *testing.T) {
	m, store, _, _ := newTestMaterializer()
	ctx := context.Background()

	msg := domain.ParsedMessage{
		MessageID: "<m2@gmail.com>",
		FromEmail: "carol@gmail.com",
		SentAt:    time.Now(),
	}
	if _, err := m.MaterializeBatch(ctx, tenantA, 1, []domain.ParsedMessage{msg}); err != nil {
		t.Fatalf("MaterializeBatch: %v", err)
	}
	carol := store.contacts["carol@gmail.com"]
	if carol.CompanyID != nil {
		t.Errorf("expected no company for free-webmail sender, got %v", *carol.CompanyID)
	}
	if len(store.companies) != 0 {
		t.Errorf("expected no companies created, got %d", len(store.companies))
	}
}

func TestMaterializeBatch_DuplicateMessageIsIdempotent(t *testing.T) {
	m, store, vectors, models := newTestMaterializer()
	ctx := context.Background()

	msg := domain.ParsedMessage{
		MessageID: "<dup@acme.com>",
		FromEmail: "alice@acme.com",
		SentAt:    time.Now(),
	}

	if _, err := m.MaterializeBatch(ctx, tenantA, 1, []domain.ParsedMessage{msg}); err != nil {
		t.Fatalf("first MaterializeBatch: %v", err)
	}
	if models.calls != 1 {
		t.Fatalf("expected embedding after first insert, got %d calls", models.calls)
	}

	result, err := m.MaterializeBatch(ctx, tenantA, 1, []domain.ParsedMessage{msg})
	if err != nil {
		t.Fatalf("second MaterializeBatch: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("result on duplicate = %+v", result)
	}
	if models.calls != 1 {
		t.Errorf("expected no additional embedding call on duplicate, got %d total", models.calls)
	}
	if len(vectors.entries) != 1 {
		t.Errorf("expected no additional vector entries on duplicate, got %d", len(vectors.entries))
	}
}

func TestMaterializeBatch_ThreadResolutionViaInReplyTo(t *testing.T) {
	m, store, _, _ := newTestMaterializer()
	ctx := context.Background()

	parent := domain.ParsedMessage{
		MessageID: "<parent@acme.com>",
		FromEmail: "alice@acme.com",
		SentAt:    time.Now(),
	}
	if _, err := m.MaterializeBatch(ctx, tenantA, 1, []domain.ParsedMessage{parent}); err != nil {
		t.Fatalf("materialize parent: %v", err)
	}
	parentID := store.messages["tenant-a|<parent@acme.com>"].ID

	reply := domain.ParsedMessage{
		MessageID:   "<reply@acme.com>",
		FromEmail:   "alice@acme.com",
		SentAt:      time.Now(),
		ThreadHints: domain.ThreadHints{InReplyTo: "<parent@acme.com>"},
	}
	if _, err := m.MaterializeBatch(ctx, tenantA, 1, []domain.ParsedMessage{reply}); err != nil {
		t.Fatalf("materialize reply: %v", err)
	}

	replyMsg := store.messages["tenant-a|<reply@acme.com>"]
	if replyMsg.ThreadID == nil || *replyMsg.ThreadID != parentID {
		t.Errorf("reply thread id = %v, want %d", replyMsg.ThreadID, parentID)
	}
}

func TestCompanyDomainAndName(t *testing.T) {
	cases := []struct {
		email      string
		wantDomain string
		wantName   string
		wantOK     bool
	}{
		{"alice@acme.com", "acme.com", "Acme", true},
		{"bob@gmail.com", "", "", false},
		{"x@sub.example.org", "sub.example.org", "Example", true},
		{"invalid-email", "", "", false},
	}
	for _, tc := range cases {
		gotDomain, gotName, gotOK := companyDomainAndName(tc.email)
		if gotOK != tc.wantOK {
			t.Errorf("%s: ok = %v, want %v", tc.email, gotOK, tc.wantOK)
			continue
		}
		if !gotOK {
			continue
		}
		if gotDomain != tc.wantDomain || gotName != tc.wantName {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tc.email, gotDomain, gotName, tc.wantDomain, tc.wantName)
		}
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("acme-corp"); got != "Acme Corp" {
		t.Errorf("titleCase(acme-corp) = %q", got)
	}
	if got := titleCase(""); got != "" {
		t.Errorf("titleCase(empty) = %q", got)
	}
}

func TestCollectAddresses_Dedup(t *testing.T) {
	messages := []domain.ParsedMessage{
		{FromEmail: "A@Acme.com", To: []domain.Address{{Email: "bob@example.com"}}},
		{FromEmail: "a@acme.com", To: []domain.Address{{Email: "bob@example.com"}}},
	}
	addrs := collectAddresses(messages)
	if len(addrs) != 2 {
		t.Fatalf("expected 2 unique addresses, got %d: %+v", len(addrs), addrs)
	}
	for _, a := range addrs {
		if a.Email != strings.ToLower(a.Email) {
			t.Errorf("address %q not lowercased", a.Email)
		}
	}
}
