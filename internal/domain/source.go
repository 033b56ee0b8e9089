// Package domain holds the plain data entities persisted by this system —
// exported structs with explicit fields, no duck-typed maps, matching how
// row data is modeled elsewhere in this codebase.
package domain

import "time"

// SourceKind enumerates where a Source's messages originated.
type SourceKind string

const (
	SourceKindGmail   SourceKind = "gmail"
	SourceKindOutlook SourceKind = "outlook"
	SourceKindMbox    SourceKind = "mbox"
	SourceKindPST     SourceKind = "pst"
	SourceKindAPI     SourceKind = "api"
)

// SourceStatus is the ingestion lifecycle state of a Source.
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusCompleted  SourceStatus = "completed"
	SourceStatusFailed     SourceStatus = "failed"
)

// Source is one ingested mail archive for a tenant.
type Source struct {
	ID                int64
	TenantID          string
	Name              string
	Kind              SourceKind
	FileName          string
	Status            SourceStatus
	Expected          int64
	Succeeded         int64
	Failed            int64
	IncludedInSearch  bool
	Error             string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
}

// Complete reports whether status=completed implies its accounting invariant:
// succeeded+failed >= expected && expected > 0.
func (s *Source) Complete() bool {
	return s.Status == SourceStatusCompleted && s.Expected > 0 && s.Succeeded+s.Failed >= s.Expected
}
