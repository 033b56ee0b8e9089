package domain

import "time"

// VectorEntry is one row in the vector store, keyed by message id.
type VectorEntry struct {
	MessageID int64
	Values    []float32
	Metadata  VectorMetadata
}

// VectorMetadata is persisted alongside a vector's raw values so dense
// retrieval can verify tenant ownership without a relational round trip in
// the common case (a secondary relational check still runs, per the data
// model's anti-staleness rule).
type VectorMetadata struct {
	TenantID  string    `json:"tenant_id"`
	MessageID int64     `json:"message_id"`
	Subject   string    `json:"subject"`
	SentAt    time.Time `json:"sent_at"`
	FromEmail string    `json:"from_email"`
}
