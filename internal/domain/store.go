package domain

import (
	"context"
	"io"
	"time"
)

// OrderJournalEntry is one row in the order journal: a submission attempt
// plus whatever terminal outcome it reached. Journal writes are best-effort
// side effects of execution; a journal failure never fails the order.
type OrderJournalEntry struct {
	ClientOrderID string
	ExternalID    string
	Venue         string
	Symbol        string
	Side          Side
	Kind          OrderKind
	Size          float64
	Price         float64
	State         OrderState
	ExecutedQty   float64
	AvgPrice      float64
	Attempts      int
	SubmittedAt   time.Time
	ResolvedAt    *time.Time
}

// OrderJournal persists submission attempts and their outcomes.
type OrderJournal interface {
	// RecordSubmission inserts a new journal row for a fresh submission.
	RecordSubmission(ctx context.Context, e OrderJournalEntry) error
	// RecordOutcome updates the row for clientOrderID with its terminal
	// state. Returns ErrNotFound when no submission was recorded.
	RecordOutcome(ctx context.Context, clientOrderID string, res ExecutionResult) error
	// ListBefore returns entries submitted strictly before the cutoff,
	// oldest first. Used by the archiver.
	ListBefore(ctx context.Context, before time.Time) ([]OrderJournalEntry, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged journal entries to blob storage.
type Archiver interface {
	// ArchiveBefore archives all entries older than cutoff and returns the
	// number archived and the blob path written (empty when nothing matched).
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int, string, error)
}

// Deduper guards against double-submitting the same logical order, e.g.
// when a caller retries after a process restart.
type Deduper interface {
	// Seen records key and reports whether it was already recorded within
	// the dedup window.
	Seen(ctx context.Context, key string) (bool, error)
}
