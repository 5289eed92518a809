package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// Archiver implements domain.Archiver: it queries the order journal for
// entries older than a cutoff, serialises them to JSONL and uploads the
// batch to blob storage.
//
// Deletion of archived rows from the journal is intentionally not performed
// here. That is a separate, explicit step to run after the archive has been
// verified.
type Archiver struct {
	writer  *Writer
	journal domain.OrderJournal
}

// NewArchiver creates an Archiver reading from journal and writing through
// writer.
func NewArchiver(writer *Writer, journal domain.OrderJournal) *Archiver {
	return &Archiver{
		writer:  writer,
		journal: journal,
	}
}

// ArchiveBefore uploads all journal entries submitted before cutoff as one
// JSONL object and returns the count and blob path. A cutoff with no
// matching entries is a no-op with an empty path.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, string, error) {
	entries, err := a.journal.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(entries) == 0 {
		return 0, "", nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(cutoff)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive upload: %w", err)
	}

	return len(entries), path, nil
}

// archivePath builds the S3 key for an archive batch, partitioned by the
// year-month of the cutoff:
//
//	archive/orders/2026-08.jsonl
func archivePath(cutoff time.Time) string {
	return fmt.Sprintf("archive/orders/%s.jsonl", cutoff.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
