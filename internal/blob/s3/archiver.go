package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// archivePageSize bounds each store query made while archiving.
const archivePageSize = 1000

// Archiver copies persisted decision and execution records for a time
// window to object storage as JSONL. Records are not removed from the
// primary store.
type Archiver struct {
	writer     domain.BlobWriter
	decisions  domain.DecisionRecordStore
	executions domain.ExecutionStore
}

// NewArchiver creates an Archiver. Either store may be nil to skip it.
func NewArchiver(writer domain.BlobWriter, decisions domain.DecisionRecordStore, executions domain.ExecutionStore) *Archiver {
	return &Archiver{writer: writer, decisions: decisions, executions: executions}
}

// ArchiveDecisions uploads every decision recorded in [since, until] and
// returns how many were written.
func (a *Archiver) ArchiveDecisions(ctx context.Context, since, until time.Time) (int, error) {
	if a.decisions == nil {
		return 0, nil
	}
	recs, err := collect(ctx, since, until, a.decisions.ListDecisions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions query: %w", err)
	}
	return len(recs), upload(ctx, a.writer, "decisions", until, recs)
}

// ArchiveExecutions uploads every execution started in [since, until] and
// returns how many were written.
func (a *Archiver) ArchiveExecutions(ctx context.Context, since, until time.Time) (int, error) {
	if a.executions == nil {
		return 0, nil
	}
	recs, err := collect(ctx, since, until, a.executions.ListExecutions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	return len(recs), upload(ctx, a.writer, "executions", until, recs)
}

func upload[T any](ctx context.Context, w domain.BlobWriter, kind string, until time.Time, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	buf, err := marshalJSONL(recs)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}
	path := archivePath(kind, until)
	if int64(len(buf)) > minPartSize {
		err = w.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = w.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}
	return nil
}

// collect pages through list until a short page is returned.
func collect[T any](ctx context.Context, since, until time.Time, list func(context.Context, domain.ListOpts) ([]T, error)) ([]T, error) {
	var out []T
	opts := domain.ListOpts{Limit: archivePageSize, Since: &since, Until: &until}
	for {
		page, err := list(ctx, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < archivePageSize {
			return out, nil
		}
		opts.Offset += len(page)
	}
}

// archivePath partitions archives by the hour the window closes:
//
//	archive/decisions/2026-10-14T10.jsonl
func archivePath(kind string, until time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, until.UTC().Format("2006-01-02T15"))
}

// marshalJSONL encodes each record as one compact JSON line.
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
