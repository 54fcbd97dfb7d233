package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, isNotFound(nil))
	assert.False(t, isNotFound(errors.New("boom")))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&types.NotFound{}))
}

func TestArchivePath(t *testing.T) {
	until := time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "archive/decisions/2026-10-14T10.jsonl", archivePath("decisions", until))
}

type memWriter struct {
	objects   map[string][]byte
	multipart []string
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[path] = b
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart = append(m.multipart, path)
	return m.Put(ctx, path, data, "")
}

type pagedDecisions struct {
	recs  []domain.DecisionRecord
	calls []domain.ListOpts
}

func (p *pagedDecisions) RecordDecision(context.Context, domain.DecisionRecord) error { return nil }

func (p *pagedDecisions) ListDecisions(_ context.Context, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	p.calls = append(p.calls, opts)
	if opts.Offset >= len(p.recs) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(p.recs))
	return p.recs[opts.Offset:end], nil
}

func TestArchiveDecisionsPagesAndUploadsJSONL(t *testing.T) {
	store := &pagedDecisions{}
	for i := range archivePageSize + 5 {
		store.recs = append(store.recs, domain.DecisionRecord{
			RecipeKind: domain.RecipeStock,
			Result:     domain.ResultYes,
			Reasoning:  fmt.Sprintf("r%d", i),
		})
	}
	w := &memWriter{}
	a := NewArchiver(w, store, nil)

	since := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)
	n, err := a.ArchiveDecisions(context.Background(), since, until)
	require.NoError(t, err)
	assert.Equal(t, archivePageSize+5, n)
	require.Len(t, store.calls, 2)
	assert.Equal(t, archivePageSize, store.calls[1].Offset)

	body := w.objects["archive/decisions/2026-10-14T10.jsonl"]
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, archivePageSize+5)
	var first domain.DecisionRecord
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(lines[0]))).Decode(&first))
	assert.Equal(t, "r0", first.Reasoning)
	assert.Empty(t, w.multipart)
}

func TestArchiveSkipsEmptyAndNilStores(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, &pagedDecisions{}, nil)
	now := time.Now()

	n, err := a.ArchiveDecisions(context.Background(), now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = a.ArchiveExecutions(context.Background(), now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}
