package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/store/memory"
)

// captureWriter records uploads in memory.
type captureWriter struct {
	puts       map[string]capturedPut
	multiparts int
}

type capturedPut struct {
	body        []byte
	contentType string
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{puts: make(map[string]capturedPut)}
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = capturedPut{body: body, contentType: contentType}
	return nil
}

func (w *captureWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.multiparts++
	w.puts[path] = capturedPut{body: body, contentType: "application/x-ndjson"}
	return nil
}

var _ domain.BlobWriter = (*captureWriter)(nil)

// captureReader serves the captureWriter's uploads back.
type captureReader struct {
	writer *captureWriter
}

func (r *captureReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	put, ok := r.writer.puts[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(put.body)), nil
}

func (r *captureReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, put := range r.writer.puts {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(put.body))})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

var _ domain.BlobReader = (*captureReader)(nil)

func TestArchiveSnapshotsExportsVerifiedOnly(t *testing.T) {
	ctx := context.Background()
	writer := newCaptureWriter()
	snaps := memory.NewSnapshotStore()
	audit := memory.NewAuditStore()
	archiver := NewArchiver(writer, &captureReader{writer: writer}, snaps, memory.NewTradeStore(), audit)

	old := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, snaps.Create(ctx, domain.PnLSnapshot{
		ID: "s-verified", Owner: "acct-1", Kind: domain.SnapshotDaily,
		Period:     domain.Period{Start: old, End: old.Add(24 * time.Hour)},
		TotalPnL:   125.5,
		MerkleRoot: []byte{0xde, 0xad, 0xbe, 0xef},
		CreatedAt:  old,
	}))
	require.NoError(t, snaps.MarkVerified(ctx, "s-verified"))
	require.NoError(t, snaps.Create(ctx, domain.PnLSnapshot{
		ID: "s-unverified", Owner: "acct-1", Kind: domain.SnapshotDaily, CreatedAt: old,
	}))
	require.NoError(t, snaps.Create(ctx, domain.PnLSnapshot{
		ID: "s-recent", Owner: "acct-1", Kind: domain.SnapshotDaily,
		CreatedAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, snaps.MarkVerified(ctx, "s-recent"))

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	count, err := archiver.ArchiveSnapshots(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	put, ok := writer.puts["archive/snapshots/2026-06.jsonl"]
	require.True(t, ok, "uploaded under the cutoff's year-month partition")
	assert.Equal(t, "application/x-ndjson", put.contentType)
	assert.Zero(t, writer.multiparts, "small export uses a single put")

	lines := jsonlLines(t, put.body)
	require.Len(t, lines, 1)
	assert.Equal(t, "s-verified", lines[0]["id"])
	assert.Equal(t, "daily", lines[0]["kind"])
	assert.Equal(t, hex.EncodeToString([]byte{0xde, 0xad, 0xbe, 0xef}), lines[0]["merkle_root"])
	assert.InDelta(t, 125.5, lines[0]["total_pnl"].(float64), 1e-9)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.snapshots", entries[0].Event)
	assert.Equal(t, "archive/snapshots/2026-06.jsonl", entries[0].Detail["path"])
}

func TestArchiveSnapshotsNoRecordsNoUpload(t *testing.T) {
	writer := newCaptureWriter()
	archiver := NewArchiver(writer, &captureReader{writer: writer}, memory.NewSnapshotStore(), memory.NewTradeStore(), memory.NewAuditStore())

	count, err := archiver.ArchiveSnapshots(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts)
}

func TestArchiveTradesCutoffIsExclusive(t *testing.T) {
	ctx := context.Background()
	writer := newCaptureWriter()
	trades := memory.NewTradeStore()
	archiver := NewArchiver(writer, &captureReader{writer: writer}, memory.NewSnapshotStore(), trades, memory.NewAuditStore())

	cutoff := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, trades.InsertBatch(ctx, []domain.Trade{
		{ID: "t-old", Owner: "acct-1", Symbol: "BTC-USD", Side: domain.SideBuy, Timestamp: cutoff.Add(-time.Hour)},
		{ID: "t-at-cutoff", Owner: "acct-1", Symbol: "BTC-USD", Side: domain.SideSell, Timestamp: cutoff},
	}))

	count, err := archiver.ArchiveTrades(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	put, ok := writer.puts["archive/trades/2026-07.jsonl"]
	require.True(t, ok)
	lines := jsonlLines(t, put.body)
	require.Len(t, lines, 1)
	assert.Equal(t, "t-old", lines[0]["ID"])
}

func TestVerifyArchiveMatchesStoredRoots(t *testing.T) {
	ctx := context.Background()
	writer := newCaptureWriter()
	snaps := memory.NewSnapshotStore()
	audit := memory.NewAuditStore()
	archiver := NewArchiver(writer, &captureReader{writer: writer}, snaps, memory.NewTradeStore(), audit)

	old := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"s-1", "s-2"} {
		require.NoError(t, snaps.Create(ctx, domain.PnLSnapshot{
			ID: id, Owner: "acct-1", Kind: domain.SnapshotDaily,
			MerkleRoot: []byte(id + "-root"),
			CreatedAt:  old,
		}))
		require.NoError(t, snaps.MarkVerified(ctx, id))
	}

	_, err := archiver.ArchiveSnapshots(ctx, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	checked, mismatched, err := archiver.VerifyArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), checked)
	assert.Zero(t, mismatched)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	var verifyEvents int
	for _, e := range entries {
		if e.Event == "archive.verify" {
			verifyEvents++
			assert.Equal(t, int64(2), e.Detail["checked"])
			assert.Equal(t, int64(0), e.Detail["mismatched"])
		}
	}
	assert.Equal(t, 1, verifyEvents)
}

func TestVerifyArchiveDetectsMismatchedRoot(t *testing.T) {
	ctx := context.Background()
	writer := newCaptureWriter()
	snaps := memory.NewSnapshotStore()
	archiver := NewArchiver(writer, &captureReader{writer: writer}, snaps, memory.NewTradeStore(), memory.NewAuditStore())

	old := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, snaps.Create(ctx, domain.PnLSnapshot{
		ID: "s-1", Owner: "acct-1", Kind: domain.SnapshotDaily,
		MerkleRoot: []byte("original-root"),
		CreatedAt:  old,
	}))
	require.NoError(t, snaps.MarkVerified(ctx, "s-1"))

	_, err := archiver.ArchiveSnapshots(ctx, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Corrupt the uploaded object in place.
	path := "archive/snapshots/2026-05.jsonl"
	put := writer.puts[path]
	tampered := bytes.Replace(put.body,
		[]byte(hex.EncodeToString([]byte("original-root"))),
		[]byte(hex.EncodeToString([]byte("tampered-root"))), 1)
	require.NotEqual(t, put.body, tampered)
	writer.puts[path] = capturedPut{body: tampered, contentType: put.contentType}

	checked, mismatched, err := archiver.VerifyArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), checked)
	assert.Equal(t, int64(1), mismatched)
}

func TestVerifyArchiveSkipsDeletedSnapshots(t *testing.T) {
	ctx := context.Background()
	writer := newCaptureWriter()
	snaps := memory.NewSnapshotStore()
	archiver := NewArchiver(writer, &captureReader{writer: writer}, snaps, memory.NewTradeStore(), memory.NewAuditStore())

	// An archive object referencing a snapshot the primary store no longer
	// holds is counted as checked but not mismatched.
	rec := snapshotRecord{ID: "s-gone", Owner: "acct-1", Kind: "daily", MerkleRoot: "00ff"}
	body, err := marshalJSONL([]snapshotRecord{rec})
	require.NoError(t, err)
	writer.puts["archive/snapshots/2026-03.jsonl"] = capturedPut{body: body, contentType: "application/x-ndjson"}

	checked, mismatched, err := archiver.VerifyArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), checked)
	assert.Zero(t, mismatched)
}

func jsonlLines(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}
