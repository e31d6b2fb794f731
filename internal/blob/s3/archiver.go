package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// multipartThreshold is the payload size above which archive uploads switch
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// SnapshotArchiveStore provides read access to snapshots for archival
// purposes. The archiver only exports verified snapshots so the uploaded
// records carry roots that have already been re-derived and checked.
type SnapshotArchiveStore interface {
	GetByID(ctx context.Context, id string) (domain.PnLSnapshot, error)
	ListVerifiedBefore(ctx context.Context, before time.Time) ([]domain.PnLSnapshot, error)
}

// TradeArchiveStore provides read access to trades for archival purposes.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// Archiver exports cold verification records to blob storage as JSONL and
// checks the exports back against the primary store.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	snaps  SnapshotArchiveStore
	trades TradeArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver over the given blob accessors and stores.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	snaps SnapshotArchiveStore,
	trades TradeArchiveStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		snaps:  snaps,
		trades: trades,
		audit:  audit,
	}
}

// snapshotRecord is the exported JSONL shape of a snapshot. The Merkle root
// is hex-encoded so the archive is greppable without base64 tooling.
type snapshotRecord struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Kind        string    `json:"kind"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	TotalPnL    float64   `json:"total_pnl"`
	RealizedPnL float64   `json:"realized_pnl"`
	TradeCount  int       `json:"trade_count"`
	MerkleRoot  string    `json:"merkle_root"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArchiveSnapshots exports all verified snapshots created before the cutoff
// to snapshots/YYYY-MM.jsonl and records the upload in the audit log. It
// returns the number of records written.
func (a *Archiver) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snaps.ListVerifiedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	records := make([]snapshotRecord, 0, len(snaps))
	for _, s := range snaps {
		records = append(records, snapshotRecord{
			ID:          s.ID,
			Owner:       s.Owner,
			Kind:        string(s.Kind),
			PeriodStart: s.Period.Start,
			PeriodEnd:   s.Period.End,
			TotalPnL:    s.TotalPnL,
			RealizedPnL: s.RealizedPnL,
			TradeCount:  s.TradeCount,
			MerkleRoot:  hex.EncodeToString(s.MerkleRoot),
			CreatedAt:   s.CreatedAt,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := archivePath("snapshots", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive.snapshots", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive snapshots audit log: %w", err)
	}

	return count, nil
}

// ArchiveTrades exports all trades with a timestamp strictly before the
// cutoff to trades/YYYY-MM.jsonl and records the upload in the audit log.
// It returns the number of records written.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// VerifyArchive reads every exported snapshot object back from blob storage
// and compares each record's Merkle root with the one held by the primary
// store. It returns the number of records checked and the number that did
// not match; a mismatch is a result, not an error. Records whose snapshot
// has since been deleted from the primary store are counted as checked and
// skipped.
func (a *Archiver) VerifyArchive(ctx context.Context) (checked, mismatched int64, err error) {
	objects, err := a.reader.List(ctx, "archive/snapshots/")
	if err != nil {
		return 0, 0, fmt.Errorf("s3blob: verify archive list: %w", err)
	}

	for _, obj := range objects {
		body, err := a.reader.Get(ctx, obj.Path)
		if err != nil {
			return checked, mismatched, fmt.Errorf("s3blob: verify archive get %s: %w", obj.Path, err)
		}

		sc := bufio.NewScanner(body)
		for sc.Scan() {
			var rec snapshotRecord
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				_ = body.Close()
				return checked, mismatched, fmt.Errorf("s3blob: verify archive decode %s: %w", obj.Path, err)
			}
			checked++

			snap, err := a.snaps.GetByID(ctx, rec.ID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				_ = body.Close()
				return checked, mismatched, fmt.Errorf("s3blob: verify archive load %s: %w", rec.ID, err)
			}
			if hex.EncodeToString(snap.MerkleRoot) != rec.MerkleRoot {
				mismatched++
			}
		}
		scanErr := sc.Err()
		_ = body.Close()
		if scanErr != nil {
			return checked, mismatched, fmt.Errorf("s3blob: verify archive read %s: %w", obj.Path, scanErr)
		}
	}

	if err := a.audit.Log(ctx, "archive.verify", map[string]any{
		"objects":    int64(len(objects)),
		"checked":    checked,
		"mismatched": mismatched,
	}); err != nil {
		return checked, mismatched, fmt.Errorf("s3blob: verify archive audit log: %w", err)
	}

	return checked, mismatched, nil
}

// upload pushes a payload as a single object, switching to a multipart
// upload above the threshold.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/snapshots/2026-08.jsonl
//	archive/trades/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
