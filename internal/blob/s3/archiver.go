package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
)

// Snapshotter is the narrow read surface the archiver needs from the trade
// ledger.
type Snapshotter interface {
	Snapshot(ctx context.Context) (domain.ContextState, error)
}

// Archiver copies settled trade events out of the bounded in-store history
// into daily JSONL objects, so settlements survive the 100-event retention
// cap. Uploads are idempotent per day: re-running overwrites the same key
// with a superset of the same events.
type Archiver struct {
	writer domain.BlobWriter
	led    Snapshotter
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates an Archiver reading from led and writing through
// writer.
func NewArchiver(writer domain.BlobWriter, led Snapshotter, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		led:    led,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// ArchiveSettledTrades uploads all settled trade events currently retained
// in the history to archive/settlements/YYYY-MM-DD.jsonl. It returns the
// number of archived events.
func (a *Archiver) ArchiveSettledTrades(ctx context.Context) (int, error) {
	state, err := a.led.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshot: %w", err)
	}

	var settled []domain.TradeEvent
	for _, t := range state.RecentTrades {
		if t.Status == domain.TradeStatusSettled {
			settled = append(settled, t)
		}
	}
	if len(settled) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(settled)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := fmt.Sprintf("archive/settlements/%s.jsonl", a.now().UTC().Format("2006-01-02"))
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.InfoContext(ctx, "settlements archived",
		slog.String("key", key),
		slog.Int("count", len(settled)),
	)
	return len(settled), nil
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
