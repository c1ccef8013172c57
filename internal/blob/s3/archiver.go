package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// blobExister reports whether an object is already stored.
type blobExister interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// EventArchiver implements domain.Archiver: it copies event log slices to
// object storage as JSONL, one RawEvent per line. Archived records are not
// deleted from the log.
type EventArchiver struct {
	writer   blobPutter
	existing blobExister
	log      domain.EventLog
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiver creates an EventArchiver. existing, when non-nil, lets
// ArchiveBefore skip days already stored.
func NewArchiver(writer domain.BlobWriter, existing blobExister, log domain.EventLog, logger *slog.Logger) *EventArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventArchiver{
		writer:   writer,
		existing: existing,
		log:      log,
		logger:   logger.With(slog.String("component", "archiver")),
		now:      time.Now,
	}
}

// Export writes every record matching filter to
// export/<market|all>/<unix-ms>.jsonl and returns the path and count.
func (a *EventArchiver) Export(ctx context.Context, filter domain.EventFilter) (string, int64, error) {
	var (
		buf   bytes.Buffer
		count int64
	)
	enc := newJSONLEncoder(&buf)
	err := a.log.Scan(ctx, filter, func(ev domain.RawEvent) error {
		count++
		return enc.Encode(&ev)
	})
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export scan: %w", err)
	}

	path := exportPath(filter.MarketID, a.now())
	if err := putJSONL(ctx, a.writer, path, buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("s3blob: export upload: %w", err)
	}
	a.logger.Info("event log exported",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("market_id", filter.MarketID),
	)
	return path, count, nil
}

// ArchiveBefore copies records into one file per UTC ingest day,
// archive/raw_events/<YYYY-MM-DD>.jsonl. Only days that ended by the cutoff
// are written, so a stored file always holds a whole day and is skipped on
// later runs. It returns the number of records written.
func (a *EventArchiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	first, ok, err := a.log.FirstIngestTS(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if !ok {
		return 0, nil
	}

	cutoff := before.UTC().Truncate(day)
	var (
		count            int64
		written, skipped int
	)
	for d := time.UnixMilli(first).UTC().Truncate(day); d.Before(cutoff); d = d.Add(day) {
		path := archivePath(d.Format(time.DateOnly))
		if a.existing != nil {
			stored, err := a.existing.Exists(ctx, path)
			if err != nil {
				return count, fmt.Errorf("s3blob: archive check %s: %w", path, err)
			}
			if stored {
				skipped++
				continue
			}
		}

		data, n, err := a.encodeDay(ctx, d)
		if err != nil {
			return count, err
		}
		if n == 0 {
			continue
		}
		if err := putJSONL(ctx, a.writer, path, data); err != nil {
			return count, fmt.Errorf("s3blob: archive upload %s: %w", path, err)
		}
		count += n
		written++
	}

	if written > 0 || skipped > 0 {
		a.logger.Info("event log archived",
			slog.Int64("count", count),
			slog.Int("files", written),
			slog.Int("skipped", skipped),
			slog.Time("before", cutoff),
		)
	}
	return count, nil
}

const day = 24 * time.Hour

// encodeDay renders every record ingested during the UTC day starting at
// start as JSONL.
func (a *EventArchiver) encodeDay(ctx context.Context, start time.Time) ([]byte, int64, error) {
	from := start.UnixMilli()
	to := start.Add(day).UnixMilli() - 1
	var (
		buf   bytes.Buffer
		count int64
	)
	enc := newJSONLEncoder(&buf)
	err := a.log.Scan(ctx, domain.EventFilter{Start: &from, End: &to}, func(ev domain.RawEvent) error {
		count++
		return enc.Encode(&ev)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("s3blob: archive scan %s: %w", start.Format(time.DateOnly), err)
	}
	return buf.Bytes(), count, nil
}

func newJSONLEncoder(buf *bytes.Buffer) *json.Encoder {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return enc
}

// exportPath builds export/<market|all>/<unix-ms>.jsonl.
func exportPath(marketID string, at time.Time) string {
	scope := marketID
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("export/%s/%d.jsonl", scope, at.UnixMilli())
}

// archivePath builds archive/raw_events/<YYYY-MM-DD>.jsonl.
func archivePath(day string) string {
	return "archive/raw_events/" + day + ".jsonl"
}

var _ domain.Archiver = (*EventArchiver)(nil)
