package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/metrics"
)

// maxLeadingRejects is how many records may fail one by one, with nothing
// stored yet, before isolation decides the log itself is down.
const maxLeadingRejects = 8

// Batcher buffers raw records and appends them to the event log once the
// buffer reaches the batch size. A failed flush keeps the records; the next
// attempt happens one batch later. From the second consecutive failure on,
// the batch is split to find the records the log refuses: those are set
// aside so the rest still reach the log, and Close retries them once more.
// Add and Flush must be called from a single goroutine; the counters are
// safe to read concurrently.
type Batcher struct {
	log       domain.EventLog
	size      int
	buf       []domain.RawEvent
	rejected  []domain.RawEvent
	nextFlush int
	failures  int

	closeRetries int
	retryDelay   time.Duration

	flushed atomic.Int64
	pending atomic.Int64
	aside   atomic.Int64
	logger  *slog.Logger
}

// NewBatcher returns a Batcher flushing every size records. size < 1 is
// treated as 1.
func NewBatcher(log domain.EventLog, size int, logger *slog.Logger) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		log:          log,
		size:         size,
		buf:          make([]domain.RawEvent, 0, size),
		nextFlush:    size,
		closeRetries: 3,
		retryDelay:   500 * time.Millisecond,
		logger:       logger.With(slog.String("component", "batcher")),
	}
}

// Add buffers ev and flushes when the threshold is crossed. Flush errors are
// logged and counted, never returned.
func (b *Batcher) Add(ctx context.Context, ev domain.RawEvent) {
	b.buf = append(b.buf, ev)
	b.pending.Store(int64(len(b.buf)))
	if len(b.buf) < b.nextFlush {
		return
	}
	if err := b.Flush(ctx); err != nil {
		b.nextFlush = len(b.buf) + b.size
		b.logger.Warn("event log flush failed, keeping batch",
			slog.Int("pending", len(b.buf)),
			slog.String("error", err.Error()),
		)
	}
}

// Flush appends the buffered records. After repeated failures it isolates
// the refused records and returns nil once everything else is stored.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	err := b.log.Append(ctx, b.buf)
	if err == nil {
		b.recordStored(len(b.buf))
		b.reset(nil)
		return nil
	}
	metrics.FlushErrors.Inc()
	b.failures++
	err = fmt.Errorf("feed: flush %d records: %w", len(b.buf), err)
	if b.failures < 2 || len(b.buf) < 2 {
		return err
	}

	stored, rejected, unsent := b.isolate(ctx, b.buf)
	if stored == 0 {
		return err
	}
	b.recordStored(stored)
	for _, ev := range rejected {
		b.logger.Warn("event log refused record, setting it aside",
			slog.String("market_id", ev.MarketID),
			slog.String("event_type", ev.EventType),
			slog.Int64("ingest_ts", ev.IngestTS),
		)
	}
	b.rejected = append(b.rejected, rejected...)
	b.aside.Store(int64(len(b.rejected)))
	b.reset(unsent)
	if len(unsent) > 0 {
		return fmt.Errorf("feed: flush interrupted, %d records kept: %w", len(unsent), ctx.Err())
	}
	return nil
}

// isolate appends events in halves, splitting every group the log refuses
// down to single records. It stops sending once maxLeadingRejects records
// have failed alone with nothing stored: the log is unavailable rather than
// refusing particular records.
func (b *Batcher) isolate(ctx context.Context, events []domain.RawEvent) (stored int, rejected, unsent []domain.RawEvent) {
	var walk func(part []domain.RawEvent)
	walk = func(part []domain.RawEvent) {
		if ctx.Err() != nil || (stored == 0 && len(rejected) >= maxLeadingRejects) {
			unsent = append(unsent, part...)
			return
		}
		if err := b.log.Append(ctx, part); err == nil {
			stored += len(part)
			return
		}
		if len(part) == 1 {
			rejected = append(rejected, part[0])
			return
		}
		mid := len(part) / 2
		walk(part[:mid])
		walk(part[mid:])
	}
	mid := len(events) / 2
	walk(events[:mid])
	walk(events[mid:])
	return stored, rejected, unsent
}

func (b *Batcher) recordStored(n int) {
	metrics.RecordsFlushed.Add(float64(n))
	b.flushed.Add(int64(n))
}

// reset replaces the buffer with keep and clears the failure streak.
func (b *Batcher) reset(keep []domain.RawEvent) {
	buf := make([]domain.RawEvent, 0, max(b.size, len(keep)))
	b.buf = append(buf, keep...)
	b.nextFlush = len(b.buf) + b.size
	if len(b.buf) == 0 {
		b.nextFlush = b.size
	}
	b.failures = 0
	b.pending.Store(int64(len(b.buf)))
}

// Close flushes whatever is buffered, together with records set aside
// earlier, retrying a bounded number of times. It returns
// domain.ErrFlushFailed when records remain unwritten.
func (b *Batcher) Close(ctx context.Context) error {
	if len(b.rejected) > 0 {
		b.buf = append(b.rejected, b.buf...)
		b.rejected = nil
		b.aside.Store(0)
		b.pending.Store(int64(len(b.buf)))
	}
	var err error
	for attempt := 0; attempt <= b.closeRetries; attempt++ {
		if attempt > 0 {
			if sleepErr := sleepCtx(ctx, b.retryDelay); sleepErr != nil {
				break
			}
		}
		if err = b.Flush(ctx); err == nil && len(b.rejected) == 0 {
			return nil
		}
		if err == nil {
			break
		}
		b.logger.Warn("final flush failed", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
	}
	unwritten := len(b.buf) + len(b.rejected)
	if err == nil {
		return fmt.Errorf("feed: %d records refused by the event log: %w", unwritten, domain.ErrFlushFailed)
	}
	return fmt.Errorf("feed: %d records unwritten: %w: %w", unwritten, domain.ErrFlushFailed, err)
}

// Flushed returns the number of records written so far.
func (b *Batcher) Flushed() int64 { return b.flushed.Load() }

// Pending returns the number of records not yet written, including those
// set aside.
func (b *Batcher) Pending() int64 { return b.pending.Load() + b.aside.Load() }
