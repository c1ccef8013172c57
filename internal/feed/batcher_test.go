package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

func rawEvents(n int) []domain.RawEvent {
	out := make([]domain.RawEvent, n)
	for i := range out {
		out[i] = domain.RawEvent{EventType: "book", MarketID: "m", IngestTS: int64(i + 1)}
	}
	return out
}

func TestBatcherFlushesAtThreshold(t *testing.T) {
	log := &memLog{}
	b := NewBatcher(log, 3, testLogger())
	ctx := context.Background()
	for _, ev := range rawEvents(7) {
		b.Add(ctx, ev)
	}
	if log.appends != 2 || len(log.snapshot()) != 6 {
		t.Fatalf("appends=%d stored=%d, want 2 and 6", log.appends, len(log.snapshot()))
	}
	if b.Pending() != 1 || b.Flushed() != 6 {
		t.Errorf("pending=%d flushed=%d", b.Pending(), b.Flushed())
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	stored := log.snapshot()
	if len(stored) != 7 {
		t.Fatalf("stored = %d, want 7", len(stored))
	}
	for i, ev := range stored {
		if ev.IngestTS != int64(i+1) {
			t.Fatalf("order broken at %d: %+v", i, ev)
		}
	}
}

func TestBatcherKeepsRecordsOnFailure(t *testing.T) {
	log := &memLog{failN: 1}
	b := NewBatcher(log, 2, testLogger())
	ctx := context.Background()
	events := rawEvents(4)

	b.Add(ctx, events[0])
	b.Add(ctx, events[1])
	if log.appends != 1 || b.Pending() != 2 {
		t.Fatalf("after failure: appends=%d pending=%d", log.appends, b.Pending())
	}
	b.Add(ctx, events[2])
	if log.appends != 1 {
		t.Fatalf("retry should wait one more batch, appends=%d", log.appends)
	}
	b.Add(ctx, events[3])
	if log.appends != 2 || len(log.snapshot()) != 4 || b.Pending() != 0 {
		t.Fatalf("after retry: appends=%d stored=%d pending=%d", log.appends, len(log.snapshot()), b.Pending())
	}
}

func TestBatcherCloseSurfacesFailure(t *testing.T) {
	log := &memLog{failN: -1}
	b := NewBatcher(log, 10, testLogger())
	b.retryDelay = 0
	b.Add(context.Background(), rawEvents(1)[0])

	err := b.Close(context.Background())
	if !errors.Is(err, domain.ErrFlushFailed) {
		t.Fatalf("Close err = %v, want ErrFlushFailed", err)
	}
	if log.appends != b.closeRetries+1 {
		t.Errorf("attempts = %d, want %d", log.appends, b.closeRetries+1)
	}
	if b.Pending() != 1 {
		t.Errorf("pending = %d, want 1", b.Pending())
	}
}

func TestBatcherCloseEmpty(t *testing.T) {
	log := &memLog{failN: -1}
	if err := NewBatcher(log, 5, testLogger()).Close(context.Background()); err != nil {
		t.Fatalf("Close on empty buffer: %v", err)
	}
	if log.appends != 0 {
		t.Errorf("appends = %d", log.appends)
	}
}

func TestBatcherSetsAsideRefusedRecords(t *testing.T) {
	log := &memLog{reject: func(ev domain.RawEvent) bool { return ev.EventType == "bad" }}
	b := NewBatcher(log, 2, testLogger())
	b.retryDelay = 0
	ctx := context.Background()

	events := rawEvents(10)
	events[0].EventType = "bad"
	for _, ev := range events {
		b.Add(ctx, ev)
	}

	stored := log.snapshot()
	if len(stored) != 9 {
		t.Fatalf("stored = %d, want the 9 good records", len(stored))
	}
	for i, ev := range stored {
		if ev.IngestTS != int64(i+2) {
			t.Fatalf("order broken at %d: %+v", i, ev)
		}
	}
	if b.Pending() != 1 || b.Flushed() != 9 {
		t.Errorf("pending=%d flushed=%d, want 1 and 9", b.Pending(), b.Flushed())
	}

	err := b.Close(ctx)
	if !errors.Is(err, domain.ErrFlushFailed) {
		t.Fatalf("Close err = %v, want ErrFlushFailed", err)
	}
	if b.Pending() != 1 {
		t.Errorf("pending after close = %d, want the refused record", b.Pending())
	}
}

func TestBatcherIsolationKeepsEverythingDuringOutage(t *testing.T) {
	log := &memLog{failN: -1}
	b := NewBatcher(log, 2, testLogger())
	b.retryDelay = 0
	ctx := context.Background()

	for _, ev := range rawEvents(6) {
		b.Add(ctx, ev)
	}
	if b.Pending() != 6 || b.Flushed() != 0 {
		t.Fatalf("pending=%d flushed=%d during outage", b.Pending(), b.Flushed())
	}

	log.setFailN(0)
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close after recovery: %v", err)
	}
	stored := log.snapshot()
	if len(stored) != 6 {
		t.Fatalf("stored = %d, want 6", len(stored))
	}
	for i, ev := range stored {
		if ev.IngestTS != int64(i+1) {
			t.Fatalf("order broken at %d: %+v", i, ev)
		}
	}
}

func TestBatcherRetriesRefusedRecordsOnClose(t *testing.T) {
	refuse := true
	log := &memLog{reject: func(ev domain.RawEvent) bool { return refuse && ev.EventType == "bad" }}
	b := NewBatcher(log, 2, testLogger())
	b.retryDelay = 0
	ctx := context.Background()

	events := rawEvents(4)
	events[1].EventType = "bad"
	for _, ev := range events {
		b.Add(ctx, ev)
	}
	if len(log.snapshot()) != 3 || b.Pending() != 1 {
		t.Fatalf("stored=%d pending=%d, want 3 and 1", len(log.snapshot()), b.Pending())
	}

	refuse = false
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(log.snapshot()) != 4 || b.Pending() != 0 {
		t.Errorf("stored=%d pending=%d after close", len(log.snapshot()), b.Pending())
	}
}
