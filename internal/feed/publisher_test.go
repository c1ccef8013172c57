package feed

import (
	"context"
	"sync"
	"testing"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

type staticSource struct {
	sums []domain.BookSummary
}

func (s *staticSource) Summaries(int) []domain.BookSummary { return s.sums }

type recordingCaches struct {
	mu        sync.Mutex
	mids      []domain.LastMid
	summaries []domain.BookSummary
	upserts   [][]domain.LastMid
}

func (r *recordingCaches) SetMid(_ context.Context, m domain.LastMid) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mids = append(r.mids, m)
	return true, nil
}

func (r *recordingCaches) GetMid(context.Context, domain.BookKey) (domain.LastMid, error) {
	return domain.LastMid{}, domain.ErrNotFound
}

func (r *recordingCaches) SetSummary(_ context.Context, s domain.BookSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return nil
}

func (r *recordingCaches) GetSummary(context.Context, domain.BookKey) (domain.BookSummary, error) {
	return domain.BookSummary{}, domain.ErrNotFound
}

func (r *recordingCaches) UpsertMids(_ context.Context, mids []domain.LastMid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, mids)
	return nil
}

func ptr(f float64) *float64 { return &f }

func TestPublisherPublishesChangedMids(t *testing.T) {
	keyA := domain.BookKey{MarketID: "m", AssetID: "a"}
	keyB := domain.BookKey{MarketID: "m", AssetID: "b"}
	src := &staticSource{sums: []domain.BookSummary{
		{Key: keyA, Mid: ptr(0.5), UpdatedAt: 10},
		{Key: keyB, UpdatedAt: 10, Inconsistent: true},
	}}
	rec := &recordingCaches{}
	p := NewPublisher(src, rec, rec, rec, 0, 5, testLogger())
	ctx := context.Background()

	p.PublishOnce(ctx)
	if len(rec.summaries) != 2 {
		t.Errorf("summaries = %d, want 2", len(rec.summaries))
	}
	if len(rec.mids) != 1 || rec.mids[0] != (domain.LastMid{Key: keyA, Mid: 0.5, UpdatedAt: 10}) {
		t.Errorf("mids = %+v", rec.mids)
	}
	if len(rec.upserts) != 1 || len(rec.upserts[0]) != 1 {
		t.Errorf("upserts = %+v", rec.upserts)
	}

	src.sums[0].UpdatedAt = 11
	p.PublishOnce(ctx)
	if len(rec.mids) != 1 || len(rec.upserts) != 1 {
		t.Errorf("unchanged mid republished: mids=%d upserts=%d", len(rec.mids), len(rec.upserts))
	}

	src.sums[0].Mid = ptr(0.55)
	src.sums[0].UpdatedAt = 12
	p.PublishOnce(ctx)
	if len(rec.mids) != 2 || rec.mids[1].Mid != 0.55 || rec.mids[1].UpdatedAt != 12 {
		t.Errorf("changed mid not published: %+v", rec.mids)
	}
}

func TestPublisherNilSinks(t *testing.T) {
	src := &staticSource{sums: []domain.BookSummary{{Key: domain.BookKey{MarketID: "m", AssetID: "a"}, Mid: ptr(0.4)}}}
	p := NewPublisher(src, nil, nil, nil, 0, 5, testLogger())
	p.PublishOnce(context.Background())
}
