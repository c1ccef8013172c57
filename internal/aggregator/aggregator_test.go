package aggregator

import (
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/orderbook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchRoutesByKey(t *testing.T) {
	for _, kind := range []orderbook.Kind{orderbook.KindMap, orderbook.KindBTree} {
		t.Run(string(kind), func(t *testing.T) {
			a := New(kind, testLogger())
			a.DispatchAll([]domain.Event{
				&domain.BookSnapshot{MarketID: "m", AssetID: "yes", Bids: []domain.PriceLevel{{Price: 0.6, Size: 10}}},
				&domain.BookSnapshot{MarketID: "m", AssetID: "no", Bids: []domain.PriceLevel{{Price: 0.4, Size: 10}}},
				&domain.BookDelta{MarketID: "m", AssetID: "yes", Side: domain.SideBuy, Price: 0.61, Size: 3},
				&domain.BookDelta{MarketID: "m", AssetID: "no", Side: domain.SideSell, Price: 0.45, Size: 2},
			})
			if a.Len() != 2 {
				t.Fatalf("Len = %d, want 2", a.Len())
			}
			yes, _ := a.Get(domain.BookKey{MarketID: "m", AssetID: "yes"})
			no, _ := a.Get(domain.BookKey{MarketID: "m", AssetID: "no"})
			if bb, _ := yes.BestBid(); bb != 0.61 {
				t.Errorf("yes best bid = %v", bb)
			}
			if ba, _ := no.BestAsk(); ba != 0.45 {
				t.Errorf("no best ask = %v", ba)
			}
		})
	}
}

func TestDispatchDeltaCreatesInconsistentBook(t *testing.T) {
	var reasons []orderbook.Reason
	a := New(orderbook.KindMap, testLogger(), WithObserver(func(_ domain.BookKey, r orderbook.Reason) {
		reasons = append(reasons, r)
	}))
	b := a.Dispatch(&domain.BookDelta{MarketID: "m", AssetID: "x", Side: domain.SideBuy, Price: 0.5, Size: 1})
	if b == nil || !b.Inconsistent() || b.HasSnapshot() {
		t.Fatalf("book = %v", b)
	}
	if len(reasons) != 1 || reasons[0] != orderbook.ReasonDeltaBeforeSnapshot {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestTradeDoesNotCreateBook(t *testing.T) {
	a := New(orderbook.KindMap, testLogger())
	if b := a.Dispatch(&domain.TradePrint{MarketID: "m", AssetID: "x", Side: domain.SideBuy, Price: 0.5, Size: 1}); b != nil {
		t.Errorf("trade returned book %v", b)
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d, want 0", a.Len())
	}
}

func TestGetNeverCreates(t *testing.T) {
	a := New(orderbook.KindMap, testLogger())
	if _, ok := a.Get(domain.BookKey{MarketID: "m", AssetID: "x"}); ok {
		t.Error("Get found a book in an empty registry")
	}
	if _, ok := a.State(domain.BookKey{MarketID: "m", AssetID: "x"}); ok {
		t.Error("State found a book in an empty registry")
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d after Get", a.Len())
	}
}

func TestAllReturnsCopies(t *testing.T) {
	a := New(orderbook.KindBTree, testLogger())
	key := domain.BookKey{MarketID: "m", AssetID: "x"}
	a.Dispatch(&domain.BookSnapshot{MarketID: "m", AssetID: "x", Bids: []domain.PriceLevel{{Price: 0.5, Size: 1}}})
	all := a.All()
	a.Dispatch(&domain.BookDelta{MarketID: "m", AssetID: "x", Side: domain.SideBuy, Price: 0.55, Size: 1})

	if bb, _ := all[key].BestBid(); bb != 0.5 {
		t.Errorf("copy best bid = %v, want 0.5", bb)
	}
	live, _ := a.State(key)
	if bb, _ := live.BestBid(); bb != 0.55 {
		t.Errorf("live best bid = %v, want 0.55", bb)
	}
}

func TestSummariesSorted(t *testing.T) {
	a := New(orderbook.KindMap, testLogger())
	a.Dispatch(&domain.BookSnapshot{MarketID: "b", AssetID: "1"})
	a.Dispatch(&domain.BookSnapshot{MarketID: "a", AssetID: "2"})
	a.Dispatch(&domain.BookSnapshot{MarketID: "a", AssetID: "1"})
	got := a.Summaries(5, 7)
	want := []domain.BookKey{{MarketID: "a", AssetID: "1"}, {MarketID: "a", AssetID: "2"}, {MarketID: "b", AssetID: "1"}}
	if len(got) != len(want) {
		t.Fatalf("len = %d", len(got))
	}
	for i := range want {
		if got[i].Key != want[i] || got[i].UpdatedAt != 7 {
			t.Errorf("summary %d = %+v", i, got[i])
		}
	}
}
