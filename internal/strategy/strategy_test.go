package strategy

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/orderbook"
	"github.com/alanyoungcy/predexchange/internal/platform/polymarket"
	"github.com/alanyoungcy/predexchange/internal/replay"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTouchFillModel(t *testing.T) {
	key := domain.BookKey{MarketID: "m", AssetID: "a"}
	tests := []struct {
		name   string
		quote  Quote
		mid    float64
		filled bool
	}{
		{"bid touched", Quote{domain.SideBuy, 0.50, 10}, 0.50, true},
		{"bid crossed", Quote{domain.SideBuy, 0.50, 10}, 0.49, true},
		{"bid resting", Quote{domain.SideBuy, 0.50, 10}, 0.51, false},
		{"ask touched", Quote{domain.SideSell, 0.50, 10}, 0.50, true},
		{"ask resting", Quote{domain.SideSell, 0.50, 10}, 0.49, false},
		{"zero size", Quote{domain.SideBuy, 0.50, 0}, 0.40, false},
	}
	m := TouchFillModel{LatencyMs: 25}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := m.Check(tt.quote, tt.mid, 1000, key)
			if ok != tt.filled {
				t.Fatalf("filled = %v, want %v", ok, tt.filled)
			}
			if ok && (f.Timestamp != 1025 || f.Price != tt.quote.Price || f.Size != tt.quote.Size || f.MarketID != "m") {
				t.Errorf("fill = %+v", f)
			}
		})
	}
}

func TestPortfolioApplyFill(t *testing.T) {
	var p Portfolio
	p.ApplyFill(domain.Fill{Side: domain.SideBuy, Price: 0.40, Size: 10})
	p.ApplyFill(domain.Fill{Side: domain.SideSell, Price: 0.50, Size: 4})

	if !approx(p.Inventory, 6) {
		t.Errorf("inventory = %v, want 6", p.Inventory)
	}
	if !approx(p.Cash, -2.0) {
		t.Errorf("cash = %v, want -2", p.Cash)
	}
	if !approx(p.RealizedPnL, 1.0) {
		t.Errorf("realized = %v, want 1", p.RealizedPnL)
	}
	if p.FillCount != 2 {
		t.Errorf("fills = %d, want 2", p.FillCount)
	}
	if !approx(p.UnrealizedPnL(0.6), 1.6) {
		t.Errorf("unrealized = %v, want 1.6", p.UnrealizedPnL(0.6))
	}
}

type fakeState struct {
	mid, spread       float64
	hasMid, hasSpread bool
}

func (s fakeState) Key() domain.BookKey                        { return domain.BookKey{} }
func (s fakeState) HasSnapshot() bool                          { return true }
func (s fakeState) Inconsistent() bool                         { return false }
func (s fakeState) BestBid() (float64, bool)                   { return 0, false }
func (s fakeState) BestAsk() (float64, bool)                   { return 0, false }
func (s fakeState) Mid() (float64, bool)                       { return s.mid, s.hasMid }
func (s fakeState) Spread() (float64, bool)                    { return s.spread, s.hasSpread }
func (s fakeState) Depth(int) (bids, asks []domain.PriceLevel) { return nil, nil }

func TestMMInventoryQuotes(t *testing.T) {
	tests := []struct {
		name     string
		state    fakeState
		trades   []domain.TradePrint
		bid, ask float64
	}{
		{
			name:  "spread dominates",
			state: fakeState{mid: 0.5, spread: 0.04, hasMid: true, hasSpread: true},
			bid:   0.48, ask: 0.52,
		},
		{
			name:  "spread fraction dominates",
			state: fakeState{mid: 0.5, spread: 0.002, hasMid: true, hasSpread: true},
			bid:   0.495, ask: 0.505,
		},
		{
			name:  "missing spread falls back",
			state: fakeState{mid: 0.5, hasMid: true},
			bid:   0.495, ask: 0.505,
		},
		{
			name:   "long inventory skews down",
			state:  fakeState{mid: 0.5, spread: 0.02, hasMid: true, hasSpread: true},
			trades: []domain.TradePrint{{Side: domain.SideSell, Size: 10}},
			bid:    0.48, ask: 0.50,
		},
		{
			name:  "clamped to unit interval",
			state: fakeState{mid: 0.995, spread: 0.02, hasMid: true, hasSpread: true},
			bid:   0.985, ask: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMMInventory(Config{})
			for i := range tt.trades {
				s.OnTrade(&tt.trades[i])
			}
			s.OnBookUpdate(tt.state)
			q := s.Quotes()
			if len(q) != 2 {
				t.Fatalf("quotes = %+v", q)
			}
			if q[0].Side != domain.SideBuy || !approx(q[0].Price, tt.bid) {
				t.Errorf("bid = %+v, want %v", q[0], tt.bid)
			}
			if q[1].Side != domain.SideSell || !approx(q[1].Price, tt.ask) {
				t.Errorf("ask = %+v, want %v", q[1], tt.ask)
			}
			if q[0].Size != defaultQuoteSize {
				t.Errorf("size = %v, want %v", q[0].Size, defaultQuoteSize)
			}
		})
	}
}

func TestMMInventoryKeepsQuotesWithoutMid(t *testing.T) {
	s := NewMMInventory(Config{})
	s.OnBookUpdate(fakeState{mid: 0.5, spread: 0.02, hasMid: true, hasSpread: true})
	s.OnBookUpdate(fakeState{})
	if len(s.Quotes()) != 2 {
		t.Fatalf("quotes cleared on book without mid")
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	if names := r.List(); len(names) != 1 || names[0] != "mm_inventory" {
		t.Fatalf("List = %v", names)
	}
	s, err := r.New(Config{Name: "mm_inventory"})
	if err != nil || s.Name() != "mm_inventory" {
		t.Fatalf("New = %v, %v", s, err)
	}
	if _, err := r.New(Config{Name: "nope"}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

type memRuns struct{ saved []domain.SimRun }

func (m *memRuns) Save(_ context.Context, r domain.SimRun) error {
	m.saved = append(m.saved, r)
	return nil
}

func (m *memRuns) Get(_ context.Context, id string) (domain.SimRun, error) {
	for _, r := range m.saved {
		if r.RunID == id {
			return r, nil
		}
	}
	return domain.SimRun{}, domain.ErrNotFound
}

const book = `{"event_type":"book","market":"0xabc","asset_id":"123","bids":[{"price":"0.4","size":"100"}],"asks":[{"price":"0.42","size":"80"}]}`

func rawEvents(t *testing.T, bodies map[int64]string, order []int64) []domain.RawEvent {
	t.Helper()
	var out []domain.RawEvent
	for i, ts := range order {
		m, err := polymarket.DecodeMessage([]byte(bodies[ts]))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		rec := polymarket.BuildRawEvent(json.RawMessage(bodies[ts]), m, ts)
		rec.ID = int64(i + 1)
		out = append(out, rec)
	}
	return out
}

func TestRunnerFillsSkewedQuote(t *testing.T) {
	bodies := map[int64]string{
		100: book,
		150: `{"event_type":"last_trade_price","market":"0xabc","asset_id":"123","price":"0.42","side":"BUY","size":"20"}`,
		200: book,
	}
	recs := rawEvents(t, bodies, []int64{100, 150, 200})
	engine := replay.NewEngine(replay.NewMemorySource(recs), polymarket.Normalizer{}, orderbook.KindMap, nil)
	runs := &memRuns{}
	r := NewRunner(engine, runs, nil)

	cfg := Config{Name: "mm_inventory"}
	run, err := r.Run(context.Background(), NewMMInventory(cfg), cfg,
		replay.Query{MarketID: "0xabc", AssetID: "123"}, TouchFillModel{LatencyMs: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(run.RunID) != 8 {
		t.Errorf("run id = %q, want 8 chars", run.RunID)
	}
	if run.EventsProcessed != 3 {
		t.Errorf("events = %d, want 3", run.EventsProcessed)
	}
	if run.FillCount != 1 || !approx(run.FinalInventory, 10) {
		t.Errorf("fills = %d inventory = %v, want 1 fill of 10", run.FillCount, run.FinalInventory)
	}
	if !approx(run.RealizedPnL, 0) {
		t.Errorf("realized = %v, want 0", run.RealizedPnL)
	}
	if run.Params["fill_latency_ms"] != int64(5) {
		t.Errorf("params = %v", run.Params)
	}
	if len(runs.saved) != 1 || runs.saved[0].RunID != run.RunID {
		t.Errorf("saved = %+v", runs.saved)
	}
}
