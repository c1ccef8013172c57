package replay

import (
	"bytes"
	"context"
	"testing"

	"github.com/alanyoungcy/predexchange/internal/domain"
	"github.com/alanyoungcy/predexchange/internal/orderbook"
)

type recordingVisitor struct {
	books  []int64
	mids   []float64
	trades []*domain.TradePrint
}

func (v *recordingVisitor) OnBook(ts int64, s domain.MarketState) {
	v.books = append(v.books, ts)
	if mid, ok := s.Mid(); ok {
		v.mids = append(v.mids, mid)
	}
}

func (v *recordingVisitor) OnTrade(t *domain.TradePrint) { v.trades = append(v.trades, t) }

func trade(asset string) string {
	return `{"event_type":"last_trade_price","market":"0xabc","asset_id":"` + asset + `","price":"0.41","side":"SELL","size":"5"}`
}

func TestDrive(t *testing.T) {
	recs := records(t,
		frame{50, trade("123")},
		frame{100, book1},
		frame{150, trade("123")},
		frame{160, trade("456")},
		frame{200, book2},
	)
	v := &recordingVisitor{}
	n, err := newEngine(orderbook.KindMap, recs).Drive(context.Background(), Query{MarketID: "0xabc", AssetID: "123"}, v)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if n != 5 {
		t.Errorf("records = %d, want 5", n)
	}
	if want := []int64{100, 150, 160, 200}; len(v.books) != len(want) {
		t.Errorf("book callbacks at %v, want %v", v.books, want)
	}
	if len(v.trades) != 2 {
		t.Fatalf("trades = %d, want 2 for the observed asset", len(v.trades))
	}
	if v.trades[1].IngestTS != 150 || v.trades[1].Side != domain.SideSell {
		t.Errorf("second trade = %+v", v.trades[1])
	}
}

func TestJSONLRoundTripReplays(t *testing.T) {
	recs := records(t, frame{100, book1}, frame{200, book2})
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, recs); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	src, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if src.Len() != 2 {
		t.Fatalf("Len = %d, want 2", src.Len())
	}
	e := NewEngine(src, newEngine(orderbook.KindMap, nil).normalizer, orderbook.KindMap, nil)
	got, err := e.MidSeries(context.Background(), Query{MarketID: "0xabc", AssetID: "123"})
	if err != nil {
		t.Fatalf("MidSeries: %v", err)
	}
	if len(got) != 2 || got[1].Mid == nil || !approx(*got[1].Mid, 0.42) {
		t.Errorf("got %+v", got)
	}
}

func TestReadJSONLAssignsLineIDs(t *testing.T) {
	in := `{"market_id":"0xabc","ingest_ts":1,"payload":{}}` + "\n\n" + `{"market_id":"0xabc","ingest_ts":2,"payload":{}}` + "\n"
	src, err := ReadJSONL(bytes.NewBufferString(in))
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	var ids []int64
	_ = src.Scan(context.Background(), domain.EventFilter{}, func(ev domain.RawEvent) error {
		ids = append(ids, ev.ID)
		return nil
	})
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("ids = %v, want [1 3]", ids)
	}
}

func TestReadJSONLRejectsGarbage(t *testing.T) {
	if _, err := ReadJSONL(bytes.NewBufferString("{not json}\n")); err == nil {
		t.Fatal("expected decode error")
	}
}
