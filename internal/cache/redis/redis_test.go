package redis

import (
	"errors"
	"strings"
	"testing"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

func TestKeys(t *testing.T) {
	k := domain.BookKey{MarketID: "0xabc", AssetID: "123"}
	tests := []struct {
		got, want string
	}{
		{midKey(k), "mid:0xabc:123"},
		{bookKey(k), "book:0xabc:123"},
		{bookBBOKey(k), "book:0xabc:123:bbo"},
		{lockKey("ingest:polymarket:market"), "lock:ingest:polymarket:market"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseMid(t *testing.T) {
	k := domain.BookKey{MarketID: "m", AssetID: "a"}
	tests := []struct {
		name    string
		vals    map[string]string
		want    domain.LastMid
		wantErr error
	}{
		{"ok", map[string]string{"mid": "0.415", "ts": "1700"}, domain.LastMid{Key: k, Mid: 0.415, UpdatedAt: 1700}, nil},
		{"missing", map[string]string{}, domain.LastMid{}, domain.ErrNotFound},
		{"no ts", map[string]string{"mid": "0.4"}, domain.LastMid{}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMid(k, tt.vals)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
	if _, err := parseMid(k, map[string]string{"mid": "x", "ts": "1"}); err == nil {
		t.Error("expected parse error")
	}
}

func TestBBOFields(t *testing.T) {
	bid, mid := 0.4, 0.41
	f := bboFields(domain.BookSummary{BestBid: &bid, Mid: &mid, UpdatedAt: 99})
	if f["bid"] != "0.4" || f["mid"] != "0.41" || f["ts"] != "99" {
		t.Errorf("fields = %v", f)
	}
	if _, ok := f["ask"]; ok {
		t.Error("absent ask must not be written")
	}
}

func TestScriptsGuardOnOwnerAndTimestamp(t *testing.T) {
	if !strings.Contains(midLWWLua, "tonumber(cur) > tonumber(ARGV[2])") {
		t.Error("mid script must reject older timestamps")
	}
	if !strings.Contains(lockLua, "redis.call('GET', KEYS[1]) ~= ARGV[1]") {
		t.Error("lock script must check the owner token")
	}
}

func TestClientOptions(t *testing.T) {
	o := ClientConfig{Addr: "localhost:6379", DB: 2, TLSEnabled: true}.options()
	if o.Addr != "localhost:6379" || o.DB != 2 || o.TLSConfig == nil {
		t.Errorf("options = %+v", o)
	}
}
