package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

type staticBooks []domain.BookSummary

func (b staticBooks) Books(int) []domain.BookSummary { return b }

func TestHubStreamsSubscribedMarkets(t *testing.T) {
	books := staticBooks{
		{Key: domain.BookKey{MarketID: "0xAAA", AssetID: "1"}},
		{Key: domain.BookKey{MarketID: "0xbbb", AssetID: "2"}},
	}
	hub := NewHub(books, time.Hour, 5, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/books?market=0xaaa"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.broadcast(123)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "books" || env.TS != 123 || len(env.Payload) != 1 || env.Payload[0].Key.AssetID != "1" {
		t.Errorf("envelope = %+v", env)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients after stop = %d", hub.ClientCount())
	}
}

func TestClientFilter(t *testing.T) {
	books := []domain.BookSummary{
		{Key: domain.BookKey{MarketID: "0xAAA", AssetID: "1"}},
		{Key: domain.BookKey{MarketID: "0xbbb", AssetID: "2"}},
	}
	c := &client{markets: map[string]bool{}}
	c.apply(subscribeMsg{Action: "subscribe", Markets: []string{" aaa "}})
	if got := c.filter(books); len(got) != 1 || got[0].Key.AssetID != "1" {
		t.Errorf("filter = %+v", got)
	}
	c.apply(subscribeMsg{Action: "subscribe", Markets: []string{"*"}})
	if got := c.filter(books); len(got) != 2 {
		t.Errorf("wildcard filter = %d books", len(got))
	}
	c.apply(subscribeMsg{Action: "unsubscribe", Markets: []string{"*", "0xaaa"}})
	if got := c.filter(books); len(got) != 0 {
		t.Errorf("after unsubscribe = %d books", len(got))
	}
}
