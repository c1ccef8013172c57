package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

func TestWSConnTimeoutKeepsConnectionUsable(t *testing.T) {
	release := make(chan struct{})
	got := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		got <- string(msg)
		<-release
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"book"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx := context.Background()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := Dialer{}.Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sub, err := SubscribeMessage([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteText(ctx, sub); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if msg := <-got; msg != `{"type":"MARKET","assets_ids":["a","b"]}` {
		t.Errorf("subscription = %s", msg)
	}

	if _, err := conn.Read(ctx, 20*time.Millisecond); !errors.Is(err, domain.ErrReadTimeout) {
		t.Fatalf("Read err = %v, want ErrReadTimeout", err)
	}
	close(release)
	data, err := conn.Read(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("Read after timeout: %v", err)
	}
	if string(data) != `{"event_type":"book"}` {
		t.Errorf("data = %s", data)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := conn.Read(ctx, time.Second); !errors.Is(err, domain.ErrWSDisconnect) {
		t.Errorf("Read after close = %v, want ErrWSDisconnect", err)
	}
}

func TestSubscribeMessageEmpty(t *testing.T) {
	data, err := SubscribeMessage(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"MARKET","assets_ids":[]}` {
		t.Errorf("data = %s", data)
	}
}
