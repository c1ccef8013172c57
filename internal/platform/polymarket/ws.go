package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// handshakeTimeout bounds the websocket upgrade.
	handshakeTimeout = 15 * time.Second
)

// Dialer opens gorilla websocket connections. PingPeriod > 0 enables
// protocol-level pings and pong-based liveness; the sports feed uses text
// "ping"/"pong" instead and leaves it zero.
type Dialer struct {
	PingPeriod time.Duration
}

// Dial connects to url.
func (d Dialer) Dial(ctx context.Context, url string) (domain.FeedConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	return newWSConn(conn, d.PingPeriod), nil
}

type frame struct {
	data []byte
	err  error
}

// WSConn reads frames on a background goroutine so that a caller-side read
// timeout does not poison the underlying connection.
type WSConn struct {
	conn    *websocket.Conn
	frames  chan frame
	done    chan struct{}
	writeMu sync.Mutex
	once    sync.Once
}

func newWSConn(conn *websocket.Conn, pingPeriod time.Duration) *WSConn {
	c := &WSConn{
		conn:   conn,
		frames: make(chan frame),
		done:   make(chan struct{}),
	}
	if pingPeriod > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.pingLoop(pingPeriod)
	}
	go c.readLoop()
	return c
}

func (c *WSConn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		select {
		case c.frames <- frame{data: data, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *WSConn) pingLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Read waits for the next frame. It returns domain.ErrReadTimeout after
// timeout and domain.ErrWSDisconnect once the connection has failed.
func (c *WSConn) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case f := <-c.frames:
		if f.err != nil {
			return nil, fmt.Errorf("polymarket/ws: read: %w: %w", domain.ErrWSDisconnect, f.err)
		}
		return f.data, nil
	case <-timer:
		return nil, fmt.Errorf("polymarket/ws: read: %w", domain.ErrReadTimeout)
	case <-c.done:
		return nil, fmt.Errorf("polymarket/ws: read: %w", domain.ErrWSDisconnect)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteText sends one text frame.
func (c *WSConn) WriteText(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("polymarket/ws: write: %w", err)
	}
	return nil
}

// Close sends a close frame and releases the connection. Safe to call more
// than once.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// SubscribeMessage builds the market-channel subscription for assetIDs.
func SubscribeMessage(assetIDs []string) ([]byte, error) {
	if assetIDs == nil {
		assetIDs = []string{}
	}
	data, err := json.Marshal(subscribeCommand{Type: "MARKET", AssetIDs: assetIDs})
	if err != nil {
		return nil, fmt.Errorf("polymarket/ws: marshal subscription: %w", err)
	}
	return data, nil
}

var _ domain.FeedConn = (*WSConn)(nil)
