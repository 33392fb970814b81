package ingest

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// Conn is one live connection to the feed.
type Conn interface {
	// Send writes one text message.
	Send(ctx context.Context, msg []byte) error
	// Receive blocks for the next message. Cancelling ctx unblocks it and
	// tears the connection down.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens connections to the feed.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the feed over websocket.
type WebsocketDialer struct {
	// ReadLimit caps the size of one frame in bytes. Zero keeps the
	// library default.
	ReadLimit int64
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if d.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.HandshakeTimeout)
		defer cancel()
	}

	c, resp, err := websocket.Dial(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, msg []byte) error {
	return w.c.Write(ctx, websocket.MessageText, msg)
}

func (w *wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
