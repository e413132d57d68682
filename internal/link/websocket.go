package link

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// ReadLimit bounds a single inbound frame. Task snapshots of large test
// plans exceed the websocket default of 32 KiB.
const ReadLimit = 4 << 20

// WebSocketDialer dials ws:// and wss:// endpoints.
type WebSocketDialer struct {
	// TLS is used for wss:// endpoints. Nil means the system defaults.
	TLS *tls.Config
}

// Dial opens a websocket. ctx bounds only the opening handshake.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	opts := &websocket.DialOptions{}
	if d.TLS != nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: d.TLS},
		}
	}
	c, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return WrapWebSocket(c), nil
}

// WrapWebSocket adapts an open websocket to Conn. Servers use it on the
// result of websocket.Accept.
func WrapWebSocket(c *websocket.Conn) Conn {
	c.SetReadLimit(ReadLimit)
	return wsConn{c: c}
}

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (w wsConn) Write(ctx context.Context, frame []byte) error {
	return w.c.Write(ctx, websocket.MessageText, frame)
}

func (w wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
