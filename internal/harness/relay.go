package harness

import (
	"context"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// relay is one client's connection to the inner server. Its fields are owned
// by the client's session loop; the pump goroutine only reads conn.
type relay struct {
	conn link.Conn
}

// openRelay replaces any existing relay with a fresh connection to the inner
// server. The superseded relay ends silently.
func (c *client) openRelay() {
	c.closeRelay()

	ctx, cancel := context.WithTimeout(c.srv.ctx, c.srv.opts.OpenTimeout)
	conn, err := c.srv.opts.Dialer.Dial(ctx, c.srv.opts.InnerURL)
	cancel()
	if err != nil {
		debug.LogKV("harness", "relay dial failed", "url", c.srv.opts.InnerURL, "error", err)
		c.relayFailed()
		return
	}

	r := &relay{conn: conn}
	c.relay = r
	if m := c.srv.opts.Metrics; m != nil {
		m.Relays.Inc()
	}
	if err := c.sess.Send(wire.MustEncode(wire.MsgForwardSuccess, nil)); err != nil {
		debug.LogKV("harness", "relay ack failed", "error", err)
	}
	go c.pump(r)
}

// pump copies inner frames to the loop until the inner connection ends.
func (c *client) pump(r *relay) {
	for {
		frame, err := r.conn.Read(context.Background())
		if err != nil {
			debug.LogKV("harness", "relay read ended", "error", err)
			if !c.sess.Post(func() {
				if c.relay == r {
					c.closeRelay()
					c.relayFailed()
				}
			}) {
				_ = r.conn.Close()
			}
			return
		}
		msg, err := wire.DecodeMsg(frame)
		if err != nil {
			debug.LogKV("harness", "relay: malformed inner frame", "error", err, "bytes", len(frame))
			continue
		}
		if !c.sess.Post(func() {
			if c.relay != r {
				return
			}
			wrapped, err := wire.Wrap(msg)
			if err != nil {
				return
			}
			if m := c.srv.opts.Metrics; m != nil {
				m.RelayFrames.WithLabelValues("inbound").Inc()
			}
			_ = c.sess.Send(wrapped)
		}) {
			_ = r.conn.Close()
			return
		}
	}
}

// forward writes a client frame to the inner server.
func (c *client) forward(msg *wire.Msg) {
	r := c.relay
	if r == nil {
		debug.Log("harness", "forward without relay")
		c.relayFailed()
		return
	}
	if len(msg.Data) == 0 {
		debug.Log("harness", "forward without data dropped")
		return
	}
	ctx, cancel := context.WithTimeout(c.srv.ctx, c.srv.opts.OpenTimeout)
	defer cancel()
	if err := r.conn.Write(ctx, msg.Data); err != nil {
		debug.LogKV("harness", "relay write failed", "error", err)
		c.closeRelay()
		c.relayFailed()
		return
	}
	if m := c.srv.opts.Metrics; m != nil {
		m.RelayFrames.WithLabelValues("outbound").Inc()
	}
}

func (c *client) closeRelay() {
	r := c.relay
	if r == nil {
		return
	}
	c.relay = nil
	if m := c.srv.opts.Metrics; m != nil {
		m.Relays.Dec()
	}
	_ = r.conn.Close()
}

func (c *client) relayFailed() {
	if m := c.srv.opts.Metrics; m != nil {
		m.RelayFailures.Inc()
	}
	if err := c.sess.Send(wire.MustEncode(wire.MsgForwardFail, nil)); err != nil {
		debug.LogKV("harness", "relay fail notice failed", "error", err)
	}
}
