package link

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ssloxford/current-affairs/internal/debug"
)

// Default timings of the reconnect loop.
const (
	DefaultOpenTimeout = 2 * time.Second
	DefaultBackoff     = 1 * time.Second
)

// Client keeps one outer session to URL alive for as long as Run is running.
type Client struct {
	URL     string
	Dialer  Dialer
	Handler Handler

	// OpenTimeout bounds each connection attempt. An attempt that has not
	// opened by then is abandoned.
	OpenTimeout time.Duration
	// Backoff is the fixed delay between the end of one attempt and the
	// start of the next.
	Backoff      time.Duration
	WriteTimeout time.Duration

	// Sleep waits d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	attempts atomic.Int64
}

// Attempts returns the number of connection attempts made so far.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

// Run dials, serves, and redials after Backoff, forever. It returns only when
// ctx is done, with ctx's error.
func (c *Client) Run(ctx context.Context) error {
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	for {
		c.attempt(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		debug.LogKV("link", "reconnect scheduled", "url", c.URL, "backoff", backoff)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context) {
	n := c.attempts.Add(1)
	openTimeout := c.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, openTimeout)
	conn, err := c.Dialer.Dial(dialCtx, c.URL)
	cancel()
	if err != nil {
		debug.LogKV("link", "connect failed", "attempt", n, "url", c.URL, "err", err)
		return
	}
	debug.LogKV("link", "connected", "attempt", n, "url", c.URL)
	err = Serve(ctx, conn, c.Handler, c.WriteTimeout)
	debug.LogKV("link", "disconnected", "attempt", n, "url", c.URL, "reason", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
