// Package link carries wire envelopes over one duplex connection and runs a
// single-threaded event loop per connection.
//
// A Session is what protocol code talks to; a Handler is what a Session talks
// to. Every Handler callback for a given session runs on that session's loop,
// one at a time, so handlers keep their state without locks. Work from other
// goroutines enters the loop through Session.Post.
package link

import (
	"context"
	"errors"

	"github.com/ssloxford/current-affairs/internal/wire"
)

// ErrClosed is returned by Send on a session that has ended.
var ErrClosed = errors.New("link: session closed")

// Session is one logical duplex message channel.
type Session interface {
	// Send transmits msg. It never blocks on the remote peer for longer than
	// the transport's write timeout.
	Send(msg *wire.Msg) error
	// Post schedules fn on the session's event loop. It reports false when
	// the session has already ended. Work queued while the session is ending
	// is dropped. Handlers must not call Post from inside a callback.
	Post(fn func()) bool
	// Done is closed once the session has ended.
	Done() <-chan struct{}
}

// Handler receives a session's lifecycle events. OnClose is delivered only
// for sessions whose OnOpen was delivered, and always last.
type Handler interface {
	OnOpen(s Session)
	OnMessage(s Session, msg *wire.Msg)
	OnClose(s Session)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Open    func(s Session)
	Message func(s Session, msg *wire.Msg)
	Close   func(s Session)
}

func (h HandlerFuncs) OnOpen(s Session) {
	if h.Open != nil {
		h.Open(s)
	}
}

func (h HandlerFuncs) OnMessage(s Session, msg *wire.Msg) {
	if h.Message != nil {
		h.Message(s, msg)
	}
}

func (h HandlerFuncs) OnClose(s Session) {
	if h.Close != nil {
		h.Close(s)
	}
}

// Conn is a message-oriented duplex connection: one Read returns one frame.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens Conns to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func (f DialFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
