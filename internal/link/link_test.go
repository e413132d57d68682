package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ssloxford/current-affairs/internal/wire"
)

// pipeConn is an in-memory Conn. Frames pushed into in are returned by Read;
// frames written are delivered to out.
type pipeConn struct {
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *pipeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) Write(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// recorder is a Handler that logs callbacks in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	msgs   []*wire.Msg
	opened chan Session
	types  chan string
	closed chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan Session, 16),
		types:  make(chan string, 64),
		closed: make(chan struct{}, 16),
	}
}

func (r *recorder) OnOpen(s Session) {
	r.mu.Lock()
	r.events = append(r.events, "open")
	r.mu.Unlock()
	r.opened <- s
}

func (r *recorder) OnMessage(_ Session, msg *wire.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "msg:"+msg.Type)
	r.msgs = append(r.msgs, msg)
	select {
	case r.types <- msg.Type:
	default:
	}
}

func (r *recorder) OnClose(Session) {
	r.mu.Lock()
	r.events = append(r.events, "close")
	r.mu.Unlock()
	r.closed <- struct{}{}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func waitFor[T any](ch <-chan T, what string) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-time.After(5 * time.Second):
		var zero T
		return zero, errors.New("timed out waiting for " + what)
	}
}
