package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/wire"
)

const (
	defaultWriteTimeout = 5 * time.Second
	postQueueSize       = 64
)

// outerSession is a Session bound directly to a Conn.
type outerSession struct {
	conn         Conn
	ctx          context.Context
	cancel       context.CancelCauseFunc
	writeTimeout time.Duration

	writeMu sync.Mutex
	work    chan func()
	done    chan struct{}
}

func (s *outerSession) Send(msg *wire.Msg) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	frame, err := msg.Frame()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, frame); err != nil {
		err = fmt.Errorf("writing %s: %w", msg.Type, err)
		s.cancel(err)
		if s.ctx.Err() != nil {
			return errors.Join(ErrClosed, err)
		}
		return err
	}
	return nil
}

func (s *outerSession) Post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.work <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *outerSession) Done() <-chan struct{} {
	return s.done
}

// Serve runs h over conn until the connection fails or ctx is cancelled. It
// delivers OnOpen, then one OnMessage per well-formed inbound frame in
// arrival order, then OnClose, all on the calling goroutine. conn is closed
// on return. The returned error is the reason the session ended.
func Serve(ctx context.Context, conn Conn, h Handler, writeTimeout time.Duration) error {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	sctx, cancel := context.WithCancelCause(ctx)
	s := &outerSession{
		conn:         conn,
		ctx:          sctx,
		cancel:       cancel,
		writeTimeout: writeTimeout,
		work:         make(chan func(), postQueueSize),
		done:         make(chan struct{}),
	}

	frames := make(chan []byte)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			frame, err := conn.Read(sctx)
			if err != nil {
				cancel(fmt.Errorf("reading: %w", err))
				return
			}
			select {
			case frames <- frame:
			case <-sctx.Done():
				return
			}
		}
	}()

	h.OnOpen(s)
	for sctx.Err() == nil {
		select {
		case frame := <-frames:
			msg, err := wire.DecodeMsg(frame)
			if err != nil {
				debug.LogKV("link", "dropping malformed frame", "err", err, "bytes", len(frame))
				continue
			}
			h.OnMessage(s, msg)
		case fn := <-s.work:
			fn()
		case <-sctx.Done():
		}
	}

	close(s.done)
	cause := context.Cause(sctx)
	_ = conn.Close()
	wg.Wait()
	h.OnClose(s)
	cancel(nil)
	if errors.Is(cause, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return cause
}
