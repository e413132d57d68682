package relay

import (
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// Inner is the virtual session carried by a Mux. It shares the outer
// session's event loop.
type Inner struct {
	mux     *Mux
	handler link.Handler
	opened  bool
	done    chan struct{}
}

var _ link.Session = (*Inner)(nil)

func (in *Inner) ended() bool {
	select {
	case <-in.done:
		return true
	default:
		return false
	}
}

// Send wraps msg in a forward envelope and sends it on the outer session.
// Like every Handler-facing call it must run on the outer loop.
func (in *Inner) Send(msg *wire.Msg) error {
	if in.ended() {
		return link.ErrClosed
	}
	if !in.opened {
		return ErrNotOpen
	}
	wrapped, err := wire.Wrap(msg)
	if err != nil {
		return err
	}
	return in.mux.outer.Send(wrapped)
}

// Post schedules fn on the outer loop. fn is skipped if this inner session
// ended before it ran.
func (in *Inner) Post(fn func()) bool {
	if in.ended() {
		return false
	}
	return in.mux.outer.Post(func() {
		if !in.ended() {
			fn()
		}
	})
}

func (in *Inner) Done() <-chan struct{} {
	return in.done
}
