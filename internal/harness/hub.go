// Package harness implements the remote side of the console protocol: the
// outer harness server that supervises the EV process and relays the inner
// session, the inner server that owns checkpoints, tasks and status displays,
// and a demo EV simulator that drives an inner server without hardware.
package harness

import (
	"sync"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// hub fans state pushes out to every connected session.
//
// Its mutex also guards the state the pushes describe: every mutation runs
// inside Update, so a client joining mid-change either sees the old snapshot
// followed by the change or the new snapshot, never a torn mix.
type hub struct {
	mu      sync.Mutex
	clients map[link.Session]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[link.Session]struct{})}
}

// join sends the snapshot built by fn to s and then registers s for
// broadcasts.
func (h *hub) join(s link.Session, fn func() []*wire.Msg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, msg := range fn() {
		if err := s.Send(msg); err != nil {
			debug.LogKV("harness", "snapshot send failed", "type", msg.Type, "error", err)
			return
		}
	}
	h.clients[s] = struct{}{}
}

func (h *hub) leave(s link.Session) {
	h.mu.Lock()
	delete(h.clients, s)
	h.mu.Unlock()
}

// update runs fn under the hub lock and broadcasts the messages it returns.
func (h *hub) update(fn func() []*wire.Msg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, msg := range fn() {
		h.broadcastLocked(msg)
	}
}

// view runs fn under the hub lock without broadcasting.
func (h *hub) view(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *hub) broadcastLocked(msg *wire.Msg) {
	for s := range h.clients {
		if err := s.Send(msg); err != nil {
			debug.LogKV("harness", "broadcast failed", "type", msg.Type, "error", err)
			delete(h.clients, s)
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
