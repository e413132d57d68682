// Package relay tunnels one inner session through an outer link.Session.
//
// The client asks the remote to start relaying with forward_open. The remote
// answers forward_success once its own connection to the inner endpoint is
// up, then carries every inner frame as the data of a forward envelope in
// both directions, and ends the relay with forward_fail. The inner session
// looks to its handler exactly like a direct connection.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// DefaultPollInterval is how often the mux re-checks whether to request a relay.
const DefaultPollInterval = time.Second

// ErrNotOpen is returned by Inner.Send before the remote confirmed the relay.
var ErrNotOpen = errors.New("relay: inner session not open")

// State is the condition of the mux's single inner slot.
type State int

const (
	StateIdle    State = iota // no inner session
	StatePending              // forward_open sent, no answer yet
	StateOpen                 // forward_success received
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Mux owns at most one inner session at a time. All methods except Start's
// background ticker must be called on the outer session's loop.
type Mux struct {
	outer    link.Session
	factory  func() link.Handler
	interval time.Duration

	running bool
	slot    *Inner
	stop    context.CancelFunc
}

// New creates a mux over outer. factory builds a fresh handler for every
// inner session; handlers are never reused across relays.
func New(outer link.Session, factory func() link.Handler, interval time.Duration) *Mux {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Mux{outer: outer, factory: factory, interval: interval}
}

// Start launches the open-poll ticker. The ticker stops when Close is called
// or the outer session ends.
func (m *Mux) Start() {
	if m.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	go m.pollLoop(ctx)
}

func (m *Mux) pollLoop(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	tick := func() bool {
		return m.outer.Post(func() {
			if ctx.Err() == nil {
				m.poll()
			}
		})
	}
	if !tick() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.outer.Done():
			return
		case <-t.C:
			if !tick() {
				return
			}
		}
	}
}

// SetRunning records the remote process state reported by process messages.
// The next poll acts on it.
func (m *Mux) SetRunning(running bool) {
	m.running = running
}

// Running reports the last process state given to SetRunning.
func (m *Mux) Running() bool {
	return m.running
}

// State reports the slot condition.
func (m *Mux) State() State {
	switch {
	case m.slot == nil:
		return StateIdle
	case m.slot.opened:
		return StateOpen
	default:
		return StatePending
	}
}

// Current returns the inner session in the slot, or nil.
func (m *Mux) Current() *Inner {
	return m.slot
}

func (m *Mux) poll() {
	if !m.running || m.slot != nil {
		return
	}
	m.slot = m.newInner()
	if err := m.outer.Send(wire.MustEncode(wire.MsgForwardOpen, nil)); err != nil {
		debug.LogKV("relay", "forward_open failed", "err", err)
		m.slot = nil
		return
	}
	debug.Log("relay", "forward_open sent")
}

// HandleMessage consumes the relay's outer message types and reports whether
// msg was one of them.
func (m *Mux) HandleMessage(msg *wire.Msg) bool {
	switch msg.Type {
	case wire.MsgForwardSuccess:
		m.handleSuccess()
	case wire.MsgForward:
		m.handleForward(msg)
	case wire.MsgForwardFail:
		if m.slot != nil {
			debug.LogKV("relay", "relay ended by remote", "state", m.State())
			m.closeSlot()
		}
	default:
		return false
	}
	return true
}

func (m *Mux) handleSuccess() {
	if m.slot == nil {
		debug.Log("relay", "unsolicited forward_success dropped")
		return
	}
	if m.slot.opened {
		// The remote restarted the relay; whatever the old inner session
		// knew is stale.
		debug.Log("relay", "forward_success on open relay, replacing inner session")
		m.closeSlot()
		m.slot = m.newInner()
	}
	in := m.slot
	in.opened = true
	in.handler.OnOpen(in)
}

func (m *Mux) handleForward(msg *wire.Msg) {
	if m.slot == nil || !m.slot.opened {
		debug.LogKV("relay", "forward without open relay dropped", "state", m.State())
		return
	}
	inner, err := wire.Unwrap(msg)
	if err != nil {
		debug.LogKV("relay", "malformed forward dropped", "err", err)
		return
	}
	in := m.slot
	in.handler.OnMessage(in, inner)
}

// Close stops polling and ends the inner session, if any. It is called from
// the outer session's OnClose so the inner OnClose always precedes the end of
// outer close handling.
func (m *Mux) Close() {
	if m.stop != nil {
		m.stop()
	}
	m.running = false
	if m.slot != nil {
		m.closeSlot()
	}
}

func (m *Mux) newInner() *Inner {
	return &Inner{mux: m, handler: m.factory(), done: make(chan struct{})}
}

func (m *Mux) closeSlot() {
	in := m.slot
	m.slot = nil
	close(in.done)
	if in.opened {
		in.handler.OnClose(in)
	}
}
