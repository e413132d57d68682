// Package console is the operator side of a harness connection: it handles
// the outer session, keeps a relay to the EV process's inner session, and
// exposes the combined state as immutable snapshots plus a set of operator
// actions that are safe to call from any goroutine.
package console

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/eventq"
	"github.com/ssloxford/current-affairs/internal/geo"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/relay"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

var (
	ErrDisconnected = errors.New("console: not connected to harness")
	ErrNoRelay      = errors.New("console: EV process not connected")
	ErrNoFix        = errors.New("console: no location fix")
)

// Options configures a Console. The zero value is usable.
type Options struct {
	// RelayPoll is the interval at which the relay is (re)requested while
	// the EV process runs.
	RelayPoll time.Duration
	// ManualTask selects the tasks that get a manual trigger. Nil means all.
	ManualTask func(name string) bool
	// Tracker supplies the operator's location. Nil disables positions.
	Tracker *geo.Tracker
	// Notify, if set, is called on its own goroutine whenever a checkpoint
	// starts waiting.
	Notify func(experiment string, v waiter.View)
	// Warn, if set, receives one line per protocol problem worth showing
	// outside the debug log (first sighting of each unknown message type).
	Warn func(line string)
}

// Console implements link.Handler for the outer session.
type Console struct {
	opts    Options
	changed chan struct{}

	mu   sync.Mutex
	sess link.Session // nil while disconnected
	snap Snapshot

	// Loop-owned.
	out     link.Session
	mux     *relay.Mux
	phase   Phase
	info    wire.InfoState
	inner   *evHandler
	unknown map[string]struct{}

	stopGPS func()
}

var _ link.Handler = (*Console)(nil)

// New creates a disconnected console.
func New(opts Options) *Console {
	c := &Console{
		opts:    opts,
		changed: eventq.NewSignal(),
		unknown: make(map[string]struct{}),
	}
	if opts.Tracker != nil {
		c.stopGPS = opts.Tracker.Subscribe(func(geo.Fix) { eventq.Signal(c.changed) })
	}
	return c
}

// Close detaches the console from its location tracker.
func (c *Console) Close() {
	if c.stopGPS != nil {
		c.stopGPS()
	}
}

// Changed is signalled after every state change. Signals coalesce; readers
// should call Snapshot after each receive.
func (c *Console) Changed() <-chan struct{} {
	return c.changed
}

// OnOpen implements link.Handler.
func (c *Console) OnOpen(s link.Session) {
	c.out = s
	c.mux = relay.New(s, c.newInner, c.opts.RelayPoll)
	c.mux.Start()
	c.phase = Loading
	c.info = wire.InfoState{}
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
	c.publish()
}

// OnMessage implements link.Handler.
func (c *Console) OnMessage(_ link.Session, msg *wire.Msg) {
	switch msg.Type {
	case wire.MsgInitDone:
		c.phase = Ready
	case wire.MsgInfo:
		info, err := wire.DecodeFrame[wire.InfoState](msg)
		if err != nil {
			c.violation(msg, err)
			return
		}
		c.info = *info
	case wire.MsgProcess:
		st, err := wire.DecodeFrame[wire.ProcessState](msg)
		if err != nil {
			c.violation(msg, err)
			return
		}
		c.mux.SetRunning(st.Running)
	default:
		if !c.mux.HandleMessage(msg) {
			c.unknownType(msg.Type)
			return
		}
	}
	c.publish()
}

// OnClose implements link.Handler.
func (c *Console) OnClose(link.Session) {
	c.mux.Close()
	c.mux = nil
	c.out = nil
	c.phase = Disconnected
	c.info = wire.InfoState{}
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
	c.publish()
}

func (c *Console) newInner() link.Handler {
	return &evHandler{c: c}
}

func (c *Console) violation(msg *wire.Msg, err error) {
	debug.LogKV("console", "protocol violation, message dropped", "type", msg.Type, "err", err)
}

func (c *Console) unknownType(msgType string) {
	debug.LogKV("console", "unknown message type dropped", "type", msgType)
	if _, seen := c.unknown[msgType]; seen {
		return
	}
	c.unknown[msgType] = struct{}{}
	if c.opts.Warn != nil {
		c.opts.Warn(fmt.Sprintf("ignoring unknown message type %q", msgType))
	}
}

// do runs fn on the outer loop and waits for its result.
func (c *Console) do(fn func() error) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return ErrDisconnected
	}
	errc := make(chan error, 1)
	ok := s.Post(func() {
		if c.mux == nil {
			errc <- ErrDisconnected
			return
		}
		errc <- fn()
	})
	if !ok {
		return ErrDisconnected
	}
	select {
	case err := <-errc:
		return err
	case <-s.Done():
		// The loop may still have run fn just before ending.
		select {
		case err := <-errc:
			return err
		default:
			return ErrDisconnected
		}
	}
}

// doInner runs fn on the loop with the open inner session.
func (c *Console) doInner(fn func(h *evHandler) error) error {
	return c.do(func() error {
		if c.inner == nil {
			return ErrNoRelay
		}
		return fn(c.inner)
	})
}
