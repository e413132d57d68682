package console

import (
	"time"

	"github.com/ssloxford/current-affairs/internal/display"
	"github.com/ssloxford/current-affairs/internal/eventq"
	"github.com/ssloxford/current-affairs/internal/geo"
	"github.com/ssloxford/current-affairs/internal/relay"
	"github.com/ssloxford/current-affairs/internal/tasks"
	"github.com/ssloxford/current-affairs/internal/waiter"
)

// Phase is the outer connection state as shown to the operator.
type Phase int

const (
	Disconnected Phase = iota
	Loading            // connected, waiting for init_done
	Ready
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Position is a recorded coordinate pair.
type Position struct {
	Lat, Lon float64
}

// Snapshot is an immutable copy of everything the operator sees. Only Phase,
// Fix and At are set unless Phase is Ready.
type Snapshot struct {
	Phase   Phase
	Name    string
	Box     string
	Plug    string
	Running bool
	Relay   relay.State

	// Recorded is the experiment position stored on the harness.
	Recorded *Position
	// Fix is the operator's current location.
	Fix *geo.Fix
	// Distance is the metres between Recorded and Fix when both are known.
	Distance *float64

	// Inner is nil while no inner session is open.
	Inner *InnerSnapshot

	At time.Time
}

// InnerSnapshot is the state of the EV process's session.
type InnerSnapshot struct {
	Ready       bool // init_done received
	Checkpoints []waiter.View
	Tasks       []tasks.Node
	Status      []display.Line
}

// publish rebuilds the shared snapshot from loop-owned state. Until the
// harness sends init_done the snapshot carries the phase only.
func (c *Console) publish() {
	s := Snapshot{Phase: c.phase, At: time.Now()}
	if c.phase == Ready {
		c.fillReady(&s)
	}
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
	eventq.Signal(c.changed)
}

func (c *Console) fillReady(s *Snapshot) {
	s.Name, s.Box, s.Plug = c.info.Name, c.info.Box, c.info.Plug
	if lat, lon, ok := c.info.GPS.LatLon(); ok {
		s.Recorded = &Position{Lat: lat, Lon: lon}
	}
	if c.mux != nil {
		s.Running = c.mux.Running()
		s.Relay = c.mux.State()
	}
	if h := c.inner; h != nil {
		s.Inner = &InnerSnapshot{
			Ready:       h.ready,
			Checkpoints: h.checkpoints.Views(),
			Tasks:       h.tree.Nodes(),
			Status:      h.board.Lines(),
		}
	}
}

// Snapshot returns the current state. The console never modifies a
// snapshot after handing it out.
func (c *Console) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.snap
	c.mu.Unlock()

	if c.opts.Tracker != nil {
		if fix, ok := c.opts.Tracker.Current(); ok {
			s.Fix = &fix
			if s.Recorded != nil {
				d := geo.Distance(s.Recorded.Lat, s.Recorded.Lon, fix.Lat, fix.Lon)
				s.Distance = &d
			}
		}
	}
	return s
}
