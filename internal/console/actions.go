package console

import (
	"fmt"

	"github.com/ssloxford/current-affairs/internal/wire"
)

func (c *Console) sendInfo(u wire.InfoUpdate) error {
	return c.do(func() error {
		return c.out.Send(wire.MustEncode(wire.MsgInfo, u))
	})
}

// SetName records the experiment name on the harness.
func (c *Console) SetName(name string) error {
	return c.sendInfo(wire.InfoUpdate{Type: wire.InfoName, Name: name})
}

// SetBox records the charger box label on the harness.
func (c *Console) SetBox(box string) error {
	return c.sendInfo(wire.InfoUpdate{Type: wire.InfoBox, Box: box})
}

// SetPlug records the plug label on the harness.
func (c *Console) SetPlug(plug string) error {
	return c.sendInfo(wire.InfoUpdate{Type: wire.InfoPlug, Plug: plug})
}

// SendPosition records the current location fix as the experiment position.
func (c *Console) SendPosition() error {
	if c.opts.Tracker == nil {
		return ErrNoFix
	}
	fix, ok := c.opts.Tracker.Current()
	if !ok {
		return ErrNoFix
	}
	return c.sendInfo(wire.InfoUpdate{Type: wire.InfoGPS, GPS: wire.NewPosition(fix.Lat, fix.Lon)})
}

// Process sends a start or signal command for the EV process.
func (c *Console) Process(cmd string) error {
	if !wire.ValidProcessCommand(cmd) {
		return fmt.Errorf("console: unknown process command %q", cmd)
	}
	return c.do(func() error {
		return c.out.Send(wire.MustEncode(wire.MsgProcess, wire.ProcessCommand{Type: cmd}))
	})
}

// Resolve answers checkpoint kind with outcome id. sent is false when the
// checkpoint was not waiting.
func (c *Console) Resolve(kind, id string) (sent bool, err error) {
	err = c.doInner(func(h *evHandler) error {
		sent, err = h.checkpoints.Resolve(kind, id)
		return err
	})
	return sent, err
}

// SetAuto requests (or withdraws) auto-answer delegation for kind.
func (c *Console) SetAuto(kind string, checked bool) error {
	return c.doInner(func(h *evHandler) error {
		return h.checkpoints.SetAuto(kind, checked)
	})
}

// ToggleAuto requests the opposite of kind's displayed delegation state.
func (c *Console) ToggleAuto(kind string) error {
	return c.doInner(func(h *evHandler) error {
		cp := h.checkpoints.Get(kind)
		if cp == nil {
			return h.checkpoints.SetAuto(kind, true)
		}
		return cp.ToggleAuto()
	})
}

// TriggerTask starts task name through the done checkpoint.
func (c *Console) TriggerTask(name string) (sent bool, err error) {
	err = c.doInner(func(h *evHandler) error {
		sent, err = h.tree.Trigger(name)
		return err
	})
	return sent, err
}
