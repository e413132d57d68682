// Package waiter implements the operator side of the checkpoint handshake.
//
// The remote pauses at a decision point and announces it with a waiter
// message {type: kind, waiting, waiting_cookie, auto_key}. While a kind is
// waiting, the operator may answer with exactly one outcome; the answer
// echoes the cookie so the remote can discard answers to checkpoints it has
// already left. The operator may also delegate a kind to the remote's
// auto-answer, and the remote echoes the delegated key back.
//
// Nothing here predicts the remote: state only changes when a waiter message
// arrives.
package waiter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

var (
	ErrUnknownKind    = errors.New("waiter: unknown checkpoint kind")
	ErrUnknownOutcome = errors.New("waiter: unknown outcome")
	ErrNoDelegation   = errors.New("waiter: checkpoint has no auto outcome")
)

// Outcome is one answer offered to the operator.
type Outcome struct {
	ID    string
	Label string
}

// View is a copy of a checkpoint's displayed state.
type View struct {
	Kind     string
	Active   bool
	Cookie   json.RawMessage
	Outcomes []Outcome
	// AutoID is the delegable outcome, "" when the kind has none.
	AutoID string
	// AutoChecked mirrors the remote's last auto_key echo.
	AutoChecked bool
}

// AutoLabel is the label of the delegable outcome.
func (v View) AutoLabel() string {
	for _, o := range v.Outcomes {
		if o.ID == v.AutoID {
			return o.Label
		}
	}
	return v.AutoID
}

// Checkpoint is the handle for one checkpoint kind on one session. It is
// owned by the session's loop.
type Checkpoint struct {
	sess     link.Session
	kind     string
	outcomes []Outcome
	autoID   string

	active      bool
	cookie      json.RawMessage
	autoChecked bool

	onActivate func(View)
}

// New creates a checkpoint of kind sending on sess. autoID names the
// delegable outcome and may be empty.
func New(sess link.Session, kind string, outcomes []Outcome, autoID string) *Checkpoint {
	return &Checkpoint{
		sess:     sess,
		kind:     kind,
		outcomes: slices.Clone(outcomes),
		autoID:   autoID,
	}
}

// Kind returns the message type of this checkpoint.
func (c *Checkpoint) Kind() string { return c.kind }

// Active reports whether the remote is waiting on this checkpoint.
func (c *Checkpoint) Active() bool { return c.active }

// AddOutcome appends an outcome after setup. Adding an existing id is a no-op.
func (c *Checkpoint) AddOutcome(o Outcome) {
	if c.hasOutcome(o.ID) {
		return
	}
	c.outcomes = append(c.outcomes, o)
}

func (c *Checkpoint) hasOutcome(id string) bool {
	return slices.ContainsFunc(c.outcomes, func(o Outcome) bool { return o.ID == id })
}

// Apply takes a waiter state push for this kind.
func (c *Checkpoint) Apply(st wire.WaiterState) {
	wasActive := c.active
	if st.Waiting {
		c.active = true
		c.cookie = bytes.Clone(st.WaitingCookie)
	} else {
		c.active = false
		c.cookie = nil
	}
	if key, present := st.AutoKeyValue(); present {
		c.autoChecked = c.autoID != "" && key == c.autoID
	}
	if c.active && !wasActive && c.onActivate != nil {
		c.onActivate(c.View())
	}
}

// HandleMessage decodes a flat waiter message and applies it.
func (c *Checkpoint) HandleMessage(msg *wire.Msg) error {
	st, err := wire.DecodeFrame[wire.WaiterState](msg)
	if err != nil {
		return err
	}
	c.Apply(*st)
	return nil
}

// Resolve answers the active checkpoint with outcome id. It reports whether a
// click was sent: resolving an inactive checkpoint sends nothing and is not
// an error. The checkpoint stays active until the remote says otherwise.
func (c *Checkpoint) Resolve(id string) (bool, error) {
	if !c.hasOutcome(id) {
		return false, fmt.Errorf("%w: %q for %s", ErrUnknownOutcome, id, c.kind)
	}
	if !c.active {
		debug.LogKV("waiter", "resolve while inactive dropped", "kind", c.kind, "outcome", id)
		return false, nil
	}
	cookie := c.cookie
	if len(cookie) == 0 {
		cookie = json.RawMessage("null")
	}
	click := wire.WaiterClick{Type: wire.CmdClick, Cookie: cookie, Result: id}
	if err := c.sess.Send(wire.MustEncode(c.kind, click)); err != nil {
		return false, err
	}
	debug.LogKV("waiter", "click sent", "kind", c.kind, "outcome", id)
	return true, nil
}

// SetAuto asks the remote to start (checked) or stop delegating this kind.
// The displayed state changes only when the remote echoes auto_key.
func (c *Checkpoint) SetAuto(checked bool) error {
	if c.autoID == "" {
		return fmt.Errorf("%w: %s", ErrNoDelegation, c.kind)
	}
	msg := wire.WaiterAuto{Type: wire.CmdAuto}
	if checked {
		key := c.autoID
		msg.Key = &key
	}
	return c.sess.Send(wire.MustEncode(c.kind, msg))
}

// ToggleAuto requests the opposite of the displayed delegation state.
func (c *Checkpoint) ToggleAuto() error {
	return c.SetAuto(!c.autoChecked)
}

// View returns a copy of the displayed state.
func (c *Checkpoint) View() View {
	return View{
		Kind:        c.kind,
		Active:      c.active,
		Cookie:      bytes.Clone(c.cookie),
		Outcomes:    slices.Clone(c.outcomes),
		AutoID:      c.autoID,
		AutoChecked: c.autoChecked,
	}
}
