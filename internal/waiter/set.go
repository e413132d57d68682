package waiter

import (
	"fmt"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// Outcome ids of the standard checkpoint kinds.
const (
	OutcomeStartAll = "start_all"
	OutcomeStartMan = "start_man"
	OutcomeExit     = "exit"
	OutcomeDone     = "done"
	OutcomePlug     = "plug"
)

// Spec describes a checkpoint kind before it is attached to a session.
type Spec struct {
	Kind     string
	Outcomes []Outcome
	AutoID   string
}

// Standard lists the checkpoint kinds of a charging test run in display
// order. Tasks add their own outcomes to waiter_done at runtime.
var Standard = []Spec{
	{
		Kind: wire.MsgWaiterStart,
		Outcomes: []Outcome{
			{ID: OutcomeStartAll, Label: "Start All"},
			{ID: OutcomeStartMan, Label: "Start Manual"},
			{ID: OutcomeExit, Label: "Exit"},
		},
		AutoID: OutcomeStartAll,
	},
	{
		Kind:     wire.MsgWaiterDone,
		Outcomes: []Outcome{{ID: OutcomeDone, Label: "Done"}},
		AutoID:   OutcomeDone,
	},
	{
		Kind:     wire.MsgWaiterPlug,
		Outcomes: []Outcome{{ID: OutcomePlug, Label: "Plug"}},
		AutoID:   OutcomePlug,
	},
}

// Set is the checkpoint registry of one session.
type Set struct {
	sess  link.Session
	order []string
	byKey map[string]*Checkpoint

	// OnActivate, if set, is called on the loop when any checkpoint in the
	// set starts waiting.
	OnActivate func(View)
}

// NewSet creates an empty registry for sess.
func NewSet(sess link.Session) *Set {
	return &Set{sess: sess, byKey: make(map[string]*Checkpoint)}
}

// NewStandardSet creates a registry with every Standard kind attached.
func NewStandardSet(sess link.Session) *Set {
	s := NewSet(sess)
	for _, spec := range Standard {
		s.Attach(spec.Kind, spec.Outcomes, spec.AutoID)
	}
	return s
}

// Attach registers kind. Attaching a kind twice returns the existing handle.
func (s *Set) Attach(kind string, outcomes []Outcome, autoID string) *Checkpoint {
	if cp, ok := s.byKey[kind]; ok {
		return cp
	}
	cp := New(s.sess, kind, outcomes, autoID)
	cp.onActivate = func(v View) {
		if s.OnActivate != nil {
			s.OnActivate(v)
		}
	}
	s.byKey[kind] = cp
	s.order = append(s.order, kind)
	return cp
}

// Get returns the handle for kind, or nil.
func (s *Set) Get(kind string) *Checkpoint {
	return s.byKey[kind]
}

// HandleMessage applies msg if its type is a registered kind and reports
// whether it was consumed.
func (s *Set) HandleMessage(msg *wire.Msg) (bool, error) {
	cp, ok := s.byKey[msg.Type]
	if !ok {
		return false, nil
	}
	if err := cp.HandleMessage(msg); err != nil {
		debug.LogKV("waiter", "bad waiter state dropped", "kind", msg.Type, "err", err)
		return true, err
	}
	return true, nil
}

// Resolve answers checkpoint kind with outcome id.
func (s *Set) Resolve(kind, id string) (bool, error) {
	cp, ok := s.byKey[kind]
	if !ok {
		debug.LogKV("waiter", "resolve on unregistered kind", "kind", kind)
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return cp.Resolve(id)
}

// SetAuto changes delegation of kind.
func (s *Set) SetAuto(kind string, checked bool) error {
	cp, ok := s.byKey[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return cp.SetAuto(checked)
}

// Views returns every checkpoint's state in attach order.
func (s *Set) Views() []View {
	out := make([]View, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k].View())
	}
	return out
}
