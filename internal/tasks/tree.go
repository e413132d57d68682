// Package tasks mirrors a remote task forest and the execution state of each
// task.
//
// The remote sends the whole forest once per session (init_tasks, parents
// before children) and then full-state overwrites of single records (task).
// Records are never added after the snapshot and never removed.
package tasks

import (
	"errors"
	"fmt"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

var (
	ErrUnknownTask        = errors.New("tasks: unknown task")
	ErrUnknownState       = errors.New("tasks: unknown state")
	ErrUnknownParent      = errors.New("tasks: parent not declared before child")
	ErrDuplicateTask      = errors.New("tasks: duplicate task")
	ErrAlreadyInitialized = errors.New("tasks: snapshot already received")
	ErrNotTriggerable     = errors.New("tasks: task cannot be triggered manually")
)

// TriggerLabel is the outcome label of a task's manual trigger.
const TriggerLabel = "Start"

// Record is one task.
type Record struct {
	Name        string
	Parent      string // "" at the forest root
	State       State
	Enabled     *bool
	Anomalies   int
	Triggerable bool
	Children    []*Record
}

// Node is a flattened record for display.
type Node struct {
	Name        string
	Depth       int
	State       State
	Glyph       string
	Enabled     *bool
	Anomalies   int
	Triggerable bool
}

// Tree is the task forest of one session. It is owned by the session's loop.
type Tree struct {
	trigger     *waiter.Checkpoint
	triggerable func(name string) bool

	initialized bool
	roots       []*Record
	byName      map[string]*Record
}

// NewTree creates an empty forest. Tasks for which triggerable returns true
// get a manual trigger registered on the trigger checkpoint, with the task
// name as outcome id. Either argument may be nil.
func NewTree(trigger *waiter.Checkpoint, triggerable func(name string) bool) *Tree {
	return &Tree{
		trigger:     trigger,
		triggerable: triggerable,
		byName:      make(map[string]*Record),
	}
}

// Initialized reports whether the snapshot has been received.
func (t *Tree) Initialized() bool { return t.initialized }

// Len returns the number of records.
func (t *Tree) Len() int { return len(t.byName) }

// Initialize builds the forest from a snapshot. Entries that break the
// ordering or naming rules are skipped and reported together; the rest are
// kept.
func (t *Tree) Initialize(entries []wire.TaskEntry) error {
	if t.initialized {
		return ErrAlreadyInitialized
	}
	t.initialized = true

	var errs []error
	for _, e := range entries {
		if err := t.add(e); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		debug.LogKV("tasks", "snapshot violations", "count", len(errs), "err", err)
	}
	return err
}

func (t *Tree) add(e wire.TaskEntry) error {
	if _, dup := t.byName[e.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, e.Name)
	}
	// An unmapped code still yields a record, shown as Unknown, so that its
	// children can attach.
	var stateErr error
	state := State(e.Result)
	if !state.Valid() {
		stateErr = fmt.Errorf("%w: task %q has code %d", ErrUnknownState, e.Name, e.Result)
		state = Unknown
	}
	r := &Record{
		Name:      e.Name,
		State:     state,
		Enabled:   e.Enabled,
		Anomalies: e.Anomalies,
	}
	if e.ParentName != nil {
		parent, ok := t.byName[*e.ParentName]
		if !ok {
			return fmt.Errorf("%w: %q under %q", ErrUnknownParent, e.Name, *e.ParentName)
		}
		r.Parent = parent.Name
		parent.Children = append(parent.Children, r)
	} else {
		t.roots = append(t.roots, r)
	}
	t.byName[r.Name] = r

	if t.trigger != nil && (t.triggerable == nil || t.triggerable(r.Name)) {
		r.Triggerable = true
		t.trigger.AddOutcome(waiter.Outcome{ID: r.Name, Label: TriggerLabel})
	}
	return stateErr
}

// Update overwrites one record's state.
func (t *Tree) Update(u wire.TaskUpdate) error {
	r, ok := t.byName[u.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, u.Name)
	}
	state := State(u.Result)
	if !state.Valid() {
		return fmt.Errorf("%w: task %q has code %d", ErrUnknownState, u.Name, u.Result)
	}
	r.State = state
	if u.Enabled != nil {
		enabled := *u.Enabled
		r.Enabled = &enabled
	}
	r.Anomalies = u.Anomalies
	return nil
}

// HandleMessage consumes init_tasks and task messages and reports whether
// msg was one of them.
func (t *Tree) HandleMessage(msg *wire.Msg) (bool, error) {
	switch msg.Type {
	case wire.MsgInitTasks:
		snap, err := wire.DecodeFrame[wire.InitTasks](msg)
		if err != nil {
			return true, err
		}
		return true, t.Initialize(snap.Tasks)
	case wire.MsgTask:
		u, err := wire.DecodeFrame[wire.TaskUpdate](msg)
		if err != nil {
			return true, err
		}
		return true, t.Update(*u)
	}
	return false, nil
}

// Get returns a copy of the named record without children.
func (t *Tree) Get(name string) (Record, bool) {
	r, ok := t.byName[name]
	if !ok {
		return Record{}, false
	}
	out := *r
	out.Children = nil
	return out, true
}

// Walk visits records depth-first, parents before children, in snapshot
// order. Returning false from fn stops the walk.
func (t *Tree) Walk(fn func(r *Record, depth int) bool) {
	var visit func(rs []*Record, depth int) bool
	visit = func(rs []*Record, depth int) bool {
		for _, r := range rs {
			if !fn(r, depth) || !visit(r.Children, depth+1) {
				return false
			}
		}
		return true
	}
	visit(t.roots, 0)
}

// Nodes flattens the forest for display.
func (t *Tree) Nodes() []Node {
	out := make([]Node, 0, len(t.byName))
	t.Walk(func(r *Record, depth int) bool {
		var enabled *bool
		if r.Enabled != nil {
			e := *r.Enabled
			enabled = &e
		}
		out = append(out, Node{
			Name:        r.Name,
			Depth:       depth,
			State:       r.State,
			Glyph:       r.State.Glyph(),
			Enabled:     enabled,
			Anomalies:   r.Anomalies,
			Triggerable: r.Triggerable,
		})
		return true
	})
	return out
}

// Trigger asks the remote to start task name through the trigger checkpoint.
// Like any checkpoint answer it is dropped while nothing is waiting.
func (t *Tree) Trigger(name string) (bool, error) {
	r, ok := t.byName[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	if !r.Triggerable || t.trigger == nil {
		return false, fmt.Errorf("%w: %q", ErrNotTriggerable, name)
	}
	return t.trigger.Resolve(name)
}
