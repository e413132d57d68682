package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/tasks"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

var (
	ErrDuplicateTask = errors.New("harness: task already declared")
	ErrUnknownParent = errors.New("harness: parent task not declared")
	ErrNotStatusType = errors.New("harness: not a status message type")
)

// InnerOptions configures an InnerServer.
type InnerOptions struct {
	AutoDelay    time.Duration
	WriteTimeout time.Duration
	Metrics      *Metrics
}

// InnerServer is the endpoint the relay connects to. It owns the standard
// checkpoints, the task forest and the latest status display messages, and
// pushes all of them to every connected session.
type InnerServer struct {
	hub          *hub
	metrics      *Metrics
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc

	tasks   []*Task
	byName  map[string]*Task
	status  map[string]*wire.Msg
	waiters []*Waiter
}

// NewInnerServer creates an inner server with the standard checkpoints and
// an empty task forest.
func NewInnerServer(opts InnerOptions) *InnerServer {
	if opts.AutoDelay <= 0 {
		opts.AutoDelay = DefaultAutoDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &InnerServer{
		hub:          newHub(),
		metrics:      opts.Metrics,
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
		byName:       make(map[string]*Task),
		status:       make(map[string]*wire.Msg),
	}
	for _, spec := range waiter.Standard {
		s.waiters = append(s.waiters, &Waiter{srv: s, kind: spec.Kind, delay: opts.AutoDelay})
	}
	return s
}

// Close ends every connected session.
func (s *InnerServer) Close() {
	s.cancel()
}

// Clients returns the number of sessions receiving broadcasts.
func (s *InnerServer) Clients() int {
	return s.hub.len()
}

// Waiter returns the checkpoint of kind, or nil.
func (s *InnerServer) Waiter(kind string) *Waiter {
	for _, w := range s.waiters {
		if w.kind == kind {
			return w
		}
	}
	return nil
}

// Task returns the task called name, or nil.
func (s *InnerServer) Task(name string) *Task {
	var t *Task
	s.hub.view(func() { t = s.byName[name] })
	return t
}

// AddTask declares a task. parent must be empty or an already declared
// task. Connected sessions see the task on their next connection; the
// forest is a per-session snapshot.
func (s *InnerServer) AddTask(name, parent string) (*Task, error) {
	var t *Task
	var err error
	s.hub.view(func() {
		if _, ok := s.byName[name]; ok {
			err = fmt.Errorf("%w: %q", ErrDuplicateTask, name)
			return
		}
		if parent != "" {
			if _, ok := s.byName[parent]; !ok {
				err = fmt.Errorf("%w: %q for %q", ErrUnknownParent, parent, name)
				return
			}
		}
		t = &Task{srv: s, name: name, parent: parent, enabled: true}
		s.tasks = append(s.tasks, t)
		s.byName[name] = t
	})
	return t, err
}

// SetStatus stores a flat status display message and broadcasts it. The
// latest message of each type is replayed to new sessions.
func (s *InnerServer) SetStatus(msgType string, payload any) error {
	if !wire.IsStatusType(msgType) {
		return fmt.Errorf("%w: %q", ErrNotStatusType, msgType)
	}
	msg, err := wire.EncodeFlat(msgType, payload)
	if err != nil {
		return err
	}
	s.hub.update(func() []*wire.Msg {
		s.status[msgType] = msg
		return []*wire.Msg{msg}
	})
	return nil
}

func (s *InnerServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	if m := s.metrics; m != nil {
		m.Clients.WithLabelValues("inner").Inc()
		defer m.Clients.WithLabelValues("inner").Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	err = link.Serve(ctx, link.WrapWebSocket(ws), link.HandlerFuncs{
		Open:    s.onOpen,
		Message: s.onMessage,
		Close:   s.hub.leave,
	}, s.writeTimeout)
	debug.LogKV("harness", "inner session ended", "remote", r.RemoteAddr, "reason", err)
}

func (s *InnerServer) onOpen(sess link.Session) {
	s.hub.join(sess, s.snapshotLocked)
}

func (s *InnerServer) snapshotLocked() []*wire.Msg {
	entries := make([]wire.TaskEntry, 0, len(s.tasks))
	for _, t := range s.tasks {
		entries = append(entries, t.entryLocked())
	}
	msgs := []*wire.Msg{mustFlat(wire.MsgInitTasks, wire.InitTasks{Tasks: entries})}
	for _, typ := range wire.StatusTypes {
		if msg, ok := s.status[typ]; ok {
			msgs = append(msgs, msg)
		}
	}
	for _, w := range s.waiters {
		msgs = append(msgs, w.stateLocked())
	}
	return append(msgs, wire.MustEncode(wire.MsgInitDone, nil))
}

func (s *InnerServer) onMessage(_ link.Session, msg *wire.Msg) {
	w := s.Waiter(msg.Type)
	if w == nil {
		debug.LogKV("harness", "inner: unexpected message", "type", msg.Type)
		return
	}
	cmd, err := wire.DecodeData[wire.WaiterCommand](msg)
	if err != nil {
		debug.LogKV("harness", "inner: bad checkpoint command", "type", msg.Type, "error", err)
		return
	}
	s.hub.update(func() []*wire.Msg {
		return w.handleLocked(cmd)
	})
}

// Task is one node of the inner server's task forest.
type Task struct {
	srv    *InnerServer
	name   string
	parent string

	result    tasks.State
	enabled   bool
	anomalies int
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Result returns the current state.
func (t *Task) Result() tasks.State {
	var st tasks.State
	t.srv.hub.view(func() { st = t.result })
	return st
}

// SetResult records a new state and broadcasts it. Entering Error counts one
// anomaly.
func (t *Task) SetResult(st tasks.State) {
	t.srv.hub.update(func() []*wire.Msg {
		if st == tasks.Error {
			t.anomalies++
		}
		t.result = st
		return []*wire.Msg{t.updateLocked()}
	})
}

// SetEnabled toggles whether the task takes part in "Start All" runs.
func (t *Task) SetEnabled(enabled bool) {
	t.srv.hub.update(func() []*wire.Msg {
		t.enabled = enabled
		return []*wire.Msg{t.updateLocked()}
	})
}

// Enabled reports whether the task is enabled.
func (t *Task) Enabled() bool {
	var v bool
	t.srv.hub.view(func() { v = t.enabled })
	return v
}

func (t *Task) entryLocked() wire.TaskEntry {
	e := wire.TaskEntry{
		Name:      t.name,
		Result:    int(t.result),
		Anomalies: t.anomalies,
	}
	if t.parent != "" {
		parent := t.parent
		e.ParentName = &parent
	}
	enabled := t.enabled
	e.Enabled = &enabled
	return e
}

func (t *Task) updateLocked() *wire.Msg {
	enabled := t.enabled
	return mustFlat(wire.MsgTask, wire.TaskUpdate{
		Name:      t.name,
		Result:    int(t.result),
		Enabled:   &enabled,
		Anomalies: t.anomalies,
	})
}

func mustFlat(msgType string, payload any) *wire.Msg {
	msg, err := wire.EncodeFlat(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}
