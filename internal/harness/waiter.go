package harness

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/hexid"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// ErrAlreadyWaiting is returned by Wait while another Wait on the same
// checkpoint is pending.
var ErrAlreadyWaiting = errors.New("harness: checkpoint already waiting")

// DefaultAutoDelay is how long a delegated checkpoint stays visible before it
// resolves itself.
const DefaultAutoDelay = 2 * time.Second

// Waiter is the owning side of one checkpoint kind. State is guarded by the
// inner server's hub.
type Waiter struct {
	srv   *InnerServer
	kind  string
	delay time.Duration

	waiting bool
	cookie  string
	autoKey *string
	result  chan string
	timer   *time.Timer
}

// Kind returns the checkpoint kind, e.g. waiter_start.
func (w *Waiter) Kind() string { return w.kind }

// Waiting reports whether a Wait is pending.
func (w *Waiter) Waiting() bool {
	var v bool
	w.srv.hub.view(func() { v = w.waiting })
	return v
}

// AutoKey returns the delegated outcome id, if any.
func (w *Waiter) AutoKey() (string, bool) {
	var key string
	var ok bool
	w.srv.hub.view(func() {
		if w.autoKey != nil {
			key, ok = *w.autoKey, true
		}
	})
	return key, ok
}

// SetAutoKey delegates the checkpoint to key, or withdraws delegation when
// key is nil, exactly as a client auto command would.
func (w *Waiter) SetAutoKey(key *string) {
	w.srv.hub.update(func() []*wire.Msg {
		return w.setAutoLocked(key)
	})
}

// Wait marks the checkpoint active under a fresh cookie and blocks until it
// is resolved, by a client click or by delegation, or until ctx ends.
func (w *Waiter) Wait(ctx context.Context) (string, error) {
	var ch chan string
	var err error
	w.srv.hub.update(func() []*wire.Msg {
		if w.waiting {
			err = ErrAlreadyWaiting
			return nil
		}
		w.waiting = true
		w.cookie = hexid.New()
		ch = make(chan string, 1)
		w.result = ch
		if w.autoKey != nil {
			w.scheduleAutoLocked()
		}
		return []*wire.Msg{w.stateLocked()}
	})
	if err != nil {
		return "", err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		w.srv.hub.update(func() []*wire.Msg {
			if w.result != ch || !w.waiting {
				return nil
			}
			w.idleLocked()
			return []*wire.Msg{w.stateLocked()}
		})
		return "", ctx.Err()
	}
}

// handleLocked applies a client command. It returns the messages to
// broadcast.
func (w *Waiter) handleLocked(cmd *wire.WaiterCommand) []*wire.Msg {
	switch cmd.Type {
	case wire.CmdClick:
		var cookie string
		if err := json.Unmarshal(cmd.Cookie, &cookie); err == nil && w.waiting && cookie == w.cookie {
			return w.resolveLocked(cmd.Result, "click")
		}
		debug.LogKV("harness", "stale checkpoint click", "kind", w.kind, "cookie", string(cmd.Cookie))
		return []*wire.Msg{w.stateLocked()}
	case wire.CmdAuto:
		return w.setAutoLocked(cmd.Key)
	}
	debug.LogKV("harness", "unknown checkpoint command", "kind", w.kind, "type", cmd.Type)
	return nil
}

func (w *Waiter) setAutoLocked(key *string) []*wire.Msg {
	w.autoKey = key
	if key == nil {
		w.stopTimerLocked()
	} else if w.waiting {
		w.scheduleAutoLocked()
	}
	return []*wire.Msg{w.stateLocked()}
}

func (w *Waiter) resolveLocked(result, via string) []*wire.Msg {
	ch := w.result
	w.idleLocked()
	ch <- result
	if m := w.srv.metrics; m != nil {
		m.Checkpoints.WithLabelValues(w.kind, via).Inc()
	}
	debug.LogKV("harness", "checkpoint resolved", "kind", w.kind, "result", result, "via", via)
	return []*wire.Msg{w.stateLocked()}
}

func (w *Waiter) idleLocked() {
	w.stopTimerLocked()
	w.waiting = false
	w.cookie = ""
	w.result = nil
}

func (w *Waiter) scheduleAutoLocked() {
	w.stopTimerLocked()
	cookie, key := w.cookie, *w.autoKey
	w.timer = time.AfterFunc(w.delay, func() {
		w.srv.hub.update(func() []*wire.Msg {
			if !w.waiting || w.cookie != cookie || w.autoKey == nil || *w.autoKey != key {
				return nil
			}
			return w.resolveLocked(key, "auto")
		})
	})
}

func (w *Waiter) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Waiter) stateLocked() *wire.Msg {
	st := wire.WaiterState{
		Waiting: w.waiting,
		AutoKey: wire.NullableString(w.autoKey),
	}
	if w.waiting {
		st.WaitingCookie, _ = json.Marshal(w.cookie)
	}
	return mustFlat(w.kind, st)
}
