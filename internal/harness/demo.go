package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/display"
	"github.com/ssloxford/current-affairs/internal/tasks"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// DemoPlan is the task forest the simulator declares, parents first.
var DemoPlan = []struct{ Name, Parent string }{
	{"SLAC", ""},
	{"SDP_NTLS", "SLAC"},
	{"SDP_YTLS", "SLAC"},
	{"CONN_NTLS", "SDP_NTLS"},
	{"CONN_UTLS_V2", "SDP_YTLS"},
	{"SUPPORTED_NTLS_DIN", "CONN_NTLS"},
	{"SUPPORTED_UTLS_V2_V20DC", "CONN_UTLS_V2"},
	{"V2G_NTLS_DIN", "SUPPORTED_NTLS_DIN"},
	{"V2G_UTLS_V2_V20DC", "SUPPORTED_UTLS_V2_V20DC"},
}

// Control-pilot state bits reported by the simulator.
const (
	cpStateA1 = 1
	cpStateB2 = 8
	cpStateC2 = 32
)

// Demo drives an InnerServer through the lifecycle of a charging test run:
// wait for start, plug, run the task forest, then let the operator trigger
// single tasks until done. It needs no hardware and is meant for manual
// end-to-end runs of the console.
type Demo struct {
	Inner *InnerServer
	// Step is the simulated duration of one protocol phase.
	Step time.Duration
	// Outcome decides a finished task's result. Defaults to Success.
	Outcome func(task string) tasks.State
	// Sleep defaults to a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	order []*Task
}

// NewDemo declares the demo plan on inner.
func NewDemo(inner *InnerServer, step time.Duration) (*Demo, error) {
	d := &Demo{Inner: inner, Step: step}
	for _, p := range DemoPlan {
		t, err := inner.AddTask(p.Name, p.Parent)
		if err != nil {
			return nil, err
		}
		d.order = append(d.order, t)
	}
	if err := d.signal(cpStateA1, 12, 12, nil); err != nil {
		return nil, err
	}
	return d, nil
}

// Run repeats test sessions until ctx ends or the operator picks Exit.
func (d *Demo) Run(ctx context.Context) error {
	for {
		exit, err := d.session(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		}
		if exit {
			return nil
		}
	}
}

func (d *Demo) session(ctx context.Context) (bool, error) {
	res, err := d.Inner.Waiter(wire.MsgWaiterStart).Wait(ctx)
	if err != nil {
		return false, err
	}
	debug.LogKV("demo", "session start", "mode", res)
	if res == waiter.OutcomeExit {
		return true, nil
	}
	for _, t := range d.order {
		t.SetResult(tasks.Unknown)
	}

	if res == waiter.OutcomeStartAll {
		for _, t := range d.order {
			if !t.Enabled() {
				t.SetResult(tasks.Disabled)
				continue
			}
			if _, err := d.runTask(ctx, t); err != nil {
				return false, err
			}
		}
	}

	for {
		res, err := d.Inner.Waiter(wire.MsgWaiterDone).Wait(ctx)
		if err != nil {
			return false, err
		}
		if res == waiter.OutcomeDone {
			debug.Log("demo", "session done")
			return false, nil
		}
		t := d.Inner.Task(res)
		if t == nil {
			debug.LogKV("demo", "trigger for unknown task", "task", res)
			continue
		}
		if _, err := d.runTask(ctx, t); err != nil {
			return false, err
		}
	}
}

// runTask runs t. A parent that has not run yet in this session runs first;
// a parent that did not succeed fails t without running it.
func (d *Demo) runTask(ctx context.Context, t *Task) (tasks.State, error) {
	if t.parent != "" {
		parent := d.Inner.Task(t.parent)
		st := parent.Result()
		if st == tasks.Unknown {
			var err error
			if st, err = d.runTask(ctx, parent); err != nil {
				return st, err
			}
		}
		if st != tasks.Success {
			t.SetResult(tasks.Failure)
			return tasks.Failure, nil
		}
	}

	t.SetResult(tasks.Running)
	if err := d.simulate(ctx, t.name); err != nil {
		t.SetResult(tasks.Error)
		return tasks.Error, err
	}
	st := tasks.Success
	if d.Outcome != nil {
		st = d.Outcome(t.name)
	}
	t.SetResult(st)
	return st, nil
}

func (d *Demo) simulate(ctx context.Context, name string) error {
	switch {
	case name == "SLAC":
		if _, err := d.Inner.Waiter(wire.MsgWaiterPlug).Wait(ctx); err != nil {
			return err
		}
		if err := d.signal(cpStateB2, 9, -12, ptr(5.0)); err != nil {
			return err
		}
		for i := range display.SLACStateNames {
			if err := d.Inner.SetStatus(wire.MsgSLACState, display.SLACState{State: i}); err != nil {
				return err
			}
			if err := d.sleep(ctx, d.Step/time.Duration(len(display.SLACStateNames))); err != nil {
				return err
			}
		}
		if err := d.Inner.SetStatus(wire.MsgSLACState, display.SLACState{State: len(display.SLACStateNames) - 1, StateDone: true}); err != nil {
			return err
		}
		return d.Inner.SetStatus(wire.MsgSLACResult, map[string]any{"result": map[string]any{"nid": "demo", "run_id": 1}})
	case strings.HasPrefix(name, "SDP_"):
		tls := name == "SDP_YTLS"
		if err := d.sleep(ctx, d.Step); err != nil {
			return err
		}
		return d.Inner.SetStatus(wire.MsgSDPResult, map[string]any{
			"result": map[string]any{"ip": "fe80::1", "port": 15118, "tls": tls},
		})
	case strings.HasPrefix(name, "SUPPORTED_"):
		if err := d.sleep(ctx, d.Step); err != nil {
			return err
		}
		return d.Inner.SetStatus(wire.MsgProto, map[string]any{
			"result": map[string]any{"DIN": true, "V2V10": false, "V2V13": true, "V20DC": true},
		})
	case strings.HasPrefix(name, "V2G_"):
		if err := d.signal(cpStateC2, 6, -12, ptr(5.0)); err != nil {
			return err
		}
		if err := d.sleep(ctx, d.Step); err != nil {
			return err
		}
		return d.Inner.SetStatus(wire.MsgV2G, display.V2GState{
			SessionID:        fmt.Sprintf("%08X", len(name)),
			ServiceDiscovery: "AC_DC",
		})
	default:
		return d.sleep(ctx, d.Step)
	}
}

func (d *Demo) signal(state int, high, low float64, duty *float64) error {
	return d.Inner.SetStatus(wire.MsgBasicSignaling, display.BasicSignaling{
		State: &display.Measurement{State: state, High: &high, Low: &low, Duty: duty},
	})
}

func (d *Demo) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ptr[T any](v T) *T { return &v }
