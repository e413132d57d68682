package console

import (
	"context"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ssloxford/current-affairs/internal/harness"
	"github.com/ssloxford/current-affairs/internal/relay"
	"github.com/ssloxford/current-affairs/internal/tasks"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// TestConsoleAgainstHarness runs the console against a real harness: start
// the EV process, wait for the relay, answer a checkpoint and trigger a task.
func TestConsoleAgainstHarness(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	inner := harness.NewInnerServer(harness.InnerOptions{})
	if _, err := inner.AddTask("SLAC", ""); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	innerSrv := httptest.NewServer(inner)
	t.Cleanup(func() {
		inner.Close()
		innerSrv.Close()
	})

	proc := &harness.Process{
		Command:    []string{sh, "-c", "exec sleep 30", "ev"},
		ResultsDir: t.TempDir(),
	}
	outer := harness.NewServer(harness.Options{
		InnerURL: wsURL(innerSrv),
		Process:  proc,
	})
	outerSrv := httptest.NewServer(outer)
	t.Cleanup(func() {
		outer.Close()
		outerSrv.Close()
		proc.Kill()
		proc.Wait()
	})

	c := New(Options{RelayPoll: 20 * time.Millisecond})
	defer c.Close()
	run(t, wsURL(outerSrv), c)

	waitSnapshot(t, c, "ready", func(s Snapshot) bool { return s.Phase == Ready })
	if err := c.SetName("bench-3"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	waitSnapshot(t, c, "name echo", func(s Snapshot) bool { return s.Name == "bench-3" })
	if got := outer.Info().Name; got != "bench-3" {
		t.Fatalf("harness name = %q", got)
	}

	if err := c.Process(wire.ProcStart); err != nil {
		t.Fatalf("Process(start): %v", err)
	}
	waitSnapshot(t, c, "relay open", func(s Snapshot) bool {
		return s.Running && s.Relay == relay.StateOpen && s.Inner != nil && s.Inner.Ready
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	started := make(chan string, 1)
	go func() {
		res, _ := inner.Waiter(wire.MsgWaiterStart).Wait(ctx)
		started <- res
	}()
	waitSnapshot(t, c, "start checkpoint", func(s Snapshot) bool {
		return s.Inner != nil && checkpointActive(s.Inner.Checkpoints, wire.MsgWaiterStart)
	})
	if sent, err := c.Resolve(wire.MsgWaiterStart, waiter.OutcomeStartMan); err != nil || !sent {
		t.Fatalf("Resolve = (%v, %v)", sent, err)
	}
	if res := <-started; res != waiter.OutcomeStartMan {
		t.Fatalf("harness got %q, want %q", res, waiter.OutcomeStartMan)
	}

	triggered := make(chan string, 1)
	go func() {
		res, _ := inner.Waiter(wire.MsgWaiterDone).Wait(ctx)
		triggered <- res
	}()
	waitSnapshot(t, c, "done checkpoint", func(s Snapshot) bool {
		return s.Inner != nil && checkpointActive(s.Inner.Checkpoints, wire.MsgWaiterDone)
	})
	if sent, err := c.TriggerTask("SLAC"); err != nil || !sent {
		t.Fatalf("TriggerTask = (%v, %v)", sent, err)
	}
	if res := <-triggered; res != "SLAC" {
		t.Fatalf("done checkpoint resolved with %q, want SLAC", res)
	}

	inner.Task("SLAC").SetResult(tasks.Success)
	waitSnapshot(t, c, "task success", func(s Snapshot) bool {
		return s.Inner != nil && len(s.Inner.Tasks) == 1 && s.Inner.Tasks[0].State == tasks.Success
	})

	if err := c.Process(wire.ProcSigkill); err != nil {
		t.Fatalf("Process(sigkill): %v", err)
	}
	waitSnapshot(t, c, "process stopped", func(s Snapshot) bool { return !s.Running })
}

func checkpointActive(views []waiter.View, kind string) bool {
	for _, v := range views {
		if v.Kind == kind {
			return v.Active
		}
	}
	return false
}
