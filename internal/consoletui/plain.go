package consoletui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ssloxford/current-affairs/internal/console"
)

// Plain writes one line per changed fact, for logs and pipes.
type Plain struct {
	W   io.Writer
	Now func() time.Time

	last map[string]string
}

// Run prints changes of ctl's snapshots until ctx ends.
func (p *Plain) Run(ctx context.Context, ctl Controller) error {
	p.Report(ctl.Snapshot())
	changed := ctl.Changed()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			p.Report(ctl.Snapshot())
		}
	}
}

// Report prints every fact of s that differs from the previous report.
func (p *Plain) Report(s console.Snapshot) {
	if p.last == nil {
		p.last = make(map[string]string)
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	for _, f := range Facts(s) {
		if p.last[f.Key] == f.Value {
			continue
		}
		p.last[f.Key] = f.Value
		fmt.Fprintf(p.W, "%s %s: %s\n", now().Format("15:04:05"), f.Key, f.Value)
	}
}

// Fact is one reportable piece of a snapshot.
type Fact struct {
	Key   string
	Value string
}

// Facts flattens s into keyed, plain-text facts in display order. Before
// the harness is ready only the connection phase is reported.
func Facts(s console.Snapshot) []Fact {
	if s.Phase != console.Ready {
		return []Fact{{"harness", s.Phase.String()}}
	}
	out := []Fact{
		{"harness", s.Phase.String()},
		{"info", fmt.Sprintf("name=%q box=%q plug=%q", s.Name, s.Box, s.Plug)},
		{"process", "stopped"},
		{"relay", s.Relay.String()},
	}
	if s.Running {
		out[2].Value = "running"
	}
	if s.Recorded != nil {
		out = append(out, Fact{"position", fmt.Sprintf("%.5f,%.5f", s.Recorded.Lat, s.Recorded.Lon)})
	}
	if s.Inner == nil || !s.Inner.Ready {
		return out
	}
	for _, v := range s.Inner.Checkpoints {
		state := "idle"
		if v.Active {
			state = "waiting"
		}
		if v.AutoChecked {
			state += " auto=" + v.AutoID
		}
		out = append(out, Fact{"checkpoint " + checkpointTitle(v.Kind), state})
	}
	for _, n := range s.Inner.Tasks {
		value := n.State.String()
		var extra []string
		if n.Enabled != nil && !*n.Enabled {
			extra = append(extra, "disabled")
		}
		if n.Anomalies > 0 {
			extra = append(extra, fmt.Sprintf("anomalies=%d", n.Anomalies))
		}
		if len(extra) > 0 {
			value += " (" + strings.Join(extra, ", ") + ")"
		}
		out = append(out, Fact{"task " + n.Name, value})
	}
	for _, l := range s.Inner.Status {
		out = append(out, Fact{l.Type, l.Text})
	}
	return out
}
