package consoletui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ssloxford/current-affairs/internal/console"
	"github.com/ssloxford/current-affairs/internal/tasks"
)

func TestPlainReportsChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	p := &Plain{W: &buf, Now: func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }}

	p.Report(console.Snapshot{})
	p.Report(console.Snapshot{})
	if got := buf.String(); got != "08:00:00 harness: disconnected\n" {
		t.Fatalf("first report = %q", got)
	}

	p.Report(testSnapshot())
	buf.Reset()
	s := testSnapshot()
	s.Inner.Tasks[1].State = tasks.Running
	s.Inner.Checkpoints[0].Active = false
	p.Report(s)

	var keys []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		rest := strings.TrimPrefix(line, "08:00:00 ")
		keys = append(keys, rest[:strings.Index(rest, ":")])
	}
	want := []string{"checkpoint start", "task SDP_NTLS"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("reported keys (-want +got):\n%s", diff)
	}
}

func TestFactsHiddenUntilReady(t *testing.T) {
	loading := testSnapshot()
	loading.Phase = console.Loading
	if diff := cmp.Diff([]Fact{{"harness", "loading"}}, Facts(loading)); diff != "" {
		t.Fatalf("loading facts (-want +got):\n%s", diff)
	}

	innerLoading := testSnapshot()
	innerLoading.Inner.Ready = false
	for _, f := range Facts(innerLoading) {
		if strings.HasPrefix(f.Key, "checkpoint") || strings.HasPrefix(f.Key, "task") {
			t.Fatalf("fact %q reported before the EV process was ready", f.Key)
		}
	}
}

func TestFacts(t *testing.T) {
	facts := Facts(testSnapshot())
	got := make(map[string]string, len(facts))
	for _, f := range facts {
		got[f.Key] = f.Value
	}
	want := map[string]string{
		"harness":          "ready",
		"info":             `name="bench-3" box="" plug=""`,
		"process":          "running",
		"relay":            "open",
		"position":         "51.75480,-1.25440",
		"checkpoint start": "waiting",
		"checkpoint done":  "idle auto=done",
		"task SLAC":        "success",
		"task SDP_NTLS":    "error (anomalies=2)",
		"SLAC_Result":      "matched",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("facts (-want +got):\n%s", diff)
	}
}
