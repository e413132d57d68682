package consoletui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/google/go-cmp/cmp"

	"github.com/ssloxford/current-affairs/internal/console"
	"github.com/ssloxford/current-affairs/internal/display"
	"github.com/ssloxford/current-affairs/internal/geo"
	"github.com/ssloxford/current-affairs/internal/relay"
	"github.com/ssloxford/current-affairs/internal/tasks"
	"github.com/ssloxford/current-affairs/internal/waiter"
	"github.com/ssloxford/current-affairs/internal/wire"
)

type fakeController struct {
	snap  console.Snapshot
	calls []string
	sent  bool
	err   error
}

func (f *fakeController) Snapshot() console.Snapshot { return f.snap }
func (f *fakeController) Changed() <-chan struct{}   { return nil }

func (f *fakeController) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) SetName(name string) error { return f.record("name " + name) }
func (f *fakeController) SetBox(box string) error   { return f.record("box " + box) }
func (f *fakeController) SetPlug(plug string) error { return f.record("plug " + plug) }
func (f *fakeController) SendPosition() error       { return f.record("position") }
func (f *fakeController) Process(cmd string) error  { return f.record("process " + cmd) }
func (f *fakeController) ToggleAuto(kind string) error {
	return f.record("auto " + kind)
}

func (f *fakeController) Resolve(kind, id string) (bool, error) {
	return f.sent, f.record("resolve " + kind + " " + id)
}

func (f *fakeController) TriggerTask(name string) (bool, error) {
	return f.sent, f.record("trigger " + name)
}

func testSnapshot() console.Snapshot {
	yes := true
	return console.Snapshot{
		Phase:    console.Ready,
		Name:     "bench-3",
		Running:  true,
		Relay:    relay.StateOpen,
		Recorded: &console.Position{Lat: 51.7548, Lon: -1.2544},
		Inner: &console.InnerSnapshot{
			Ready: true,
			Checkpoints: []waiter.View{
				{
					Kind:   wire.MsgWaiterStart,
					Active: true,
					Outcomes: []waiter.Outcome{
						{ID: waiter.OutcomeStartAll, Label: "Start All"},
						{ID: waiter.OutcomeExit, Label: "Exit"},
					},
					AutoID: waiter.OutcomeStartAll,
				},
				{
					Kind: wire.MsgWaiterDone,
					Outcomes: []waiter.Outcome{
						{ID: waiter.OutcomeDone, Label: "Done"},
						{ID: "SLAC", Label: tasks.TriggerLabel},
					},
					AutoID:      waiter.OutcomeDone,
					AutoChecked: true,
				},
			},
			Tasks: []tasks.Node{
				{Name: "SLAC", State: tasks.Success, Glyph: tasks.Success.Glyph(), Triggerable: true, Enabled: &yes},
				{Name: "SDP_NTLS", Depth: 1, State: tasks.Error, Glyph: tasks.Error.Glyph(), Anomalies: 2},
			},
			Status: []display.Line{{Type: wire.MsgSLACResult, Text: "matched"}},
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds keys and runs any resulting command, feeding its message back.
func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(keyMsg(k))
		m = next.(Model)
		if msg, ok := runCmd(cmd).(actionMsg); ok {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

// runCmd runs cmd and returns its message, giving up on commands that wait
// on a timer such as cursor blinks.
func runCmd(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func TestBuildItems(t *testing.T) {
	items, taskItem := buildItems(testSnapshot())
	var got []string
	for _, it := range items {
		got = append(got, it.label)
	}
	want := []string{"Start All", "Exit", "[ ] auto Start All", "Done", "[x] auto Done", "SLAC"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("items (-want +got):\n%s", diff)
	}
	if taskItem["SLAC"] != 5 {
		t.Fatalf("SLAC item index = %d, want 5", taskItem["SLAC"])
	}
	if items, _ := buildItems(console.Snapshot{}); len(items) != 0 {
		t.Fatalf("items without inner session = %v", items)
	}
}

func TestPressDispatchesActions(t *testing.T) {
	ctl := &fakeController{snap: testSnapshot(), sent: true}
	m := NewModel(ctl)

	m = press(t, m, "enter", "down", "down", "enter", "down", "down", "down", "enter")
	want := []string{
		"resolve waiter_start start_all",
		"auto waiter_start",
		"trigger SLAC",
	}
	if diff := cmp.Diff(want, ctl.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
	if m.status != "start SLAC: sent" {
		t.Fatalf("status = %q", m.status)
	}

	// The cursor stops at the last item.
	m = press(t, m, "down", "down")
	if m.cursor != len(m.items)-1 {
		t.Fatalf("cursor = %d, want %d", m.cursor, len(m.items)-1)
	}
}

func TestProcessKeys(t *testing.T) {
	ctl := &fakeController{snap: testSnapshot()}
	press(t, NewModel(ctl), "s", "i", "t", "K", "g")
	want := []string{
		"process " + wire.ProcStart,
		"process " + wire.ProcSigint,
		"process " + wire.ProcSigterm,
		"process " + wire.ProcSigkill,
		"position",
	}
	if diff := cmp.Diff(want, ctl.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}

func TestStaleAndFailedActions(t *testing.T) {
	ctl := &fakeController{snap: testSnapshot()}
	m := press(t, NewModel(ctl), "enter")
	if m.status != "start Start All: not waiting" || m.err != nil {
		t.Fatalf("status = %q, err = %v", m.status, m.err)
	}

	ctl.err = console.ErrNoRelay
	m = press(t, m, "enter")
	if !errors.Is(m.err, console.ErrNoRelay) {
		t.Fatalf("err = %v, want ErrNoRelay", m.err)
	}
}

func TestEditName(t *testing.T) {
	ctl := &fakeController{snap: testSnapshot()}
	m := press(t, NewModel(ctl), "n")
	if m.editing != fieldName {
		t.Fatalf("editing = %v, want name", m.editing)
	}
	// Typing "q" while editing must not quit.
	next, cmd := m.Update(keyMsg("q"))
	m = next.(Model)
	if _, quit := runCmd(cmd).(tea.QuitMsg); quit {
		t.Fatal("q quit while editing")
	}
	m = press(t, m, "enter")
	if diff := cmp.Diff([]string{"name bench-3q"}, ctl.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
	if m.editing != fieldNone {
		t.Fatal("still editing after enter")
	}

	m = press(t, m, "b", "x", "esc")
	if len(ctl.calls) != 1 || m.editing != fieldNone {
		t.Fatalf("esc did not cancel: calls=%v editing=%v", ctl.calls, m.editing)
	}
}

func TestSnapshotClampsCursor(t *testing.T) {
	ctl := &fakeController{snap: testSnapshot()}
	m := press(t, NewModel(ctl), "down", "down", "down", "down", "down")
	next, _ := m.Update(SnapshotMsg(console.Snapshot{Phase: console.Disconnected}))
	m = next.(Model)
	if m.cursor != 0 || len(m.items) != 0 {
		t.Fatalf("cursor = %d items = %d after disconnect", m.cursor, len(m.items))
	}
}

func TestViewFitsWidth(t *testing.T) {
	for _, width := range []int{60, 120} {
		m := NewModel(&fakeController{snap: testSnapshot()})
		next, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: 40})
		m = next.(Model)

		view := m.View()
		plain := ansi.Strip(view)
		for _, want := range []string{"bench-3", "ready", "waiting", "SLAC", "SDP_NTLS", "anomalies 2", "matched", "51.75480, -1.25440"} {
			if !strings.Contains(plain, want) {
				t.Errorf("width %d: view missing %q", width, want)
			}
		}
		for i, line := range strings.Split(view, "\n") {
			if w := lipgloss.Width(line); w > width {
				t.Errorf("width %d: line %d is %d cells wide", width, i, w)
			}
		}
	}
}

func TestViewBeforeSize(t *testing.T) {
	m := NewModel(&fakeController{})
	if got := m.View(); got != "Loading..." {
		t.Fatalf("View() = %q", got)
	}
}

func sizedModel(ctl Controller, width, height int) Model {
	next, _ := NewModel(ctl).Update(tea.WindowSizeMsg{Width: width, Height: height})
	return next.(Model)
}

func TestNothingShownBeforeReady(t *testing.T) {
	tests := []struct {
		name  string
		phase console.Phase
		want  string
	}{
		{name: "loading", phase: console.Loading, want: "Waiting for the harness"},
		{name: "disconnected", phase: console.Disconnected, want: "Reconnecting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot()
			snap.Phase = tt.phase
			ctl := &fakeController{snap: snap, sent: true}
			m := sizedModel(ctl, 120, 40)
			if len(m.items) != 0 {
				t.Fatalf("items = %d, want none", len(m.items))
			}

			view := ansi.Strip(m.View())
			if !strings.Contains(view, tt.want) || !strings.Contains(view, tt.phase.String()) {
				t.Fatalf("placeholder missing from view:\n%s", view)
			}
			for _, hidden := range []string{"bench-3", "Start All", "SLAC", "Experiment"} {
				if strings.Contains(view, hidden) {
					t.Errorf("view shows %q before the harness is ready", hidden)
				}
			}

			m = press(t, m, "enter", "n", "s", "g")
			if len(ctl.calls) != 0 || m.editing != fieldNone {
				t.Fatalf("calls = %v editing = %v before ready", ctl.calls, m.editing)
			}
		})
	}
}

func TestInnerItemsWaitForInitDone(t *testing.T) {
	snap := testSnapshot()
	snap.Inner.Ready = false
	m := sizedModel(&fakeController{snap: snap}, 120, 40)
	if len(m.items) != 0 {
		t.Fatalf("items = %d before inner init_done", len(m.items))
	}
	view := ansi.Strip(m.View())
	if !strings.Contains(view, "bench-3") || !strings.Contains(view, "loading...") {
		t.Fatalf("view:\n%s", view)
	}
	if strings.Contains(view, "Start All") || strings.Contains(view, "SDP_NTLS") {
		t.Fatalf("inner controls shown before init_done:\n%s", view)
	}
}

func TestEditCancelledOnDisconnect(t *testing.T) {
	ctl := &fakeController{snap: testSnapshot()}
	m := press(t, NewModel(ctl), "n")
	next, _ := m.Update(SnapshotMsg(console.Snapshot{Phase: console.Disconnected}))
	m = next.(Model)
	if m.editing != fieldNone {
		t.Fatal("still editing after disconnect")
	}
}

func TestViewScrollsToCursor(t *testing.T) {
	snap := testSnapshot()
	snap.Inner.Tasks = nil
	for i := range 40 {
		name := fmt.Sprintf("TASK%02d", i)
		snap.Inner.Tasks = append(snap.Inner.Tasks, tasks.Node{
			Name: name, State: tasks.Unknown, Glyph: tasks.Unknown.Glyph(), Triggerable: true,
		})
	}
	for _, width := range []int{60, 120} {
		m := sizedModel(&fakeController{snap: snap}, width, 24)
		if view := ansi.Strip(m.View()); strings.Contains(view, "TASK39") {
			t.Fatalf("width %d: last task visible before scrolling", width)
		}
		for range len(m.items) {
			m = press(t, m, "down")
		}
		if m.cursor != len(m.items)-1 {
			t.Fatalf("cursor = %d, want last item", m.cursor)
		}
		view := ansi.Strip(m.View())
		if !strings.Contains(view, "> ? TASK39") {
			t.Fatalf("width %d: cursor line not visible:\n%s", width, view)
		}
		if n := strings.Count(m.View(), "\n") + 1; n > 24 {
			t.Fatalf("width %d: view is %d lines tall", width, n)
		}
	}
}

func TestScrollOffset(t *testing.T) {
	tests := []struct {
		total, focus, height, want int
	}{
		{total: 5, focus: 4, height: 10, want: 0},
		{total: 30, focus: -1, height: 10, want: 0},
		{total: 30, focus: 3, height: 10, want: 0},
		{total: 30, focus: 15, height: 10, want: 10},
		{total: 30, focus: 29, height: 10, want: 20},
	}
	for _, tt := range tests {
		if got := scrollOffset(tt.total, tt.focus, tt.height); got != tt.want {
			t.Errorf("scrollOffset(%d, %d, %d) = %d, want %d", tt.total, tt.focus, tt.height, got, tt.want)
		}
	}
}

func TestFixTextShowsAge(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s := console.Snapshot{Fix: &geo.Fix{Lat: 51.75, Lon: -1.25, Accuracy: 8, Timestamp: now.Add(-42 * time.Second)}}
	if got, want := ansi.Strip(fixText(s, now)), "51.75000, -1.25000 ±8m 42s ago"; got != want {
		t.Fatalf("fixText = %q, want %q", got, want)
	}
	s.Fix.Timestamp = now
	if got := ansi.Strip(fixText(s, now)); strings.Contains(got, "ago") {
		t.Fatalf("fresh fix shows an age: %q", got)
	}
}
