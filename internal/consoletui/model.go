// Package consoletui is the terminal front end of the operator console. It
// renders console snapshots and turns key presses into console actions.
package consoletui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ssloxford/current-affairs/internal/console"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// Controller is the part of *console.Console the UI drives.
type Controller interface {
	Snapshot() console.Snapshot
	Changed() <-chan struct{}
	SetName(name string) error
	SetBox(box string) error
	SetPlug(plug string) error
	SendPosition() error
	Process(cmd string) error
	Resolve(kind, id string) (bool, error)
	ToggleAuto(kind string) error
	TriggerTask(name string) (bool, error)
}

var _ Controller = (*console.Console)(nil)

// SnapshotMsg carries a fresh console snapshot into the program.
type SnapshotMsg console.Snapshot

// actionMsg reports the result of one console action.
type actionMsg struct {
	label string
	sent  bool
	err   error
}

type itemKind int

const (
	itemOutcome itemKind = iota
	itemAuto
	itemTask
)

// item is one selectable row.
type item struct {
	kind  itemKind
	cp    string // checkpoint kind, "" for tasks
	id    string // outcome id or task name
	label string
}

// field is an info field being edited.
type field int

const (
	fieldNone field = iota
	fieldName
	fieldBox
	fieldPlug
)

func (f field) String() string {
	switch f {
	case fieldName:
		return "name"
	case fieldBox:
		return "box"
	case fieldPlug:
		return "plug"
	}
	return ""
}

// Model is the bubbletea model for the console.
type Model struct {
	ctl  Controller
	keys KeyMap
	help help.Model

	width  int
	height int

	snap     console.Snapshot
	items    []item
	taskItem map[string]int
	cursor   int

	editing field
	input   textinput.Model

	status string
	err    error

	now func() time.Time
}

// NewModel creates a model showing ctl's current snapshot.
func NewModel(ctl Controller) Model {
	m := Model{
		ctl:  ctl,
		keys: DefaultKeyMap(),
		help: help.New(),
		now:  time.Now,
	}
	m.setSnapshot(ctl.Snapshot())
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.SetWindowTitle("affairs console")
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case SnapshotMsg:
		m.setSnapshot(console.Snapshot(msg))
		return m, nil

	case actionMsg:
		switch {
		case msg.err != nil:
			m.err = fmt.Errorf("%s: %w", msg.label, msg.err)
			m.status = ""
		case !msg.sent:
			m.err = nil
			m.status = msg.label + ": not waiting"
		default:
			m.err = nil
			m.status = msg.label + ": sent"
		}
		return m, nil

	case tea.KeyMsg:
		if m.editing != fieldNone {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) setSnapshot(s console.Snapshot) {
	m.snap = s
	if s.Phase != console.Ready && m.editing != fieldNone {
		m.editing = fieldNone
		m.input.Blur()
	}
	m.items, m.taskItem = buildItems(s)
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// buildItems lists the selectable rows: checkpoint outcomes and delegation
// toggles in checkpoint order, then manual task triggers in tree order.
// Task triggers registered on a checkpoint are shown with their task only.
// Nothing is selectable before both sessions have sent init_done.
func buildItems(s console.Snapshot) ([]item, map[string]int) {
	taskItem := make(map[string]int)
	if s.Phase != console.Ready || s.Inner == nil || !s.Inner.Ready {
		return nil, taskItem
	}
	isTask := make(map[string]bool, len(s.Inner.Tasks))
	for _, n := range s.Inner.Tasks {
		isTask[n.Name] = true
	}

	var items []item
	for _, v := range s.Inner.Checkpoints {
		for _, o := range v.Outcomes {
			if isTask[o.ID] {
				continue
			}
			items = append(items, item{kind: itemOutcome, cp: v.Kind, id: o.ID, label: o.Label})
		}
		if v.AutoID != "" {
			box := "[ ]"
			if v.AutoChecked {
				box = "[x]"
			}
			items = append(items, item{kind: itemAuto, cp: v.Kind, id: v.AutoID, label: box + " auto " + v.AutoLabel()})
		}
	}
	for _, n := range s.Inner.Tasks {
		if !n.Triggerable {
			continue
		}
		taskItem[n.Name] = len(items)
		items = append(items, item{kind: itemTask, id: n.Name, label: n.Name})
	}
	return items, taskItem
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case m.snap.Phase != console.Ready:
		// Only quit and help until the harness is ready.
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Enter):
		if m.cursor < len(m.items) {
			return m, m.press(m.items[m.cursor])
		}
	case key.Matches(msg, m.keys.Name):
		return m, m.startEdit(fieldName, m.snap.Name)
	case key.Matches(msg, m.keys.Box):
		return m, m.startEdit(fieldBox, m.snap.Box)
	case key.Matches(msg, m.keys.Plug):
		return m, m.startEdit(fieldPlug, m.snap.Plug)
	case key.Matches(msg, m.keys.Position):
		return m, act("set position", m.ctl.SendPosition)
	case key.Matches(msg, m.keys.Start):
		return m, m.process(wire.ProcStart)
	case key.Matches(msg, m.keys.Sigint):
		return m, m.process(wire.ProcSigint)
	case key.Matches(msg, m.keys.Sigterm):
		return m, m.process(wire.ProcSigterm)
	case key.Matches(msg, m.keys.Sigkill):
		return m, m.process(wire.ProcSigkill)
	}
	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.editing = fieldNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		f, value := m.editing, strings.TrimSpace(m.input.Value())
		m.editing = fieldNone
		m.input.Blur()
		return m, m.submit(f, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) startEdit(f field, value string) tea.Cmd {
	m.editing = f
	m.input = newStyledTextInput()
	m.input.CharLimit = 120
	m.input.Placeholder = f.String()
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m Model) submit(f field, value string) tea.Cmd {
	var set func(string) error
	switch f {
	case fieldName:
		set = m.ctl.SetName
	case fieldBox:
		set = m.ctl.SetBox
	case fieldPlug:
		set = m.ctl.SetPlug
	default:
		return nil
	}
	return act("set "+f.String(), func() error { return set(value) })
}

func (m Model) press(it item) tea.Cmd {
	switch it.kind {
	case itemOutcome:
		label := checkpointTitle(it.cp) + " " + it.label
		return func() tea.Msg {
			sent, err := m.ctl.Resolve(it.cp, it.id)
			return actionMsg{label: label, sent: sent, err: err}
		}
	case itemAuto:
		return act(checkpointTitle(it.cp)+" auto", func() error { return m.ctl.ToggleAuto(it.cp) })
	case itemTask:
		return func() tea.Msg {
			sent, err := m.ctl.TriggerTask(it.id)
			return actionMsg{label: "start " + it.id, sent: sent, err: err}
		}
	}
	return nil
}

func (m Model) process(cmd string) tea.Cmd {
	return act(cmd, func() error { return m.ctl.Process(cmd) })
}

// act runs fn off the update loop; console actions block on the session.
func act(label string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		err := fn()
		return actionMsg{label: label, sent: err == nil, err: err}
	}
}

func newStyledTextInput() textinput.Model {
	input := textinput.New()
	input.Prompt = "> "
	input.PromptStyle = lipgloss.NewStyle().Foreground(ColorMauve)
	input.TextStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorText)
	input.PlaceholderStyle = lipgloss.NewStyle().Foreground(ColorOverlay0)
	input.Cursor.Style = lipgloss.NewStyle().Foreground(ColorMauve)
	return input
}

// checkpointTitle strips the message-type prefix: "waiter_start" -> "start".
func checkpointTitle(kind string) string {
	return strings.TrimPrefix(kind, "waiter_")
}
