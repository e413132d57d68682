package consoletui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/ssloxford/current-affairs/internal/console"
	"github.com/ssloxford/current-affairs/internal/relay"
)

// twoColumnWidth is the narrowest terminal that gets side-by-side panels.
const twoColumnWidth = 96

func (m Model) View() string {
	if m.width == 0 || m.height < 3 {
		return "Loading..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := m.height - 1 - lipgloss.Height(footer)
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	var body string
	switch {
	case m.snap.Phase != console.Ready:
		body = renderPanel(m.placeholderLines(m.width-4), -1, m.width, bodyHeight)
	case m.width >= twoColumnWidth:
		leftW := m.width / 2
		leftLines, leftFocus := m.leftLines(leftW - 4)
		rightLines, rightFocus := m.rightLines(m.width - leftW - 4)
		left := renderPanel(leftLines, leftFocus, leftW, bodyHeight)
		right := renderPanel(rightLines, rightFocus, m.width-leftW, bodyHeight)
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	default:
		lines, focus := m.leftLines(m.width - 4)
		right, rightFocus := m.rightLines(m.width - 4)
		if rightFocus >= 0 {
			focus = len(lines) + 1 + rightFocus
		}
		lines = append(lines, "")
		body = renderPanel(append(lines, right...), focus, m.width, bodyHeight)
	}
	return header + "\n" + body + "\n" + footer
}

// renderPanel draws lines in a bordered box of the given outer size. When
// the lines do not fit, the window scrolls to keep line focus visible;
// focus < 0 shows the top.
func renderPanel(lines []string, focus, outerW, outerH int) string {
	innerH := max(outerH-2, 1)
	start := scrollOffset(len(lines), focus, innerH)
	lines = lines[start:min(start+innerH, len(lines))]
	return panelStyle.
		Width(outerW - 2).
		Height(innerH).
		Render(strings.Join(lines, "\n"))
}

// scrollOffset is the first line shown of total lines in a window of height,
// centring focus where possible.
func scrollOffset(total, focus, height int) int {
	if total <= height || focus < 0 {
		return 0
	}
	return min(max(focus-height/2, 0), total-height)
}

// placeholderLines stand in for the whole console until the harness has
// sent its initial state.
func (m Model) placeholderLines(w int) []string {
	var lines []string
	add := func(line string) { lines = append(lines, ansi.Truncate(line, w, "")) }
	add(sectionTitleStyle.Render("Harness"))
	add(labelStyle.Render("Connection") + phaseText(m.snap.Phase))
	add("")
	if m.snap.Phase == console.Loading {
		add(dimStyle.Render("Waiting for the harness to send its state..."))
	} else {
		add(dimStyle.Render("Reconnecting. Controls return once the harness is back."))
	}
	return lines
}

func (m Model) renderHeader() string {
	title := " current affairs "
	if m.snap.Phase == console.Ready && m.snap.Name != "" {
		title += "· " + m.snap.Name + " "
	}
	return headerStyle.
		Width(m.width).
		MaxWidth(m.width).
		Render(title)
}

func (m Model) renderFooter() string {
	var bar string
	switch {
	case m.err != nil:
		bar = errorBarStyle.Width(m.width).MaxWidth(m.width).Render(ansi.Truncate(m.err.Error(), m.width-2, "…"))
	default:
		bar = statusBarStyle.Width(m.width).MaxWidth(m.width).Render(ansi.Truncate(m.status, m.width-2, "…"))
	}
	return bar + "\n" + m.help.View(m.keys)
}

// leftLines renders connection, info and checkpoints. focus is the line of
// the cursor, or -1.
func (m Model) leftLines(w int) (lines []string, focus int) {
	s := m.snap
	focus = -1
	add := func(line string) { lines = append(lines, ansi.Truncate(line, w, "")) }

	add(sectionTitleStyle.Render("Harness"))
	add(labelStyle.Render("Connection") + phaseText(s.Phase))
	add(labelStyle.Render("Process") + runningText(s.Running))
	add(labelStyle.Render("EV link") + relayText(s.Relay))
	add("")

	add(sectionTitleStyle.Render("Experiment"))
	for _, f := range []struct {
		field field
		value string
	}{{fieldName, s.Name}, {fieldBox, s.Box}, {fieldPlug, s.Plug}} {
		label := labelStyle.Render(strings.ToUpper(f.field.String()[:1]) + f.field.String()[1:])
		if m.editing == f.field {
			add(label + m.input.View())
			continue
		}
		add(label + orDim(f.value, "not set"))
	}
	add(labelStyle.Render("Position") + positionText(s.Recorded))
	add(labelStyle.Render("Fix") + fixText(s, m.now()))
	if s.Distance != nil {
		add(labelStyle.Render("Distance") + valueStyle.Render(formatDistance(*s.Distance)))
	}
	add("")

	add(sectionTitleStyle.Render("Checkpoints"))
	if s.Inner == nil {
		add(dimStyle.Render("EV process not connected"))
		return lines, focus
	}
	if !s.Inner.Ready {
		add(dimStyle.Render("loading..."))
		return lines, focus
	}
	for _, v := range s.Inner.Checkpoints {
		title := valueStyle.Render(checkpointTitle(v.Kind))
		if v.Active {
			title += " " + activeStyle.Render("waiting")
		}
		add(title)
		for i, it := range m.items {
			if it.cp != v.Kind {
				continue
			}
			label := it.label
			if it.kind == itemOutcome && !v.Active {
				label = dimStyle.Render(label)
			}
			if i == m.cursor {
				focus = len(lines)
			}
			add("  " + m.renderItem(i, label))
		}
	}
	return lines, focus
}

// rightLines renders the task tree and status messages. focus is the line
// of the cursor, or -1.
func (m Model) rightLines(w int) (lines []string, focus int) {
	s := m.snap
	focus = -1
	add := func(line string) { lines = append(lines, ansi.Truncate(line, w, "")) }

	add(sectionTitleStyle.Render("Tasks"))
	switch {
	case s.Inner != nil && !s.Inner.Ready:
		add(dimStyle.Render("loading..."))
		return lines, focus
	case s.Inner == nil || len(s.Inner.Tasks) == 0:
		add(dimStyle.Render("no tasks"))
	default:
		for _, n := range s.Inner.Tasks {
			text := n.Glyph + " " + taskStyle(n.State).Render(n.Name)
			if idx, ok := m.taskItem[n.Name]; ok {
				if idx == m.cursor {
					focus = len(lines)
				}
				text = m.renderItem(idx, text)
			} else {
				text = "  " + text
			}
			if n.Enabled != nil && !*n.Enabled {
				text += " " + dimStyle.Render("disabled")
			}
			if n.Anomalies > 0 {
				text += " " + badStyle.Render(fmt.Sprintf("anomalies %d", n.Anomalies))
			}
			add(strings.Repeat("  ", n.Depth) + text)
		}
	}
	add("")

	add(sectionTitleStyle.Render("Status"))
	if s.Inner == nil || len(s.Inner.Status) == 0 {
		add(dimStyle.Render("no status"))
		return lines, focus
	}
	for _, l := range s.Inner.Status {
		label := lipgloss.NewStyle().Bold(true).Foreground(ColorTeal).Width(16).Render(l.Type)
		add(label + valueStyle.Render(l.Text))
	}
	return lines, focus
}

func (m Model) renderItem(i int, label string) string {
	if i == m.cursor {
		return cursorStyle.Render(">") + " " + label
	}
	return "  " + label
}

func phaseText(p console.Phase) string {
	switch p {
	case console.Ready:
		return goodStyle.Render(p.String())
	case console.Loading:
		return activeStyle.Render(p.String())
	}
	return badStyle.Render(p.String())
}

func runningText(running bool) string {
	if running {
		return goodStyle.Render("running")
	}
	return dimStyle.Render("stopped")
}

func relayText(s relay.State) string {
	switch s {
	case relay.StateOpen:
		return goodStyle.Render("connected")
	case relay.StatePending:
		return activeStyle.Render("connecting")
	}
	return dimStyle.Render("idle")
}

func positionText(p *console.Position) string {
	if p == nil {
		return dimStyle.Render("not set")
	}
	return valueStyle.Render(fmt.Sprintf("%.5f, %.5f", p.Lat, p.Lon))
}

func fixText(s console.Snapshot, now time.Time) string {
	if s.Fix == nil {
		return dimStyle.Render("no fix")
	}
	text := valueStyle.Render(fmt.Sprintf("%.5f, %.5f", s.Fix.Lat, s.Fix.Lon))
	if s.Fix.Accuracy > 0 {
		text += valueStyle.Render(fmt.Sprintf(" ±%.0fm", s.Fix.Accuracy))
	}
	if age := s.Fix.Age(now); age >= time.Second {
		text += " " + dimStyle.Render(age.Round(time.Second).String()+" ago")
	}
	return text
}

func formatDistance(m float64) string {
	if m >= 1000 {
		return fmt.Sprintf("%.2f km", m/1000)
	}
	return fmt.Sprintf("%.1f m", m)
}

func orDim(v, empty string) string {
	if v == "" {
		return dimStyle.Render(empty)
	}
	return valueStyle.Render(v)
}
