package tasks

import (
	"fmt"
	"strings"
)

// State is a task's execution status. The wire carries it as its integer code.
type State int

const (
	Unknown State = iota
	Running
	Success
	Failure
	Error
	Disabled
	Retry
)

var stateNames = [...]string{"unknown", "running", "success", "failure", "error", "disabled", "retry"}

var stateGlyphs = [...]string{"?", "🔃", "✅", "❌", "❗", "D", "R"}

// Valid reports whether s has a glyph.
func (s State) Valid() bool {
	return s >= 0 && int(s) < len(stateGlyphs)
}

// Glyph returns the display token for s, or "" for unmapped codes.
func (s State) Glyph() string {
	if !s.Valid() {
		return ""
	}
	return stateGlyphs[s]
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Finished reports whether s is terminal for one execution.
func (s State) Finished() bool {
	switch s {
	case Success, Failure, Error:
		return true
	}
	return false
}

// ParseState maps a state name back to its State.
func ParseState(name string) (State, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownState, name)
}
