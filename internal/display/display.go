// Package display turns the harness's status messages into one line of text
// each. The core protocol treats these payloads as opaque; only this
// package knows their shapes.
package display

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ssloxford/current-affairs/internal/wire"
)

// BSStateNames maps the detected control-pilot state bit to its IEC 61851
// name.
var BSStateNames = map[int]string{
	1:   "A1",
	2:   "A2",
	4:   "B1",
	8:   "B2",
	16:  "C1",
	32:  "C2",
	64:  "D1",
	128: "D2",
	256: "E",
	512: "F",
}

// SLACStateNames is indexed by SLAC progress code.
var SLACStateNames = []string{
	"Start Wait", "Reset", "Wipe NMK", "Param Req", "Start Atten", "Sounding",
	"Atten Char", "Select", "Match", "Set NMK", "Connect", "Done",
}

// Measurement is the state of a basic_signaling message. Levels are null
// when the probe could not read them.
type Measurement struct {
	State int      `json:"s"`
	Low   *float64 `json:"l"`
	High  *float64 `json:"h"`
	Duty  *float64 `json:"d"`
	PP    *float64 `json:"p"`
}

// BasicSignaling is the basic_signaling push.
type BasicSignaling struct {
	State *Measurement `json:"state"`
}

// SLACState is the SLAC_State push.
type SLACState struct {
	State     int  `json:"state"`
	StateDone bool `json:"state_done"`
}

// Result is the shape of SLAC_Result, SDP_Result and Proto pushes.
type Result struct {
	Result json.RawMessage `json:"result"`
}

// V2GState is the V2G push.
type V2GState struct {
	SessionID        string `json:"session_id"`
	ServiceDiscovery string `json:"service_discovery"`
}

// FormatFloat renders f with four decimals, or "null".
func FormatFloat(f *float64) string {
	if f == nil {
		return "null"
	}
	return strconv.FormatFloat(*f, 'f', 4, 64)
}

// FormatBasicSignaling renders a measurement as
// "B1: low - high @ duty%, PP: pp".
func FormatBasicSignaling(bs BasicSignaling) string {
	m := bs.State
	if m == nil {
		return "no measurement"
	}
	name, ok := BSStateNames[m.State]
	if !ok {
		name = fmt.Sprintf("?%d", m.State)
	}
	var duty *float64
	if m.Duty != nil {
		d := *m.Duty * 100
		duty = &d
	}
	return fmt.Sprintf("%s: %s - %s @ %s%%, PP: %s",
		name, FormatFloat(m.Low), FormatFloat(m.High), FormatFloat(duty), FormatFloat(m.PP))
}

// FormatSLACState renders e.g. "Sounding - Running".
func FormatSLACState(s SLACState) string {
	name := fmt.Sprintf("?%d", s.State)
	if s.State >= 0 && s.State < len(SLACStateNames) {
		name = SLACStateNames[s.State]
	}
	done := "Running"
	if s.StateDone {
		done = "Done"
	}
	return name + " - " + done
}

// Format renders one status message. It fails for non-status types and
// undecodable payloads.
func Format(msg *wire.Msg) (string, error) {
	switch msg.Type {
	case wire.MsgBasicSignaling:
		bs, err := wire.DecodeFrame[BasicSignaling](msg)
		if err != nil {
			return "", err
		}
		return FormatBasicSignaling(*bs), nil
	case wire.MsgSLACState:
		s, err := wire.DecodeFrame[SLACState](msg)
		if err != nil {
			return "", err
		}
		return FormatSLACState(*s), nil
	case wire.MsgSLACResult, wire.MsgSDPResult, wire.MsgProto:
		r, err := wire.DecodeFrame[Result](msg)
		if err != nil {
			return "", err
		}
		return compact(r.Result), nil
	case wire.MsgV2G:
		// Older harnesses wrap V2G in result like the other result pushes.
		if r, err := wire.DecodeFrame[Result](msg); err == nil && len(r.Result) > 0 {
			return compact(r.Result), nil
		}
		v, err := wire.DecodeFrame[V2GState](msg)
		if err != nil {
			return "", err
		}
		raw, _ := json.Marshal(v)
		return string(raw), nil
	}
	return "", fmt.Errorf("display: %q is not a status message", msg.Type)
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, _ := json.Marshal(v)
	return string(out)
}

// Line is the rendered text of one status type.
type Line struct {
	Type string
	Text string
}

// Board keeps the latest rendering of each status type.
type Board struct {
	lines map[string]string
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{lines: make(map[string]string)}
}

// HandleMessage renders msg if it is a status message and reports whether it
// was one.
func (b *Board) HandleMessage(msg *wire.Msg) (bool, error) {
	if !wire.IsStatusType(msg.Type) {
		return false, nil
	}
	text, err := Format(msg)
	if err != nil {
		return true, err
	}
	b.lines[msg.Type] = text
	return true, nil
}

// Lines returns the rendered status lines in display order.
func (b *Board) Lines() []Line {
	var out []Line
	for _, t := range wire.StatusTypes {
		if text, ok := b.lines[t]; ok {
			out = append(out, Line{Type: t, Text: text})
		}
	}
	return out
}
