package wire

import (
	"encoding/json"
	"math"
)

// Checkpoint command kinds carried in the data of a waiter_* message.
const (
	CmdClick = "click"
	CmdAuto  = "auto"
)

// Info field kinds carried in the data of an info message.
const (
	InfoName = "name"
	InfoBox  = "box"
	InfoPlug = "plug"
	InfoGPS  = "gps"
)

// Process commands carried in the data of a process message.
const (
	ProcStart   = "start"
	ProcSigint  = "sigint"
	ProcSigterm = "sigterm"
	ProcSigkill = "sigkill"
)

// ValidProcessCommand reports whether cmd is a known process command.
func ValidProcessCommand(cmd string) bool {
	switch cmd {
	case ProcStart, ProcSigint, ProcSigterm, ProcSigkill:
		return true
	}
	return false
}

// WaiterState is the flat harness push describing one checkpoint kind.
//
// WaitingCookie is opaque and echoed back verbatim. AutoKey keeps its raw form
// so an absent member can be told apart from an explicit null.
type WaiterState struct {
	Type          string          `json:"type"`
	Waiting       bool            `json:"waiting"`
	WaitingCookie json.RawMessage `json:"waiting_cookie,omitempty"`
	AutoKey       json.RawMessage `json:"auto_key,omitempty"`
}

// AutoKeyValue decodes AutoKey. present is false when the member was absent;
// a JSON null yields present=true and key="".
func (s WaiterState) AutoKeyValue() (key string, present bool) {
	if len(s.AutoKey) == 0 {
		return "", false
	}
	var v *string
	if err := json.Unmarshal(s.AutoKey, &v); err != nil || v == nil {
		return "", true
	}
	return *v, true
}

// NullableString encodes s as a JSON string, or null when s is nil.
func NullableString(s *string) json.RawMessage {
	if s == nil {
		return json.RawMessage("null")
	}
	raw, _ := json.Marshal(*s)
	return raw
}

// WaiterClick is the data of a manual checkpoint resolution.
type WaiterClick struct {
	Type   string          `json:"type"`
	Cookie json.RawMessage `json:"cookie"`
	Result string          `json:"result"`
}

// WaiterAuto is the data of a delegation toggle. A nil Key withdraws
// delegation.
type WaiterAuto struct {
	Type string  `json:"type"`
	Key  *string `json:"key"`
}

// WaiterCommand is the union of WaiterClick and WaiterAuto as read by the
// harness.
type WaiterCommand struct {
	Type   string          `json:"type"`
	Cookie json.RawMessage `json:"cookie,omitempty"`
	Result string          `json:"result,omitempty"`
	Key    *string         `json:"key,omitempty"`
}

// TaskEntry is one record of an init_tasks snapshot. Entries are ordered
// parent before child.
type TaskEntry struct {
	Name       string  `json:"name"`
	ParentName *string `json:"parent_name"`
	Result     int     `json:"result"`
	Enabled    *bool   `json:"enabled,omitempty"`
	Anomalies  int     `json:"anomalies,omitempty"`
}

// InitTasks is the flat init_tasks push.
type InitTasks struct {
	Tasks []TaskEntry `json:"tasks"`
}

// TaskUpdate is the flat task push: a full-state overwrite of one record.
type TaskUpdate struct {
	Name      string `json:"name"`
	Result    int    `json:"result"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Anomalies int    `json:"anomalies,omitempty"`
}

// Position is a [lat, lon] pair where either element may be null.
type Position [2]*float64

// NewPosition builds a Position from a coordinate pair.
func NewPosition(lat, lon float64) *Position {
	return &Position{&lat, &lon}
}

// LatLon returns the coordinates and whether both are set and finite.
func (p *Position) LatLon() (lat, lon float64, ok bool) {
	if p == nil || p[0] == nil || p[1] == nil {
		return 0, 0, false
	}
	lat, lon = *p[0], *p[1]
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return 0, 0, false
	}
	return lat, lon, true
}

// InfoState is the flat info push describing the current experiment labels.
type InfoState struct {
	Name string    `json:"name"`
	Box  string    `json:"box"`
	Plug string    `json:"plug"`
	GPS  *Position `json:"gps,omitempty"`
}

// InfoUpdate is the data of a client info message. Only the member named by
// Type is meaningful.
type InfoUpdate struct {
	Type string    `json:"type"`
	Name string    `json:"name,omitempty"`
	Box  string    `json:"box,omitempty"`
	Plug string    `json:"plug,omitempty"`
	GPS  *Position `json:"gps,omitempty"`
}

// ProcessState is the flat process push.
type ProcessState struct {
	Running bool `json:"running"`
}

// ProcessCommand is the data of a client process message.
type ProcessCommand struct {
	Type string `json:"type"`
}
