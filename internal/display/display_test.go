package display

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ssloxford/current-affairs/internal/wire"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		frame string
		want  string
	}{
		{`{"type":"basic_signaling","state":{"s":4,"l":-11.9,"h":8.95,"d":0.05,"p":null}}`, "B1: -11.9000 - 8.9500 @ 5.0000%, PP: null"},
		{`{"type":"basic_signaling","state":null}`, "no measurement"},
		{`{"type":"SLAC_State","state":5,"state_done":false}`, "Sounding - Running"},
		{`{"type":"SLAC_State","state":11,"state_done":true}`, "Done - Done"},
		{`{"type":"SLAC_State","state":40,"state_done":true}`, "?40 - Done"},
		{`{"type":"SLAC_Result","result":{"NID": "ab", "NMK":null}}`, `{"NID":"ab","NMK":null}`},
		{`{"type":"Proto","result":{"DIN":true,"V20DC":null}}`, `{"DIN":true,"V20DC":null}`},
		{`{"type":"SDP_Result","result":null}`, "null"},
		{`{"type":"V2G","session_id":"00ff","service_discovery":"AC"}`, `{"session_id":"00ff","service_discovery":"AC"}`},
	}
	for _, tt := range tests {
		msg, err := wire.DecodeMsg([]byte(tt.frame))
		if err != nil {
			t.Fatal(err)
		}
		got, err := Format(msg)
		if err != nil {
			t.Fatalf("Format(%s): %v", tt.frame, err)
		}
		if got != tt.want {
			t.Errorf("Format(%s) = %q, want %q", tt.frame, got, tt.want)
		}
	}
}

func TestBoardOrdersByStatusType(t *testing.T) {
	b := NewBoard()
	for _, f := range []string{
		`{"type":"Proto","result":{}}`,
		`{"type":"SLAC_State","state":0,"state_done":false}`,
		`{"type":"SLAC_State","state":1,"state_done":true}`,
	} {
		msg, _ := wire.DecodeMsg([]byte(f))
		if ok, err := b.HandleMessage(msg); !ok || err != nil {
			t.Fatalf("HandleMessage(%s) = %v, %v", f, ok, err)
		}
	}
	if ok, _ := b.HandleMessage(wire.MustEncode(wire.MsgTask, nil)); ok {
		t.Fatal("task consumed by board")
	}
	want := []Line{
		{Type: wire.MsgSLACState, Text: "Reset - Done"},
		{Type: wire.MsgProto, Text: "{}"},
	}
	if diff := cmp.Diff(want, b.Lines()); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
}
