package harness

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

func startOuter(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	s := NewServer(opts)
	srv := httptest.NewServer(Routes(s, opts.Metrics))
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func unwrapFrame(t *testing.T, f frame) frame {
	t.Helper()
	var inner frame
	if err := json.Unmarshal(f["data"], &inner); err != nil {
		t.Fatalf("forward data: %v (%v)", err, f)
	}
	return inner
}

// readInner reads forwarded frames until the inner frame satisfies pred.
func readInner(t *testing.T, c *websocket.Conn, what string, pred func(frame) bool) frame {
	t.Helper()
	var inner frame
	readUntil(t, c, what, func(f frame) bool {
		if f.typ() == wire.MsgForwardFail {
			t.Fatalf("relay failed while waiting for %s", what)
		}
		if f.typ() != wire.MsgForward {
			return false
		}
		inner = unwrapFrame(t, f)
		return pred(inner)
	})
	return inner
}

func TestServerHandshake(t *testing.T) {
	_, url := startOuter(t, Options{Info: wire.InfoState{Name: "run1", Box: "box-a", Plug: "ccs"}})
	c := dial(t, url)

	info := read(t, c)
	if info.typ() != wire.MsgInfo || info.str("name") != "run1" || info.str("box") != "box-a" {
		t.Fatalf("first frame = %v, want info", info)
	}
	proc := read(t, c)
	if proc.typ() != wire.MsgProcess || string(proc["running"]) != "false" {
		t.Fatalf("second frame = %v, want process not running", proc)
	}
	if f := read(t, c); f.typ() != wire.MsgInitDone {
		t.Fatalf("third frame = %v, want init_done", f)
	}
}

func TestServerInfoBroadcast(t *testing.T) {
	s, url := startOuter(t, Options{})
	a := connected(t, url)
	b := connected(t, url)

	write(t, a, `{"type":"info","data":{"type":"name","name":"bench-3"}}`)
	write(t, a, `{"type":"info","data":{"type":"gps","gps":[51.75,-1.25]}}`)
	for _, c := range []*websocket.Conn{a, b} {
		f := readUntil(t, c, "gps info", func(f frame) bool {
			return f.typ() == wire.MsgInfo && string(f["gps"]) == "[51.75,-1.25]"
		})
		if f.str("name") != "bench-3" {
			t.Fatalf("info = %v, want name bench-3", f)
		}
	}
	info := s.Info()
	if lat, lon, ok := info.GPS.LatLon(); !ok || lat != 51.75 || lon != -1.25 {
		t.Fatalf("Info().GPS = %v", info.GPS)
	}
}

func TestServerRelaysInnerSession(t *testing.T) {
	metrics := NewMetrics()
	inner, innerURL := startInner(t, InnerOptions{Metrics: metrics})
	_, url := startOuter(t, Options{InnerURL: innerURL, Metrics: metrics})
	c := connected(t, url)

	write(t, c, `{"type":"forward_open"}`)
	readUntil(t, c, "forward_success", ofType(wire.MsgForwardSuccess))
	readInner(t, c, "inner init_done", ofType(wire.MsgInitDone))

	done := waitAsync(context.Background(), inner.Waiter(wire.MsgWaiterStart))
	st := readInner(t, c, "waiting start", waitingState(wire.MsgWaiterStart, true))
	click := `{"type":"waiter_start","data":{"type":"click","cookie":` + string(st["waiting_cookie"]) + `,"result":"start_all"}}`
	write(t, c, `{"type":"forward","data":`+click+`}`)

	select {
	case r := <-done:
		if r.err != nil || r.res != "start_all" {
			t.Fatalf("Wait = (%q, %v)", r.res, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relayed click never reached the inner server")
	}
	if got := testutil.ToFloat64(metrics.Relays); got != 1 {
		t.Fatalf("open relays = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Checkpoints.WithLabelValues(wire.MsgWaiterStart, "click")); got != 1 {
		t.Fatalf("click resolutions = %v, want 1", got)
	}

	inner.Close()
	readUntil(t, c, "forward_fail", ofType(wire.MsgForwardFail))
}

func TestServerDuplicateOpenReplacesSilently(t *testing.T) {
	_, innerURL := startInner(t, InnerOptions{})
	_, url := startOuter(t, Options{InnerURL: innerURL})
	c := connected(t, url)

	write(t, c, `{"type":"forward_open"}`)
	readUntil(t, c, "first success", ofType(wire.MsgForwardSuccess))
	write(t, c, `{"type":"forward_open"}`)
	readUntil(t, c, "second success", func(f frame) bool {
		if f.typ() == wire.MsgForwardFail {
			t.Fatal("superseded relay reported forward_fail")
		}
		return f.typ() == wire.MsgForwardSuccess
	})
	readInner(t, c, "fresh snapshot", ofType(wire.MsgInitTasks))
}

func TestServerForwardWithoutRelay(t *testing.T) {
	_, url := startOuter(t, Options{})
	c := connected(t, url)
	write(t, c, `{"type":"forward","data":{"type":"waiter_done","data":{"type":"auto","key":null}}}`)
	readUntil(t, c, "forward_fail", ofType(wire.MsgForwardFail))
}

func TestServerDialFailure(t *testing.T) {
	metrics := NewMetrics()
	dialer := link.DialFunc(func(ctx context.Context, url string) (link.Conn, error) {
		return nil, errors.New("connection refused")
	})
	_, url := startOuter(t, Options{InnerURL: "ws://inner.invalid/", Dialer: dialer, Metrics: metrics})
	c := connected(t, url)

	write(t, c, `{"type":"forward_open"}`)
	readUntil(t, c, "forward_fail", ofType(wire.MsgForwardFail))
	if got := testutil.ToFloat64(metrics.RelayFailures); got != 1 {
		t.Fatalf("relay failures = %v, want 1", got)
	}
}

func TestServerStatusTicker(t *testing.T) {
	s, url := startOuter(t, Options{StatusInterval: 10 * time.Millisecond})
	c := connected(t, url)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.RunStatus(ctx) }()
	readUntil(t, c, "periodic process", ofType(wire.MsgProcess))
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("RunStatus: %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetrics()
	m.RelayFailures.Inc()
	srv := httptest.NewServer(Routes(NewServer(Options{}), m))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "affairs_relay_failures_total 1") {
		t.Fatalf("metrics output missing relay failures:\n%s", body)
	}
}
