package harness

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// DefaultStatusInterval is how often the process state is re-broadcast.
const DefaultStatusInterval = time.Second

// Options configures a Server.
type Options struct {
	// InnerURL is dialed for every forward_open.
	InnerURL string
	// Dialer defaults to link.WebSocketDialer{}.
	Dialer link.Dialer
	// OpenTimeout bounds a relay dial. Defaults to link.DefaultOpenTimeout.
	OpenTimeout    time.Duration
	WriteTimeout   time.Duration
	StatusInterval time.Duration
	// Process is the supervised EV process. Nil disables process commands.
	Process *Process
	Info    wire.InfoState
	Metrics *Metrics
}

// Server is the outer harness endpoint: it keeps the experiment labels,
// supervises the EV process and relays each client's inner session.
type Server struct {
	opts   Options
	hub    *hub
	ctx    context.Context
	cancel context.CancelFunc

	info wire.InfoState
}

// NewServer creates an outer harness server.
func NewServer(opts Options) *Server {
	if opts.Dialer == nil {
		opts.Dialer = link.WebSocketDialer{}
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = link.DefaultOpenTimeout
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		hub:    newHub(),
		ctx:    ctx,
		cancel: cancel,
		info:   opts.Info,
	}
	if p := opts.Process; p != nil && p.OnChange == nil {
		p.OnChange = func(bool) { s.broadcastProcess() }
	}
	return s
}

// Close ends every connected session and every relay.
func (s *Server) Close() {
	s.cancel()
}

// Clients returns the number of sessions receiving broadcasts.
func (s *Server) Clients() int {
	return s.hub.len()
}

// Info returns the current experiment labels.
func (s *Server) Info() wire.InfoState {
	var info wire.InfoState
	s.hub.view(func() { info = s.info })
	return info
}

// RunStatus re-broadcasts the process state every StatusInterval until ctx
// ends.
func (s *Server) RunStatus(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.broadcastProcess()
		}
	}
}

func (s *Server) running() bool {
	return s.opts.Process != nil && s.opts.Process.Running()
}

func (s *Server) broadcastProcess() {
	running := s.running()
	if m := s.opts.Metrics; m != nil {
		v := 0.0
		if running {
			v = 1
		}
		m.ProcessRunning.Set(v)
	}
	s.hub.update(func() []*wire.Msg {
		return []*wire.Msg{processMsg(running)}
	})
}

func processMsg(running bool) *wire.Msg {
	return mustFlat(wire.MsgProcess, wire.ProcessState{Running: running})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	if m := s.opts.Metrics; m != nil {
		m.Clients.WithLabelValues("outer").Inc()
		defer m.Clients.WithLabelValues("outer").Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	c := &client{srv: s}
	err = link.Serve(ctx, link.WrapWebSocket(ws), c, s.opts.WriteTimeout)
	debug.LogKV("harness", "outer session ended", "remote", r.RemoteAddr, "reason", err)
}

// client is the per-connection handler. It runs on the session loop.
type client struct {
	srv   *Server
	sess  link.Session
	relay *relay
}

func (c *client) OnOpen(sess link.Session) {
	c.sess = sess
	running := c.srv.running()
	c.srv.hub.join(sess, func() []*wire.Msg {
		return []*wire.Msg{
			mustFlat(wire.MsgInfo, c.srv.info),
			processMsg(running),
			wire.MustEncode(wire.MsgInitDone, nil),
		}
	})
}

func (c *client) OnMessage(_ link.Session, msg *wire.Msg) {
	switch msg.Type {
	case wire.MsgInfo:
		c.handleInfo(msg)
	case wire.MsgProcess:
		c.handleProcess(msg)
	case wire.MsgForwardOpen:
		c.openRelay()
	case wire.MsgForward:
		c.forward(msg)
	default:
		debug.LogKV("harness", "outer: unexpected message", "type", msg.Type)
	}
}

func (c *client) OnClose(sess link.Session) {
	c.srv.hub.leave(sess)
	c.closeRelay()
}

func (c *client) handleInfo(msg *wire.Msg) {
	upd, err := wire.DecodeData[wire.InfoUpdate](msg)
	if err != nil {
		debug.LogKV("harness", "outer: bad info update", "error", err)
		return
	}
	c.srv.hub.update(func() []*wire.Msg {
		info := &c.srv.info
		switch upd.Type {
		case wire.InfoName:
			info.Name = upd.Name
		case wire.InfoBox:
			info.Box = upd.Box
		case wire.InfoPlug:
			info.Plug = upd.Plug
		case wire.InfoGPS:
			info.GPS = upd.GPS
		default:
			debug.LogKV("harness", "outer: unknown info field", "field", upd.Type)
			return nil
		}
		return []*wire.Msg{mustFlat(wire.MsgInfo, *info)}
	})
}

func (c *client) handleProcess(msg *wire.Msg) {
	cmd, err := wire.DecodeData[wire.ProcessCommand](msg)
	if err != nil {
		debug.LogKV("harness", "outer: bad process command", "error", err)
		return
	}
	p := c.srv.opts.Process
	if p == nil {
		debug.LogKV("harness", "outer: process command without process", "command", cmd.Type)
		return
	}
	wasRunning := p.Running()
	if err := p.Apply(cmd.Type, c.srv.Info()); err != nil {
		debug.LogKV("harness", "outer: process command failed", "command", cmd.Type, "error", err)
		return
	}
	if m := c.srv.opts.Metrics; m != nil && cmd.Type == wire.ProcStart && !wasRunning {
		m.ProcessStarts.Inc()
	}
}
