package harness

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ssloxford/current-affairs/internal/debug"
)

// Routes mounts the websocket endpoint at / and, when m is non-nil, the
// metrics at /metrics.
func Routes(ws http.Handler, m *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", ws)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return mux
}

// Listener is a bound HTTP server.
type Listener struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr. A non-nil tlsCfg serves HTTPS.
func Listen(addr string, h http.Handler, tlsCfg *tls.Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	return &Listener{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln: ln,
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Port returns the bound TCP port.
func (l *Listener) Port() int {
	if a, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// URL returns the websocket URL of the listener as seen from host.
func (l *Listener) URL(host string, secure bool) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(host, fmt.Sprint(l.Port())))
}

// Serve blocks until ctx ends, then shuts the server down.
func (l *Listener) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- l.srv.Serve(l.ln)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		debug.LogKV("harness", "server stopped with error", "error", err)
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	<-errc
	return nil
}
