package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssloxford/current-affairs/internal/config"
	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/harness"
)

var serveCmd = &cobra.Command{
	Use:   "serve [-- command args...]",
	Short: "Run the harness on the test rig",
	Long: `Run the harness: accept console connections, supervise the EV process and
relay each console to the process's own endpoint.

Arguments after -- replace harness.command from the config file. The process
is started with --name --box --plug --lat --long and a results folder.

Examples:
  affairs serve --tls self-signed --mdns --qr
  affairs serve --listen :9000 -- python -m code.main_ev`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("listen", "", "Address to listen on (default harness.listen)")
	cmd.Flags().String("inner-url", "", "EV process websocket URL (default harness.inner_url)")
	cmd.Flags().String("host", "", "Host name used in the printed URL (default this machine's name)")
	cmd.Flags().String("results-dir", "", "Folder for run results (default harness.results_dir)")
	cmd.Flags().String("workdir", "", "Working directory of the EV process")
	cmd.Flags().String("tls", "", "TLS mode: 'self-signed' or 'custom' (requires --cert and --key)")
	cmd.Flags().String("cert", "", "Path to TLS certificate file (for --tls=custom)")
	cmd.Flags().String("key", "", "Path to TLS key file (for --tls=custom)")
	cmd.Flags().String("name", "", "Name advertised over mDNS (default the host name)")
	cmd.Flags().Bool("mdns", false, "Advertise the harness on the local network via mDNS/Bonjour")
	cmd.Flags().Bool("qr", false, "Print the console URL as a QR code")
}

// applyHarnessFlags overrides cfg.Harness with the flags the user set.
func applyHarnessFlags(cmd *cobra.Command, args []string, h *config.HarnessConfig) error {
	flags := cmd.Flags()
	for flag, dst := range map[string]*string{
		"listen":      &h.Listen,
		"inner-url":   &h.InnerURL,
		"results-dir": &h.ResultsDir,
		"workdir":     &h.Workdir,
		"tls":         &h.TLS,
		"cert":        &h.Cert,
		"key":         &h.Key,
	} {
		if flags.Changed(flag) {
			*dst, _ = flags.GetString(flag)
		}
	}
	if len(args) > 0 {
		h.Command = args
	}
	switch h.TLS {
	case config.TLSOff, config.TLSSelfSigned:
	case config.TLSCustom:
		if h.Cert == "" || h.Key == "" {
			return fmt.Errorf("--tls=custom requires both --cert and --key")
		}
	default:
		return fmt.Errorf("invalid --tls value %q, expected 'self-signed' or 'custom'", h.TLS)
	}
	if len(h.Command) == 0 {
		return errors.New("no EV command: set harness.command or pass it after --")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	h := cfg.Harness
	if err := applyHarnessFlags(cmd, args, &h); err != nil {
		return err
	}

	host, _ := cmd.Flags().GetString("host")
	if host == "" {
		host = localHostName()
	}
	tlsCfg, err := harness.TLSConfig(h.TLS, h.Cert, h.Key, host)
	if err != nil {
		return err
	}

	metrics := harness.NewMetrics()
	proc := &harness.Process{
		Command:    h.Command,
		Workdir:    h.Workdir,
		ResultsDir: h.ResultsDir,
	}
	srv := harness.NewServer(harness.Options{
		InnerURL:       h.InnerURL,
		StatusInterval: h.StatusInterval.D(),
		Process:        proc,
		Metrics:        metrics,
	})
	defer func() {
		srv.Close()
		proc.Kill()
		proc.Wait()
	}()

	ln, err := harness.Listen(h.Listen, harness.Routes(srv, metrics), tlsCfg)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			fmt.Fprintf(os.Stderr, "Address %s is already in use.\n", h.Listen)
		}
		return fmt.Errorf("starting harness: %w", err)
	}
	url := ln.URL(host, tlsCfg != nil)

	// Print clickable URL - use OSC 8 hyperlink escape sequences for terminals that support it
	fmt.Printf("\033]8;;%s\033\\%s\033]8;;\033\\\n", url, url)
	fmt.Printf("EV process: %s\n", strings.Join(h.Command, " "))
	if qr, _ := cmd.Flags().GetBool("qr"); qr {
		if err := printQRCode(url); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to render QR code: %v\n", err)
		}
	}
	debug.LogKV("cli", "harness listening", "url", url, "inner_url", h.InnerURL, "tls", h.TLS)

	if enable, _ := cmd.Flags().GetBool("mdns"); enable {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = strings.TrimSuffix(host, ".local")
		}
		server, err := harness.Advertise(name, ln.Port(), url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start mDNS advertisement: %v\n", err)
		} else {
			defer server.Shutdown()
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ln.Serve(gctx) })
	g.Go(func() error { return srv.RunStatus(gctx) })
	return g.Wait()
}

func printQRCode(url string) error {
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}
	fmt.Println(code.ToString(false))
	return nil
}

// localHostName is the machine's mDNS name, or localhost.
func localHostName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	name = strings.TrimSuffix(name, ".local")
	return name + ".local"
}

// signalContext is the context every long-running command stops on.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
