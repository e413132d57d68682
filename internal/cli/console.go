package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssloxford/current-affairs/internal/config"
	"github.com/ssloxford/current-affairs/internal/console"
	"github.com/ssloxford/current-affairs/internal/consoletui"
	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/geo"
	"github.com/ssloxford/current-affairs/internal/harness"
	"github.com/ssloxford/current-affairs/internal/link"
	"github.com/ssloxford/current-affairs/internal/notify"
	"github.com/ssloxford/current-affairs/internal/waiter"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Connect to a harness and operate the test run",
	Long: `Connect to a harness, keep the connection alive, and drive the EV process
through its checkpoints.

On a terminal the console runs full screen; otherwise it prints one line per
state change.

Examples:
  affairs console --url wss://rig.local:8081/ --insecure
  affairs console --discover
  gpspipe -w | my-fix-filter | affairs console --gps-stdin`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	addConsoleFlags(consoleCmd)
	rootCmd.AddCommand(consoleCmd)
}

func addConsoleFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "Harness websocket URL (ws:// or wss://)")
	cmd.Flags().Bool("insecure", false, "Accept self-signed harness certificates")
	cmd.Flags().Bool("discover", false, "Find the harness via mDNS instead of --url")
	cmd.Flags().Duration("discover-timeout", 3*time.Second, "How long --discover listens")
	cmd.Flags().Float64("lat", 0, "Fixed latitude used as the location fix")
	cmd.Flags().Float64("lon", 0, "Fixed longitude used as the location fix")
	cmd.Flags().Bool("gps-stdin", false, "Read location fixes (lat,lon[,accuracy]) from stdin, one per line")
	cmd.Flags().Bool("plain", false, "Print state changes as lines even on a terminal")
}

// consoleSettings is the console configuration after flag overrides.
type consoleSettings struct {
	config.ConsoleConfig
	discover bool
	gpsStdin bool
	plain    bool
}

func resolveConsoleSettings(cmd *cobra.Command, cfg *config.Config) (consoleSettings, error) {
	s := consoleSettings{ConsoleConfig: cfg.Console}
	flags := cmd.Flags()
	if flags.Changed("url") {
		s.URL, _ = flags.GetString("url")
	}
	if flags.Changed("insecure") {
		s.InsecureTLS, _ = flags.GetBool("insecure")
	}
	latSet, lonSet := flags.Changed("lat"), flags.Changed("lon")
	if latSet != lonSet {
		return s, errors.New("--lat and --lon must be given together")
	}
	if latSet {
		lat, _ := flags.GetFloat64("lat")
		lon, _ := flags.GetFloat64("lon")
		s.Reference = &config.Reference{Lat: lat, Lon: lon}
	}
	s.discover, _ = flags.GetBool("discover")
	s.gpsStdin, _ = flags.GetBool("gps-stdin")
	s.plain, _ = flags.GetBool("plain")
	if s.Reference != nil && s.gpsStdin {
		return s, errors.New("--gps-stdin cannot be combined with a fixed position")
	}
	return s, nil
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := resolveConsoleSettings(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.discover {
		timeout, _ := cmd.Flags().GetDuration("discover-timeout")
		ep, err := discoverOne(ctx, timeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Found harness %s at %s\n", ep.Name, ep.URL)
		s.URL = ep.URL
	}
	if !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
		return fmt.Errorf("harness URL %q must be ws:// or wss://", s.URL)
	}

	tracker := geo.NewTracker()
	if s.Reference != nil {
		fix := geo.Fix{Lat: s.Reference.Lat, Lon: s.Reference.Lon, Timestamp: time.Now()}
		if err := tracker.Update(fix); err != nil {
			return fmt.Errorf("fixed position: %w", err)
		}
	}

	tui := !s.plain && isatty.IsTerminal(os.Stdout.Fd())
	opts := console.Options{
		RelayPoll:  s.RelayPoll.D(),
		ManualTask: s.ManualTask,
		Tracker:    tracker,
		Notify:     checkpointNotifier(ctx, s.Pushover),
	}
	if !tui {
		opts.Warn = func(line string) { fmt.Fprintln(os.Stderr, line) }
	}
	c := console.New(opts)
	defer c.Close()

	dialer := link.WebSocketDialer{}
	if s.InsecureTLS {
		dialer.TLS = &tls.Config{InsecureSkipVerify: true}
	}
	client := &link.Client{
		URL:          s.URL,
		Dialer:       dialer,
		Handler:      c,
		OpenTimeout:  s.OpenTimeout.D(),
		Backoff:      s.ReconnectBackoff.D(),
		WriteTimeout: s.WriteTimeout.D(),
	}
	debug.LogKV("cli", "console starting", "url", s.URL, "tui", tui, "insecure", s.InsecureTLS)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := client.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	var teaOpts []tea.ProgramOption
	if s.gpsStdin {
		// Not part of the group: a read on stdin cannot be interrupted.
		go func() {
			err := geo.ReadFixes(gctx, os.Stdin, tracker, func(err error) {
				debug.LogKV("cli", "bad location fix", "err", err)
			})
			debug.LogKV("cli", "location input ended", "err", err)
		}()
		teaOpts = append(teaOpts, tea.WithInputTTY())
	}
	g.Go(func() error {
		defer cancel()
		if tui {
			return consoletui.Run(gctx, c, teaOpts...)
		}
		p := &consoletui.Plain{W: os.Stdout}
		return p.Run(gctx, c)
	})
	return g.Wait()
}

func discoverOne(ctx context.Context, timeout time.Duration) (harness.Endpoint, error) {
	eps, err := harness.Browse(ctx, timeout)
	if err != nil {
		return harness.Endpoint{}, fmt.Errorf("discovering harness: %w", err)
	}
	if len(eps) == 0 {
		return harness.Endpoint{}, errors.New("no harness found on the local network")
	}
	if len(eps) > 1 {
		fmt.Fprintf(os.Stderr, "%d harnesses found, using the first (see 'affairs discover')\n", len(eps))
	}
	return eps[0], nil
}

// checkpointNotifier returns the console's Notify hook, or nil when
// Pushover is not configured.
func checkpointNotifier(ctx context.Context, cfg config.PushoverConfig) func(string, waiter.View) {
	if !cfg.Configured() {
		return nil
	}
	p := notify.New(cfg)
	return func(experiment string, v waiter.View) {
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := p.Send(sendCtx, notify.CheckpointMessage(experiment, v)); err != nil {
			debug.LogKV("cli", "checkpoint notification failed", "kind", v.Kind, "err", err)
		}
	}
}
