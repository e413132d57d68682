package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/harness"
	"github.com/ssloxford/current-affairs/internal/tasks"
)

var evSimCmd = &cobra.Command{
	Use:   "ev-sim",
	Short: "Run a simulated EV process for dry runs",
	Long: `Serve the EV process endpoint with a simulated charging test: it waits for
the plug and start checkpoints, runs the SLAC/SDP/V2G task tree while
emitting status messages, then waits on the done checkpoint.

Point a harness at it with harness.inner_url (default ws://localhost:8082/).

Examples:
  affairs ev-sim
  affairs ev-sim --fail SDP_YTLS --step 200ms`,
	Args: cobra.NoArgs,
	RunE: runEVSim,
}

func init() {
	evSimCmd.Flags().String("listen", "localhost:8082", "Address to listen on")
	evSimCmd.Flags().Duration("step", time.Second, "Simulated duration of one protocol phase")
	evSimCmd.Flags().Duration("auto-delay", 0, "Delay before a delegated checkpoint answers itself (default harness.auto_delay)")
	evSimCmd.Flags().StringSlice("fail", nil, "Tasks that finish with failure")
	rootCmd.AddCommand(evSimCmd)
}

func runEVSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	listen, _ := cmd.Flags().GetString("listen")
	step, _ := cmd.Flags().GetDuration("step")
	autoDelay := cfg.Harness.AutoDelay.D()
	if cmd.Flags().Changed("auto-delay") {
		autoDelay, _ = cmd.Flags().GetDuration("auto-delay")
	}
	failing, _ := cmd.Flags().GetStringSlice("fail")

	metrics := harness.NewMetrics()
	inner := harness.NewInnerServer(harness.InnerOptions{AutoDelay: autoDelay, Metrics: metrics})
	defer inner.Close()
	demo, err := harness.NewDemo(inner, step)
	if err != nil {
		return err
	}
	demo.Outcome = failingOutcome(failing)

	ln, err := harness.Listen(listen, harness.Routes(inner, metrics), nil)
	if err != nil {
		return fmt.Errorf("starting EV simulator: %w", err)
	}
	fmt.Printf("EV simulator at %s\n", ln.URL("localhost", false))
	debug.LogKV("cli", "ev-sim listening", "addr", ln.Addr().String(), "fail", failing)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ln.Serve(gctx) })
	g.Go(func() error {
		err := demo.Run(gctx)
		if err == nil && gctx.Err() == nil {
			fmt.Println("Exit chosen, stopping.")
			stop()
		}
		return err
	})
	return g.Wait()
}

// failingOutcome fails the named tasks and passes every other.
func failingOutcome(failing []string) func(string) tasks.State {
	return func(task string) tasks.State {
		if slices.Contains(failing, task) {
			return tasks.Failure
		}
		return tasks.Success
	}
}
