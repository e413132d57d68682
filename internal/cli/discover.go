package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssloxford/current-affairs/internal/harness"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List harnesses advertised on the local network",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().Duration("timeout", 3*time.Second, "How long to listen for answers")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	eps, err := harness.Browse(ctx, timeout)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("discovering harnesses: %w", err)
	}
	printHeader(fmt.Sprintf("Harnesses (%s)", harness.MDNSService))
	rows := make([][]string, 0, len(eps))
	for _, ep := range eps {
		rows = append(rows, []string{ep.Name, ep.URL, ep.Host, strconv.Itoa(ep.Port)})
	}
	printTable([]string{"NAME", "URL", "HOST", "PORT"}, rows)
	return nil
}
