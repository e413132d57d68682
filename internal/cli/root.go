// Package cli implements the affairs command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssloxford/current-affairs/internal/buildinfo"
	"github.com/ssloxford/current-affairs/internal/debug"
)

const (
	// ANSI color codes
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"

	// Combined styles
	styleBoldCyan  = "\033[1;36m"
	styleBoldGreen = "\033[1;32m"
	styleBoldWhite = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "affairs",
	Short: "EV charging test harness and operator console",
	Long: colorBold + `current affairs` + colorReset + ` v` + buildinfo.Current().Version + `

  Drive charging experiments on a remote EV test harness: start the EV
  process, answer its checkpoints, and follow the task tree live.

` + colorBold + `Getting Started:` + colorReset + `
  affairs serve                       Run the harness on the test rig
  affairs console --url wss://rig:8081/
  affairs console --discover          Find a harness on the local network
  affairs ev-sim                      Simulated EV process for dry runs

` + colorBold + `Configuration:` + colorReset + `
  ~/.affairs/config.json (` + styleBoldWhite + `affairs config show` + colorReset + `)`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.affairs/debug/")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.affairs/config.json)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, logPath)
		bi := buildinfo.Current()
		debug.LogKV("cli", "affairs starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	defer debug.Close()
	if err := rootCmd.Execute(); err != nil {
		debug.Logf("cli", "exit with error: %v", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	debug.Log("cli", "exit success")
}
