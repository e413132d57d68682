package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssloxford/current-affairs/internal/config"
	"github.com/ssloxford/current-affairs/internal/notify"
)

var pushoverCmd = &cobra.Command{
	Use:   "pushover",
	Short: "Manage Pushover notification settings",
	Long:  "Configure Pushover credentials so the console can push a notification when a checkpoint starts waiting.",
}

var pushoverSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure Pushover credentials",
	Long: `Set up Pushover integration by providing your User Key and Application Token.

You can find these at https://pushover.net:
  - User Key: shown on your Pushover dashboard
  - App Token: create an application at https://pushover.net/apps/build`,
	RunE: pushoverSetup,
}

var pushoverTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test Pushover notification",
	RunE:  pushoverTest,
}

var pushoverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Pushover configuration status",
	RunE:  pushoverStatus,
}

func init() {
	pushoverSetupCmd.Flags().String("user-key", "", "Pushover user key")
	pushoverSetupCmd.Flags().String("app-token", "", "Pushover application token")
	pushoverCmd.AddCommand(pushoverSetupCmd, pushoverTestCmd, pushoverStatusCmd)
	configCmd.AddCommand(pushoverCmd)
}

func pushoverSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	creds := &cfg.Console.Pushover
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	for _, f := range []struct {
		flag, label string
		dst         *string
	}{
		{"user-key", "Pushover User Key", &creds.UserKey},
		{"app-token", "Pushover App Token", &creds.AppToken},
	} {
		if v, _ := cmd.Flags().GetString(f.flag); v != "" {
			*f.dst = v
			continue
		}
		*f.dst = promptSecret(in, out, f.label, *f.dst)
	}
	if !creds.Configured() {
		return fmt.Errorf("both user key and app token are required")
	}

	path := configPath(cmd)
	if err := config.SaveFile(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "\n  %sPushover credentials saved to %s%s\n", styleBoldGreen, path, colorReset)
	return nil
}

// promptSecret asks for a value, showing the masked current one. An empty
// answer keeps current.
func promptSecret(in *bufio.Reader, out io.Writer, label, current string) string {
	if current != "" {
		fmt.Fprintf(out, "  %s [%s]: ", label, maskSecret(current))
	} else {
		fmt.Fprintf(out, "  %s: ", label)
	}
	line, _ := in.ReadString('\n')
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return current
}

func pushoverTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Console.Pushover.Configured() {
		return fmt.Errorf("pushover not configured: run 'affairs config pushover setup' first")
	}

	msg := notify.Message{
		Title:    "affairs test",
		Body:     "Checkpoint notifications from the affairs console will look like this.",
		Priority: notify.PriorityNormal,
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, "  Sending test notification... ")
	if err := notify.New(cfg.Console.Pushover).Send(cmd.Context(), msg); err != nil {
		fmt.Fprintln(out)
		return fmt.Errorf("test failed: %w", err)
	}
	fmt.Fprintf(out, "%sOK%s\n", styleBoldGreen, colorReset)
	return nil
}

func pushoverStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	creds := cfg.Console.Pushover
	printHeader("Pushover")
	if creds.Configured() {
		printField("User Key", maskSecret(creds.UserKey))
		printField("App Token", maskSecret(creds.AppToken))
		printFieldColored("Status", "configured", colorGreen)
	} else {
		printFieldColored("Status", "not configured", colorYellow)
		fmt.Println()
		fmt.Printf("  Run %saffairs config pushover setup%s to configure.\n", styleBoldWhite, colorReset)
	}
	return nil
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-4)
}
