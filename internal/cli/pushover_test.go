package cli

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ssloxford/current-affairs/internal/config"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		output string
	}{
		{name: "empty", input: "", output: ""},
		{name: "short", input: "abc", output: "***"},
		{name: "exactly four", input: "abcd", output: "****"},
		{name: "longer than four", input: "abcdefgh", output: "abcd****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.input); got != tt.output {
				t.Fatalf("maskSecret(%q) = %q, want %q", tt.input, got, tt.output)
			}
		})
	}
}

func TestPromptSecret(t *testing.T) {
	tests := []struct {
		name, input, current, want, prompt string
	}{
		{name: "new value", input: "abc123\n", want: "abc123", prompt: "  Key: "},
		{name: "keep current", input: "\n", current: "secret99", want: "secret99", prompt: "  Key [secr****]: "},
		{name: "eof keeps current", input: "", current: "tok", want: "tok", prompt: "  Key [***]: "},
		{name: "trimmed", input: "  u1  \n", current: "old", want: "u1", prompt: "  Key [***]: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := promptSecret(bufio.NewReader(strings.NewReader(tt.input)), &out, "Key", tt.current)
			if got != tt.want {
				t.Fatalf("promptSecret() = %q, want %q", got, tt.want)
			}
			if out.String() != tt.prompt {
				t.Fatalf("prompt = %q, want %q", out.String(), tt.prompt)
			}
		})
	}
}

func TestPushoverSetupSavesCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")

	rootCmd.SetIn(strings.NewReader("app-token-1\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })
	execRoot(t, "config", "pushover", "setup", "--config", path, "--user-key", "user-key-1")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := config.PushoverConfig{UserKey: "user-key-1", AppToken: "app-token-1"}
	if cfg.Console.Pushover != want {
		t.Fatalf("pushover = %+v, want %+v", cfg.Console.Pushover, want)
	}
}
