package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(Dir()); err != nil {
		t.Fatalf("Dir() not created: %v", err)
	}
}

func TestLoadFileKeepsDefaultsForAbsentFields(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"console": {"url": "ws://bench:8081/", "reconnect_backoff": "250ms", "manual_tasks": ["SLAC*"]},
		"harness": {"tls": "self-signed", "command": ["./ev"]}
	}`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Console.URL != "ws://bench:8081/" {
		t.Fatalf("url = %q", cfg.Console.URL)
	}
	if cfg.Console.ReconnectBackoff.D() != 250*time.Millisecond {
		t.Fatalf("backoff = %v", cfg.Console.ReconnectBackoff.D())
	}
	if cfg.Console.OpenTimeout.D() != 2*time.Second {
		t.Fatalf("open timeout = %v, want default 2s", cfg.Console.OpenTimeout.D())
	}
	if cfg.Harness.Listen != ":8081" || cfg.Harness.AutoDelay.D() != 2*time.Second {
		t.Fatalf("harness defaults lost: %+v", cfg.Harness)
	}
	if !cfg.Console.ManualTask("SLAC") || cfg.Console.ManualTask("V2G") {
		t.Fatal("manual_tasks glob not applied")
	}
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, data, want string
	}{
		{"numeric duration", `{"console":{"open_timeout":2}}`, "duration must be a string"},
		{"unknown tls", `{"harness":{"tls":"maybe"}}`, "unknown mode"},
		{"custom without cert", `{"harness":{"tls":"custom"}}`, "needs harness.cert"},
		{"http url", `{"console":{"url":"http://x/"}}`, "must be ws://"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(p, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(p)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadFile err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestManualTaskDefaultsToAll(t *testing.T) {
	var c ConsoleConfig
	if !c.ManualTask("anything") {
		t.Fatal("empty manual_tasks must allow every task")
	}
}
