// Package config loads ~/.affairs/config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// TLS modes of the harness listener.
const (
	TLSOff        = ""
	TLSSelfSigned = "self-signed"
	TLSCustom     = "custom"
)

// Duration is a time.Duration written as a Go duration string ("1.5s").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"1s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// PushoverConfig holds Pushover notification credentials.
type PushoverConfig struct {
	UserKey  string `json:"user_key,omitempty"`  // Pushover user/group key
	AppToken string `json:"app_token,omitempty"` // Pushover application API token
}

// Reference is a fixed position used when no location provider is attached.
type Reference struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ConsoleConfig configures the operator console.
type ConsoleConfig struct {
	URL              string         `json:"url,omitempty"`
	InsecureTLS      bool           `json:"insecure_tls,omitempty"` // accept self-signed harness certificates
	OpenTimeout      Duration       `json:"open_timeout,omitempty"`
	ReconnectBackoff Duration       `json:"reconnect_backoff,omitempty"`
	RelayPoll        Duration       `json:"relay_poll,omitempty"`
	WriteTimeout     Duration       `json:"write_timeout,omitempty"`
	ManualTasks      []string       `json:"manual_tasks,omitempty"` // glob patterns; empty = every task
	Reference        *Reference     `json:"reference,omitempty"`
	Pushover         PushoverConfig `json:"pushover,omitempty"`
}

// HarnessConfig configures the harness server and the EV process it supervises.
type HarnessConfig struct {
	Listen         string   `json:"listen,omitempty"`
	InnerURL       string   `json:"inner_url,omitempty"`
	Command        []string `json:"command,omitempty"`
	Workdir        string   `json:"workdir,omitempty"`
	ResultsDir     string   `json:"results_dir,omitempty"`
	TLS            string   `json:"tls,omitempty"`
	Cert           string   `json:"cert,omitempty"`
	Key            string   `json:"key,omitempty"`
	StatusInterval Duration `json:"status_interval,omitempty"`
	AutoDelay      Duration `json:"auto_delay,omitempty"`
}

// Config is the whole file.
type Config struct {
	Console ConsoleConfig `json:"console"`
	Harness HarnessConfig `json:"harness"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Console: ConsoleConfig{
			URL:              "wss://localhost:8081/",
			OpenTimeout:      Duration(2 * time.Second),
			ReconnectBackoff: Duration(time.Second),
			RelayPoll:        Duration(time.Second),
			WriteTimeout:     Duration(5 * time.Second),
		},
		Harness: HarnessConfig{
			Listen:         ":8081",
			InnerURL:       "ws://localhost:8082/",
			Command:        []string{"python", "-m", "code.main_ev"},
			ResultsDir:     "results",
			StatusInterval: Duration(time.Second),
			AutoDelay:      Duration(2 * time.Second),
		},
	}
}

// Dir returns ~/.affairs, creating it if needed.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dir := filepath.Join(home, ".affairs")
	os.MkdirAll(dir, 0755)
	return dir
}

// Path returns the full path to ~/.affairs/config.json.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads ~/.affairs/config.json. A missing file yields Default().
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads the config at p. Fields absent from the file keep their
// defaults.
func LoadFile(p string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return cfg, nil
}

// Save writes cfg to ~/.affairs/config.json.
func Save(cfg *Config) error {
	return SaveFile(Path(), cfg)
}

// SaveFile writes cfg to p.
func SaveFile(p string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, append(data, '\n'), 0644)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	switch c.Harness.TLS {
	case TLSOff, TLSSelfSigned:
	case TLSCustom:
		if c.Harness.Cert == "" || c.Harness.Key == "" {
			errs = append(errs, errors.New("harness.tls custom needs harness.cert and harness.key"))
		}
	default:
		errs = append(errs, fmt.Errorf("harness.tls: unknown mode %q", c.Harness.TLS))
	}
	if len(c.Harness.Command) == 0 {
		errs = append(errs, errors.New("harness.command is empty"))
	}
	for _, p := range c.Console.ManualTasks {
		if _, err := path.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("console.manual_tasks %q: %w", p, err))
		}
	}
	if !strings.HasPrefix(c.Console.URL, "ws://") && !strings.HasPrefix(c.Console.URL, "wss://") {
		errs = append(errs, fmt.Errorf("console.url %q must be ws:// or wss://", c.Console.URL))
	}
	return errors.Join(errs...)
}

// ManualTask reports whether task name may be triggered from the console.
func (c *ConsoleConfig) ManualTask(name string) bool {
	if len(c.ManualTasks) == 0 {
		return true
	}
	for _, p := range c.ManualTasks {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Configured reports whether both Pushover credentials are set.
func (p PushoverConfig) Configured() bool {
	return p.UserKey != "" && p.AppToken != ""
}
