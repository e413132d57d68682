// Package debug is the opt-in diagnostic log shared by the console, the
// harness and the EV process the harness supervises.
//
// With --debug (or AFFAIRS_DEBUG_ENABLED=1) every transport fault, protocol
// violation and session transition goes to one file under ~/.affairs/debug/.
// Child processes started with PropagatedEnv append to the same file, each
// line tagged with its process label, so a relay or checkpoint exchange can
// be followed across both ends.
//
// Disabled, every function is a no-op.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ssloxford/current-affairs/internal/hexid"
)

const (
	// EnvEnabled turns logging on in a child process.
	EnvEnabled = "AFFAIRS_DEBUG_ENABLED"
	// EnvLogPath names an existing log file to append to.
	EnvLogPath = "AFFAIRS_DEBUG_LOG_PATH"
	// EnvProcess overrides the process label.
	EnvProcess = "AFFAIRS_DEBUG_PROCESS"
)

type sink struct {
	mu    sync.Mutex
	w     io.Writer
	c     io.Closer
	path  string
	start time.Time
	label string
}

var (
	activeMu sync.RWMutex
	active   *sink
)

// Init opens the log file and installs it. It returns the file path; a
// second call returns the path already in use.
func Init() (string, error) {
	if p, ok := currentPath(); ok {
		return p, nil
	}

	path, attach := os.Getenv(EnvLogPath), true
	if strings.TrimSpace(path) == "" {
		var err error
		if path, err = newLogPath(); err != nil {
			return "", err
		}
		attach = false
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("debug: create dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("debug: open log %s: %w", path, err)
	}
	s := &sink{w: f, c: f, path: path, start: time.Now(), label: processLabel()}
	if attach {
		fmt.Fprintf(f, "# attached pid=%d process=%s at %s\n", os.Getpid(), s.label, s.start.Format(time.RFC3339Nano))
	} else {
		fmt.Fprintf(f, "# affairs debug log\n# started %s pid=%d process=%s gomaxprocs=%d\n",
			s.start.Format(time.RFC3339Nano), os.Getpid(), s.label, runtime.GOMAXPROCS(0))
	}

	activeMu.Lock()
	if active != nil {
		activeMu.Unlock()
		f.Close()
		p, _ := currentPath()
		return p, nil
	}
	active = s
	activeMu.Unlock()
	return path, nil
}

// Close writes a closing marker and closes the file. Safe when not enabled.
func Close() {
	activeMu.Lock()
	s := active
	active = nil
	activeMu.Unlock()
	if s == nil || s.c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "# closed pid=%d process=%s after %s\n", os.Getpid(), s.label, time.Since(s.start).Round(time.Millisecond))
	s.c.Close()
}

// Enabled reports whether a log is open.
func Enabled() bool {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active != nil
}

// Path returns the open log file, or "".
func Path() string {
	p, _ := currentPath()
	return p
}

func currentPath() (string, bool) {
	activeMu.RLock()
	defer activeMu.RUnlock()
	if active == nil {
		return "", false
	}
	return active.path, true
}

// ShouldEnableFromEnv reports whether the environment asks for logging.
// An explicit off in EnvEnabled wins over an inherited EnvLogPath.
func ShouldEnableFromEnv() bool {
	hasPath := strings.TrimSpace(os.Getenv(EnvLogPath)) != ""
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvEnabled))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return hasPath
}

// PropagatedEnv returns env with the debug variables set so a child started
// with it appends to the open log under the given label. env comes back
// untouched when nothing is being logged.
func PropagatedEnv(env []string, process string) []string {
	path := Path()
	if path == "" {
		return env
	}
	out := append([]string(nil), env...)
	out = setEnv(out, EnvEnabled, "1")
	out = setEnv(out, EnvLogPath, path)
	if process = strings.TrimSpace(process); process != "" {
		out = setEnv(out, EnvProcess, process)
	}
	return out
}

// Log writes msg under component.
func Log(component, msg string) {
	if s := current(); s != nil {
		s.line(component, msg)
	}
}

// Logf writes a formatted message under component.
func Logf(component, format string, args ...any) {
	if s := current(); s != nil {
		s.line(component, fmt.Sprintf(format, args...))
	}
}

// LogKV writes msg followed by key=value pairs. Values holding spaces or
// quotes are quoted.
//
//	debug.LogKV("relay", "inner opened", "slot", 3, "err", err)
func LogKV(component, msg string, kvs ...any) {
	s := current()
	if s == nil {
		return
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kvs); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(kvs[i]))
		b.WriteByte('=')
		if i+1 < len(kvs) {
			b.WriteString(formatValue(kvs[i+1]))
		} else {
			b.WriteString("(missing)")
		}
	}
	s.line(component, b.String())
}

func formatValue(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return "<nil>"
	case error:
		s = v.Error()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func current() *sink {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active
}

// line layout: TIME +ELAPSED PROCESS COMPONENT CALLER | MESSAGE
func (s *sink) line(component, msg string) {
	now := time.Now()
	caller := "?"
	if _, file, n, ok := runtime.Caller(2); ok {
		if i := strings.LastIndex(file, "/internal/"); i >= 0 {
			file = file[i+len("/internal/"):]
		} else {
			file = filepath.Base(file)
		}
		caller = file + ":" + strconv.Itoa(n)
	}
	out := fmt.Sprintf("%s +%-12s %-16s %-8s %-28s | %s\n",
		now.Format("15:04:05.000000"),
		now.Sub(s.start).Truncate(time.Microsecond),
		s.label, component, caller, msg)

	s.mu.Lock()
	io.WriteString(s.w, out)
	s.mu.Unlock()
}

func newLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("debug: user home dir: %w", err)
	}
	dir := filepath.Join(home, ".affairs", "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("debug: create dir %s: %w", dir, err)
	}
	name := time.Now().Format("20060102T150405") + "_" + hexid.New() + ".log"
	return filepath.Join(dir, name), nil
}

// processLabel is EnvProcess, or the binary name plus its subcommand
// ("affairs:serve").
func processLabel() string {
	if p := strings.TrimSpace(os.Getenv(EnvProcess)); p != "" {
		return p
	}
	label := filepath.Base(os.Args[0])
	for _, arg := range os.Args[1:] {
		if arg != "" && !strings.HasPrefix(arg, "-") {
			return label + ":" + arg
		}
	}
	return label
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
