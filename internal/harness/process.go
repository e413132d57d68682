package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/ssloxford/current-affairs/internal/debug"
	"github.com/ssloxford/current-affairs/internal/wire"
)

// ResultsLayout is the UTC timestamp layout of a run's results folder.
const ResultsLayout = "2006_01_02_15_04_05"

// ErrNoCommand is returned by Start when no EV command is configured.
var ErrNoCommand = errors.New("harness: no EV command configured")

// Process supervises the EV test process. At most one instance runs at a
// time. Its output is captured through a pty into <run folder>.log.
type Process struct {
	Command    []string
	Workdir    string
	ResultsDir string
	// Now defaults to time.Now.
	Now func() time.Time
	// OnChange is called after the running state flips. It must not block.
	OnChange func(running bool)

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// Running reports whether a process is currently supervised.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Args returns the argument list appended to Command for a run labelled by
// info, with its results going to folder.
func Args(info wire.InfoState, folder string) []string {
	lat, lon := "nan", "nan"
	if la, lo, ok := info.GPS.LatLon(); ok {
		lat = strconv.FormatFloat(la, 'f', -1, 64)
		lon = strconv.FormatFloat(lo, 'f', -1, 64)
	}
	return []string{
		"--name", info.Name,
		"--box", info.Box,
		"--plug", info.Plug,
		"--lat", lat,
		"--long", lon,
		folder,
	}
}

// Start launches the EV process for info. It is a no-op while a process is
// already running.
func (p *Process) Start(info wire.InfoState) error {
	started, err := p.start(info)
	if started {
		p.changed(true)
	}
	return err
}

func (p *Process) start(info wire.InfoState) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return false, nil
	}
	if len(p.Command) == 0 {
		return false, ErrNoCommand
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	resultsDir := p.ResultsDir
	if resultsDir == "" {
		resultsDir = "results"
	}
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return false, fmt.Errorf("creating results dir: %w", err)
	}
	folder := filepath.Join(resultsDir, now().UTC().Format(ResultsLayout))
	logFile, err := os.OpenFile(folder+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return false, fmt.Errorf("opening process log: %w", err)
	}

	args := append(append([]string(nil), p.Command[1:]...), Args(info, folder)...)
	cmd := exec.Command(p.Command[0], args...)
	cmd.Dir = p.Workdir
	cmd.Env = debug.PropagatedEnv(os.Environ(), "ev:"+info.Name)
	attrs := &syscall.SysProcAttr{Setpgid: true}
	cmd.SysProcAttr = attrs

	ptmx, err := pty.StartWithAttrs(cmd, nil, attrs)
	if err != nil {
		_ = logFile.Close()
		return false, fmt.Errorf("starting %s: %w", p.Command[0], err)
	}
	debug.LogKV("process", "started", "pid", cmd.Process.Pid, "folder", folder)

	exited := make(chan struct{})
	p.cmd, p.exited = cmd, exited

	go func() {
		_, _ = io.Copy(logFile, ptmx)
		_ = logFile.Close()
	}()
	go func() {
		err := cmd.Wait()
		debug.LogKV("process", "exited", "pid", cmd.Process.Pid, "code", exitCode(err))
		_ = ptmx.Close()
		p.mu.Lock()
		current := p.cmd == cmd
		if current {
			p.cmd = nil
		}
		p.mu.Unlock()
		close(exited)
		if current {
			p.changed(false)
		}
	}()
	return true, nil
}

// Signal delivers sig to the running process. It is a no-op when nothing
// runs.
func (p *Process) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signalling %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

// Kill kills the whole process group and forgets the process without waiting
// for it to be reaped.
func (p *Process) Kill() {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.mu.Unlock()
	if cmd == nil {
		return
	}
	if pid := cmd.Process.Pid; pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
	p.changed(false)
}

// Apply executes a wire process command.
func (p *Process) Apply(cmd string, info wire.InfoState) error {
	switch cmd {
	case wire.ProcStart:
		return p.Start(info)
	case wire.ProcSigint:
		return p.Signal(syscall.SIGINT)
	case wire.ProcSigterm:
		return p.Signal(syscall.SIGTERM)
	case wire.ProcSigkill:
		p.Kill()
		return nil
	}
	return fmt.Errorf("unknown process command %q", cmd)
}

// Wait blocks until the most recently started process has been reaped,
// including one that Kill already forgot.
func (p *Process) Wait() {
	p.mu.Lock()
	exited := p.exited
	p.mu.Unlock()
	if exited != nil {
		<-exited
	}
}

func (p *Process) changed(running bool) {
	if p.OnChange != nil {
		p.OnChange(running)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
