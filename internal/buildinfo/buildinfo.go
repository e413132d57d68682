// Package buildinfo reports the version of the affairs binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.0.0-dev"

// Linker-overridable build metadata, e.g.
//
//	go build -ldflags "-X github.com/ssloxford/current-affairs/internal/buildinfo.Version=v1.0.0"
var (
	Version    = devVersion
	CommitHash = ""
	BuildDate  = ""
)

// Info is normalized build metadata for display.
type Info struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// String renders the one-line form printed by `affairs version`.
func (i Info) String() string {
	commit := i.CommitHash
	if len(commit) > 12 && !strings.HasSuffix(commit, "-dirty") {
		commit = commit[:12]
	}
	return fmt.Sprintf("affairs %s (commit %s, built %s)", i.Version, commit, i.BuildDate)
}

type vcsInfo struct {
	revision string
	time     string
	dirty    bool
}

func readVCS() (mainVersion string, vcs vcsInfo) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", vcs
	}
	for _, s := range bi.Settings {
		v := strings.TrimSpace(s.Value)
		switch s.Key {
		case "vcs.revision":
			vcs.revision = v
		case "vcs.time":
			vcs.time = v
		case "vcs.modified":
			vcs.dirty = strings.EqualFold(v, "true")
		}
	}
	if bi.Main.Version != "(devel)" {
		mainVersion = bi.Main.Version
	}
	return mainVersion, vcs
}

// Current returns build metadata from linker overrides, falling back to the
// module version and VCS stamps embedded by the Go toolchain.
func Current() Info {
	info := Info{
		Version:    strings.TrimSpace(Version),
		CommitHash: strings.TrimSpace(CommitHash),
		BuildDate:  strings.TrimSpace(BuildDate),
	}
	mainVersion, vcs := readVCS()

	if (info.Version == "" || info.Version == devVersion) && mainVersion != "" {
		info.Version = mainVersion
	}
	if info.CommitHash == "" && vcs.revision != "" {
		info.CommitHash = vcs.revision
		if vcs.dirty {
			info.CommitHash += "-dirty"
		}
	}
	if info.BuildDate == "" {
		info.BuildDate = vcs.time
	}
	if parsed, err := time.Parse(time.RFC3339, info.BuildDate); err == nil {
		info.BuildDate = parsed.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	for _, f := range []*string{&info.Version, &info.CommitHash, &info.BuildDate} {
		if *f == "" {
			*f = "unknown"
		}
	}
	return info
}
