// Package buildinfo holds version metadata stamped at compile time via
// -ldflags and the User-Agent string derived from it.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Stamped by the linker, e.g.
//
//	-ldflags "-X github.com/nugget/relaybot/internal/buildinfo.Version=1.0.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var started = time.Now()

// Info is a snapshot of build and runtime metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Uptime    string `json:"uptime"`
}

// Current returns the build metadata of the running binary.
func Current() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Uptime:    time.Since(started).Truncate(time.Second).String(),
	}
}

// String returns a one-line summary suitable for a startup log line.
func String() string {
	return fmt.Sprintf("relaybot %s (%s) built %s", Version, GitCommit, BuildTime)
}

// UserAgent is sent on every outbound HTTP request.
func UserAgent() string {
	return fmt.Sprintf("Relaybot/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
