package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// BuildInfo describes the liveview binary.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// New returns the build info set by the linker. Missing fields are filled in from the VCS stamp
// of the Go toolchain, if any.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" || i.CommitHash == "n/a" {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" || i.BuildDate == "<unknown>" {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

func (i BuildInfo) String() string {
	return fmt.Sprintf("liveview %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
