package buildtime

import (
	"runtime/debug"
)

// set by -ldflags "-X github.com/openbraininstitute/entitykit/pkg/buildtime.version=..."
var (
	version  = ""
	revision = ""
)

func fromBuildInfo() (string, string) {
	v, r := version, revision
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v, r
	}
	if v == "" && info.Main.Version != "" {
		v = info.Main.Version
	}
	if r == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				r = s.Value
			}
		}
	}
	return v, r
}

// version string when this entity tool has been built.
func VERSION() string {
	v, _ := fromBuildInfo()
	if v == "" {
		return "(devel)"
	}
	return v
}

func GIT_REVISION() string {
	_, r := fromBuildInfo()
	if r == "" {
		return "unknown"
	}
	return r
}

func VersionString() string {
	return VERSION() + " (commit: " + GIT_REVISION() + ")"
}
