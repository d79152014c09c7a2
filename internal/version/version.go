// Package version resolves the binary's version string from, in order,
// the linker override, the main module version, and the VCS build stamp.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const (
	fallbackModule = "pkt.systems/paneflow"
	unknown        = "v0.0.0-unknown"
)

// release is overridable at link time:
//
//	-ldflags "-X pkt.systems/paneflow/internal/version.release=v1.2.3"
var release = ""

// Current returns the best version string available for this build.
func Current() string {
	if v := strings.TrimSpace(release); v != "" {
		return strings.TrimSuffix(v, "+dirty")
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknown
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return strings.TrimSuffix(v, "+dirty")
	}
	if v := vcsPseudo(info); v != "" {
		return v
	}
	return unknown
}

// Module returns the main module path, or the compiled-in default when
// build info is unavailable.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return fallbackModule
}

// vcsPseudo builds a go-style pseudo version from the VCS stamp, or ""
// when the stamp is absent or unparsable.
func vcsPseudo(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	var revision, stamp string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			stamp = setting.Value
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
}
