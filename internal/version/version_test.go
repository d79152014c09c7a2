package version

import (
	"runtime/debug"
	"testing"
	"time"
)

func TestCurrentPrefersLinkerOverride(t *testing.T) {
	old := release
	t.Cleanup(func() { release = old })

	release = "v1.2.3"
	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected linker version, got %q", got)
	}
	release = "v1.2.3+dirty"
	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected dirty suffix trimmed, got %q", got)
	}
}

func TestVCSPseudoVersion(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
		},
	}
	if got, want := vcsPseudo(info), "v0.0.0-20250102030405-1234567890ab"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if got := vcsPseudo(&debug.BuildInfo{}); got != "" {
		t.Fatalf("expected empty version without vcs stamp, got %q", got)
	}
	if got := vcsPseudo(nil); got != "" {
		t.Fatalf("expected empty version for nil build info, got %q", got)
	}
}
