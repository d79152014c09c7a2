package sshserver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureHostKeyGeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host_key")

	first, err := EnsureHostKey(path)
	if err != nil {
		t.Fatalf("ensure host key: %v", err)
	}
	second, err := EnsureHostKey(path)
	if err != nil {
		t.Fatalf("reload host key: %v", err)
	}
	if string(first.PublicKey().Marshal()) != string(second.PublicKey().Marshal()) {
		t.Fatalf("expected stable host key across reloads")
	}
}

func TestEnsureHostKeyRejectsCorruptKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host_key")
	if err := os.WriteFile(path, []byte("not a private key"), 0o600); err != nil {
		t.Fatalf("write corrupt key: %v", err)
	}
	if _, err := EnsureHostKey(path); err == nil {
		t.Fatalf("expected error for corrupt host key")
	}
}

func TestEnsureHostKeyRequiresPath(t *testing.T) {
	if _, err := EnsureHostKey(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestPanePick(t *testing.T) {
	if got := panePick("alice", nil); got != "alice/main" {
		t.Fatalf("expected default pane, got %q", got)
	}
	if got := panePick("alice", []string{"work/build"}); got != "work/build" {
		t.Fatalf("expected named pane, got %q", got)
	}
	if got := panePick("alice", []string{""}); got != "alice/main" {
		t.Fatalf("expected fallback for empty command, got %q", got)
	}
}
