// Package ptyhost runs a child command on a PTY and pumps its output
// through an engine session. Query responses travel back over the same
// PTY, so the child sees a terminal that answers.
package ptyhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/internal/logx"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Options configures the hosted child process.
type Options struct {
	// Command is the program to run; empty falls back to $SHELL or /bin/sh.
	Command string
	Args    []string
	Dir     string
	// Term is the TERM value exported to the child.
	Term string
	Cols int
	Rows int
	Env  map[string]string
}

const readChunkSize = 32 * 1024

// Host owns one child process, its PTY, and the engine session fed by it.
type Host struct {
	id  schema.SessionID
	svc core.Service
	pty *os.File
	cmd *exec.Cmd

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	waitErr   error
}

// Start spawns the child on a fresh PTY and registers an engine session
// for it. The session's response writer is wired to the PTY unless deps
// already carries one.
func Start(ctx context.Context, svc core.Service, id schema.SessionID, cfg schema.EngineConfig, opts Options, deps core.SessionDeps) (*Host, error) {
	if svc == nil {
		return nil, errors.New("missing session service")
	}
	log := logx.WithSession(ctx, id)

	cmd := buildCommand(opts)
	ptyFile, err := pty.Start(cmd)
	if err != nil {
		log.Warn("ptyhost start failed", "err", err)
		return nil, fmt.Errorf("start pty: %w", err)
	}
	if err := setSize(ptyFile, opts.Cols, opts.Rows); err != nil {
		log.Warn("ptyhost initial resize failed", "err", err)
	}

	if deps.Responses == nil {
		deps.Responses = core.ResponseWriterFunc(func(p []byte) error {
			_, werr := ptyFile.Write(p)
			return werr
		})
	}
	if _, err := svc.Open(ctx, id, cfg, deps); err != nil {
		_ = ptyFile.Close()
		_ = cmd.Process.Kill()
		return nil, err
	}

	h := &Host{
		id:   id,
		svc:  svc,
		pty:  ptyFile,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go h.readLoop(logx.ContextWithSessionLogger(ctx, log, id), log)
	log.Info("ptyhost started", "pid", cmd.Process.Pid, "command", cmd.Path)
	return h, nil
}

// Write sends input to the child process.
func (h *Host) Write(p []byte) (int, error) {
	return h.pty.Write(p)
}

// Resize adjusts the PTY's winsize and signals the child.
func (h *Host) Resize(cols, rows int) error {
	if err := setSize(h.pty, cols, rows); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Signal(syscall.SIGWINCH)
	}
	return nil
}

// Done is closed when the read loop has drained and the session closed.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the child exits and returns its wait error.
func (h *Host) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Close terminates the child and tears the session down. Safe to call
// multiple times and concurrently with the read loop finishing.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		_ = h.pty.Close()
	})
	<-h.done
	return nil
}

func (h *Host) readLoop(ctx context.Context, log pslog.Logger) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := h.pty.Read(buf)
		if n > 0 {
			if feedErr := h.svc.Feed(ctx, h.id, buf[:n]); feedErr != nil {
				log.Warn("ptyhost feed failed", "err", feedErr)
				break
			}
		}
		if err != nil {
			// EIO is the usual PTY read result after the child exits.
			break
		}
	}
	waitErr := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = waitErr
	h.mu.Unlock()
	h.closeOnce.Do(func() {
		_ = h.pty.Close()
	})
	if err := h.svc.Close(ctx, h.id); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
		log.Warn("ptyhost session close failed", "err", err)
	}
	log.Debug("ptyhost read loop done")
	close(h.done)
}

func buildCommand(opts Options) *exec.Cmd {
	command := opts.Command
	if command == "" {
		command = os.Getenv("SHELL")
	}
	if command == "" {
		command = "/bin/sh"
	}
	cmd := exec.Command(command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = buildEnvironment(opts)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func buildEnvironment(opts Options) []string {
	term := opts.Term
	if term == "" {
		term = "xterm-256color"
	}
	env := map[string]string{
		"PATH":  os.Getenv("PATH"),
		"HOME":  os.Getenv("HOME"),
		"USER":  os.Getenv("USER"),
		"SHELL": os.Getenv("SHELL"),
		"TERM":  term,
	}
	for key, value := range opts.Env {
		env[key] = value
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}

func setSize(ptyFile *os.File, cols, rows int) error {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return pty.Setsize(ptyFile, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
		X:    uint16(cols * 8),
		Y:    uint16(rows * 16),
	})
}
