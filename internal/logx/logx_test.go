package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithSessionAddsField(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithSession(ctx, "alice/main")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "alice/main" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestWithSessionDeduplicatesMarkedContext(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("session", "alice/main")
	ctx := ContextWithSessionLogger(context.Background(), logger, "alice/main")
	log := WithSession(ctx, "alice/main")
	log.Info("hello")

	data := capture.buf.String()
	if n := bytes.Count([]byte(data), []byte("alice/main")); n != 1 {
		t.Fatalf("expected one session field, found %d in %q", n, data)
	}
}

func TestWithSessionPaneAddsBothFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithSessionPane(ctx, "alice/main", "alice/main")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "alice/main" {
		t.Fatalf("expected session field, got %+v", entry)
	}
	if entry["pane"] != "alice/main" {
		t.Fatalf("expected pane field, got %+v", entry)
	}
}

func TestWithUserAddsField(t *testing.T) {
	capture := &logCapture{}
	log := WithUser(newCaptureLogger(capture), "alice")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["user"] != "alice" {
		t.Fatalf("expected user field, got %+v", entry)
	}
}

func TestWithUserEmptyLeavesLoggerUntouched(t *testing.T) {
	capture := &logCapture{}
	log := WithUser(newCaptureLogger(capture), "")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["user"]; ok {
		t.Fatalf("did not expect user field, got %+v", entry)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
