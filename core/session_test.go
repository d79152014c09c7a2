package core

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/paneflow/schema"
)

// stubEmulator implements Emulator with canned values.
type stubEmulator struct {
	mu     sync.Mutex
	writes []string

	cursorX, cursorY int
	fg, bg           schema.RGB
	modes            map[int]schema.ModeState
	flags            int
	geometry         schema.Geometry
}

func (e *stubEmulator) WriteOutput(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writes = append(e.writes, text)
}

func (e *stubEmulator) CursorPos() (int, int)       { return e.cursorX, e.cursorY }
func (e *stubEmulator) ForegroundColor() schema.RGB { return e.fg }
func (e *stubEmulator) BackgroundColor() schema.RGB { return e.bg }

func (e *stubEmulator) ModeState(mode int) schema.ModeState {
	return e.modes[mode]
}

func (e *stubEmulator) KeyboardFlags() int        { return e.flags }
func (e *stubEmulator) Geometry() schema.Geometry { return e.geometry }

func (e *stubEmulator) output() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.writes, "")
}

func (e *stubEmulator) writeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.writes)
}

// stubSink implements EventSink with function fields.
type stubSink struct {
	onDelivery func(schema.DeliveryEvent)
	onQuery    func(schema.QueryEvent)
	onSession  func(schema.SessionEvent)
}

func (s *stubSink) OnDelivery(event schema.DeliveryEvent) {
	if s.onDelivery != nil {
		s.onDelivery(event)
	}
}

func (s *stubSink) OnQuery(event schema.QueryEvent) {
	if s.onQuery != nil {
		s.onQuery(event)
	}
}

func (s *stubSink) OnSessionEvent(event schema.SessionEvent) {
	if s.onSession != nil {
		s.onSession(event)
	}
}

// testHarness wires a session to a manual scheduler so delivery turns
// run deterministically.
type testHarness struct {
	session   *Session
	emu       *stubEmulator
	responses *strings.Builder
	queue     []func()
}

func newTestHarness(t *testing.T, cfg schema.EngineConfig, sink EventSink) *testHarness {
	t.Helper()
	h := &testHarness{
		emu:       &stubEmulator{cursorX: 4, cursorY: 2, geometry: schema.Geometry{Cols: 100, Rows: 40}},
		responses: &strings.Builder{},
	}
	session, err := NewSession("test", cfg, SessionDeps{
		Emulator: h.emu,
		Responses: ResponseWriterFunc(func(p []byte) error {
			h.responses.Write(p)
			return nil
		}),
		Sink:    sink,
		Version: "1.2.3",
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	session.deferFn = func(fn func()) { h.queue = append(h.queue, fn) }
	h.session = session
	return h
}

func (h *testHarness) runQueue() {
	for len(h.queue) > 0 {
		fn := h.queue[0]
		h.queue = h.queue[1:]
		fn()
	}
}

func (h *testHarness) feed(t *testing.T, data string) {
	t.Helper()
	if err := h.session.Feed([]byte(data)); err != nil {
		t.Fatalf("feed %q: %v", data, err)
	}
}

func TestSessionAnswersQueriesExactly(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "cursor-position", input: "\x1b[6n", want: "\x1b[3;5R"},
		{name: "cursor-position-dec", input: "\x1b[?6n", want: "\x1b[?3;5;1R"},
		{name: "device-status", input: "\x1b[5n", want: "\x1b[0n"},
		{name: "primary-da", input: "\x1b[c", want: "\x1b[?62;1;4;22c"},
		{name: "secondary-da", input: "\x1b[>c", want: "\x1b[>1;10;0c"},
		{name: "tertiary-da", input: "\x1b[=c", want: "\x1bP!|00000000\x1b\\"},
		{name: "version", input: "\x1b[>q", want: "\x1bP>|paneflow 1.2.3\x1b\\"},
		{name: "mode-default-reset", input: "\x1b[?2026$p", want: "\x1b[?2026;2$y"},
		{name: "mode-unrecognized", input: "\x1b[?9999$p", want: "\x1b[?9999;0$y"},
		{name: "keyboard-flags", input: "\x1b[?u", want: "\x1b[?0u"},
		{name: "window-grid", input: "\x1b[18t", want: "\x1b[8;40;100t"},
		{name: "window-cells", input: "\x1b[16t", want: "\x1b[6;16;8t"},
		{name: "window-pixels", input: "\x1b[14t", want: "\x1b[4;640;800t"},
		{name: "color-foreground-default", input: "\x1b]10;?\x07", want: "\x1b]10;rgb:ffff/ffff/ffff\x1b\\"},
		{name: "color-background-default", input: "\x1b]11;?\x07", want: "\x1b]11;rgb:0000/0000/0000\x1b\\"},
		{name: "color-cursor", input: "\x1b]12;?\x07", want: "\x1b]12;rgb:ffff/ffff/ffff\x1b\\"},
		{name: "color-palette-red", input: "\x1b]4;196;?\x07", want: "\x1b]4;196;rgb:ffff/0000/0000\x1b\\"},
		{name: "clipboard-empty", input: "\x1b]52;c;?\x07", want: "\x1b]52;c;\x1b\\"},
		{name: "status-string-sgr", input: "\x1bP$qm\x1b\\", want: "\x1bP1$r0m\x1b\\"},
		{name: "status-string-unknown", input: "\x1bP$qz\x1b\\", want: "\x1bP0$r\x1b\\"},
		{name: "termcap-known", input: "\x1bP+q544e\x1b\\", want: "\x1bP1+r544e=787465726d2d323536636f6c6f72\x1b\\"},
		{name: "termcap-unknown", input: "\x1bP+q7878\x1b\\", want: "\x1bP0+r7878\x1b\\"},
		{name: "graphics-color-registers", input: "\x1b[?1;1S", want: "\x1b[?1;0;256S"},
		{name: "graphics-geometry", input: "\x1b[?2;1S", want: "\x1b[?2;0;800;640S"},
	}
	for _, tc := range tests {
		h := newTestHarness(t, schema.EngineConfig{}, nil)
		h.feed(t, tc.input)
		if got := h.responses.String(); got != tc.want {
			t.Fatalf("%s: response = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSessionCursorResponseUsesLivePosition(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{}, nil)
	h.emu.cursorX = 0
	h.emu.cursorY = 0
	h.feed(t, "\x1b[6n")
	if got := h.responses.String(); got != "\x1b[1;1R" {
		t.Fatalf("response = %q, want home position", got)
	}
}

func TestSessionNilEmulatorUsesRegistryDefaults(t *testing.T) {
	var responses strings.Builder
	session, err := NewSession("test", schema.EngineConfig{}, SessionDeps{
		Responses: ResponseWriterFunc(func(p []byte) error {
			responses.Write(p)
			return nil
		}),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	session.deferFn = func(fn func()) {}
	if err := session.Feed([]byte("\x1b[6n\x1b[18t")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	want := "\x1b[1;1R\x1b[8;24;80t"
	if got := responses.String(); got != want {
		t.Fatalf("responses = %q, want %q", got, want)
	}
}

func TestSessionCoalescesDeliveries(t *testing.T) {
	var events []schema.DeliveryEvent
	sink := &stubSink{onDelivery: func(event schema.DeliveryEvent) {
		events = append(events, event)
	}}
	h := newTestHarness(t, schema.EngineConfig{}, sink)

	h.feed(t, "first ")
	h.feed(t, "second")
	h.runQueue()

	if h.emu.writeCount() != 1 {
		t.Fatalf("writes = %d, want one coalesced batch", h.emu.writeCount())
	}
	if got := h.emu.output(); got != "first second" {
		t.Fatalf("output = %q", got)
	}
	if len(events) != 1 {
		t.Fatalf("delivery events = %d, want 1", len(events))
	}
	if events[0].Segments != 2 || events[0].Bytes != len("first second") || events[0].Forced {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestSessionBatchBoundPreservesOrder(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{BatchMaxBytes: 8}, nil)
	h.feed(t, "abcd")
	h.feed(t, "efgh")
	h.feed(t, "ijkl")
	h.runQueue()

	if got := h.emu.output(); got != "abcdefghijkl" {
		t.Fatalf("output = %q, want in-order delivery", got)
	}
	if h.emu.writeCount() < 2 {
		t.Fatalf("writes = %d, want the batch bound to split delivery", h.emu.writeCount())
	}
}

func TestSessionSyncFrameDeliveredAtomically(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{SyncTimeout: time.Hour}, nil)
	h.feed(t, "\x1b[?2026hupdate one ")
	h.runQueue()
	if h.emu.writeCount() != 0 {
		t.Fatalf("open frame must not deliver, got %q", h.emu.output())
	}
	h.feed(t, "update two\x1b[?2026l")
	h.runQueue()
	if got := h.emu.output(); got != "update one update two" {
		t.Fatalf("output = %q", got)
	}
	if h.emu.writeCount() != 1 {
		t.Fatalf("writes = %d, want one atomic delivery", h.emu.writeCount())
	}
}

func TestSessionSafetyValveForcesFlush(t *testing.T) {
	var fire func()
	restore := newTimer
	newTimer = func(d time.Duration, fn func()) *time.Timer {
		fire = fn
		return time.NewTimer(time.Hour)
	}
	defer func() { newTimer = restore }()

	var events []schema.DeliveryEvent
	sink := &stubSink{onDelivery: func(event schema.DeliveryEvent) {
		events = append(events, event)
	}}
	h := newTestHarness(t, schema.EngineConfig{}, sink)

	h.feed(t, "\x1b[?2026hstuck frame")
	if fire == nil {
		t.Fatalf("expected safety timer to be armed")
	}
	fire()
	h.runQueue()

	if got := h.emu.output(); got != "stuck frame" {
		t.Fatalf("output = %q, want forced release", got)
	}
	if len(events) != 1 || !events[0].Forced {
		t.Fatalf("events = %+v, want one forced delivery", events)
	}
	stats := h.session.Stats()
	if stats.ForcedFlushes != 1 {
		t.Fatalf("forced flushes = %d, want 1", stats.ForcedFlushes)
	}
}

func TestSessionFlushReleasesOpenFrame(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{SyncTimeout: time.Hour}, nil)
	h.feed(t, "\x1b[?2026hheld")
	h.session.Flush()
	h.runQueue()
	if got := h.emu.output(); got != "held" {
		t.Fatalf("output = %q", got)
	}
}

func TestSessionFeedAfterCloseFails(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{}, nil)
	h.session.Close()
	if err := h.session.Feed([]byte("late")); !errors.Is(err, schema.ErrSessionClosed) {
		t.Fatalf("feed after close: %v, want ErrSessionClosed", err)
	}
}

func TestSessionCloseDropsPending(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{}, nil)
	h.feed(t, "queued output")
	h.session.Close()
	h.runQueue()
	if h.emu.writeCount() != 0 {
		t.Fatalf("output after close = %q, want none", h.emu.output())
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{}, nil)
	h.session.Close()
	h.session.Close()
}

func TestSessionStatsCounters(t *testing.T) {
	h := newTestHarness(t, schema.EngineConfig{}, nil)
	h.feed(t, "text\x1b[6n")
	h.feed(t, "\x1b_Gi=1;OK\x1b\\")
	h.runQueue()

	stats := h.session.Stats()
	if stats.BytesIn != int64(len("text\x1b[6n")+len("\x1b_Gi=1;OK\x1b\\")) {
		t.Fatalf("bytes in = %d", stats.BytesIn)
	}
	if stats.QueriesAnswered != 1 {
		t.Fatalf("queries answered = %d, want 1", stats.QueriesAnswered)
	}
	if stats.FramesSegmented != 1 || stats.AcksStripped != 1 {
		t.Fatalf("frames = %d acks = %d", stats.FramesSegmented, stats.AcksStripped)
	}
	if stats.Deliveries != 1 || stats.BytesOut != int64(len("text")) {
		t.Fatalf("deliveries = %d bytes out = %d", stats.Deliveries, stats.BytesOut)
	}
}

func TestSessionRejectsInvalidID(t *testing.T) {
	if _, err := NewSession("", schema.EngineConfig{}, SessionDeps{}); !errors.Is(err, schema.ErrInvalidSession) {
		t.Fatalf("empty id: %v, want ErrInvalidSession", err)
	}
	if _, err := NewSession("has space", schema.EngineConfig{}, SessionDeps{}); !errors.Is(err, schema.ErrInvalidSession) {
		t.Fatalf("id with space: %v, want ErrInvalidSession", err)
	}
}

func TestSessionQueryEventsReported(t *testing.T) {
	var events []schema.QueryEvent
	sink := &stubSink{onQuery: func(event schema.QueryEvent) {
		events = append(events, event)
	}}
	h := newTestHarness(t, schema.EngineConfig{}, sink)
	h.feed(t, "\x1b[6n")
	if len(events) != 1 {
		t.Fatalf("query events = %d, want 1", len(events))
	}
	if events[0].Kind != schema.QueryCursorPosition || events[0].ResponseBytes != len("\x1b[3;5R") {
		t.Fatalf("event = %+v", events[0])
	}
}
