package core

import (
	"strings"
	"testing"
)

func TestSyncFramerPlainTextIsReady(t *testing.T) {
	f := newSyncFramer(1024)
	ready, buffering := f.Process([]byte("plain output"))
	if buffering {
		t.Fatalf("buffering without a begin marker")
	}
	if len(ready) != 1 || ready[0] != "plain output" {
		t.Fatalf("ready = %q", ready)
	}
}

func TestSyncFramerBuffersOpenFrame(t *testing.T) {
	f := newSyncFramer(1024)
	ready, buffering := f.Process([]byte("\x1b[?2026hdraw calls"))
	if !buffering {
		t.Fatalf("expected open frame")
	}
	if len(ready) != 0 {
		t.Fatalf("open frame must not deliver, got %q", ready)
	}
	ready, buffering = f.Process([]byte(" more\x1b[?2026l"))
	if buffering {
		t.Fatalf("frame should have closed")
	}
	if len(ready) != 1 || ready[0] != "draw calls more" {
		t.Fatalf("ready = %q", ready)
	}
}

func TestSyncFramerPreservesOrderAroundFrame(t *testing.T) {
	f := newSyncFramer(1024)
	ready, buffering := f.Process([]byte("before\x1b[?2026hframe\x1b[?2026lafter"))
	if buffering {
		t.Fatalf("unexpected open frame")
	}
	want := []string{"before", "frame", "after"}
	if len(ready) != len(want) {
		t.Fatalf("ready = %q, want %q", ready, want)
	}
	for i := range want {
		if ready[i] != want[i] {
			t.Fatalf("ready[%d] = %q, want %q", i, ready[i], want[i])
		}
	}
}

func TestSyncFramerMarkersDoNotNest(t *testing.T) {
	// A second begin inside an open frame is literal content; the first
	// end closes the frame.
	f := newSyncFramer(1024)
	ready, buffering := f.Process([]byte("\x1b[?2026ha\x1b[?2026hb\x1b[?2026lc"))
	if buffering {
		t.Fatalf("first end marker must close the frame")
	}
	if len(ready) != 2 || ready[0] != "a\x1b[?2026hb" || ready[1] != "c" {
		t.Fatalf("ready = %q", ready)
	}
}

func TestSyncFramerSplitMarkerAcrossChunks(t *testing.T) {
	stream := "one\x1b[?2026htwo\x1b[?2026lthree"
	for split := 1; split < len(stream); split++ {
		f := newSyncFramer(1024)
		var ready []string
		segs, _ := f.Process([]byte(stream[:split]))
		ready = append(ready, segs...)
		segs, buffering := f.Process([]byte(stream[split:]))
		ready = append(ready, segs...)
		if buffering {
			t.Fatalf("split %d: frame left open", split)
		}
		if got := strings.Join(ready, ""); got != "onetwothree" {
			t.Fatalf("split %d: joined = %q", split, got)
		}
		for _, seg := range ready {
			if strings.Contains(seg, "\x1b[?2026") {
				t.Fatalf("split %d: marker leaked into %q", split, seg)
			}
		}
	}
}

func TestSyncFramerAtomicDeliveryAcrossChunks(t *testing.T) {
	f := newSyncFramer(1024)
	chunks := []string{"\x1b[?2026h", "part one ", "part two", "\x1b[?2026l"}
	var ready []string
	for _, chunk := range chunks[:3] {
		segs, buffering := f.Process([]byte(chunk))
		if len(segs) != 0 || !buffering {
			t.Fatalf("chunk %q: segs = %q buffering = %v", chunk, segs, buffering)
		}
		ready = append(ready, segs...)
	}
	segs, buffering := f.Process([]byte(chunks[3]))
	if buffering {
		t.Fatalf("frame left open")
	}
	ready = append(ready, segs...)
	if len(ready) != 1 || ready[0] != "part one part two" {
		t.Fatalf("ready = %q, want single atomic segment", ready)
	}
}

func TestSyncFramerOverflowFailsOpen(t *testing.T) {
	f := newSyncFramer(8)
	ready, buffering := f.Process([]byte("\x1b[?2026h0123456789"))
	if buffering {
		t.Fatalf("oversized frame must stop buffering")
	}
	if len(ready) != 1 || ready[0] != "0123456789" {
		t.Fatalf("ready = %q", ready)
	}
	// A later end marker is literal noise from the framer's point of view
	// and passes through with the plain text.
	ready, _ = f.Process([]byte("x\x1b[?2026ly"))
	if len(ready) != 1 || ready[0] != "x\x1b[?2026ly" {
		t.Fatalf("ready = %q", ready)
	}
}

func TestSyncFramerFlushReleasesBufferAndHold(t *testing.T) {
	f := newSyncFramer(1024)
	f.Process([]byte("\x1b[?2026hpartial \x1b[?20"))
	out := f.Flush()
	if out != "partial \x1b[?20" {
		t.Fatalf("flush = %q", out)
	}
	if f.Buffering() {
		t.Fatalf("flush must reset the open frame")
	}
	ready, buffering := f.Process([]byte("normal"))
	if buffering || len(ready) != 1 || ready[0] != "normal" {
		t.Fatalf("post-flush ready = %q buffering = %v", ready, buffering)
	}
}

func TestSyncFramerFlushEmptyWhenIdle(t *testing.T) {
	f := newSyncFramer(1024)
	if out := f.Flush(); out != "" {
		t.Fatalf("flush = %q, want empty", out)
	}
}
