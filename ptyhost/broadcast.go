package ptyhost

import (
	"io"
	"sync"

	"pkt.systems/paneflow/schema"
)

// Broadcast is the downstream emulator for a hosted pane: coalesced
// batches fan out to every attached client. It reports the most recent
// attach geometry and leaves mode and color queries to the registry
// defaults, since the real terminal sits on the far side of a network
// connection.
type Broadcast struct {
	mu    sync.Mutex
	next  int
	sinks map[int]io.Writer
	geo   schema.Geometry
}

// NewBroadcast constructs an empty broadcast target.
func NewBroadcast() *Broadcast {
	return &Broadcast{sinks: make(map[int]io.Writer)}
}

// Attach registers a client writer and returns a detach function.
func (b *Broadcast) Attach(w io.Writer) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.sinks[id] = w
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.sinks, id)
		b.mu.Unlock()
	}
}

// Clients reports the number of attached writers.
func (b *Broadcast) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sinks)
}

// SetGeometry records the attached terminal's dimensions.
func (b *Broadcast) SetGeometry(g schema.Geometry) {
	b.mu.Lock()
	b.geo = g
	b.mu.Unlock()
}

// WriteOutput implements core.Emulator. A slow or failed client write
// does not stop delivery to the others.
func (b *Broadcast) WriteOutput(text string) {
	b.mu.Lock()
	sinks := make([]io.Writer, 0, len(b.sinks))
	for _, w := range b.sinks {
		sinks = append(sinks, w)
	}
	b.mu.Unlock()
	for _, w := range sinks {
		_, _ = io.WriteString(w, text)
	}
}

func (b *Broadcast) CursorPos() (int, int) { return 0, 0 }

func (b *Broadcast) ForegroundColor() schema.RGB { return 0 }

func (b *Broadcast) BackgroundColor() schema.RGB { return 0 }

func (b *Broadcast) ModeState(mode int) schema.ModeState { return schema.ModeUnknown }

func (b *Broadcast) KeyboardFlags() int { return 0 }

// Geometry implements core.Emulator.
func (b *Broadcast) Geometry() schema.Geometry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.geo
}
