package core

import "pkt.systems/pslog"

// SessionDeps captures per-session collaborators. Emulator and Responses
// are injected once at construction and never mutated afterwards.
type SessionDeps struct {
	Emulator  Emulator
	Responses ResponseWriter
	Rewrite   RewriteFunc
	Sink      EventSink
	Logger    pslog.Logger
	// Version overrides the XTVERSION response body; empty uses the
	// build's own version.
	Version string
}
