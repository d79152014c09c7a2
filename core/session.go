package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/paneflow/internal/version"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Test seams, after the package-var pattern used elsewhere in this tree.
var newTimer = time.AfterFunc

// Session is the per-PTY control-stream engine: query parser, image
// segmenter, synchronized-output framer and the delivery scheduler that
// coalesces ready output into at most one downstream write per turn.
// All stage state is owned by this session and guarded by one mutex; the
// only asynchrony is the deferred notification and the safety-valve
// timer.
type Session struct {
	id      schema.SessionID
	cfg     schema.EngineConfig
	emu     Emulator
	resp    ResponseWriter
	sink    EventSink
	log     pslog.Logger
	version string

	queries *queryParser
	images  *imageSegmenter
	frames  *syncFramer

	// deferFn schedules the coalescing notification for the next turn.
	deferFn func(fn func())

	mu              sync.Mutex
	pending         []string
	pendingBytes    int
	notifyScheduled bool
	forcedPending   bool
	syncTimer       *time.Timer
	disposed        bool
	stats           schema.SessionStats
}

// NewSession constructs an engine session. cfg is normalized; deps may
// be partially filled (a nil emulator falls back to registry defaults,
// a nil response writer discards responses).
func NewSession(id schema.SessionID, cfg schema.EngineConfig, deps SessionDeps) (*Session, error) {
	if err := schema.ValidateSessionID(id); err != nil {
		return nil, err
	}
	normalized, err := schema.NormalizeEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	ver := deps.Version
	if ver == "" {
		ver = version.Current()
	}
	s := &Session{
		id:      id,
		cfg:     cfg,
		emu:     deps.Emulator,
		resp:    deps.Responses,
		sink:    deps.Sink,
		log:     logger.With("session", id),
		version: ver,
		deferFn: func(fn func()) { go fn() },
	}
	s.queries = newQueryParser(cfg.CarryMax, s.answerQuery)
	s.images = newImageSegmenter(cfg.ImageBufferMax, deps.Rewrite, s.noteFrame)
	s.frames = newSyncFramer(cfg.SyncBufferMax)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() schema.SessionID { return s.id }

// Feed runs one chunk through the pipeline: queries are answered and
// stripped, image frames segmented, synchronized frames buffered, and
// residual output queued for coalesced delivery. Chunks must arrive in
// stream order.
func (s *Session) Feed(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return schema.ErrSessionClosed
	}
	s.stats.BytesIn += int64(len(chunk))

	text := s.queries.Process(chunk)
	text = s.images.Process(text)
	ready, buffering := s.frames.Process(text)
	s.setSyncTimerLocked(buffering)
	for _, segment := range ready {
		s.enqueueLocked(segment)
	}
	s.scheduleLocked()
	return nil
}

// Flush forces release of any buffered synchronized frame, exactly like
// the safety valve firing.
func (s *Session) Flush() {
	s.forceFlush("manual flush")
}

// Close tears the session down: the safety timer is cancelled and the
// pending queue is dropped undelivered.
func (s *Session) Close() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
	dropped := s.pendingBytes
	s.pending = nil
	s.pendingBytes = 0
	s.mu.Unlock()
	s.log.Debug("engine session closed", "dropped_bytes", dropped)
}

// Stats returns a copy of the session counters.
func (s *Session) Stats() schema.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) setSyncTimerLocked(buffering bool) {
	if buffering {
		if s.syncTimer == nil {
			s.syncTimer = newTimer(s.cfg.SyncTimeout, s.onSyncTimeout)
		}
		return
	}
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
}

func (s *Session) onSyncTimeout() {
	s.forceFlush("sync timeout")
}

func (s *Session) forceFlush(reason string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
	recovered := s.frames.Flush()
	if recovered == "" {
		s.mu.Unlock()
		return
	}
	s.stats.ForcedFlushes++
	s.forcedPending = true
	s.enqueueLocked(recovered)
	s.scheduleLocked()
	bytes := len(recovered)
	s.mu.Unlock()
	s.log.Debug("engine frame force-flushed", "reason", reason, "bytes", bytes)
}

func (s *Session) enqueueLocked(segment string) {
	if segment == "" {
		return
	}
	s.pending = append(s.pending, segment)
	s.pendingBytes += len(segment)
}

// scheduleLocked arms at most one coalescing notification. Data arriving
// before it runs joins the same batch.
func (s *Session) scheduleLocked() {
	if len(s.pending) == 0 || s.notifyScheduled {
		return
	}
	s.notifyScheduled = true
	s.deferFn(s.notify)
}

// notify drains up to BatchMaxBytes of pending segments into one
// downstream write. A remainder reschedules immediately so order is
// preserved while per-turn work stays bounded.
func (s *Session) notify() {
	s.mu.Lock()
	if s.disposed {
		s.notifyScheduled = false
		s.pending = nil
		s.pendingBytes = 0
		s.mu.Unlock()
		return
	}
	var batch strings.Builder
	segments := 0
	for len(s.pending) > 0 {
		next := s.pending[0]
		if segments > 0 && batch.Len()+len(next) > s.cfg.BatchMaxBytes {
			break
		}
		batch.WriteString(next)
		s.pending = s.pending[1:]
		s.pendingBytes -= len(next)
		segments++
		if batch.Len() >= s.cfg.BatchMaxBytes {
			break
		}
	}
	if len(s.pending) > 0 {
		s.deferFn(s.notify)
	} else {
		s.notifyScheduled = false
	}
	forced := s.forcedPending
	s.forcedPending = false
	out := batch.String()
	if out == "" {
		s.mu.Unlock()
		return
	}
	s.stats.BytesOut += int64(len(out))
	s.stats.Deliveries++
	// The write happens under the session lock so a rescheduled
	// remainder can never overtake this batch.
	if s.emu != nil {
		s.emu.WriteOutput(out)
	}
	sink := s.sink
	event := schema.DeliveryEvent{SessionID: s.id, Bytes: len(out), Segments: segments, Forced: forced}
	s.mu.Unlock()
	if sink != nil {
		sink.OnDelivery(event)
	}
}

// noteFrame records image segmenter activity; runs under the session
// lock from Feed.
func (s *Session) noteFrame(frame ImageFrame, stripped bool) {
	s.stats.FramesSegmented++
	if stripped {
		s.stats.AcksStripped++
	}
}

// answerQuery generates and writes the bit-exact response for one
// recognized query; runs under the session lock from Feed. Failures
// resolve locally: responses are still structurally valid with a nil or
// disposed emulator, and writer errors are logged, never propagated.
func (s *Session) answerQuery(q schema.Query) {
	view := emulatorView{emu: s.emu}
	var resp []byte
	switch q.Kind {
	case schema.QueryCursorPosition:
		x, y := view.cursorPos()
		resp = cprResponse(x, y)
	case schema.QueryCursorPositionExt:
		x, y := view.cursorPos()
		resp = cprDECResponse(x, y)
	case schema.QueryDeviceStatus:
		resp = []byte(respDeviceStatusOK)
	case schema.QueryPrimaryDA:
		resp = []byte(respPrimaryDA)
	case schema.QuerySecondaryDA:
		resp = []byte(respSecondaryDA)
	case schema.QueryTertiaryDA:
		resp = []byte(respTertiaryDA)
	case schema.QueryVersion:
		resp = versionResponse(s.version)
	case schema.QueryMode:
		resp = modeResponse(q.Mode, view.modeState(q.Mode))
	case schema.QueryTermcap:
		for _, name := range q.Names {
			resp = append(resp, termcapResponse(name)...)
		}
	case schema.QueryKeyboardFlags:
		resp = keyboardFlagsResponse(view.keyboardFlags())
	case schema.QueryWindowOp:
		resp = windowOpResponse(q.WindowOp, view.geometry())
	case schema.QueryColor:
		resp = colorResponse(q.Color, q.PaletteIndex, view.color(q.Color, q.PaletteIndex))
	case schema.QueryStatusString:
		resp = statusStringResponse(q.Selector, view.geometry())
	case schema.QueryClipboard:
		resp = clipboardResponse(q.Selector)
	case schema.QueryGraphics:
		resp = graphicsResponse(q.GraphicsItem, graphicsValue(q.GraphicsItem, view.geometry()))
	}
	if len(resp) == 0 {
		return
	}
	if s.resp != nil {
		if err := s.resp.WriteResponse(resp); err != nil {
			s.log.Warn("engine response write failed", "kind", q.Kind.String(), "err", err)
		}
	}
	s.stats.QueriesAnswered++
	if s.sink != nil {
		s.sink.OnQuery(schema.QueryEvent{SessionID: s.id, Kind: q.Kind, ResponseBytes: len(resp)})
	}
}

// graphicsValue answers XTSMGRAPHICS reads: color registers report the
// palette size, sixel geometry reports the pixel dimensions.
func graphicsValue(item int, g schema.Geometry) string {
	switch item {
	case 1:
		return "256"
	case 2:
		return fmt.Sprintf("%d;%d", g.WidthPx, g.HeightPx)
	default:
		return "0"
	}
}
