package core

import "bytes"

// Synchronized-output markers (DEC private mode 2026).
var (
	syncBegin = []byte("\x1b[?2026h")
	syncEnd   = []byte("\x1b[?2026l")
	// syncStem is the shared prefix of both markers, used to hold back
	// a possibly split marker at a chunk boundary.
	syncStem = []byte("\x1b[?2026")
)

// syncFramer buffers content between synchronized-output begin and end
// markers so a frame reaches the emulator atomically. Markers do not
// nest: a begin inside an open frame is literal content.
type syncFramer struct {
	bufferMax int

	buffering bool
	buf       []byte
	// hold carries a partial marker across chunk boundaries.
	hold []byte
}

func newSyncFramer(bufferMax int) *syncFramer {
	return &syncFramer{bufferMax: bufferMax}
}

// Buffering reports whether a frame is currently open.
func (f *syncFramer) Buffering() bool {
	return f.buffering
}

// Process consumes one chunk and returns the segments ready for
// delivery, in order, plus whether a frame remains open.
func (f *syncFramer) Process(chunk []byte) ([]string, bool) {
	data := chunk
	if len(f.hold) > 0 {
		data = append(f.hold, chunk...)
		f.hold = nil
	}

	var ready []string
	var plain []byte
	for len(data) > 0 {
		if f.buffering {
			idx := bytes.Index(data, syncEnd)
			if idx >= 0 {
				f.buf = append(f.buf, data[:idx]...)
				if len(f.buf) > 0 {
					ready = append(ready, string(f.buf))
				}
				f.buf = nil
				f.buffering = false
				data = data[idx+len(syncEnd):]
				continue
			}
			body, held := splitMarkerSuffix(data)
			f.hold = held
			f.buf = append(f.buf, body...)
			if len(f.buf) > f.bufferMax {
				// Fail-open: release the oversized frame and stop
				// treating the stream as synchronized.
				ready = append(ready, string(f.buf))
				f.buf = nil
				f.buffering = false
			}
			data = nil
			continue
		}

		idx := bytes.Index(data, syncBegin)
		if idx >= 0 {
			plain = append(plain, data[:idx]...)
			if len(plain) > 0 {
				ready = append(ready, string(plain))
				plain = nil
			}
			f.buffering = true
			data = data[idx+len(syncBegin):]
			continue
		}
		body, held := splitMarkerSuffix(data)
		f.hold = held
		plain = append(plain, body...)
		data = nil
	}
	if len(plain) > 0 {
		ready = append(ready, string(plain))
	}
	return ready, f.buffering
}

// Flush forces release of buffered content, including any held-back
// partial marker, and resets state. Only the safety valve calls this.
func (f *syncFramer) Flush() string {
	out := append(f.buf, f.hold...)
	f.buf = nil
	f.hold = nil
	f.buffering = false
	return string(out)
}

// splitMarkerSuffix splits data so that a trailing prefix of a sync
// marker is held back for the next chunk.
func splitMarkerSuffix(data []byte) (body, held []byte) {
	max := len(syncStem)
	if max > len(data) {
		max = len(data)
	}
	for n := max; n > 0; n-- {
		tail := data[len(data)-n:]
		if bytes.Equal(tail, syncStem[:n]) {
			return data[:len(data)-n], append([]byte(nil), tail...)
		}
	}
	return data, nil
}
