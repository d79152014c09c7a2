package core

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// APC framing bytes. Both the 7-bit and C1 forms introduce and terminate
// frames interchangeably.
const (
	apcC1 = 0x9f
	stC1  = 0x9c
)

// ImageFrame is one complete image-transfer frame, introducer through
// terminator.
type ImageFrame struct {
	// Control is the key=value control data between the 'G' and the
	// first semicolon.
	Control string
	// Payload is the (usually base64) data after the first semicolon.
	Payload string
	// Raw is the complete frame as received.
	Raw []byte
}

// RewriteFunc may replace a complete frame before it is relayed. A nil
// return keeps the frame verbatim; an empty non-nil return drops it.
type RewriteFunc func(frame ImageFrame) []byte

// imageSegmenter isolates the APC image sub-protocol from the stream.
// Complete frames are relayed (optionally rewritten); acknowledgement
// frames are stripped; partial frames are buffered up to bufferMax and
// emitted verbatim beyond that (fail-open).
type imageSegmenter struct {
	bufferMax int
	rewrite   RewriteFunc
	onFrame   func(frame ImageFrame, stripped bool)

	// hold carries a possible introducer prefix across chunks.
	hold []byte
	// frame accumulates the current frame, introducer included.
	frame []byte
	// inFrame is true between a recognized introducer and its terminator.
	inFrame bool
	// overflowed relays the rest of an oversized frame verbatim.
	overflowed bool
}

func newImageSegmenter(bufferMax int, rewrite RewriteFunc, onFrame func(ImageFrame, bool)) *imageSegmenter {
	return &imageSegmenter{bufferMax: bufferMax, rewrite: rewrite, onFrame: onFrame}
}

// Process consumes one chunk and returns the bytes that continue down
// the pipeline.
func (s *imageSegmenter) Process(chunk []byte) []byte {
	if len(s.hold) == 0 && !s.inFrame && !s.overflowed &&
		bytes.IndexByte(chunk, esc) < 0 && bytes.IndexByte(chunk, apcC1) < 0 {
		return chunk
	}
	data := chunk
	if len(s.hold) > 0 {
		data = append(s.hold, chunk...)
		s.hold = nil
	}

	var out []byte
	i := 0
	for i < len(data) {
		if s.overflowed {
			n, end := findTerminator(data[i:])
			if end {
				out = append(out, data[i:i+n]...)
				s.overflowed = false
				i += n
				continue
			}
			// Still inside the oversized frame; a trailing ESC stays held
			// so a split ESC backslash still ends overflow mode.
			rest := data[i:]
			if len(rest) > 0 && rest[len(rest)-1] == esc {
				s.hold = []byte{esc}
				rest = rest[:len(rest)-1]
			}
			out = append(out, rest...)
			break
		}
		if s.inFrame {
			n, end := findTerminator(data[i:])
			if end {
				s.frame = append(s.frame, data[i:i+n]...)
				out = append(out, s.finishFrame()...)
				i += n
				continue
			}
			// Terminator not in this chunk; a trailing ESC stays held so
			// a split ESC backslash is not swallowed into the frame.
			body := data[i:]
			if len(body) > 0 && body[len(body)-1] == esc {
				s.hold = []byte{esc}
				body = body[:len(body)-1]
			}
			s.frame = append(s.frame, body...)
			if len(s.frame) > s.bufferMax {
				out = append(out, s.frame...)
				s.frame = nil
				s.inFrame = false
				s.overflowed = true
			}
			break
		}

		n, status := findIntroducer(data[i:])
		switch status {
		case matchDone:
			s.inFrame = true
			s.frame = append(s.frame[:0], data[i:i+n]...)
			i += n
		case matchPartial:
			s.hold = append([]byte(nil), data[i:]...)
			i = len(data)
		default:
			// Emit up to and including the non-matching lead byte, then
			// rescan from the next candidate.
			out = append(out, data[i])
			i++
			next := indexFrameCandidate(data[i:])
			if next < 0 {
				out = append(out, data[i:]...)
				i = len(data)
			} else {
				out = append(out, data[i:i+next]...)
				i += next
			}
		}
	}
	return out
}

// finishFrame resolves one complete frame: strip acks, apply the rewrite
// hook, or relay verbatim.
func (s *imageSegmenter) finishFrame() []byte {
	raw := s.frame
	s.frame = nil
	s.inFrame = false
	frame := parseImageFrame(raw)
	stripped := isAckFrame(frame)
	if s.onFrame != nil {
		s.onFrame(frame, stripped)
	}
	if stripped {
		return nil
	}
	if s.rewrite != nil {
		if replacement := s.rewrite(frame); replacement != nil {
			return replacement
		}
	}
	return raw
}

// findIntroducer reports whether data starts an image frame: ESC '_' 'G'
// or C1 APC followed by 'G'.
func findIntroducer(data []byte) (int, matchStatus) {
	switch data[0] {
	case esc:
		if len(data) < 2 {
			return 0, matchPartial
		}
		if data[1] != '_' {
			return 0, matchNo
		}
		if len(data) < 3 {
			return 0, matchPartial
		}
		if data[2] != 'G' {
			return 0, matchNo
		}
		return 3, matchDone
	case apcC1:
		if len(data) < 2 {
			return 0, matchPartial
		}
		if data[1] != 'G' {
			return 0, matchNo
		}
		return 2, matchDone
	default:
		return 0, matchNo
	}
}

// findTerminator returns the length of data up to and including the
// first frame terminator, or false when none completes in data.
func findTerminator(data []byte) (int, bool) {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case stC1:
			return i + 1, true
		case esc:
			if i+1 < len(data) && data[i+1] == '\\' {
				return i + 2, true
			}
		}
	}
	return 0, false
}

// indexFrameCandidate finds the next byte that could begin an introducer.
func indexFrameCandidate(data []byte) int {
	for i := 0; i < len(data); i++ {
		if data[i] == esc || data[i] == apcC1 {
			return i
		}
	}
	return -1
}

// parseImageFrame splits a raw frame into control data and payload.
func parseImageFrame(raw []byte) ImageFrame {
	body := raw
	if len(body) > 0 && body[0] == apcC1 {
		body = body[1:]
	} else if len(body) >= 2 && body[0] == esc && body[1] == '_' {
		body = body[2:]
	}
	if len(body) > 0 && body[0] == 'G' {
		body = body[1:]
	}
	if n := len(body); n > 0 {
		if body[n-1] == stC1 {
			body = body[:n-1]
		} else if n >= 2 && body[n-2] == esc && body[n-1] == '\\' {
			body = body[:n-2]
		}
	}
	control, payload, _ := strings.Cut(string(body), ";")
	return ImageFrame{Control: control, Payload: payload, Raw: raw}
}

// isAckFrame applies the acknowledgement heuristic: no action key in the
// control field and a payload of "OK" or non-base64 text. Routine acks
// from a relayed terminal would otherwise land in the emulator as noise.
func isAckFrame(frame ImageFrame) bool {
	if controlAction(frame.Control) != "" {
		return false
	}
	if frame.Payload == "OK" {
		return true
	}
	if frame.Payload == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(frame.Payload)
	return err != nil
}

// controlAction extracts the a= value from frame control data.
func controlAction(control string) string {
	for _, field := range strings.Split(control, ",") {
		if key, value, ok := strings.Cut(field, "="); ok && key == "a" {
			return value
		}
	}
	return ""
}
