package core

import (
	"bytes"
	"strconv"
	"strings"

	"pkt.systems/paneflow/schema"
)

const esc = 0x1b

// matchStatus is the outcome of trying to read one query at a buffer
// position.
type matchStatus int

const (
	// matchNo means the bytes provably do not start a recognized query.
	matchNo matchStatus = iota
	// matchPartial means the buffer ends before the match can resolve.
	matchPartial
	// matchDone means a complete query was recognized.
	matchDone
)

// queryParser strips recognized in-band queries from the stream and
// reports them through answer. Unterminated candidates are carried to the
// next chunk; carries beyond carryMax are released verbatim (fail-open).
type queryParser struct {
	carryMax int
	carry    []byte
	answer   func(q schema.Query)
}

func newQueryParser(carryMax int, answer func(schema.Query)) *queryParser {
	return &queryParser{carryMax: carryMax, answer: answer}
}

// Process consumes one chunk and returns the text that should continue
// down the pipeline. Recognized queries are removed and answered;
// everything else passes through byte for byte.
func (p *queryParser) Process(chunk []byte) []byte {
	if len(p.carry) == 0 && bytes.IndexByte(chunk, esc) < 0 {
		// Cheap pre-check: most output carries no ESC at all.
		return chunk
	}
	data := chunk
	if len(p.carry) > 0 {
		data = append(p.carry, chunk...)
		p.carry = nil
	}

	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		rel := bytes.IndexByte(data[i:], esc)
		if rel < 0 {
			out = append(out, data[i:]...)
			break
		}
		out = append(out, data[i:i+rel]...)
		i += rel

		n, q, status := matchQuery(data[i:])
		switch status {
		case matchDone:
			if p.answer != nil {
				p.answer(q)
			}
			i += n
		case matchPartial:
			tail := data[i:]
			if len(tail) > p.carryMax {
				// Held too long to still be plausible; emit raw rather
				// than stalling the stream.
				out = append(out, tail...)
			} else {
				p.carry = append([]byte(nil), tail...)
			}
			i = len(data)
		default:
			out = append(out, data[i])
			i++
		}
	}
	return out
}

// matchQuery inspects bytes starting at an ESC and reports whether they
// form, may still form, or cannot form a recognized query.
func matchQuery(b []byte) (int, schema.Query, matchStatus) {
	if len(b) == 1 {
		return 0, schema.Query{}, matchPartial
	}
	switch b[1] {
	case '[':
		return matchCSI(b)
	case ']':
		return matchOSC(b)
	case 'P':
		return matchDCS(b)
	default:
		return 0, schema.Query{}, matchNo
	}
}

func matchCSI(b []byte) (int, schema.Query, matchStatus) {
	i := 2
	var marker byte
	if i < len(b) && (b[i] == '?' || b[i] == '>' || b[i] == '=') {
		marker = b[i]
		i++
	}
	paramStart := i
	for i < len(b) && (b[i] >= '0' && b[i] <= '9' || b[i] == ';') {
		i++
	}
	params := string(b[paramStart:i])
	interStart := i
	for i < len(b) && b[i] >= 0x20 && b[i] <= 0x2f {
		i++
	}
	intermediate := string(b[interStart:i])
	if i >= len(b) {
		return 0, schema.Query{}, matchPartial
	}
	final := b[i]
	if final < 0x40 || final > 0x7e {
		return 0, schema.Query{}, matchNo
	}
	i++
	q, ok := classifyCSI(marker, params, intermediate, final)
	if !ok {
		return 0, schema.Query{}, matchNo
	}
	return i, q, matchDone
}

func classifyCSI(marker byte, params, intermediate string, final byte) (schema.Query, bool) {
	if intermediate != "" {
		// DECRQM is the only recognized intermediate form.
		if intermediate == "$" && final == 'p' && marker == '?' {
			mode, err := strconv.Atoi(params)
			if err != nil || mode < 0 {
				return schema.Query{}, false
			}
			return schema.Query{Kind: schema.QueryMode, Mode: mode}, true
		}
		return schema.Query{}, false
	}
	switch final {
	case 'n':
		switch {
		case marker == 0 && params == "6":
			return schema.Query{Kind: schema.QueryCursorPosition}, true
		case marker == '?' && params == "6":
			return schema.Query{Kind: schema.QueryCursorPositionExt}, true
		case marker == 0 && params == "5":
			return schema.Query{Kind: schema.QueryDeviceStatus}, true
		}
	case 'c':
		if params == "" || params == "0" {
			switch marker {
			case 0:
				return schema.Query{Kind: schema.QueryPrimaryDA}, true
			case '>':
				return schema.Query{Kind: schema.QuerySecondaryDA}, true
			case '=':
				return schema.Query{Kind: schema.QueryTertiaryDA}, true
			}
		}
	case 'q':
		if marker == '>' && (params == "" || params == "0") {
			return schema.Query{Kind: schema.QueryVersion}, true
		}
	case 'u':
		if marker == '?' && params == "" {
			return schema.Query{Kind: schema.QueryKeyboardFlags}, true
		}
	case 't':
		if marker == 0 && (params == "14" || params == "16" || params == "18") {
			op, _ := strconv.Atoi(params)
			return schema.Query{Kind: schema.QueryWindowOp, WindowOp: op}, true
		}
	case 'S':
		if marker == '?' {
			return classifyGraphics(params)
		}
	}
	return schema.Query{}, false
}

// classifyGraphics accepts XTSMGRAPHICS read-only actions only: Pa 1
// (read) and 4 (read maximum). Mutating actions pass through for the
// emulator to act on.
func classifyGraphics(params string) (schema.Query, bool) {
	fields := strings.Split(params, ";")
	if len(fields) < 2 || len(fields) > 3 {
		return schema.Query{}, false
	}
	item, err := strconv.Atoi(fields[0])
	if err != nil {
		return schema.Query{}, false
	}
	action, err := strconv.Atoi(fields[1])
	if err != nil || (action != 1 && action != 4) {
		return schema.Query{}, false
	}
	return schema.Query{Kind: schema.QueryGraphics, GraphicsItem: item, GraphicsAction: action}, true
}

func matchOSC(b []byte) (int, schema.Query, matchStatus) {
	i := 2
	numStart := i
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		if i-numStart >= 4 {
			return 0, schema.Query{}, matchNo
		}
		i++
	}
	if i == numStart || i >= len(b) {
		if i >= len(b) {
			return 0, schema.Query{}, matchPartial
		}
		return 0, schema.Query{}, matchNo
	}
	num, _ := strconv.Atoi(string(b[numStart:i]))
	if b[i] != ';' {
		return 0, schema.Query{}, matchNo
	}
	i++

	switch num {
	case 10, 11, 12:
		if i >= len(b) {
			return 0, schema.Query{}, matchPartial
		}
		if b[i] != '?' {
			return 0, schema.Query{}, matchNo
		}
		i++
		n, status := matchOSCTerminator(b, i)
		if status != matchDone {
			return 0, schema.Query{}, status
		}
		target := schema.ColorForeground
		switch num {
		case 11:
			target = schema.ColorBackground
		case 12:
			target = schema.ColorCursor
		}
		return i + n, schema.Query{Kind: schema.QueryColor, Color: target}, matchDone

	case 4:
		idxStart := i
		for i < len(b) && b[i] >= '0' && b[i] <= '9' {
			if i-idxStart >= 4 {
				return 0, schema.Query{}, matchNo
			}
			i++
		}
		if i >= len(b) {
			return 0, schema.Query{}, matchPartial
		}
		if i == idxStart || b[i] != ';' {
			return 0, schema.Query{}, matchNo
		}
		index, _ := strconv.Atoi(string(b[idxStart:i]))
		i++
		if i >= len(b) {
			return 0, schema.Query{}, matchPartial
		}
		if b[i] != '?' {
			return 0, schema.Query{}, matchNo
		}
		i++
		n, status := matchOSCTerminator(b, i)
		if status != matchDone {
			return 0, schema.Query{}, status
		}
		return i + n, schema.Query{Kind: schema.QueryColor, Color: schema.ColorPalette, PaletteIndex: index}, matchDone

	case 52:
		selStart := i
		for i < len(b) && isClipboardSelection(b[i]) {
			i++
		}
		if i >= len(b) {
			return 0, schema.Query{}, matchPartial
		}
		if b[i] != ';' {
			return 0, schema.Query{}, matchNo
		}
		selection := string(b[selStart:i])
		i++
		if i >= len(b) {
			return 0, schema.Query{}, matchPartial
		}
		if b[i] != '?' {
			return 0, schema.Query{}, matchNo
		}
		i++
		n, status := matchOSCTerminator(b, i)
		if status != matchDone {
			return 0, schema.Query{}, status
		}
		return i + n, schema.Query{Kind: schema.QueryClipboard, Selector: selection}, matchDone

	default:
		return 0, schema.Query{}, matchNo
	}
}

func isClipboardSelection(c byte) bool {
	switch c {
	case 'c', 'p', 'q', 's':
		return true
	}
	return c >= '0' && c <= '7'
}

// matchOSCTerminator accepts BEL, C1 ST, or ESC backslash.
func matchOSCTerminator(b []byte, i int) (int, matchStatus) {
	if i >= len(b) {
		return 0, matchPartial
	}
	switch b[i] {
	case 0x07, 0x9c:
		return 1, matchDone
	case esc:
		if i+1 >= len(b) {
			return 0, matchPartial
		}
		if b[i+1] == '\\' {
			return 2, matchDone
		}
	}
	return 0, matchNo
}

// matchStringTerminator accepts C1 ST or ESC backslash (BEL does not
// terminate DCS).
func matchStringTerminator(b []byte, i int) (int, matchStatus) {
	if i >= len(b) {
		return 0, matchPartial
	}
	switch b[i] {
	case 0x9c:
		return 1, matchDone
	case esc:
		if i+1 >= len(b) {
			return 0, matchPartial
		}
		if b[i+1] == '\\' {
			return 2, matchDone
		}
	}
	return 0, matchNo
}

func matchDCS(b []byte) (int, schema.Query, matchStatus) {
	if len(b) < 3 {
		return 0, schema.Query{}, matchPartial
	}
	switch b[2] {
	case '+':
		if len(b) < 4 {
			return 0, schema.Query{}, matchPartial
		}
		if b[3] != 'q' {
			return 0, schema.Query{}, matchNo
		}
		i := 4
		start := i
		for i < len(b) && (isHexDigit(b[i]) || b[i] == ';') {
			i++
		}
		n, status := matchStringTerminator(b, i)
		if status != matchDone {
			return 0, schema.Query{}, status
		}
		names := strings.Split(string(b[start:i]), ";")
		return i + n, schema.Query{Kind: schema.QueryTermcap, Names: names}, matchDone

	case '$':
		if len(b) < 4 {
			return 0, schema.Query{}, matchPartial
		}
		if b[3] != 'q' {
			return 0, schema.Query{}, matchNo
		}
		i := 4
		start := i
		for i < len(b) && i-start <= 16 && b[i] >= 0x20 && b[i] <= 0x7e && b[i] != esc {
			i++
		}
		if i-start > 16 {
			return 0, schema.Query{}, matchNo
		}
		n, status := matchStringTerminator(b, i)
		if status != matchDone {
			return 0, schema.Query{}, status
		}
		return i + n, schema.Query{Kind: schema.QueryStatusString, Selector: string(b[start:i])}, matchDone

	default:
		return 0, schema.Query{}, matchNo
	}
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
