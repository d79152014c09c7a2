package core

import (
	"fmt"
	"strings"

	"pkt.systems/paneflow/schema"
)

// Canned responses that carry no live state.
const (
	respDeviceStatusOK = "\x1b[0n"
	respPrimaryDA      = "\x1b[?62;1;4;22c"
	respSecondaryDA    = "\x1b[>1;10;0c"
	respTertiaryDA     = "\x1bP!|00000000\x1b\\"

	st = "\x1b\\"
)

// cprResponse answers DSR 6. Cursor coordinates are zero-based in the
// emulator and 1-based on the wire.
func cprResponse(x, y int) []byte {
	return fmt.Appendf(nil, "\x1b[%d;%dR", y+1, x+1)
}

// cprDECResponse answers DEC DSR 6, which appends a constant page number.
func cprDECResponse(x, y int) []byte {
	return fmt.Appendf(nil, "\x1b[?%d;%d;1R", y+1, x+1)
}

// versionResponse answers XTVERSION.
func versionResponse(version string) []byte {
	return fmt.Appendf(nil, "\x1bP>|paneflow %s%s", version, st)
}

// modeResponse answers DECRQM for a DEC private mode.
func modeResponse(mode int, state schema.ModeState) []byte {
	return fmt.Appendf(nil, "\x1b[?%d;%d$y", mode, int(state))
}

// keyboardFlagsResponse answers the kitty keyboard protocol query.
func keyboardFlagsResponse(flags int) []byte {
	return fmt.Appendf(nil, "\x1b[?%du", flags)
}

// windowOpResponse answers XTWINOPS 14 (pixel size), 16 (cell size) and
// 18 (character grid). Other opcodes are not queries.
func windowOpResponse(op int, g schema.Geometry) []byte {
	switch op {
	case 14:
		return fmt.Appendf(nil, "\x1b[4;%d;%dt", g.HeightPx, g.WidthPx)
	case 16:
		return fmt.Appendf(nil, "\x1b[6;%d;%dt", g.CellHeight, g.CellWidth)
	case 18:
		return fmt.Appendf(nil, "\x1b[8;%d;%dt", g.Rows, g.Cols)
	default:
		return nil
	}
}

// rgbSpec renders a packed 24-bit color as the 16-bit-per-channel
// rgb:rrrr/gggg/bbbb form used by OSC color reports. Each 8-bit channel
// scales by 257 so 0xFF maps to 0xFFFF.
func rgbSpec(c schema.RGB) string {
	r, g, b := c.Components()
	return fmt.Sprintf("rgb:%04x/%04x/%04x", uint32(r)*257, uint32(g)*257, uint32(b)*257)
}

// colorResponse answers OSC 4/10/11/12 color queries. Replies always use
// ST regardless of the query's terminator.
func colorResponse(target schema.ColorTarget, index int, c schema.RGB) []byte {
	switch target {
	case schema.ColorPalette:
		return fmt.Appendf(nil, "\x1b]4;%d;%s%s", index, rgbSpec(c), st)
	case schema.ColorForeground:
		return fmt.Appendf(nil, "\x1b]10;%s%s", rgbSpec(c), st)
	case schema.ColorBackground:
		return fmt.Appendf(nil, "\x1b]11;%s%s", rgbSpec(c), st)
	case schema.ColorCursor:
		return fmt.Appendf(nil, "\x1b]12;%s%s", rgbSpec(c), st)
	default:
		return nil
	}
}

// clipboardResponse answers an OSC 52 read with an explicitly empty
// payload. Clipboard content never leaks downstream of the engine.
func clipboardResponse(selection string) []byte {
	return fmt.Appendf(nil, "\x1b]52;%s;%s", selection, st)
}

// graphicsResponse answers XTSMGRAPHICS read-only actions with a success
// status. item is Pi as received; value is the attribute payload.
func graphicsResponse(item int, value string) []byte {
	return fmt.Appendf(nil, "\x1b[?%d;0;%sS", item, value)
}

// statusStringResponse answers DECRQSS. Known selectors return the
// engine's canned settings inside a DCS 1 $ r report; anything else gets
// the protocol's invalid report so the querying program never hangs.
func statusStringResponse(selector string, g schema.Geometry) []byte {
	value, ok := statusStringValue(selector, g)
	if !ok {
		return []byte("\x1bP0$r" + st)
	}
	return []byte("\x1bP1$r" + value + st)
}

func statusStringValue(selector string, g schema.Geometry) (string, bool) {
	switch selector {
	case "m": // SGR
		return "0m", true
	case "r": // DECSTBM
		return fmt.Sprintf("1;%dr", g.Rows), true
	case "s": // DECSLRM
		return fmt.Sprintf("1;%ds", g.Cols), true
	case "t": // DECSLPP
		return fmt.Sprintf("%dt", g.Rows), true
	case " q": // DECSCUSR
		return "1 q", true
	case "\"q": // DECSCA
		return "0\"q", true
	case "\"p": // DECSCL
		return "65;1\"p", true
	case "$|": // DECSCPP
		return fmt.Sprintf("%d$|", g.Cols), true
	case "*|": // DECSNLS
		return fmt.Sprintf("%d*|", g.Rows), true
	default:
		return "", false
	}
}

// termcapResponse answers XTGETTCAP for one hex-encoded capability name.
// Unknown names are reported with the distinct invalid form (DCS 0 + r).
func termcapResponse(hexName string) []byte {
	name, err := decodeHex(hexName)
	if err == nil {
		if value, ok := termcapValue(name); ok {
			return fmt.Appendf(nil, "\x1bP1+r%s=%s%s", strings.ToLower(hexName), encodeHex(value), st)
		}
	}
	return fmt.Appendf(nil, "\x1bP0+r%s%s", strings.ToLower(hexName), st)
}
