package core

import (
	"encoding/hex"
	"fmt"

	"pkt.systems/paneflow/schema"
)

// Static capability and mode registry. Consulted only when no live
// emulator getter exists or the getter reports "unknown".

// termName is the terminal type the engine reports on behalf of panes.
const termName = "xterm-256color"

// termcaps maps capability names (termcap and terminfo spellings) to the
// values reported by XTGETTCAP.
var termcaps = map[string]string{
	"TN":     termName,
	"name":   termName,
	"Co":     "256",
	"colors": "256",
	"RGB":    "8/8/8",
}

func termcapValue(name string) (string, bool) {
	value, ok := termcaps[name]
	return value, ok
}

func decodeHex(s string) (string, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("invalid hex capability name: %w", err)
	}
	return string(raw), nil
}

func encodeHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

// defaultModes holds the reset-state of DEC private modes the engine
// recognizes when the emulator cannot be consulted. Anything absent is
// reported as not recognized.
var defaultModes = map[int]schema.ModeState{
	1:    schema.ModeReset, // DECCKM
	6:    schema.ModeReset, // DECOM
	7:    schema.ModeSet,   // DECAWM
	12:   schema.ModeReset, // cursor blink
	25:   schema.ModeSet,   // DECTCEM
	45:   schema.ModeReset, // reverse wraparound
	47:   schema.ModeReset, // alternate screen
	66:   schema.ModeReset, // DECNKM
	1000: schema.ModeReset,
	1002: schema.ModeReset,
	1003: schema.ModeReset,
	1004: schema.ModeReset,
	1005: schema.ModeReset,
	1006: schema.ModeReset,
	1007: schema.ModeReset,
	1015: schema.ModeReset,
	1016: schema.ModeReset,
	1047: schema.ModeReset,
	1048: schema.ModeReset,
	1049: schema.ModeReset,
	2004: schema.ModeReset, // bracketed paste
	2026: schema.ModeReset, // synchronized output
}

func defaultModeState(mode int) schema.ModeState {
	if state, ok := defaultModes[mode]; ok {
		return state
	}
	return schema.ModeUnknown
}

// Default colors used when the emulator is unavailable or reports the
// zero "use default" value.
const (
	defaultForeground schema.RGB = 0xFFFFFF
	defaultBackground schema.RGB = 0x000000
	defaultCursor     schema.RGB = 0xFFFFFF
)

// defaultGeometry is reported when the emulator exposes no usable
// geometry: a conventional 80x24 grid with 8x16 cells.
var defaultGeometry = schema.Geometry{
	Cols:       80,
	Rows:       24,
	WidthPx:    640,
	HeightPx:   384,
	CellWidth:  8,
	CellHeight: 16,
}

// ansiBase is the standard xterm 16-color palette.
var ansiBase = [16]schema.RGB{
	0x000000, 0xCD0000, 0x00CD00, 0xCDCD00,
	0x0000EE, 0xCD00CD, 0x00CDCD, 0xE5E5E5,
	0x7F7F7F, 0xFF0000, 0x00FF00, 0xFFFF00,
	0x5C5CFF, 0xFF00FF, 0x00FFFF, 0xFFFFFF,
}

// cubeLevels are the xterm 6x6x6 color cube channel values.
var cubeLevels = [6]uint32{0, 95, 135, 175, 215, 255}

// paletteColor returns the default 256-color palette entry for index.
// Out-of-range indexes fall back to the default foreground.
func paletteColor(index int) schema.RGB {
	switch {
	case index >= 0 && index < 16:
		return ansiBase[index]
	case index >= 16 && index < 232:
		n := index - 16
		r := cubeLevels[n/36]
		g := cubeLevels[(n/6)%6]
		b := cubeLevels[n%6]
		return schema.RGB(r<<16 | g<<8 | b)
	case index >= 232 && index < 256:
		v := uint32(8 + 10*(index-232))
		return schema.RGB(v<<16 | v<<8 | v)
	default:
		return defaultForeground
	}
}
