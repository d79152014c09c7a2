package schema

// QueryKind classifies a recognized in-band terminal query.
type QueryKind int

const (
	// QueryCursorPosition is DSR 6 (CSI 6 n).
	QueryCursorPosition QueryKind = iota
	// QueryCursorPositionExt is DEC DSR 6 (CSI ? 6 n), which adds a page number.
	QueryCursorPositionExt
	// QueryDeviceStatus is DSR 5 (CSI 5 n).
	QueryDeviceStatus
	// QueryPrimaryDA is primary device attributes (CSI c).
	QueryPrimaryDA
	// QuerySecondaryDA is secondary device attributes (CSI > c).
	QuerySecondaryDA
	// QueryTertiaryDA is tertiary device attributes (CSI = c).
	QueryTertiaryDA
	// QueryVersion is XTVERSION (CSI > q).
	QueryVersion
	// QueryMode is DECRQM for a DEC private mode (CSI ? Pd $ p).
	QueryMode
	// QueryTermcap is XTGETTCAP (DCS + q ... ST).
	QueryTermcap
	// QueryKeyboardFlags is the kitty keyboard protocol query (CSI ? u).
	QueryKeyboardFlags
	// QueryWindowOp is XTWINOPS 14, 16 or 18 (CSI Ps t).
	QueryWindowOp
	// QueryColor is an OSC 4/10/11/12 color query.
	QueryColor
	// QueryStatusString is DECRQSS (DCS $ q ... ST).
	QueryStatusString
	// QueryClipboard is an OSC 52 clipboard read.
	QueryClipboard
	// QueryGraphics is XTSMGRAPHICS restricted to read-only actions.
	QueryGraphics
)

// String returns the protocol-facing name of the query kind.
func (k QueryKind) String() string {
	switch k {
	case QueryCursorPosition:
		return "cursor-position"
	case QueryCursorPositionExt:
		return "cursor-position-dec"
	case QueryDeviceStatus:
		return "device-status"
	case QueryPrimaryDA:
		return "primary-da"
	case QuerySecondaryDA:
		return "secondary-da"
	case QueryTertiaryDA:
		return "tertiary-da"
	case QueryVersion:
		return "version"
	case QueryMode:
		return "mode"
	case QueryTermcap:
		return "termcap"
	case QueryKeyboardFlags:
		return "keyboard-flags"
	case QueryWindowOp:
		return "window-op"
	case QueryColor:
		return "color"
	case QueryStatusString:
		return "status-string"
	case QueryClipboard:
		return "clipboard"
	case QueryGraphics:
		return "graphics"
	default:
		return "unknown"
	}
}

// ColorTarget selects which color an OSC color query asks about.
type ColorTarget int

const (
	// ColorPalette is OSC 4 (indexed palette entry).
	ColorPalette ColorTarget = iota
	// ColorForeground is OSC 10.
	ColorForeground
	// ColorBackground is OSC 11.
	ColorBackground
	// ColorCursor is OSC 12.
	ColorCursor
)

// Query is one recognized in-band request. It is transient: parsed,
// answered, and discarded within a single chunk pass.
type Query struct {
	Kind QueryKind
	// Mode is the DEC private mode number for QueryMode.
	Mode int
	// Names holds hex-encoded capability names for QueryTermcap.
	Names []string
	// WindowOp is the XTWINOPS opcode (14, 16 or 18) for QueryWindowOp.
	WindowOp int
	// Color describes the target for QueryColor.
	Color ColorTarget
	// PaletteIndex is the palette slot for QueryColor with ColorPalette.
	PaletteIndex int
	// Selector is the DECRQSS selector for QueryStatusString, or the
	// clipboard selection list for QueryClipboard.
	Selector string
	// GraphicsItem and GraphicsAction are Pi and Pa for QueryGraphics.
	GraphicsItem   int
	GraphicsAction int
}
