package schema

// SessionID identifies one engine session, scoped to a single PTY.
type SessionID string

// PaneID identifies a hosted pane on the attach surface.
type PaneID string

// UserID identifies a user on the attach surface.
type UserID string

// ModeState is the tri-state answer to a DEC private mode query.
type ModeState int

const (
	// ModeUnknown means the mode is not recognized.
	ModeUnknown ModeState = 0
	// ModeSet means the mode is currently set.
	ModeSet ModeState = 1
	// ModeReset means the mode is currently reset.
	ModeReset ModeState = 2
	// ModePermanentlySet means the mode is always set.
	ModePermanentlySet ModeState = 3
	// ModePermanentlyReset means the mode is always reset.
	ModePermanentlyReset ModeState = 4
)

// Geometry describes the emulator's cell grid and pixel dimensions.
type Geometry struct {
	Cols       int
	Rows       int
	WidthPx    int
	HeightPx   int
	CellWidth  int
	CellHeight int
}

// RGB is a packed 24-bit color in 0xRRGGBB layout, matching the
// emulator collaborator's color getters.
type RGB uint32

// Components splits the packed color into 8-bit channels.
func (c RGB) Components() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}
