package core

import "pkt.systems/paneflow/schema"

// Emulator is the downstream virtual-terminal collaborator. All getters
// must be non-throwing; a zero color means "use default". The engine
// tolerates a nil Emulator and substitutes registry defaults.
type Emulator interface {
	// WriteOutput delivers one coalesced batch of residual output.
	WriteOutput(text string)
	// CursorPos returns the zero-based cursor column and row.
	CursorPos() (x, y int)
	// ForegroundColor and BackgroundColor return packed 0xRRGGBB values.
	ForegroundColor() schema.RGB
	BackgroundColor() schema.RGB
	// ModeState reports a DEC private mode; ModeUnknown defers to the
	// static registry.
	ModeState(mode int) schema.ModeState
	// KeyboardFlags returns the kitty keyboard protocol flag bitmask.
	KeyboardFlags() int
	// Geometry returns grid, pixel and cell dimensions; zero fields
	// defer to the registry defaults.
	Geometry() schema.Geometry
}

// ResponseWriter is the single-method sink for query responses, wired to
// the PTY's write side in production and to capture buffers in tests.
type ResponseWriter interface {
	WriteResponse(p []byte) error
}

// ResponseWriterFunc adapts a function to ResponseWriter.
type ResponseWriterFunc func(p []byte) error

// WriteResponse implements ResponseWriter.
func (f ResponseWriterFunc) WriteResponse(p []byte) error { return f(p) }

// emulatorView wraps an optional Emulator with the safe-default policy:
// every accessor returns a structurally valid value even when the
// emulator is nil or reports unknowns.
type emulatorView struct {
	emu Emulator
}

func (v emulatorView) cursorPos() (int, int) {
	if v.emu == nil {
		return 0, 0
	}
	x, y := v.emu.CursorPos()
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

func (v emulatorView) color(target schema.ColorTarget, index int) schema.RGB {
	switch target {
	case schema.ColorForeground:
		if v.emu != nil {
			if c := v.emu.ForegroundColor(); c != 0 {
				return c
			}
		}
		return defaultForeground
	case schema.ColorBackground:
		if v.emu != nil {
			// Black is a legitimate background; the zero value is
			// indistinguishable from "default", and the default is black.
			return v.emu.BackgroundColor()
		}
		return defaultBackground
	case schema.ColorCursor:
		return defaultCursor
	case schema.ColorPalette:
		return paletteColor(index)
	default:
		return defaultForeground
	}
}

func (v emulatorView) modeState(mode int) schema.ModeState {
	if v.emu != nil {
		if state := v.emu.ModeState(mode); state != schema.ModeUnknown {
			return state
		}
	}
	return defaultModeState(mode)
}

func (v emulatorView) keyboardFlags() int {
	if v.emu == nil {
		return 0
	}
	flags := v.emu.KeyboardFlags()
	if flags < 0 {
		return 0
	}
	return flags
}

func (v emulatorView) geometry() schema.Geometry {
	g := schema.Geometry{}
	if v.emu != nil {
		g = v.emu.Geometry()
	}
	d := defaultGeometry
	if g.Cols <= 0 {
		g.Cols = d.Cols
	}
	if g.Rows <= 0 {
		g.Rows = d.Rows
	}
	if g.CellWidth <= 0 {
		g.CellWidth = d.CellWidth
	}
	if g.CellHeight <= 0 {
		g.CellHeight = d.CellHeight
	}
	if g.WidthPx <= 0 {
		g.WidthPx = g.Cols * g.CellWidth
	}
	if g.HeightPx <= 0 {
		g.HeightPx = g.Rows * g.CellHeight
	}
	return g
}
