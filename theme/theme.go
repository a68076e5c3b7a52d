// Package theme supplies conductorctl's palette-based colors and resolves
// mode display colors (spec §3.3 modes[].color, §6.1). It keeps the teacher's GPL-palette-backed RGB
// interpolation (palette.go) and reuses its nearest-palette-distance idea —
// previously specialized to Launchpad pad coloring — generalized here to
// snap an arbitrary hex color from configuration onto the active palette
// for terminal display.
package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Theme wraps a loaded Palette with role-based color helpers for the
// conductorctl TUI.
type Theme struct {
	Palette *Palette
}

// New builds a Theme around an already-loaded palette.
func New(palette *Palette) *Theme {
	return &Theme{Palette: palette}
}

// DefaultPalette returns a small built-in gradient for callers (conductorctl)
// that don't ship a GIMP .gpl asset alongside the binary.
func DefaultPalette() *Palette {
	return &Palette{
		Name: "conductor-default",
		Colors: []RGB{
			{0x1a, 0x1b, 0x26}, // bg
			{0x41, 0x4b, 0x63}, // muted
			{0x7a, 0xa2, 0xf7}, // fg
			{0xbb, 0x9a, 0xf7}, // accent
			{0x9e, 0xce, 0x6a}, // active
			{0xe0, 0xaf, 0x68}, // warning
			{0xf7, 0x76, 0x8e}, // success (Role 1.0, the last entry)
		},
	}
}

// Color roles mapped to palette positions (0-1).
const (
	RoleBG      = 0.0
	RoleSurface = 0.1
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleCursor  = 0.6
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) BG() lipgloss.Color      { return rgbToLipgloss(t.Palette.Lookup(RoleBG)) }
func (t *Theme) FG() lipgloss.Color      { return rgbToLipgloss(t.Palette.Lookup(RoleFG)) }
func (t *Theme) Accent() lipgloss.Color  { return rgbToLipgloss(t.Palette.Lookup(RoleAccent)) }
func (t *Theme) Muted() lipgloss.Color   { return rgbToLipgloss(t.Palette.Lookup(RoleMuted)) }
func (t *Theme) Active() lipgloss.Color  { return rgbToLipgloss(t.Palette.Lookup(RoleActive)) }
func (t *Theme) Cursor() lipgloss.Color  { return rgbToLipgloss(t.Palette.Lookup(RoleCursor)) }
func (t *Theme) Warning() lipgloss.Color { return rgbToLipgloss(t.Palette.Lookup(RoleWarning)) }
func (t *Theme) Success() lipgloss.Color { return rgbToLipgloss(t.Palette.Lookup(RoleSuccess)) }

// Color returns the lipgloss color for any normalized palette position 0-1.
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

// ResolveModeColor parses a mode's configured hex color (spec §3.3) and
// snaps it to the nearest color actually present in the active palette, so
// the result stays within the loaded theme's gamut instead of being an
// arbitrary RGB triple. conductorctl does not call it: its status view
// shows the current mode's name without a color.
func (t *Theme) ResolveModeColor(hex string) (lipgloss.Color, error) {
	if hex == "" {
		return t.Muted(), nil
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", fmt.Errorf("parse mode color %q: %w", hex, err)
	}
	target := RGB{
		uint8(clamp01(c.R) * 255),
		uint8(clamp01(c.G) * 255),
		uint8(clamp01(c.B) * 255),
	}
	return rgbToLipgloss(nearestPaletteColor(t.Palette, target)), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// nearestPaletteColor returns the palette entry with the smallest squared
// RGB distance to target.
func nearestPaletteColor(p *Palette, target RGB) RGB {
	best := p.Colors[0]
	bestDist := colorDistance(best, target)
	for _, c := range p.Colors[1:] {
		if d := colorDistance(c, target); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func colorDistance(a, b RGB) int {
	dr := int(a[0]) - int(b[0])
	dg := int(a[1]) - int(b[1])
	db := int(a[2]) - int(b[2])
	return dr*dr + dg*dg + db*db
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
