package theme

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePalette = `GIMP Palette
Name: test-gradient
Columns: 0
#
 26  27  38	Background
247 118 142	Hot
`

func writeTempPalette(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.gpl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp palette: %v", err)
	}
	return path
}

func TestLoadGPLParsesNameAndColors(t *testing.T) {
	path := writeTempPalette(t, samplePalette)

	p, err := LoadGPL(path)
	if err != nil {
		t.Fatalf("LoadGPL: %v", err)
	}
	if p.Name != "test-gradient" {
		t.Fatalf("expected name test-gradient, got %q", p.Name)
	}
	if len(p.Colors) != 2 {
		t.Fatalf("expected 2 colors, got %d", len(p.Colors))
	}
	if p.Colors[0] != (RGB{26, 27, 38}) {
		t.Fatalf("unexpected first color: %v", p.Colors[0])
	}
	if p.Colors[1] != (RGB{247, 118, 142}) {
		t.Fatalf("unexpected second color: %v", p.Colors[1])
	}
}

func TestLoadGPLMissingFile(t *testing.T) {
	if _, err := LoadGPL(filepath.Join(t.TempDir(), "missing.gpl")); err == nil {
		t.Fatal("expected an error for a missing palette file")
	}
}

func TestLoadGPLNoColors(t *testing.T) {
	path := writeTempPalette(t, "GIMP Palette\nName: empty\nColumns: 0\n#\n")
	if _, err := LoadGPL(path); err == nil {
		t.Fatal("expected an error for a palette with no colors")
	}
}

func TestPaletteLookupInterpolates(t *testing.T) {
	p := &Palette{Name: "two-stop", Colors: []RGB{{0, 0, 0}, {100, 100, 100}}}

	if got := p.Lookup(0); got != (RGB{0, 0, 0}) {
		t.Fatalf("Lookup(0) = %v", got)
	}
	if got := p.Lookup(1); got != (RGB{100, 100, 100}) {
		t.Fatalf("Lookup(1) = %v", got)
	}
	if got := p.Lookup(0.5); got != (RGB{50, 50, 50}) {
		t.Fatalf("Lookup(0.5) = %v", got)
	}
}
