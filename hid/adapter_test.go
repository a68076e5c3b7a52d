package hid

import "testing"

func TestNormalizeAxis(t *testing.T) {
	if got := normalizeAxis(-32768); got != 0 {
		t.Fatalf("min axis should normalize to 0, got %d", got)
	}
	if got := normalizeAxis(32767); got < 126 {
		t.Fatalf("max axis should normalize near 127, got %d", got)
	}
	mid := normalizeAxis(0)
	if mid < 62 || mid > 66 {
		t.Fatalf("center axis should normalize near 64, got %d", mid)
	}
}

func TestAbsFloat(t *testing.T) {
	if absFloat(-1.5) != 1.5 || absFloat(1.5) != 1.5 {
		t.Fatalf("absFloat wrong")
	}
}
