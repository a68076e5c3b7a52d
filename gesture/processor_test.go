package gesture

import (
	"testing"
	"time"

	"conductor/event"
)

func at(ms int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
}

// S1 — velocity-tiered Tap.
func TestTapEmittedAtRelease(t *testing.T) {
	p := NewProcessor(DefaultThresholds())

	got := p.handlePress(60, 65, at(0))
	if len(got) != 0 {
		t.Fatalf("press alone should not emit yet, got %v", got)
	}

	got = p.handleRelease(60, at(80))
	if len(got) != 1 || got[0].Kind != event.KindTap {
		t.Fatalf("expected one Tap, got %v", got)
	}
	if got[0].Tier != event.TierMedium {
		t.Fatalf("velocity 65 should classify Medium, got %v", got[0].Tier)
	}
}

// S2 — long-press suppresses Tap.
func TestLongPressSuppressesTap(t *testing.T) {
	p := NewProcessor(DefaultThresholds())

	p.handlePress(0, 100, at(0))
	fired := p.fireDueDeadlines(at(2000))
	if len(fired) != 1 || fired[0].Kind != event.KindLongPress {
		t.Fatalf("expected LongPress at deadline, got %v", fired)
	}
	if fired[0].DurationMs != 2000 {
		t.Fatalf("expected duration 2000ms, got %d", fired[0].DurationMs)
	}

	released := p.handleRelease(0, at(2100))
	if len(released) != 0 {
		t.Fatalf("expected no Tap after LongPress, got %v", released)
	}
}

// S3 — double-tap wins over Tap.
func TestDoubleTapSuppressesTap(t *testing.T) {
	p := NewProcessor(DefaultThresholds())

	p.handlePress(48, 100, at(0))
	first := p.handleRelease(48, at(40))
	if len(first) != 1 || first[0].Kind != event.KindTap {
		t.Fatalf("first release should Tap, got %v", first)
	}

	p.handlePress(48, 100, at(200))
	second := p.handleRelease(48, at(240))
	if len(second) != 1 || second[0].Kind != event.KindDoubleTap {
		t.Fatalf("second release should DoubleTap, got %v", second)
	}
}

// Invariant 4: two successive DoubleTaps can't share a release.
func TestDoubleTapNonOverlap(t *testing.T) {
	p := NewProcessor(DefaultThresholds())

	p.handlePress(10, 100, at(0))
	p.handleRelease(10, at(10)) // release A -> Tap, records lastRelease

	p.handlePress(10, 100, at(50))
	second := p.handleRelease(10, at(60)) // release B within window of A -> DoubleTap(A,B), clears lastRelease
	if len(second) != 1 || second[0].Kind != event.KindDoubleTap {
		t.Fatalf("expected DoubleTap, got %v", second)
	}

	p.handlePress(10, 100, at(100))
	third := p.handleRelease(10, at(110)) // release C: lastRelease was cleared, so this is a fresh Tap, not a DoubleTap with B
	if len(third) != 1 || third[0].Kind != event.KindTap {
		t.Fatalf("release C should not pair with release B again, got %v", third)
	}
}

// S4 — chord over individual taps.
func TestChordSuppressesIndividualTaps(t *testing.T) {
	p := NewProcessor(DefaultThresholds())

	p.handlePress(36, 100, at(0))
	p.handlePress(37, 100, at(20))
	p.handlePress(38, 100, at(40))

	r1 := p.handleRelease(36, at(100))
	if len(r1) != 1 || r1[0].Kind != event.KindChordDetected {
		t.Fatalf("first release should close the chord, got %v", r1)
	}
	ids := r1[0].Ids
	if len(ids) != 3 || ids[0] != 36 || ids[1] != 37 || ids[2] != 38 {
		t.Fatalf("expected sorted {36,37,38}, got %v", ids)
	}

	r2 := p.handleRelease(37, at(101))
	if len(r2) != 0 {
		t.Fatalf("second release should not re-emit chord or Tap, got %v", r2)
	}
	r3 := p.handleRelease(38, at(102))
	if len(r3) != 0 {
		t.Fatalf("third release should not emit Tap, got %v", r3)
	}
}

func TestChordWindowZeroDisablesChording(t *testing.T) {
	th := DefaultThresholds()
	th.ChordWindow = 0
	p := NewProcessor(th)

	p.handlePress(36, 100, at(0))
	p.handlePress(37, 100, at(10))

	r1 := p.handleRelease(36, at(20))
	if len(r1) != 1 || r1[0].Kind != event.KindTap {
		t.Fatalf("chord window 0 should isolate presses into Taps, got %v", r1)
	}
}

func TestHoldThresholdZeroFiresImmediately(t *testing.T) {
	th := DefaultThresholds()
	th.HoldThreshold = 0
	p := NewProcessor(th)

	got := p.handlePress(5, 100, at(0))
	if len(got) != 1 || got[0].Kind != event.KindLongPress {
		t.Fatalf("hold threshold 0 should fire LongPress immediately, got %v", got)
	}
}

// S5 — encoder direction, with the bootstrap rule relative to neutral 64.
func TestEncoderDirectionBootstrap(t *testing.T) {
	p := NewProcessor(DefaultThresholds())

	got := p.handleEncoder(1, 70, at(0))
	if len(got) != 1 || got[0].Direction != event.CW {
		t.Fatalf("first event >= 64 should bootstrap CW, got %v", got)
	}

	got = p.handleEncoder(1, 60, at(10))
	if len(got) != 1 || got[0].Direction != event.CCW {
		t.Fatalf("decreasing value should be CCW, got %v", got)
	}
}

// A release that wins DoubleTap must not also surface a ChordDetected for
// the same id — spec.md's tie-break order ranks DoubleTap above
// ChordDetected, and the remaining chord member falls back to its own Tap
// once the chord it belonged to dissolves to a single id.
func TestDoubleTapOutranksChordOnSameRelease(t *testing.T) {
	p := NewProcessor(DefaultThresholds())

	// An initial chord between 20 and 21; releasing 20 first closes it and
	// records lastRelease[20].
	p.handlePress(20, 100, at(0))
	p.handlePress(21, 100, at(5))
	first := p.handleRelease(20, at(10))
	if len(first) != 1 || first[0].Kind != event.KindChordDetected {
		t.Fatalf("first release should close the initial chord, got %v", first)
	}
	p.handleRelease(21, at(11))

	// 20 is pressed again alongside a fresh id 22, forming a new chord, then
	// released within the double-tap window of its previous release.
	p.handlePress(20, 100, at(20))
	p.handlePress(22, 100, at(25))
	second := p.handleRelease(20, at(30))

	if len(second) != 1 || second[0].Kind != event.KindDoubleTap {
		t.Fatalf("expected only DoubleTap on this release, got %v", second)
	}

	third := p.handleRelease(22, at(40))
	if len(third) != 1 || third[0].Kind != event.KindTap {
		t.Fatalf("the remaining chord member should fall back to its own Tap, got %v", third)
	}
}

func TestReleaseWithoutPressIsNoop(t *testing.T) {
	// The MIDI adapter is responsible for converting velocity=0 note-on into
	// PadReleased (spec boundary behaviors); the processor only ever sees a
	// real PadPressed with velocity>0, so there is nothing to special-case
	// here. This test documents that a press is always required before a
	// release has any effect.
	p := NewProcessor(DefaultThresholds())
	got := p.handleRelease(99, at(0))
	if len(got) != 0 {
		t.Fatalf("a release with no prior press should be a no-op, got %v", got)
	}
}
