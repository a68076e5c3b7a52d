// Package gesture implements the EventProcessor (spec §4.2): a
// single-threaded recognizer that distills InputEvents into ProcessedEvents
// (velocity tiers, long-press, double-tap, chord, encoder direction). It is
// grounded on the teacher's sequencer/manager.go midiOutputLoop, which
// services a single goroutine via select{stopChan, timer.C} to avoid
// blocking on either source — generalized here into a min-heap of deadlines
// because multiple overlapping long-press timers must be tracked at once.
package gesture

import (
	"context"
	"time"

	"conductor/debug"
	"conductor/event"
)

// Thresholds holds the advanced timing settings from the mapping table
// (spec §3.3): chord window, double-tap window, hold threshold. All are
// documented as configurable with the listed defaults.
type Thresholds struct {
	ChordWindow    time.Duration
	DoubleTapWindow time.Duration
	HoldThreshold  time.Duration
}

// DefaultThresholds matches spec §3.3's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ChordWindow:     50 * time.Millisecond,
		DoubleTapWindow: 300 * time.Millisecond,
		HoldThreshold:   2000 * time.Millisecond,
	}
}

// pressState is the per-id transient state the processor owns exclusively
// (spec §3.5 — single-threaded, no locking needed).
type pressState struct {
	active         bool
	generation     uint64
	pressTime      time.Time
	velocity       uint8
	consumed       bool // a higher-order gesture has already claimed this press; no Tap at release
	longPressFired bool
	inChordBuffer  bool
}

// chordBuffer accumulates overlapping presses within the chord window
// (spec §4.2).
type chordBuffer struct {
	open     bool
	ids      []event.Id
	deadline time.Time
}

// Processor is the EventProcessor. It is not safe for concurrent use — it is
// designed to be driven by exactly one goroutine (Run), matching spec §4.2's
// "strictly single-threaded" requirement.
type Processor struct {
	thresholds Thresholds

	presses map[event.Id]*pressState
	chord   chordBuffer

	lastRelease map[event.Id]time.Time
	lastEncoder map[event.Id]uint8
	sawEncoder  map[event.Id]bool

	deadlines deadlineQueue
	nextGen   uint64
}

// NewProcessor creates a processor with the given thresholds.
func NewProcessor(t Thresholds) *Processor {
	return &Processor{
		thresholds:  t,
		presses:     make(map[event.Id]*pressState),
		lastRelease: make(map[event.Id]time.Time),
		lastEncoder: make(map[event.Id]uint8),
		sawEncoder:  make(map[event.Id]bool),
	}
}

// SetThresholds updates the active thresholds (e.g. after a hot-reload).
// In-flight gesture state (open chord buffer, pending deadlines, last-press
// bookkeeping) is preserved — only future scheduling decisions use the new
// values, matching spec §4.5's "preserving in-flight gesture state where
// possible".
func (p *Processor) SetThresholds(t Thresholds) {
	p.thresholds = t
}

// Run drives the processor from in until ctx is cancelled, emitting onto
// out. It waits on min(channel recv, next deadline) exactly as spec §4.2
// requires, never blocking on one at the expense of the other.
func (p *Processor) Run(ctx context.Context, in <-chan event.InputEvent, out chan<- event.ProcessedEvent) {
	for {
		var timer *time.Timer
		if d, ok := peekDeadline(p.deadlines); ok {
			wait := time.Until(d)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-in:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return
			}
			for _, pe := range p.handleInput(ev) {
				out <- pe
			}

		case now := <-timerC:
			for _, pe := range p.fireDueDeadlines(now) {
				out <- pe
			}
		}
	}
}

// handleInput processes one InputEvent and returns zero or more
// ProcessedEvents (almost always zero or one, except a release that closes
// a multi-member chord can also carry that chord's own emission plus this
// id's Tap-suppression bookkeeping).
func (p *Processor) handleInput(ev event.InputEvent) []event.ProcessedEvent {
	switch ev.Kind {
	case event.KindPadPressed:
		return p.handlePress(ev.Id, ev.Velocity, ev.Time)
	case event.KindPadReleased:
		return p.handleRelease(ev.Id, ev.Time)
	case event.KindEncoderTurned:
		return p.handleEncoder(ev.Id, ev.Value, ev.Time)
	case event.KindAftertouch:
		return []event.ProcessedEvent{{Kind: event.KindPassAftertouch, Pressure: ev.Pressure, Time: ev.Time}}
	case event.KindPitchBend:
		return []event.ProcessedEvent{{Kind: event.KindPassPitchBend, Bend: ev.Bend, Time: ev.Time}}
	case event.KindProgramChange:
		return []event.ProcessedEvent{{Kind: event.KindPassProgramChange, Program: ev.Program, Time: ev.Time}}
	default:
		return nil
	}
}

func (p *Processor) handlePress(id event.Id, velocity uint8, now time.Time) []event.ProcessedEvent {
	p.nextGen++
	gen := p.nextGen

	ps := &pressState{active: true, generation: gen, pressTime: now, velocity: velocity}
	p.presses[id] = ps

	var out []event.ProcessedEvent

	// Chord coalescing (spec §4.2; window=0 disables chord detection per §9
	// boundary behaviors).
	if p.thresholds.ChordWindow > 0 {
		if p.chord.open && !now.After(p.chord.deadline) {
			p.chord.ids = append(p.chord.ids, id)
			p.chord.deadline = now.Add(p.thresholds.ChordWindow)
			ps.inChordBuffer = true
		} else {
			out = append(out, p.closeChordBuffer(now)...)
			p.chord = chordBuffer{open: true, ids: []event.Id{id}, deadline: now.Add(p.thresholds.ChordWindow)}
			ps.inChordBuffer = true
		}
		schedule(&p.deadlines, chordCloseId, 0, p.chord.deadline)
	}

	// Long-press scheduling (hold threshold = 0 fires immediately, per §9
	// boundary behaviors).
	deadline := now.Add(p.thresholds.HoldThreshold)
	schedule(&p.deadlines, id, gen, deadline)
	if p.thresholds.HoldThreshold <= 0 {
		out = append(out, p.fireDueDeadlines(now.Add(time.Nanosecond))...)
	}

	return out
}

// chordCloseId is a sentinel id (outside both protocol ranges) used to
// schedule the chord buffer's own close deadline in the same heap as
// per-id long-press deadlines.
const chordCloseId event.Id = 0xFFFF

func (p *Processor) handleRelease(id event.Id, now time.Time) []event.ProcessedEvent {
	ps, ok := p.presses[id]
	if !ok {
		return nil
	}

	var out []event.ProcessedEvent

	doubleTap := p.checkDoubleTap(id, now)

	// A release always closes the chord buffer if this id is a member,
	// regardless of how the recognized gesture for this id's own Tap is
	// eventually decided (spec §4.2: "the buffer closes when ... any
	// release arrives"). spec.md's tie-break order ranks DoubleTap above
	// ChordDetected, so a release that wins DoubleTap is excluded from the
	// closing group rather than folded into a ChordDetected alongside it.
	if p.chord.open && containsId(p.chord.ids, id) {
		if doubleTap {
			out = append(out, p.closeChordBufferExcept(now, id)...)
		} else {
			out = append(out, p.closeChordBuffer(now)...)
		}
	}
	delete(p.presses, id)

	switch {
	case doubleTap:
		out = append(out, event.ProcessedEvent{Kind: event.KindDoubleTap, Id: id, Time: now})
	case ps.consumed:
		// Already claimed by ChordDetected or LongPress; no Tap.
	default:
		out = append(out, event.ProcessedEvent{
			Kind:     event.KindTap,
			Id:       id,
			Velocity: ps.velocity,
			Tier:     event.ClassifyVelocity(ps.velocity),
			Time:     now,
		})
	}

	return out
}

// checkDoubleTap implements spec §4.2's double-tap rule and §8.4's
// non-overlap invariant: consuming last_release_time on a match prevents a
// third rapid release from pairing with the second.
func (p *Processor) checkDoubleTap(id event.Id, now time.Time) bool {
	last, ok := p.lastRelease[id]
	if ok && p.thresholds.DoubleTapWindow > 0 && now.Sub(last) <= p.thresholds.DoubleTapWindow {
		delete(p.lastRelease, id)
		return true
	}
	p.lastRelease[id] = now
	return false
}

// closeChordBuffer evaluates the currently open chord buffer (if any) and
// returns a ChordDetected event when it had 2+ members. Member press states
// are marked consumed so their eventual release does not also emit a Tap.
func (p *Processor) closeChordBuffer(now time.Time) []event.ProcessedEvent {
	return p.closeChordBufferExcept(now, chordCloseId)
}

// closeChordBufferExcept is closeChordBuffer with one id removed from the
// closing group before the 2+ member check — used when that id's release
// is claimed by a higher-precedence DoubleTap, so it is not also folded
// into a ChordDetected for the remaining members (spec.md's tie-break
// order: DoubleTap > ChordDetected > LongPress > Tap). chordCloseId itself
// is never a real member, so passing it excludes nothing.
func (p *Processor) closeChordBufferExcept(now time.Time, except event.Id) []event.ProcessedEvent {
	if !p.chord.open {
		return nil
	}
	ids := p.chord.ids
	p.chord = chordBuffer{}

	var remaining []event.Id
	for _, id := range ids {
		if id != except {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) < 2 {
		return nil
	}

	for _, id := range remaining {
		if ps, ok := p.presses[id]; ok {
			ps.consumed = true
		}
	}

	debug.Log(debug.Gesture, "chord detected ids=%v", remaining)
	return []event.ProcessedEvent{{Kind: event.KindChordDetected, Ids: event.SortedIds(remaining), Time: now}}
}

func (p *Processor) handleEncoder(id event.Id, value uint8, now time.Time) []event.ProcessedEvent {
	const neutral = 64

	last, seen := p.lastEncoder[id]
	p.lastEncoder[id] = value

	var dir event.Direction
	switch {
	case !seen:
		// Bootstrap rule (spec §4.2): first event after startup compares
		// against the neutral midpoint.
		if value >= neutral {
			dir = event.CW
		} else {
			dir = event.CCW
		}
	case value == last:
		return nil
	case value > last:
		dir = event.CW
	default:
		dir = event.CCW
	}
	p.sawEncoder[id] = true

	return []event.ProcessedEvent{{Kind: event.KindEncoderDelta, Id: id, Direction: dir, Value: value, Time: now}}
}

// fireDueDeadlines pops and fires every scheduled deadline at or before now.
func (p *Processor) fireDueDeadlines(now time.Time) []event.ProcessedEvent {
	var out []event.ProcessedEvent
	for {
		entry, ok := popReady(&p.deadlines, now)
		if !ok {
			return out
		}
		if entry.id == chordCloseId {
			// A close entry scheduled before a later press extended the
			// buffer's deadline is stale; the later entry closes it.
			if p.chord.open && now.Before(p.chord.deadline) {
				continue
			}
			out = append(out, p.closeChordBuffer(now)...)
			continue
		}

		ps, live := p.presses[entry.id]
		if !live || ps.generation != entry.generation || !ps.active {
			continue // stale: released or superseded since scheduling
		}
		if ps.consumed || ps.longPressFired {
			continue
		}

		ps.longPressFired = true
		ps.consumed = true
		durationMs := now.Sub(ps.pressTime).Milliseconds()
		debug.Log(debug.Gesture, "long-press id=%d duration_ms=%d", entry.id, durationMs)
		out = append(out, event.ProcessedEvent{Kind: event.KindLongPress, Id: entry.id, DurationMs: durationMs, Time: now})
	}
}

func containsId(ids []event.Id, id event.Id) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
