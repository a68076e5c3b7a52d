package event

import (
	"testing"
	"time"
)

func TestBusPreservesOrderWithinCapacity(t *testing.T) {
	b := NewBus(4)
	for i := 0; i < 4; i++ {
		b.Push(SourceMidi, InputEvent{Kind: KindPadPressed, Id: Id(i)})
	}
	for i := 0; i < 4; i++ {
		got := <-b.Events()
		if got.Id != Id(i) {
			t.Fatalf("event %d: id = %d, want %d", i, got.Id, i)
		}
	}
	if midi, hid := b.Drops(); midi != 0 || hid != 0 {
		t.Fatalf("expected no drops within capacity, got midi=%d hid=%d", midi, hid)
	}
}

// If the consumer drains a slot before dropGrace elapses, Push must use it
// rather than drop anything (spec.md:103's grace period).
func TestBusGracePeriodAvoidsDropWhenConsumerKeepsUp(t *testing.T) {
	b := NewBus(1)
	b.Push(SourceMidi, InputEvent{Kind: KindPadPressed, Id: 1})

	go func() {
		time.Sleep(dropGrace / 4)
		<-b.Events()
	}()

	b.Push(SourceMidi, InputEvent{Kind: KindPadPressed, Id: 2})

	if midi, _ := b.Drops(); midi != 0 {
		t.Fatalf("expected no drop when the consumer frees a slot within the grace period, got %d", midi)
	}
}

// Past dropGrace with no consumer, Push falls back to dropping the oldest
// buffered event and records it against the pushing source.
func TestBusDropsOldestPastGracePeriod(t *testing.T) {
	b := NewBus(1)
	b.Push(SourceMidi, InputEvent{Kind: KindPadPressed, Id: 1})
	b.Push(SourceHid, InputEvent{Kind: KindPadPressed, Id: 2})

	got := <-b.Events()
	if got.Id != 2 {
		t.Fatalf("expected the newer event to survive, got id=%d", got.Id)
	}
	midi, hid := b.Drops()
	if midi != 0 || hid != 1 {
		t.Fatalf("expected the drop charged to the source that pushed into the full bus (hid), got midi=%d hid=%d", midi, hid)
	}
}
