package control

import (
	"testing"
	"time"

	"conductor/action"
	"conductor/event"
	"conductor/mapping"
)

func testExecutor() *action.Executor {
	e := action.NewExecutor(2, nil, nil, nil, nil, nil, nil)
	e.Start()
	return e
}

func twoModeConfig() mapping.ParsedConfig {
	return mapping.ParsedConfig{
		Modes: []mapping.Mode{
			{Name: "a"},
			{Name: "b"},
		},
	}
}

func TestReloadSwapsSnapshotOnSuccess(t *testing.T) {
	c := NewController(testExecutor())

	result := c.Reload(twoModeConfig())
	if !result.Success {
		t.Fatalf("expected successful reload, got errors %v", result.Errors)
	}
	if c.Snapshot() == nil || c.Snapshot().ModeCount() != 2 {
		t.Fatalf("expected a 2-mode snapshot to be active")
	}
}

func TestReloadKeepsPreviousSnapshotOnFailure(t *testing.T) {
	c := NewController(testExecutor())
	c.Reload(twoModeConfig())
	original := c.Snapshot()

	bad := mapping.ParsedConfig{} // zero modes -> compile error
	result := c.Reload(bad)
	if result.Success {
		t.Fatalf("expected reload failure for zero-mode config")
	}
	if c.Snapshot() != original {
		t.Fatalf("a failed reload must not replace the active snapshot")
	}
}

func TestChangeModeNextPrevWrap(t *testing.T) {
	c := NewController(testExecutor())
	c.Reload(twoModeConfig())

	if err := c.ChangeMode(mapping.ModeTargetNext, "", 0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ModeIndex() != 1 {
		t.Fatalf("expected mode index 1, got %d", c.ModeIndex())
	}
	if err := c.ChangeMode(mapping.ModeTargetNext, "", 0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ModeIndex() != 0 {
		t.Fatalf("Next should wrap from last mode back to 0, got %d", c.ModeIndex())
	}

	if err := c.ChangeMode(mapping.ModeTargetPrev, "", 0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ModeIndex() != 1 {
		t.Fatalf("Prev should wrap from 0 back to the last mode, got %d", c.ModeIndex())
	}
}

func TestChangeModeNextThenPrevIsNoop(t *testing.T) {
	c := NewController(testExecutor())
	c.Reload(twoModeConfig())
	start := c.ModeIndex()

	c.ChangeMode(mapping.ModeTargetNext, "", 0, false)
	c.ChangeMode(mapping.ModeTargetPrev, "", 0, false)

	if c.ModeIndex() != start {
		t.Fatalf("Next then Prev should return to the starting mode, got %d want %d", c.ModeIndex(), start)
	}
}

func TestChangeModeNamedUnknownFails(t *testing.T) {
	c := NewController(testExecutor())
	c.Reload(twoModeConfig())

	if err := c.ChangeMode(mapping.ModeTargetNamed, "nonexistent", 0, false); err == nil {
		t.Fatalf("expected an error for an unresolved named target")
	}
}

func TestDispatchIsNoopWhenPaused(t *testing.T) {
	c := NewController(testExecutor())
	cfg := mapping.ParsedConfig{Modes: []mapping.Mode{{Name: "a", Mappings: []mapping.Mapping{
		{Trigger: mapping.Trigger{Kind: mapping.TriggerTap, Id: 1}, Action: mapping.Action{Kind: mapping.ActionKeystroke, Keys: []string{"x"}}},
	}}}}
	c.Reload(cfg)
	c.Pause()

	sub := c.Subscribe()
	c.Dispatch(event.ProcessedEvent{Kind: event.KindTap, Id: 1})

	select {
	case ev := <-sub:
		if ev.Kind != EventProcessed {
			t.Fatalf("expected only the Processed event to be emitted while paused, got %v", ev.Kind)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatalf("expected the Processed event to still be emitted even while paused")
	}

	select {
	case ev := <-sub:
		t.Fatalf("expected no action to be dispatched while paused, got event kind %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLearnCapturesFirstNonNoiseEvent(t *testing.T) {
	c := NewController(testExecutor())
	c.StartLearn(time.Second)

	if active, _ := c.LearnStatus(); !active {
		t.Fatalf("expected learn session to be active")
	}

	consumed := c.ObserveForLearn(event.InputEvent{Kind: event.KindAftertouch, Pressure: 10})
	if consumed {
		t.Fatalf("aftertouch should be treated as noise and not consumed")
	}

	consumed = c.ObserveForLearn(event.InputEvent{Kind: event.KindPadPressed, Id: 42, Velocity: 100})
	if !consumed {
		t.Fatalf("a PadPressed event should be captured")
	}

	result, ok := c.LearnResult()
	if !ok || result.Id != 42 {
		t.Fatalf("expected captured result id=42, got %+v ok=%v", result, ok)
	}

	if active, _ := c.LearnStatus(); active {
		t.Fatalf("learn session should be inactive after capture")
	}
}
