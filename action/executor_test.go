package action

import (
	"sync"
	"testing"
	"time"

	"conductor/mapping"
)

type recordingInjector struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInjector) PressKey(keys []string, modifiers []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "press:"+keys[0])
	return nil
}
func (r *recordingInjector) TypeText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "text:"+text)
	return nil
}
func (r *recordingInjector) Click(button string, hasCoords bool, x, y int) error { return nil }

func (r *recordingInjector) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

type fakeModeChanger struct {
	last mapping.ModeChangeTarget
}

func (f *fakeModeChanger) ChangeMode(target mapping.ModeChangeTarget, name string, index int, relative bool) error {
	f.last = target
	return nil
}

func newTestExecutor(inj *recordingInjector, modes ModeChanger) *Executor {
	return NewExecutor(2, inj, NoopVolume{}, NoopProcesses{}, nil, modes, func() string { return "default" })
}

func TestSequenceRunsStepsInOrderAndAbortsOnError(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestExecutor(inj, nil)

	seq := mapping.Action{Kind: mapping.ActionSequence, Steps: []mapping.Action{
		{Kind: mapping.ActionKeystroke, Keys: []string{"a"}},
		{Kind: mapping.ActionShell, Program: "/nonexistent/binary/that/should/not/exist"},
		{Kind: mapping.ActionKeystroke, Keys: []string{"b"}},
	}}

	err := e.execute(seq)
	if err == nil {
		t.Fatalf("expected sequence to report the middle step's failure")
	}
	calls := inj.snapshot()
	if len(calls) != 1 || calls[0] != "press:a" {
		t.Fatalf("expected only the first step to run before the abort, got %v", calls)
	}
}

func TestRepeatCountZeroIsNoop(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestExecutor(inj, nil)

	err := e.execute(mapping.Action{
		Kind:         mapping.ActionRepeat,
		RepeatCount:  0,
		RepeatAction: &mapping.Action{Kind: mapping.ActionKeystroke, Keys: []string{"x"}},
	})
	if err != nil {
		t.Fatalf("repeat count=0 should be a no-op, got err=%v", err)
	}
	if len(inj.snapshot()) != 0 {
		t.Fatalf("repeat count=0 should not invoke the child action")
	}
}

func TestRepeatCountThreeInvokesThreeTimes(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestExecutor(inj, nil)

	err := e.execute(mapping.Action{
		Kind:          mapping.ActionRepeat,
		RepeatCount:   3,
		RepeatDelayMs: 0,
		RepeatAction:  &mapping.Action{Kind: mapping.ActionKeystroke, Keys: []string{"x"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inj.snapshot()) != 3 {
		t.Fatalf("expected 3 invocations, got %v", inj.snapshot())
	}
}

func TestConditionalTakesThenOrElse(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestExecutor(inj, nil)

	always := mapping.Action{
		Kind:       mapping.ActionConditional,
		Condition:  mapping.Condition{Kind: mapping.ConditionAlways},
		ThenAction: &mapping.Action{Kind: mapping.ActionKeystroke, Keys: []string{"then"}},
		ElseAction: &mapping.Action{Kind: mapping.ActionKeystroke, Keys: []string{"else"}},
	}
	if err := e.execute(always); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	never := mapping.Action{
		Kind:       mapping.ActionConditional,
		Condition:  mapping.Condition{Kind: mapping.ConditionNever},
		ThenAction: &mapping.Action{Kind: mapping.ActionKeystroke, Keys: []string{"then"}},
		ElseAction: &mapping.Action{Kind: mapping.ActionKeystroke, Keys: []string{"else"}},
	}
	if err := e.execute(never); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := inj.snapshot()
	if len(calls) != 2 || calls[0] != "press:then" || calls[1] != "press:else" {
		t.Fatalf("expected then then else, got %v", calls)
	}
}

func TestConditionalAndOrNotShortCircuit(t *testing.T) {
	e := newTestExecutor(&recordingInjector{}, nil)

	and := mapping.Condition{Kind: mapping.ConditionAnd, Operands: []mapping.Condition{
		{Kind: mapping.ConditionAlways}, {Kind: mapping.ConditionNever},
	}}
	if e.evalCondition(and) {
		t.Fatalf("And with a Never operand should be false")
	}

	or := mapping.Condition{Kind: mapping.ConditionOr, Operands: []mapping.Condition{
		{Kind: mapping.ConditionNever}, {Kind: mapping.ConditionAlways},
	}}
	if !e.evalCondition(or) {
		t.Fatalf("Or with an Always operand should be true")
	}

	notAlways := mapping.ConditionAlways
	never := mapping.Condition{Kind: mapping.ConditionNot, Operand: &mapping.Condition{Kind: notAlways}}
	if e.evalCondition(never) {
		t.Fatalf("Not(Always) should be false")
	}
}

func TestTimeRangeCrossesMidnight(t *testing.T) {
	e := newTestExecutor(&recordingInjector{}, nil)
	e.now = func() time.Time {
		return time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	}
	inRange := e.evalTimeRange(22*time.Hour, 6*time.Hour)
	if !inRange {
		t.Fatalf("23:30 should fall within a 22:00-06:00 wrapping range")
	}

	e.now = func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	if e.evalTimeRange(22*time.Hour, 6*time.Hour) {
		t.Fatalf("noon should fall outside a 22:00-06:00 wrapping range")
	}
}

func TestModeChangeDispatchesToChanger(t *testing.T) {
	changer := &fakeModeChanger{}
	e := newTestExecutor(&recordingInjector{}, changer)

	err := e.execute(mapping.Action{Kind: mapping.ActionModeChange, ModeTarget: mapping.ModeTargetNext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changer.last != mapping.ModeTargetNext {
		t.Fatalf("expected ChangeMode called with Next target")
	}
}

func TestModeChangeWithoutWiredChangerFails(t *testing.T) {
	e := newTestExecutor(&recordingInjector{}, nil)
	err := e.execute(mapping.Action{Kind: mapping.ActionModeChange, ModeTarget: mapping.ModeTargetNext})
	if err == nil {
		t.Fatalf("expected an error when no ModeChanger is wired")
	}
}

func TestFailureCountersTrackByActionKind(t *testing.T) {
	e := newTestExecutor(&recordingInjector{}, nil)
	e.runTop(mapping.CompiledAction{Action: mapping.Action{Kind: mapping.ActionModeChange, ModeTarget: mapping.ModeTargetNext}})
	e.runTop(mapping.CompiledAction{Action: mapping.Action{Kind: mapping.ActionModeChange, ModeTarget: mapping.ModeTargetNext}})

	failures := e.Failures()
	if failures[mapping.ActionModeChange] != 2 {
		t.Fatalf("expected 2 recorded failures, got %v", failures)
	}
}

func TestOnOutcomeCallbackReceivesResult(t *testing.T) {
	e := newTestExecutor(&recordingInjector{}, &fakeModeChanger{})
	var got Outcome
	e.OnOutcome(func(o Outcome) { got = o })

	e.runTop(mapping.CompiledAction{Action: mapping.Action{Kind: mapping.ActionModeChange, ModeTarget: mapping.ModeTargetNext}})

	if got.Kind != mapping.ActionModeChange || got.Err != nil {
		t.Fatalf("expected a successful ModeChange outcome, got %+v", got)
	}
}
