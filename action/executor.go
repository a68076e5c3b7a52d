package action

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync/atomic"
	"time"

	"conductor/debug"
	"conductor/mapping"
	"conductor/midi"
)

// sequenceGapDefault is the default inter-step delay Sequence inserts
// between non-Delay children (spec §4.4).
const sequenceGapDefault = 50 * time.Millisecond

// queueCapacity approximates spec §4.4's "unbounded queue fed by the
// engine" with a generously sized buffered channel; a real unbounded queue
// would still need a backstop under sustained overload, and a large bound
// is simpler than a growable ring buffer for the event rates this pipeline
// targets (<1 kHz, per spec §9).
const queueCapacity = 4096

// job is one unit of work the executor's workers pull from the queue.
type job struct {
	action mapping.CompiledAction
}

// Outcome reports one action's dispatch result for the control-plane event
// stream (spec §4.4, §6.3).
type Outcome struct {
	Kind mapping.ActionKind
	Err  error
	Time time.Time
}

// Executor is the ActionExecutor (spec §4.4). It owns no long-lived state
// beyond back-end handles (spec §3.5); each action invocation is otherwise
// stateless.
type Executor struct {
	queue chan job

	injector  KeyboardMouseInjector
	volume    VolumeBackend
	processes ProcessQueries
	midiOut   *midi.OutputBackend
	modes     ModeChanger

	currentModeName func() string
	now             func() time.Time

	failures [12]atomic.Uint64 // indexed by mapping.ActionKind

	onOutcome func(Outcome)

	workers int
	stop    chan struct{}
}

// NewExecutor builds an executor with the given worker count (clamped to a
// minimum of 2, per spec §4.4: "one for potentially-blocking composites,
// one for short primitive actions"). Back-ends default to no-op
// implementations if nil.
func NewExecutor(workers int, injector KeyboardMouseInjector, volume VolumeBackend, processes ProcessQueries, midiOut *midi.OutputBackend, modes ModeChanger, currentModeName func() string) *Executor {
	if workers < 2 {
		workers = 2
	}
	if injector == nil {
		injector = NoopInjector{}
	}
	if volume == nil {
		volume = NoopVolume{}
	}
	if processes == nil {
		processes = NoopProcesses{}
	}
	if currentModeName == nil {
		currentModeName = func() string { return "" }
	}

	return &Executor{
		queue:           make(chan job, queueCapacity),
		injector:        injector,
		volume:          volume,
		processes:       processes,
		midiOut:         midiOut,
		modes:           modes,
		currentModeName: currentModeName,
		now:             time.Now,
		workers:         workers,
		stop:            make(chan struct{}),
	}
}

// SetModeChanger wires the ModeChanger after construction, for callers whose
// ModeChanger also depends on the executor itself (the control package's
// Controller is both).
func (e *Executor) SetModeChanger(modes ModeChanger) { e.modes = modes }

// OnOutcome registers a callback invoked after every top-level action
// finishes (success or failure). Only one callback is supported; the
// control package wires this to its pub/sub event stream.
func (e *Executor) OnOutcome(fn func(Outcome)) { e.onOutcome = fn }

// Start launches the worker pool. It returns immediately; call Stop to
// drain and halt.
func (e *Executor) Start() {
	for i := 0; i < e.workers; i++ {
		go e.worker()
	}
}

// Stop signals workers to exit once the queue drains. It does not cancel
// actions already in flight (spec §5: "no cooperative cancellation of
// running actions").
func (e *Executor) Stop() { close(e.stop) }

func (e *Executor) worker() {
	for {
		select {
		case <-e.stop:
			return
		case j := <-e.queue:
			e.runTop(j.action)
		}
	}
}

// Submit enqueues a compiled action. It never blocks the caller: when the
// queue is full the action is dropped and logged. Callers (the mapping
// resolve path) must never be the ones paused; pausing is the controller's
// job via dropping before Submit is called at all (spec §4.5).
func (e *Executor) Submit(ca mapping.CompiledAction) {
	select {
	case e.queue <- job{action: ca}:
	default:
		debug.Log(debug.Action, "action queue full, dropping action kind=%d", ca.Action.Kind)
	}
}

// runTop executes one top-level compiled action and reports its outcome.
func (e *Executor) runTop(ca mapping.CompiledAction) {
	a := ca.Action
	if ca.HasVelocity {
		a = applyVelocity(a, ca.Velocity)
	}

	err := e.execute(a)
	e.failures[a.Kind].Add(boolToUint64(err != nil))
	if e.onOutcome != nil {
		e.onOutcome(Outcome{Kind: a.Kind, Err: err, Time: e.now()})
	}
	if err != nil {
		debug.Log(debug.Action, "action failed kind=%d err=%v", a.Kind, err)
	}
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Failures returns a snapshot of the per-action-kind failure counters (spec
// §4.4, §7). The control IPC's Status response does not include them.
func (e *Executor) Failures() map[mapping.ActionKind]uint64 {
	out := make(map[mapping.ActionKind]uint64, len(e.failures))
	for i := range e.failures {
		if v := e.failures[i].Load(); v > 0 {
			out[mapping.ActionKind(i)] = v
		}
	}
	return out
}

// applyVelocity rewrites an action's embedded velocity-derived fields using
// the mapping's velocity transform. Only SendMidi carries a velocity today
// (spec §4.4: "the velocity used by SendMidi"); other kinds pass through
// unchanged.
func applyVelocity(a mapping.Action, vm mapping.VelocityMapping) mapping.Action {
	if a.Kind == mapping.ActionSendMidi {
		a.MidiMessage.Velocity = vm.Apply(a.MidiMessage.Velocity)
	}
	return a
}

// execute dispatches one action (primitive or composite), returning its
// error for failure counting. Composite nesting is expected shallow
// (<8 levels per spec §9) so plain recursion is acceptable.
func (e *Executor) execute(a mapping.Action) error {
	switch a.Kind {
	case mapping.ActionKeystroke:
		return e.injector.PressKey(a.Keys, a.Modifiers)
	case mapping.ActionText:
		return e.injector.TypeText(a.Text)
	case mapping.ActionLaunch:
		return launch(a.App)
	case mapping.ActionShell:
		cmd := exec.Command(a.Program, a.Args...)
		return cmd.Run()
	case mapping.ActionMouseClick:
		return e.injector.Click(a.MouseButton, a.HasCoords, a.X, a.Y)
	case mapping.ActionVolumeControl:
		return e.volume.Apply(a.VolumeOp, a.HasVolumeValue, a.VolumeValue)
	case mapping.ActionModeChange:
		if e.modes == nil {
			return fmt.Errorf("mode_change: no mode changer wired")
		}
		return e.modes.ChangeMode(a.ModeTarget, a.ModeName, a.ModeIndex, a.ModeRelative)
	case mapping.ActionSendMidi:
		if e.midiOut == nil {
			return fmt.Errorf("send_midi: no MIDI output backend wired")
		}
		return e.midiOut.Send(a.MidiPort, a.MidiMessage)
	case mapping.ActionDelay:
		time.Sleep(time.Duration(a.DelayMs) * time.Millisecond)
		return nil
	case mapping.ActionSequence:
		return e.executeSequence(a.Steps)
	case mapping.ActionRepeat:
		return e.executeRepeat(a)
	case mapping.ActionConditional:
		return e.executeConditional(a)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

// executeSequence runs children in order with a default 50ms gap between
// steps unless the child itself is a Delay (spec §4.4). A child failure
// aborts the remaining steps (spec §9 Open Question: stop_on_error is not
// part of the confirmed shape; sequences abort on failure).
func (e *Executor) executeSequence(steps []mapping.Action) error {
	for i, step := range steps {
		if err := e.execute(step); err != nil {
			return fmt.Errorf("sequence step %d: %w", i, err)
		}
		if i < len(steps)-1 && step.Kind != mapping.ActionDelay {
			time.Sleep(sequenceGapDefault)
		}
	}
	return nil
}

// executeRepeat runs a.RepeatAction a.RepeatCount times, sleeping
// RepeatDelayMs between iterations (not after the last). count=0 is a
// no-op; count=1 runs once with no delay (spec §8 boundary behaviors).
func (e *Executor) executeRepeat(a mapping.Action) error {
	if a.RepeatAction == nil {
		return fmt.Errorf("repeat: no child action")
	}
	for i := 0; i < a.RepeatCount; i++ {
		if err := e.execute(*a.RepeatAction); err != nil {
			return fmt.Errorf("repeat iteration %d: %w", i, err)
		}
		if i < a.RepeatCount-1 {
			time.Sleep(time.Duration(a.RepeatDelayMs) * time.Millisecond)
		}
	}
	return nil
}

func (e *Executor) executeConditional(a mapping.Action) error {
	if e.evalCondition(a.Condition) {
		if a.ThenAction == nil {
			return nil
		}
		return e.execute(*a.ThenAction)
	}
	if a.ElseAction == nil {
		return nil
	}
	return e.execute(*a.ElseAction)
}

// launch is platform-dispatched (spec §4.4): macOS uses `open -a`, Linux
// execs directly, Windows uses `cmd /C start`. It is non-blocking beyond
// spawn — Start, not Run.
func launch(app string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-a", app)
	case "windows":
		cmd = exec.Command("cmd", "/C", "start", app)
	default:
		cmd = exec.Command(app)
	}
	return cmd.Start()
}
