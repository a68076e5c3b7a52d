// Package action implements the ActionExecutor (spec §4.4): it consumes
// compiled (ProcessedEvent, CompiledAction) pairs from the MappingEngine and
// runs primitive and composite actions on a small worker pool, so a long
// Sequence or Shell invocation never stalls a short action queued behind it.
//
// Platform-specific keyboard/mouse injection, volume control, and process
// queries are named boundary interfaces (spec §6.2) — the core never talks
// to the OS directly for these, matching spec §1's "deliberately out of
// scope: ... platform-specific keyboard/mouse injection back-ends".
package action

import (
	"conductor/debug"
	"conductor/mapping"
)

// KeyboardMouseInjector synthesizes key and mouse events (spec §6.2).
type KeyboardMouseInjector interface {
	PressKey(keys []string, modifiers []string) error
	TypeText(text string) error
	Click(button string, hasCoords bool, x, y int) error
}

// VolumeBackend performs platform volume operations (spec §6.2).
type VolumeBackend interface {
	Apply(op string, hasValue bool, value int) error
}

// ProcessQueries answers process-state questions for Conditional evaluation
// (spec §6.2).
type ProcessQueries interface {
	IsRunning(name string) bool
	IsFrontmost(name string) bool
}

// NoopInjector logs what it would have done and reports success. It is the
// default back-end until a host supplies a platform-specific one.
type NoopInjector struct{}

func (NoopInjector) PressKey(keys []string, modifiers []string) error {
	debug.Log(debug.Action, "noop keyboard inject keys=%v modifiers=%v", keys, modifiers)
	return nil
}

func (NoopInjector) TypeText(text string) error {
	debug.Log(debug.Action, "noop keyboard inject text=%q", text)
	return nil
}

func (NoopInjector) Click(button string, hasCoords bool, x, y int) error {
	debug.Log(debug.Action, "noop mouse click button=%s hasCoords=%v x=%d y=%d", button, hasCoords, x, y)
	return nil
}

// NoopVolume logs what it would have done and reports success.
type NoopVolume struct{}

func (NoopVolume) Apply(op string, hasValue bool, value int) error {
	debug.Log(debug.Action, "noop volume op=%s hasValue=%v value=%d", op, hasValue, value)
	return nil
}

// NoopProcesses always reports that nothing is running or frontmost.
type NoopProcesses struct{}

func (NoopProcesses) IsRunning(name string) bool   { return false }
func (NoopProcesses) IsFrontmost(name string) bool { return false }

// ModeChanger is the narrow control-plane capability the executor needs to
// carry out a ModeChange action (spec §4.3): the controller owns the
// atomic mode index, the executor only requests transitions on it.
type ModeChanger interface {
	ChangeMode(target mapping.ModeChangeTarget, name string, index int, relative bool) error
}
