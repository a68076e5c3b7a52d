// Package control implements the Controller (spec §4.5): it owns the
// atomic mode index, the atomic mapping-snapshot handle, the pause flag,
// hot-reload via Watcher, and the control-plane IPC (spec §6.3). It is the
// only component that mutates the three long-lived atomics the whole
// pipeline reads (spec §9: "exactly three long-lived pieces").
package control

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"conductor/action"
	"conductor/debug"
	"conductor/event"
	"conductor/mapping"
)

// ReloadResult reports the outcome of one reload attempt (spec §4.5, §6.3).
type ReloadResult struct {
	Success bool
	Errors  mapping.CompileErrors
	Time    time.Time
}

// EventKind discriminates a streamed control-plane event (spec §6.3).
type EventKind int

const (
	EventProcessed EventKind = iota
	EventModeChanged
	EventActionOutcome
	EventDeviceStatus
	EventReloadResult
)

// Event is one item on the control-plane publish/subscribe stream.
type Event struct {
	Kind EventKind
	Time time.Time

	Processed event.ProcessedEvent
	ModeName  string

	ActionOutcome action.Outcome

	DeviceConnected bool
	DeviceName      string
	DeviceSource    string

	ReloadOK     bool
	ReloadErrors mapping.CompileErrors
}

// State names the controller's run state (spec §6.3 Status).
type State int

const (
	StateRunning State = iota
	StatePaused
	StateReloading
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateReloading:
		return "reloading"
	default:
		return "unknown"
	}
}

// Controller is the pipeline's single source of mutable shared state (spec
// §3.5, §5): a mapping snapshot handle, a mode index, and a pause flag, all
// accessed without locking via atomics.
type Controller struct {
	snapshot atomic.Pointer[mapping.Snapshot]
	modeIdx  atomic.Int32
	paused   atomic.Bool
	reloading atomic.Bool

	startedAt  time.Time
	lastReload atomic.Pointer[ReloadResult]

	executor *action.Executor

	subsMu sync.Mutex
	subs   []chan Event

	devicesMu sync.Mutex
	devices   map[string]bool // "source:name" -> connected

	learnMu sync.Mutex
	learn   *learnSession
}

// NewController builds a controller around executor, which may be started
// before or after this call. Register the controller as the executor's
// ModeChanger before first use.
func NewController(executor *action.Executor) *Controller {
	c := &Controller{
		startedAt: time.Now(),
		executor:  executor,
		devices:   make(map[string]bool),
	}
	executor.OnOutcome(func(o action.Outcome) {
		c.emit(Event{Kind: EventActionOutcome, ActionOutcome: o, Time: o.Time})
	})
	return c
}

// Snapshot returns the currently active mapping snapshot, or nil before the
// first successful Reload.
func (c *Controller) Snapshot() *mapping.Snapshot { return c.snapshot.Load() }

// ModeIndex returns the current mode index.
func (c *Controller) ModeIndex() int { return int(c.modeIdx.Load()) }

// ModeName returns the current mode's name, or "" if no snapshot is loaded.
func (c *Controller) ModeName() string {
	snap := c.snapshot.Load()
	if snap == nil {
		return ""
	}
	return snap.ModeName(int(c.modeIdx.Load()))
}

// Paused reports whether dispatch is currently paused.
func (c *Controller) Paused() bool { return c.paused.Load() }

// Pause sets the pause flag: the executor dispatch path stops accepting new
// (event, action) pairs, but the gesture processor keeps running (spec
// §4.5).
func (c *Controller) Pause() { c.paused.Store(true) }

// Resume clears the pause flag.
func (c *Controller) Resume() { c.paused.Store(false) }

// Dispatch resolves a ProcessedEvent against the current snapshot and mode,
// and submits the result to the executor. It is a no-op while paused (spec
// §4.5) or before any snapshot has been loaded.
func (c *Controller) Dispatch(pe event.ProcessedEvent) {
	c.emit(Event{Kind: EventProcessed, Processed: pe, Time: pe.Time})

	if c.paused.Load() {
		return
	}
	snap := c.snapshot.Load()
	if snap == nil {
		return
	}
	ca, ok := snap.Resolve(int(c.modeIdx.Load()), pe)
	if !ok {
		return
	}
	c.executor.Submit(ca)
}

// ChangeMode implements action.ModeChanger (spec §4.3): Named resolves by
// name, Index by position, Next/Prev wrap around, and relative adds to the
// current index instead of replacing it.
func (c *Controller) ChangeMode(target mapping.ModeChangeTarget, name string, index int, relative bool) error {
	snap := c.snapshot.Load()
	if snap == nil {
		return fmt.Errorf("mode_change: no mapping snapshot loaded")
	}
	count := snap.ModeCount()
	if count == 0 {
		return fmt.Errorf("mode_change: snapshot has no modes")
	}
	cur := int(c.modeIdx.Load())

	var next int
	switch target {
	case mapping.ModeTargetNamed:
		idx := snap.ModeIndexByName(name)
		if idx < 0 {
			return fmt.Errorf("mode_change: unknown mode %q", name)
		}
		next = idx
	case mapping.ModeTargetNext:
		next = wrap(cur+1, count)
	case mapping.ModeTargetPrev:
		next = wrap(cur-1, count)
	case mapping.ModeTargetIndex:
		if relative {
			next = wrap(cur+index, count)
		} else {
			if index < 0 || index >= count {
				return fmt.Errorf("mode_change: index %d out of range", index)
			}
			next = index
		}
	default:
		return fmt.Errorf("mode_change: unknown target kind %d", target)
	}

	c.modeIdx.Store(int32(next))
	debug.Log(debug.Control, "mode changed to %q (index %d)", snap.ModeName(next), next)
	c.emit(Event{Kind: EventModeChanged, ModeName: snap.ModeName(next), Time: time.Now()})
	return nil
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Reload reparses-then-compiles (the config having already been reparsed
// into cfg by the caller, per §6.1's external-parser boundary) and
// atomically swaps the snapshot on success. On failure the previous
// snapshot remains in effect (spec §4.5).
func (c *Controller) Reload(cfg mapping.ParsedConfig) ReloadResult {
	c.reloading.Store(true)
	defer c.reloading.Store(false)

	snap, errs := mapping.Compile(cfg)
	result := ReloadResult{Time: time.Now()}

	if errs != nil {
		result.Success = false
		result.Errors = errs
		c.lastReload.Store(&result)
		debug.Log(debug.Reload, "reload failed: %v", errs)
		c.emit(Event{Kind: EventReloadResult, ReloadOK: false, ReloadErrors: errs, Time: result.Time})
		return result
	}

	c.snapshot.Store(snap)
	if int(c.modeIdx.Load()) >= snap.ModeCount() {
		c.modeIdx.Store(0)
	}
	result.Success = true
	c.lastReload.Store(&result)
	debug.Log(debug.Reload, "reload succeeded: %d modes", snap.ModeCount())
	c.emit(Event{Kind: EventReloadResult, ReloadOK: true, Time: result.Time})
	return result
}

// LastReload returns the most recent reload's result, or nil before any
// reload has run.
func (c *Controller) LastReload() *ReloadResult { return c.lastReload.Load() }

// State reports the controller's current run state for Status.
func (c *Controller) State() State {
	if c.reloading.Load() {
		return StateReloading
	}
	if c.paused.Load() {
		return StatePaused
	}
	return StateRunning
}

// Uptime reports elapsed time since the controller was constructed.
func (c *Controller) Uptime() time.Duration { return time.Since(c.startedAt) }

// ReportDeviceStatus records a source adapter's connect/disconnect
// transition and streams it (spec §6.3 connected_devices / device events).
func (c *Controller) ReportDeviceStatus(source, name string, connected bool) {
	c.devicesMu.Lock()
	key := source + ":" + name
	if connected {
		c.devices[key] = true
	} else {
		delete(c.devices, key)
	}
	c.devicesMu.Unlock()

	c.emit(Event{Kind: EventDeviceStatus, DeviceConnected: connected, DeviceName: name, DeviceSource: source, Time: time.Now()})
}

// ConnectedDevices lists "source:name" keys of currently connected devices.
func (c *Controller) ConnectedDevices() []string {
	c.devicesMu.Lock()
	defer c.devicesMu.Unlock()
	out := make([]string, 0, len(c.devices))
	for k := range c.devices {
		out = append(out, k)
	}
	return out
}

// Subscribe registers a channel to receive every future Event. Callers
// should read promptly; events are never allowed to block the pipeline, so
// while a subscriber's buffer is full each new event is discarded for that
// subscriber (the events already buffered are kept).
func (c *Controller) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

func (c *Controller) emit(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
