// Package hid implements the HID/gamepad source adapter (spec §4.1, §6.2).
// The teacher repo has no gamepad support; this package is grounded on the
// SDL2 GameController handling pattern in the pack's
// pawndev-gabagool input_processor.go reference file (per-axis threshold
// state tracking, button edge events) and on go-sdl2's presence as an
// indirect dependency of RetroCodeRamen-Nitro-Core-DX.
package hid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conductor/debug"
	"conductor/event"

	"github.com/veandco/go-sdl2/sdl"
)

// PollInterval is the adapter's polling period (spec §4.1: "≤1ms intervals").
const PollInterval = time.Millisecond

// deadZone is the fraction of full-scale travel an axis must exceed before
// it is reported (spec §4.1: "exceeding a 10% dead-zone").
const deadZone = 0.10

// triggerDigitalThreshold is the normalized (0-127) value above which an
// analog trigger axis also synthesizes a digital PadPressed/PadReleased on
// its dedicated button id (spec §3.1: "digital trigger L/R = 143-144").
const triggerDigitalThreshold = 64

// axis indexes a single SDL_CONTROLLER_AXIS_* slot mapped to a fixed id.
type axisSlot struct {
	sdlAxis sdl.GameControllerAxis
	id      event.Id
	trigger bool // trigger axes also synthesize a digital button id
	btnId   event.Id
}

var axisSlots = []axisSlot{
	{sdl.CONTROLLER_AXIS_LEFTX, 128, false, 0},
	{sdl.CONTROLLER_AXIS_LEFTY, 129, false, 0},
	{sdl.CONTROLLER_AXIS_RIGHTX, 130, false, 0},
	{sdl.CONTROLLER_AXIS_RIGHTY, 131, false, 0},
	{sdl.CONTROLLER_AXIS_TRIGGERLEFT, 132, true, event.HidTriggerLeft},
	{sdl.CONTROLLER_AXIS_TRIGGERRIGHT, 133, true, event.HidTriggerRight},
}

var buttonIds = map[sdl.GameControllerButton]event.Id{
	sdl.CONTROLLER_BUTTON_A:             event.HidButtonFaceSouth,
	sdl.CONTROLLER_BUTTON_B:             event.HidButtonFaceEast,
	sdl.CONTROLLER_BUTTON_X:             event.HidButtonFaceWest,
	sdl.CONTROLLER_BUTTON_Y:             event.HidButtonFaceNorth,
	sdl.CONTROLLER_BUTTON_DPAD_UP:       event.HidDpadUp,
	sdl.CONTROLLER_BUTTON_DPAD_DOWN:     event.HidDpadDown,
	sdl.CONTROLLER_BUTTON_DPAD_LEFT:     event.HidDpadLeft,
	sdl.CONTROLLER_BUTTON_DPAD_RIGHT:    event.HidDpadRight,
	sdl.CONTROLLER_BUTTON_LEFTSHOULDER:  event.HidShoulderLeft,
	sdl.CONTROLLER_BUTTON_RIGHTSHOULDER: event.HidShoulderRight,
	sdl.CONTROLLER_BUTTON_LEFTSTICK:     event.HidStickClickLeft,
	sdl.CONTROLLER_BUTTON_RIGHTSTICK:    event.HidStickClickRight,
	sdl.CONTROLLER_BUTTON_START:         event.HidStart,
	sdl.CONTROLLER_BUTTON_BACK:          event.HidSelect,
	sdl.CONTROLLER_BUTTON_GUIDE:         event.HidGuide,
}

// DeviceStatus reports a gamepad connect/disconnect transition.
type DeviceStatus struct {
	Connected bool
	Name      string
	Index     int
}

// Adapter polls one open SDL game controller and pushes InputEvents onto the
// shared bus.
type Adapter struct {
	bus      *event.Bus
	statusCh chan DeviceStatus

	axisTriggerDigital map[event.Id]bool // last synthesized digital state per trigger id

	namesMu sync.Mutex
	names   map[int]string // open controller index -> name, for ListGamepads
}

// NewAdapter creates a gamepad adapter. Callers must have already called
// sdl.Init(sdl.INIT_GAMECONTROLLER) once at process startup.
func NewAdapter(bus *event.Bus) *Adapter {
	return &Adapter{
		bus:                bus,
		statusCh:           make(chan DeviceStatus, 8),
		axisTriggerDigital: make(map[event.Id]bool),
		names:              make(map[int]string),
	}
}

// ConnectedNames lists the names of currently open gamepads (spec §6.3
// ListGamepads).
func (a *Adapter) ConnectedNames() []string {
	a.namesMu.Lock()
	defer a.namesMu.Unlock()
	out := make([]string, 0, len(a.names))
	for _, n := range a.names {
		out = append(out, n)
	}
	return out
}

// Statuses exposes connect/disconnect transitions for the control IPC.
func (a *Adapter) Statuses() <-chan DeviceStatus { return a.statusCh }

// Run polls for controller hot-plug and pumps SDL events until ctx is
// cancelled.
func (a *Adapter) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	controllers := map[int]*sdl.GameController{}

	for {
		select {
		case <-ctx.Done():
			for _, c := range controllers {
				c.Close()
			}
			return
		case <-ticker.C:
		}

		for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
			switch e := ev.(type) {
			case *sdl.ControllerDeviceAddedEvent:
				idx := int(e.Which)
				if ctrl := sdl.GameControllerOpen(idx); ctrl != nil {
					controllers[idx] = ctrl
					name := ctrl.Name()
					a.namesMu.Lock()
					a.names[idx] = name
					a.namesMu.Unlock()
					debug.Log(debug.HidIn, "gamepad connected: %s (index %d)", name, idx)
					a.emitStatus(DeviceStatus{Connected: true, Name: name, Index: idx})
				}
			case *sdl.ControllerDeviceRemovedEvent:
				idx := int(e.Which)
				if ctrl, ok := controllers[idx]; ok {
					ctrl.Close()
					delete(controllers, idx)
					a.namesMu.Lock()
					delete(a.names, idx)
					a.namesMu.Unlock()
					debug.Log(debug.HidIn, "gamepad disconnected (index %d)", idx)
					a.emitStatus(DeviceStatus{Connected: false, Index: idx})
				}
			case *sdl.ControllerButtonEvent:
				a.handleButton(e)
			case *sdl.ControllerAxisEvent:
				a.handleAxis(e)
			}
		}
	}
}

func (a *Adapter) emitStatus(s DeviceStatus) {
	select {
	case a.statusCh <- s:
	default:
	}
}

func (a *Adapter) handleButton(e *sdl.ControllerButtonEvent) {
	id, ok := buttonIds[sdl.GameControllerButton(e.Button)]
	if !ok {
		return
	}
	now := time.Now()
	if e.Type == sdl.CONTROLLERBUTTONDOWN {
		a.push(event.InputEvent{Kind: event.KindPadPressed, Id: id, Velocity: 100, Time: now})
	} else {
		a.push(event.InputEvent{Kind: event.KindPadReleased, Id: id, Time: now})
	}
}

func (a *Adapter) handleAxis(e *sdl.ControllerAxisEvent) {
	for _, slot := range axisSlots {
		if slot.sdlAxis != sdl.GameControllerAxis(e.Axis) {
			continue
		}

		normalized := normalizeAxis(e.Value)
		fraction := float64(normalized) / 127.0
		if absFloat(fraction-0.5)*2 < deadZone && !slot.trigger {
			// Centered stick axis within the dead-zone: no event.
			return
		}

		now := time.Now()
		a.push(event.InputEvent{Kind: event.KindEncoderTurned, Id: slot.id, Value: normalized, Time: now})

		if slot.trigger {
			pressed := normalized >= triggerDigitalThreshold
			if a.axisTriggerDigital[slot.btnId] != pressed {
				a.axisTriggerDigital[slot.btnId] = pressed
				if pressed {
					a.push(event.InputEvent{Kind: event.KindPadPressed, Id: slot.btnId, Velocity: 100, Time: now})
				} else {
					a.push(event.InputEvent{Kind: event.KindPadReleased, Id: slot.btnId, Time: now})
				}
			}
		}
		return
	}
}

// normalizeAxis maps an SDL axis reading (-32768..32767) to 0..127 (spec
// §3.2 EncoderTurned.value).
func normalizeAxis(v int16) uint8 {
	shifted := int32(v) + 32768 // 0..65535
	return uint8(shifted * 127 / 65535)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (a *Adapter) push(ev event.InputEvent) {
	debug.LogEvery(500, debug.HidIn, "event kind=%d id=%d", ev.Kind, ev.Id)
	a.bus.Push(event.SourceHid, ev)
}

// Init initializes the SDL game-controller subsystem. Call once at process
// startup before running any Adapter.
func Init() error {
	if err := sdl.Init(sdl.INIT_GAMECONTROLLER | sdl.INIT_JOYSTICK); err != nil {
		return fmt.Errorf("sdl init: %w", err)
	}
	return nil
}

// Quit releases the SDL game-controller subsystem.
func Quit() {
	sdl.Quit()
}
