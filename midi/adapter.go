// Package midi implements the MIDI source adapter and MIDI output back-end
// (spec §4.1, §6.2), built directly on the teacher's use of
// gitlab.com/gomidi/midi/v2: opening a named port, registering a callback
// with gomidi.ListenTo, and converting parsed messages into event.InputEvent.
package midi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"conductor/debug"
	"conductor/event"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the MIDI driver
)

// Adapter owns one MIDI input port and pushes parsed InputEvents onto the
// shared bus. While no matching port exists it retries with capped
// exponential backoff. Once connected it stays on that port until Run's
// context is cancelled; it does not detect a lost port or reconnect.
type Adapter struct {
	portSubstring string
	bus           *event.Bus

	stop     func()
	cancel   context.CancelFunc
	statusCh chan Status
}

// Status reports a connect/disconnect transition for the control IPC's
// device-stream (spec §6.3).
type Status struct {
	Connected bool
	PortName  string
	Err       error
}

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// NewAdapter creates an adapter that will connect to the first input port
// whose name contains portSubstring.
func NewAdapter(portSubstring string, bus *event.Bus) *Adapter {
	return &Adapter{
		portSubstring: portSubstring,
		bus:           bus,
		statusCh:      make(chan Status, 8),
	}
}

// Statuses exposes connect/disconnect/error transitions.
func (a *Adapter) Statuses() <-chan Status { return a.statusCh }

// Run retries until a matching port opens, then listens until ctx is
// cancelled.
func (a *Adapter) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		inPort, err := a.findPort()
		if err != nil {
			debug.Log(debug.MidiIn, "port %q not found: %v (retry in %s)", a.portSubstring, err, backoff)
			a.emitStatus(Status{Connected: false, Err: err})
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = initialBackoff
		stop, err := a.listen(inPort)
		if err != nil {
			debug.Log(debug.MidiIn, "listen on %q failed: %v", inPort.String(), err)
			a.emitStatus(Status{Connected: false, Err: err})
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		a.emitStatus(Status{Connected: true, PortName: inPort.String()})
		<-ctx.Done()
		stop()
		a.emitStatus(Status{Connected: false, PortName: inPort.String()})
		return
	}
}

func (a *Adapter) emitStatus(s Status) {
	select {
	case a.statusCh <- s:
	default:
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (a *Adapter) findPort() (drivers.In, error) {
	inPorts := gomidi.GetInPorts()
	needle := strings.ToLower(a.portSubstring)
	for _, p := range inPorts {
		if strings.Contains(strings.ToLower(p.String()), needle) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input port matching %q", a.portSubstring)
}

func (a *Adapter) listen(inPort drivers.In) (func(), error) {
	return gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
		a.handle(msg)
	})
}

func (a *Adapter) handle(msg gomidi.Message) {
	now := time.Now()

	var channel, note, velocity, cc, value, pressure, program uint8
	var bendRel int16
	var bendAbs uint16

	switch {
	case msg.GetNoteOn(&channel, &note, &velocity):
		if velocity == 0 {
			a.push(event.InputEvent{Kind: event.KindPadReleased, Id: event.Id(note), Channel: channel, Time: now})
		} else {
			a.push(event.InputEvent{Kind: event.KindPadPressed, Id: event.Id(note), Channel: channel, Velocity: velocity, Time: now})
		}

	case msg.GetNoteOff(&channel, &note, &velocity):
		a.push(event.InputEvent{Kind: event.KindPadReleased, Id: event.Id(note), Channel: channel, Time: now})

	case msg.GetControlChange(&channel, &cc, &value):
		a.push(event.InputEvent{Kind: event.KindEncoderTurned, Id: event.Id(cc), Channel: channel, Value: value, Time: now})

	case msg.GetAfterTouch(&channel, &pressure):
		a.push(event.InputEvent{Kind: event.KindAftertouch, Channel: channel, Pressure: pressure, Time: now})

	case msg.GetPitchBend(&channel, &bendRel, &bendAbs):
		a.push(event.InputEvent{Kind: event.KindPitchBend, Channel: channel, Bend: bendRel, Time: now})

	case msg.GetProgramChange(&channel, &program):
		a.push(event.InputEvent{Kind: event.KindProgramChange, Channel: channel, Program: program, Time: now})
	}
}

func (a *Adapter) push(ev event.InputEvent) {
	debug.LogEvery(200, debug.MidiIn, "event kind=%d id=%d", ev.Kind, ev.Id)
	a.bus.Push(event.SourceMidi, ev)
}
