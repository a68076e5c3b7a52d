package midi

import (
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Message types a SendMidi action can compose, mirroring the teacher's own
// midi/event.go constants rather than reaching into gomidi's internal type
// tags.
const (
	NoteOn        uint8 = 0x90
	NoteOff       uint8 = 0x80
	ControlChange uint8 = 0xB0
)

// Message is the minimal payload the SendMidi action composes (spec §3.4).
type Message struct {
	Type     uint8 // NoteOn, NoteOff, ControlChange
	Channel  uint8
	Note     uint8 // or CC number
	Velocity uint8 // or CC value
}

// OutputBackend lazily opens named MIDI output ports and sends messages
// (spec §4.4 SendMidi, §6.2 MidiOutput). Each port is opened at most once and
// the per-port sender is reused, matching the teacher's gomidi.SendTo usage
// in midi/launchpad.go.
type OutputBackend struct {
	mu      sync.Mutex
	senders map[string]func(gomidi.Message) error
}

// NewOutputBackend creates an empty output backend.
func NewOutputBackend() *OutputBackend {
	return &OutputBackend{senders: make(map[string]func(gomidi.Message) error)}
}

// ListPorts returns the names of all available MIDI output ports (spec
// §6.3 ListMidiOutputPorts).
func ListPorts() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

// ListInPorts returns the names of all available MIDI input ports (spec
// §6.3 ListMidiInputPorts).
func ListInPorts() []string {
	var names []string
	for _, p := range gomidi.GetInPorts() {
		names = append(names, p.String())
	}
	return names
}

// Send opens portName lazily (substring match, case-insensitive) and sends
// one message.
func (o *OutputBackend) Send(portName string, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	send, ok := o.senders[portName]
	if !ok {
		outPort, err := findOutPort(portName)
		if err != nil {
			return err
		}
		send, err = gomidi.SendTo(outPort)
		if err != nil {
			return fmt.Errorf("open MIDI output %q: %w", portName, err)
		}
		o.senders[portName] = send
	}

	return send(toGomidi(msg))
}

func toGomidi(msg Message) gomidi.Message {
	switch msg.Type {
	case NoteOff:
		return gomidi.NoteOff(msg.Channel, msg.Note)
	case ControlChange:
		return gomidi.ControlChange(msg.Channel, msg.Note, msg.Velocity)
	default:
		return gomidi.NoteOn(msg.Channel, msg.Note, msg.Velocity)
	}
}

func findOutPort(name string) (drivers.Out, error) {
	needle := strings.ToLower(name)
	for _, p := range gomidi.GetOutPorts() {
		if strings.Contains(strings.ToLower(p.String()), needle) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("MIDI output port not found: %s", name)
}

// Close releases all cached senders. Senders themselves have no explicit
// close in gomidi/v2's functional API; dropping the reference is sufficient.
func (o *OutputBackend) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.senders = make(map[string]func(gomidi.Message) error)
}
