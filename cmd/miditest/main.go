// Command miditest is a raw adapter probe: it opens a MIDI input port and
// prints every event.InputEvent as it arrives, for debugging device wiring
// without running the full daemon. Adapted from the teacher's
// cmd/miditest/main.go, which printed raw gomidi messages directly; this
// version prints the adapter's own unified InputEvent instead, since that is
// the boundary worth verifying here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conductor/event"
	"conductor/midi"
)

func main() {
	portSubstring := flag.String("port", "", "substring to match against available MIDI input port names")
	flag.Parse()

	fmt.Println("available input ports:")
	for _, name := range midi.ListInPorts() {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println()

	bus := event.NewBus(256)
	adapter := midi.NewAdapter(*portSubstring, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go adapter.Run(ctx)
	go printStatuses(adapter)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Println("listening for MIDI events (ctrl-c to stop)...")
	for {
		select {
		case <-sigCh:
			return
		case ev := <-bus.Events():
			printEvent(ev)
		}
	}
}

func printStatuses(a *midi.Adapter) {
	for s := range a.Statuses() {
		if s.Connected {
			fmt.Printf("[connected] %s\n", s.PortName)
		} else {
			fmt.Printf("[disconnected] %v\n", s.Err)
		}
	}
}

func printEvent(ev event.InputEvent) {
	switch ev.Kind {
	case event.KindPadPressed:
		fmt.Printf("PadPressed  id=%-3d velocity=%d\n", ev.Id, ev.Velocity)
	case event.KindPadReleased:
		fmt.Printf("PadReleased id=%-3d\n", ev.Id)
	case event.KindEncoderTurned:
		fmt.Printf("Encoder     id=%-3d value=%d\n", ev.Id, ev.Value)
	case event.KindAftertouch:
		fmt.Printf("Aftertouch  pressure=%d\n", ev.Pressure)
	case event.KindPitchBend:
		fmt.Printf("PitchBend   bend=%d\n", ev.Bend)
	case event.KindProgramChange:
		fmt.Printf("ProgramChange program=%d\n", ev.Program)
	}
}
