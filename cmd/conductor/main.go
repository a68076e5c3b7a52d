// Command conductor is the daemon entry point: it wires the source adapters
// through the gesture recognizer and mapping engine into the action
// executor, and serves the control IPC (spec §4, §6.3).
//
// Exit codes (spec §6.4): 0 on a clean shutdown signal, 1 on a fatal startup
// failure (a required device unavailable with no fallback), 2 when the
// configuration cannot be loaded or fails validation before the first
// successful Reload.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"conductor/action"
	"conductor/configfile"
	"conductor/control"
	"conductor/debug"
	"conductor/event"
	"conductor/gesture"
	"conductor/hid"
	"conductor/mapping"
	"conductor/midi"
)

const busCapacity = 1024

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".config", "conductor")
}

func main() {
	dir := defaultConfigDir()
	configPath := flag.String("config", filepath.Join(dir, "conductor.toml"), "path to the TOML mapping configuration")
	socketPath := flag.String("socket", filepath.Join(dir, "conductor.sock"), "path to the control IPC Unix socket")
	debugLog := flag.Bool("debug", false, "enable category file logging under ~/.config/conductor/debug.log")
	flag.Parse()

	if *debugLog {
		if err := debug.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not enable debug logging: %v\n", err)
		}
		defer debug.Disable()
	}

	cfg, err := configfile.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conductor: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := event.NewBus(busCapacity)

	var controller *control.Controller
	currentModeName := func() string { return controller.ModeName() }

	executor := action.NewExecutor(2, action.NoopInjector{}, action.NoopVolume{}, action.NoopProcesses{}, midi.NewOutputBackend(), nil, currentModeName)
	controller = control.NewController(executor)
	executor.SetModeChanger(controller)
	executor.Start()

	if result := controller.Reload(cfg); !result.Success {
		fmt.Fprintf(os.Stderr, "conductor: initial configuration has errors:\n%s\n", result.Errors.Error())
		os.Exit(2)
	}

	var midiAdapter *midi.Adapter
	var hidAdapter *hid.Adapter

	if cfg.Device.InputMode != mapping.InputModeGamepadOnly {
		midiAdapter = midi.NewAdapter(cfg.Device.Name, bus)
		go midiAdapter.Run(ctx)
		go forwardMidiStatus(midiAdapter, controller)
	}

	if cfg.Device.InputMode != mapping.InputModeMidiOnly {
		if err := hid.Init(); err != nil {
			if cfg.Device.InputMode == mapping.InputModeGamepadOnly {
				fmt.Fprintf(os.Stderr, "conductor: gamepad support unavailable: %v\n", err)
				os.Exit(1)
			}
			debug.Log(debug.General, "gamepad support unavailable: %v", err)
		} else {
			defer hid.Quit()
			hidAdapter = hid.NewAdapter(bus)
			go hidAdapter.Run(ctx)
			go forwardHidStatus(hidAdapter, controller)
		}
	}

	snap := controller.Snapshot()
	processor := gesture.NewProcessor(gesture.Thresholds{
		ChordWindow:     time.Duration(snap.ChordWindowMs) * time.Millisecond,
		DoubleTapWindow: time.Duration(snap.DoubleTapWindowMs) * time.Millisecond,
		HoldThreshold:   time.Duration(snap.HoldThresholdMs) * time.Millisecond,
	})
	processed := make(chan event.ProcessedEvent, busCapacity)
	go runPipeline(ctx, processor, bus, processed, controller)
	go dispatchProcessed(processed, controller)

	watcher, err := control.NewWatcher(*configPath, func() {
		reloadFromDisk(*configPath, controller)
	})
	if err != nil {
		debug.Log(debug.Reload, "hot-reload watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
		go watcher.Run()
	}

	gamepadNames := func() []string {
		if hidAdapter == nil {
			return nil
		}
		return hidAdapter.ConnectedNames()
	}

	server := control.NewServer(*socketPath, controller, func() control.ReloadResult {
		return reloadFromDisk(*configPath, controller)
	}, cancel, gamepadNames)

	go func() {
		if err := server.Serve(); err != nil {
			debug.Log(debug.IPC, "control server exited: %v", err)
		}
	}()
	defer server.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	cancel()
	executor.Stop()
}

func reloadFromDisk(path string, controller *control.Controller) control.ReloadResult {
	cfg, err := configfile.Load(path)
	if err != nil {
		return control.ReloadResult{
			Success: false,
			Errors:  mapping.CompileErrors{{Message: err.Error()}},
		}
	}
	return controller.Reload(cfg)
}

// runPipeline feeds the shared bus through learn-mode capture, then the
// gesture recognizer, onto the processed-event channel consumed by Dispatch.
func runPipeline(ctx context.Context, processor *gesture.Processor, bus *event.Bus, out chan<- event.ProcessedEvent, controller *control.Controller) {
	filtered := make(chan event.InputEvent, busCapacity)
	go func() {
		defer close(filtered)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-bus.Events():
				if !ok {
					return
				}
				if controller.ObserveForLearn(ev) {
					continue
				}
				select {
				case filtered <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	processor.Run(ctx, filtered, out)
}

func dispatchProcessed(processed <-chan event.ProcessedEvent, controller *control.Controller) {
	for pe := range processed {
		controller.Dispatch(pe)
	}
}

func forwardMidiStatus(a *midi.Adapter, controller *control.Controller) {
	for s := range a.Statuses() {
		controller.ReportDeviceStatus("midi", s.PortName, s.Connected)
	}
}

func forwardHidStatus(a *hid.Adapter, controller *control.Controller) {
	for s := range a.Statuses() {
		controller.ReportDeviceStatus("hid", s.Name, s.Connected)
	}
}
