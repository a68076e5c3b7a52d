// Command conductorctl is a control-plane debug/status client for the
// conductor daemon (spec §6.3) — not the product GUI, which stays external
// per spec §1's Non-goals. It shows live Status plus the streamed event log
// over the Unix control socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"conductor/theme"
)

func defaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor/conductor.sock"
	}
	return filepath.Join(home, ".config", "conductor", "conductor.sock")
}

func main() {
	socketPath := flag.String("socket", defaultSocketPath(), "path to the conductor control IPC Unix socket")
	palettePath := flag.String("palette", "", "optional GIMP .gpl palette file for mode display colors (defaults to a built-in gradient)")
	flag.Parse()

	pal := theme.DefaultPalette()
	if *palettePath != "" {
		loaded, err := theme.LoadGPL(*palettePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "conductorctl: could not load palette %s: %v (falling back to default)\n", *palettePath, err)
		} else {
			pal = loaded
		}
	}

	p := tea.NewProgram(newModel(*socketPath, pal), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "conductorctl: %v\n", err)
		os.Exit(1)
	}
}
