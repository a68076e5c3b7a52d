package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"conductor/control"
	"conductor/theme"
)

const maxLogLines = 200

// model is conductorctl's bubbletea state: a control-plane status/event
// viewer, not the product GUI (spec §1 Non-goals keep the real GUI out of
// scope). Shaped after the teacher's tui/model.go Init/Update/View split.
type model struct {
	socketPath string
	theme      *theme.Theme

	status    control.StatusResult
	statusErr string

	events <-chan control.Event
	log    []string

	quitting bool
}

type statusMsg struct {
	result control.StatusResult
	err    error
}

type eventMsg control.Event

type eventsClosedMsg struct{}

func newModel(socketPath string, palette *theme.Palette) model {
	return model{
		socketPath: socketPath,
		theme:      theme.New(palette),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.socketPath), connectEvents(m.socketPath))
}

func fetchStatus(socketPath string) tea.Cmd {
	return func() tea.Msg {
		c, err := dial(socketPath)
		if err != nil {
			return statusMsg{err: err}
		}
		defer c.close()
		st, err := c.status()
		return statusMsg{result: st, err: err}
	}
}

func connectEvents(socketPath string) tea.Cmd {
	return func() tea.Msg {
		ch, err := subscribe(socketPath)
		if err != nil {
			return statusMsg{err: err}
		}
		return listenForEventsMsg{ch: ch}
	}
}

type listenForEventsMsg struct {
	ch <-chan control.Event
}

func listenForEvents(ch <-chan control.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func sendCommand(socketPath, command string) tea.Cmd {
	return func() tea.Msg {
		c, err := dial(socketPath)
		if err != nil {
			return statusMsg{err: err}
		}
		defer c.close()
		if _, err := c.do(command, nil); err != nil {
			return statusMsg{err: err}
		}
		return fetchStatus(socketPath)()
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			return m, sendCommand(m.socketPath, "Pause")
		case "r":
			return m, sendCommand(m.socketPath, "Resume")
		case "R":
			return m, sendCommand(m.socketPath, "Reload")
		}

	case statusMsg:
		if msg.err != nil {
			m.statusErr = msg.err.Error()
		} else {
			m.statusErr = ""
			m.status = msg.result
		}
		return m, nil

	case listenForEventsMsg:
		m.events = msg.ch
		return m, listenForEvents(m.events)

	case eventMsg:
		m.log = appendLog(m.log, formatEvent(control.Event(msg)))
		return m, listenForEvents(m.events)

	case eventsClosedMsg:
		m.log = appendLog(m.log, "[control stream closed]")
		return m, nil
	}

	return m, nil
}

func appendLog(log []string, line string) []string {
	log = append(log, line)
	if len(log) > maxLogLines {
		log = log[len(log)-maxLogLines:]
	}
	return log
}

func formatEvent(ev control.Event) string {
	ts := ev.Time.Format("15:04:05.000")
	switch ev.Kind {
	case control.EventProcessed:
		return fmt.Sprintf("%s processed  kind=%d id=%d", ts, ev.Processed.Kind, ev.Processed.Id)
	case control.EventModeChanged:
		return fmt.Sprintf("%s mode -> %s", ts, ev.ModeName)
	case control.EventActionOutcome:
		status := "ok"
		if ev.ActionOutcome.Err != nil {
			status = "error: " + ev.ActionOutcome.Err.Error()
		}
		return fmt.Sprintf("%s action kind=%d %s", ts, ev.ActionOutcome.Kind, status)
	case control.EventDeviceStatus:
		state := "disconnected"
		if ev.DeviceConnected {
			state = "connected"
		}
		return fmt.Sprintf("%s device %s %s (%s)", ts, ev.DeviceSource, state, ev.DeviceName)
	case control.EventReloadResult:
		if ev.ReloadOK {
			return fmt.Sprintf("%s reload ok", ts)
		}
		return fmt.Sprintf("%s reload failed: %s", ts, ev.ReloadErrors.Error())
	default:
		return fmt.Sprintf("%s unknown event", ts)
	}
}

func (m model) View() string {
	if m.quitting {
		return "bye\n"
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Accent())
	muted := lipgloss.NewStyle().Foreground(m.theme.Muted())

	var b strings.Builder
	b.WriteString(header.Render("conductorctl") + "\n")

	if m.statusErr != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Warning()).Render("error: "+m.statusErr) + "\n")
	} else {
		b.WriteString(fmt.Sprintf("state: %s  mode: %s  uptime: %s\n",
			m.status.State, m.status.CurrentModeName, time.Duration(m.status.UptimeSeconds*float64(time.Second)).Round(time.Second)))
		b.WriteString(fmt.Sprintf("devices: %s\n", strings.Join(m.status.ConnectedDevices, ", ")))
	}

	b.WriteString(muted.Render("p pause  r resume  R reload  q quit") + "\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")

	start := 0
	if len(m.log) > 20 {
		start = len(m.log) - 20
	}
	for _, line := range m.log[start:] {
		b.WriteString(line + "\n")
	}

	return b.String()
}
