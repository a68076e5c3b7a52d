package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"conductor/debug"
	"conductor/mapping"
	"conductor/midi"
)

// Request is one control-plane IPC command (spec §6.3): each is atomic,
// request/response, except Subscribe which switches the connection into a
// one-way event stream.
type Request struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the reply to a Request, or a structured error (spec §7:
// "malformed request returns a structured error response; the socket stays
// open").
type Response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// StatusResult is the Status command's payload.
type StatusResult struct {
	State            string   `json:"state"`
	UptimeSeconds    float64  `json:"uptime_seconds"`
	CurrentModeName  string   `json:"current_mode_name"`
	ConnectedDevices []string `json:"connected_devices"`
	LastReloadOK     *bool    `json:"last_reload_ok,omitempty"`
}

// Server hosts the control-plane IPC over a Unix domain socket (spec §6.3).
// Command dispatch is plain encoding/json — no pack example shows this
// exact request/response boundary, so it is built directly from the
// specification's command list rather than an existing file (see
// DESIGN.md).
type Server struct {
	controller   *Controller
	socketPath   string
	listener     net.Listener
	reload       func() ReloadResult
	stop         func()
	gamepadNames func() []string
}

// NewServer builds an IPC server. reload is invoked by the Reload command
// (it is expected to reparse the configuration file and call
// Controller.Reload); stop is invoked by the Stop command for graceful
// shutdown; gamepadNames lists currently connected gamepad names for
// ListGamepads.
func NewServer(socketPath string, controller *Controller, reload func() ReloadResult, stop func(), gamepadNames func() []string) *Server {
	return &Server{
		controller:   controller,
		socketPath:   socketPath,
		reload:       reload,
		stop:         stop,
		gamepadNames: gamepadNames,
	}
}

// Serve listens on the configured socket path until Close is called.
func (s *Server) Serve() error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("control ipc listen: %w", err)
	}
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil // listener closed
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// handleConn reads one JSON request per line. A line that does not decode
// gets an error response and the connection keeps reading.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	lines := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for lines.Scan() {
		var req Request
		if err := json.Unmarshal(lines.Bytes(), &req); err != nil {
			if err := enc.Encode(errResponse("malformed request: %v", err)); err != nil {
				return
			}
			continue
		}

		if req.Command == "Subscribe" {
			s.streamEvents(conn)
			return
		}

		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) streamEvents(conn net.Conn) {
	events := s.controller.Subscribe()
	w := bufio.NewWriter(conn)
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return
		}
		w.Flush()
	}
}

func errResponse(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}

func okResult(v any) Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return errResponse("internal: marshal result: %v", err)
	}
	return Response{OK: true, Result: raw}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Command {
	case "Ping":
		return okResult(map[string]string{"pong": "pong"})

	case "Status":
		return s.statusResponse()

	case "Reload":
		result := s.reload()
		return okResult(map[string]any{"success": result.Success, "errors": errorStrings(result.Errors)})

	case "Pause":
		s.controller.Pause()
		return okResult(nil)

	case "Resume":
		s.controller.Resume()
		return okResult(nil)

	case "Stop":
		if s.stop != nil {
			go s.stop()
		}
		return okResult(nil)

	case "ListMidiInputPorts":
		return okResult(midi.ListInPorts())

	case "ListMidiOutputPorts":
		return okResult(midi.ListPorts())

	case "ListGamepads":
		if s.gamepadNames == nil {
			return okResult([]string{})
		}
		return okResult(s.gamepadNames())

	case "StartLearn":
		var params struct {
			TimeoutS float64 `json:"timeout_s"`
		}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errResponse("malformed StartLearn params: %v", err)
			}
		}
		if params.TimeoutS <= 0 {
			params.TimeoutS = 10
		}
		s.controller.StartLearn(time.Duration(params.TimeoutS * float64(time.Second)))
		return okResult(nil)

	case "GetLearnStatus":
		active, remaining := s.controller.LearnStatus()
		return okResult(map[string]any{"active": active, "remaining_seconds": remaining.Seconds()})

	case "CancelLearn":
		s.controller.CancelLearn()
		return okResult(nil)

	case "GetLearnResult":
		ev, ok := s.controller.LearnResult()
		if !ok {
			return okResult(map[string]any{"available": false})
		}
		return okResult(map[string]any{"available": true, "event": ev})

	default:
		debug.Log(debug.IPC, "unknown command %q", req.Command)
		return errResponse("unknown command %q", req.Command)
	}
}

func (s *Server) statusResponse() Response {
	var lastOK *bool
	if lr := s.controller.LastReload(); lr != nil {
		ok := lr.Success
		lastOK = &ok
	}
	return okResult(StatusResult{
		State:            s.controller.State().String(),
		UptimeSeconds:    s.controller.Uptime().Seconds(),
		CurrentModeName:  s.controller.ModeName(),
		ConnectedDevices: s.controller.ConnectedDevices(),
		LastReloadOK:     lastOK,
	})
}

func errorStrings(errs mapping.CompileErrors) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
