package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"conductor/control"
)

// client is a thin request/response wrapper around the control IPC Unix
// socket (spec §6.3), in the same plain-JSON style as control.Server since
// no pack example shows a matching client for this boundary.
type client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func dial(socketPath string) (*client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *client) do(command string, params any) (control.Response, error) {
	req := control.Request{Command: command}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return control.Response{}, err
		}
		req.Params = raw
	}
	if err := c.enc.Encode(req); err != nil {
		return control.Response{}, err
	}
	var resp control.Response
	if err := c.dec.Decode(&resp); err != nil {
		return control.Response{}, err
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %s", command, resp.Error)
	}
	return resp, nil
}

func (c *client) status() (control.StatusResult, error) {
	resp, err := c.do("Status", nil)
	if err != nil {
		return control.StatusResult{}, err
	}
	var st control.StatusResult
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		return control.StatusResult{}, err
	}
	return st, nil
}

func (c *client) close() { c.conn.Close() }

// subscribe opens its own connection (the protocol permanently switches a
// connection into one-way streaming once Subscribe is sent) and returns a
// channel of decoded events.
func subscribe(socketPath string) (<-chan control.Event, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	enc := json.NewEncoder(conn)
	if err := enc.Encode(control.Request{Command: "Subscribe"}); err != nil {
		conn.Close()
		return nil, err
	}

	out := make(chan control.Event, 64)
	go func() {
		defer close(out)
		defer conn.Close()
		dec := json.NewDecoder(bufio.NewReader(conn))
		for {
			var ev control.Event
			if err := dec.Decode(&ev); err != nil {
				return
			}
			out <- ev
		}
	}()
	return out, nil
}
