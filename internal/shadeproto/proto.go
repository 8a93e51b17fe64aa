// Package shadeproto defines the line-based wire protocol between the
// screenshade helper and its controlling process.
//
// The helper writes exactly one notice line to stdout at startup:
//
//	{"status":"ready","monitors":["DP-1","HDMI-1"]}
//	{"status":"error","message":"..."}
//
// and thereafter reads newline-delimited JSON commands from stdin:
//
//	{"cmd":"set_opacity","value":0.5}
//	{"cmd":"quit"}
//
// The controller is trusted and co-located: commands never produce a
// response, and lines the helper cannot make sense of are dropped.
package shadeproto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Command discriminators.
const (
	CmdSetOpacity = "set_opacity"
	CmdQuit       = "quit"
)

// Notice status values.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// Command is one decoded stdin line.
//
// Value carries the dimming level for CmdSetOpacity. A missing "value"
// field decodes to 0, matching the original helper's behavior.
type Command struct {
	Cmd   string  `json:"cmd"`
	Value float64 `json:"value,omitempty"`
}

// Notice is the one-shot startup message on stdout. Exactly one of
// Monitors (ready) or Message (error) is meaningful.
type Notice struct {
	Status   string   `json:"status"`
	Monitors []string `json:"monitors,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// readyNotice fixes the ready wire shape: monitors is always present,
// even when empty.
type readyNotice struct {
	Status   string   `json:"status"`
	Monitors []string `json:"monitors"`
}

type errorNotice struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// EncodeReady returns the compact readiness line (without trailing newline)
// listing the discovered monitors in enumeration order.
func EncodeReady(monitors []string) ([]byte, error) {
	if monitors == nil {
		monitors = []string{}
	}
	return json.Marshal(readyNotice{Status: StatusReady, Monitors: monitors})
}

// EncodeError returns a startup error notice line (without trailing newline).
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(errorNotice{Status: StatusError, Message: message})
}

// EncodeCommand returns one command line (without trailing newline).
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd.Cmd == "" {
		return nil, fmt.Errorf("encode command: empty discriminator")
	}
	return json.Marshal(cmd)
}

// ParseCommand decodes one stdin line. ok is false when the line is empty,
// is not a JSON object, or has no string "cmd" field; such lines are
// no-ops by contract. An unrecognized discriminator still parses: deciding
// what to do with it belongs to the control loop.
func ParseCommand(line []byte) (Command, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Command{}, false
	}

	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return Command{}, false
	}
	if cmd.Cmd == "" {
		return Command{}, false
	}
	return cmd, true
}

// ParseNotice decodes the helper's startup line. Used by the controlling
// side of the protocol.
func ParseNotice(line []byte) (Notice, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Notice{}, fmt.Errorf("parse notice: empty line")
	}

	var n Notice
	if err := json.Unmarshal(line, &n); err != nil {
		return Notice{}, fmt.Errorf("parse notice: %w", err)
	}
	switch n.Status {
	case StatusReady, StatusError:
		return n, nil
	default:
		return Notice{}, fmt.Errorf("parse notice: unknown status %q", n.Status)
	}
}
