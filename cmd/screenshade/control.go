package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"screenshade/internal/overlay"
	"screenshade/internal/shadeproto"
)

// controlLoop owns the surface stage for the life of the process.
//
// Two phases: start builds one surface per display and emits the
// readiness notice; run applies commands until quit. The controller
// never observes "ready" before every display has a surface, and no
// command is ever answered — a bad line and a successful one look the
// same from the outside.
type controlLoop struct {
	backend overlay.Backend
	stage   *overlay.Stage
	out     io.Writer
	logger  *slog.Logger

	// level mirrors the stage's clamped level so snapshots never have to
	// cross onto the event-loop thread.
	level float64

	// onChange, when set, receives a snapshot after every applied
	// command. Used by the state observer hub; nil when disabled.
	onChange func(stateSnapshot)
}

// stateSnapshot is the externally visible state of the helper.
type stateSnapshot struct {
	Level    float64  `json:"level"`
	Monitors []string `json:"monitors"`
	Backend  string   `json:"backend"`
}

// start enumerates displays, creates the surfaces, and emits the
// readiness notice. Runs on the backend's event-loop thread, before the
// backend starts dispatching.
func (l *controlLoop) start() error {
	stage, err := overlay.NewStage(l.backend)
	if err != nil {
		return err
	}
	l.stage = stage

	line, err := shadeproto.EncodeReady(stage.MonitorNames())
	if err != nil {
		return fmt.Errorf("encode readiness notice: %w", err)
	}
	// os.Stdout is unbuffered; one Write is the flush.
	if _, err := l.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write readiness notice: %w", err)
	}

	l.logger.Info("ready", "backend", l.backend.Name(), "monitors", stage.MonitorNames())
	return nil
}

// run consumes command lines until quit, end of context, or a closed
// lines channel. Malformed and unrecognized lines are dropped without a
// trace on stdout; that silence is the protocol, not an oversight.
func (l *controlLoop) run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				return nil
			}

			cmd, ok := shadeproto.ParseCommand([]byte(line))
			if !ok {
				l.logger.Debug("ignoring undecodable input", "line", line)
				continue
			}

			switch cmd.Cmd {
			case shadeproto.CmdSetOpacity:
				l.apply(cmd.Value)

			case shadeproto.CmdQuit:
				l.logger.Info("quit requested")
				return nil

			default:
				l.logger.Debug("ignoring unknown command", "cmd", cmd.Cmd)
			}
		}
	}
}

// apply broadcasts a level to every surface on the event-loop thread.
func (l *controlLoop) apply(value float64) {
	l.level = overlay.ClampLevel(value)
	l.logger.Debug("set opacity", "level", l.level)

	l.backend.Dispatch(func() {
		l.stage.SetLevel(value)
	})

	if l.onChange != nil {
		l.onChange(l.snapshot())
	}
}

func (l *controlLoop) snapshot() stateSnapshot {
	return stateSnapshot{
		Level:    l.level,
		Monitors: l.stage.MonitorNames(),
		Backend:  l.backend.Name(),
	}
}
