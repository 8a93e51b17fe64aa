// Package shadeclient is the controlling side of the helper protocol:
// it spawns the screenshade process, performs the readiness handshake,
// and streams commands to its stdin. The helper never answers commands,
// so every sender returns only transport errors.
package shadeclient

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"screenshade/internal/shadeproto"
)

// DefaultReadyTimeout bounds how long the readiness notice may take.
// Surface creation is quick; a helper that stays silent this long is stuck.
const DefaultReadyTimeout = 10 * time.Second

// Helper is a running (or attached) overlay helper process.
type Helper struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	mu    sync.Mutex
	stdin io.Writer

	monitors []string
}

// Start spawns the helper binary at path, forwards its stderr, and waits
// for the readiness notice. On handshake failure the process is killed.
//
// The helper's lifetime is managed through Stop, not a context: tying the
// spawn to a signal context would kill the overlay before the caller gets
// to fade it out.
func Start(path string, args []string, logger *slog.Logger, readyTimeout time.Duration) (*Helper, error) {
	cmd := exec.Command(path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start helper %s: %w", path, err)
	}
	logger.Debug("helper started", "path", path, "pid", cmd.Process.Pid)

	h := &Helper{cmd: cmd, logger: logger, stdin: stdin}
	if err := h.handshake(stdout, readyTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return h, nil
}

// Attach wires a Helper over existing pipes and performs the handshake.
// Used when the caller owns the process, and by tests.
func Attach(stdin io.Writer, stdout io.Reader, logger *slog.Logger, readyTimeout time.Duration) (*Helper, error) {
	h := &Helper{logger: logger, stdin: stdin}
	if err := h.handshake(stdout, readyTimeout); err != nil {
		return nil, err
	}
	return h, nil
}

// handshake reads the one-shot startup notice.
func (h *Helper) handshake(stdout io.Reader, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	type result struct {
		notice shadeproto.Notice
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				ch <- result{err: fmt.Errorf("read readiness notice: %w", err)}
			} else {
				ch <- result{err: fmt.Errorf("helper closed stdout before readiness notice")}
			}
			return
		}
		n, err := shadeproto.ParseNotice(scanner.Bytes())
		ch <- result{notice: n, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if r.notice.Status == shadeproto.StatusError {
			return fmt.Errorf("helper failed to start: %s", r.notice.Message)
		}
		h.monitors = r.notice.Monitors
		h.logger.Debug("helper ready", "monitors", h.monitors)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("helper not ready after %v", timeout)
	}
}

// Monitors returns the display names the helper reported, in the helper's
// enumeration order.
func (h *Helper) Monitors() []string {
	return h.monitors
}

// SetOpacity broadcasts a dimming level to every overlay. The helper
// clamps; callers may send raw values.
func (h *Helper) SetOpacity(level float64) error {
	return h.send(shadeproto.Command{Cmd: shadeproto.CmdSetOpacity, Value: level})
}

// Quit asks the helper to terminate.
func (h *Helper) Quit() error {
	return h.send(shadeproto.Command{Cmd: shadeproto.CmdQuit})
}

func (h *Helper) send(cmd shadeproto.Command) error {
	line, err := shadeproto.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Cmd, err)
	}
	return nil
}

// Stop requests orderly termination and waits for the process to exit,
// killing it after timeout. No-op for attached helpers.
func (h *Helper) Stop(timeout time.Duration) error {
	if err := h.Quit(); err != nil {
		h.logger.Debug("quit command failed, killing helper", "error", err)
	}
	if h.cmd == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		h.logger.Warn("helper did not exit, killing", "pid", h.cmd.Process.Pid)
		_ = h.cmd.Process.Kill()
		return <-done
	}
}
