package main

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// watchStdin delivers complete lines from standard input on lines.
//
// poll(2) parks the goroutine until the controller actually writes, so
// an idle helper costs nothing; the blocking line read after a wakeup is
// fine because the trusted controller writes whole lines atomically.
//
// End-of-stream is not a shutdown signal: the controller may close stdin
// and keep the overlay up, so on EOF the watcher just stops and the
// control loop keeps waiting for its other inputs. The channel is never
// closed.
func watchStdin(lines chan<- string, logger *slog.Logger) {
	fd := int32(os.Stdin.Fd())
	reader := bufio.NewReader(os.Stdin)

	for {
		fds := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			logger.Debug("stdin poll failed, stopping watcher", "error", err)
			return
		}
		if n == 0 || fds[0].Revents&(unix.POLLIN|unix.POLLHUP) == 0 {
			continue
		}

		// Drain every buffered line before polling again; poll only sees
		// the fd, not what bufio already consumed.
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				lines <- line
			}
			if err != nil {
				if err != io.EOF {
					logger.Debug("stdin read failed, stopping watcher", "error", err)
				} else {
					logger.Debug("controller closed stdin")
				}
				return
			}
			if reader.Buffered() == 0 {
				break
			}
		}
	}
}
