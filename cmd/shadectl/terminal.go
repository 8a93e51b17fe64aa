package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

const interactiveStep = 0.05

// runInteractive adjusts the dimming level from a raw terminal.
// Keys: + / - step the level, digits jump to n/10, q (or Ctrl-C) quits.
func (a *app) runInteractive(ctx context.Context) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("interactive mode needs a terminal on stdin")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer func() {
		_ = term.Restore(fd, oldState)
		fmt.Print("\r\n")
	}()

	// Raw mode: lines end with \r\n and nothing echoes.
	fmt.Print("screenshade interactive: +/- step, 0-9 presets, q quits\r\n")
	a.printLevel()

	keys := make(chan byte, 8)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := os.Stdin.Read(buf); err != nil {
				close(keys)
				return
			}
			keys <- buf[0]
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case key, ok := <-keys:
			if !ok {
				return nil
			}

			switch {
			case key == 'q' || key == 3 || key == 4: // q, Ctrl-C, Ctrl-D
				return nil

			case key == '+' || key == '=':
				if err := a.set(a.current() + interactiveStep); err != nil {
					return err
				}
				a.printLevel()

			case key == '-' || key == '_':
				if err := a.set(a.current() - interactiveStep); err != nil {
					return err
				}
				a.printLevel()

			case key >= '0' && key <= '9':
				if err := a.set(float64(key-'0') / 10); err != nil {
					return err
				}
				a.printLevel()
			}
		}
	}
}

func (a *app) printLevel() {
	fmt.Printf("\rlevel %.2f   ", a.current())
}
