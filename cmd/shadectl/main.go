package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"screenshade/internal/fade"
	"screenshade/internal/shadeclient"
)

// ============================================================================
// shadectl - screenshade controller
// ============================================================================
// Spawns the screenshade helper, performs the readiness handshake, and
// drives its stdin. The helper only dims; policy (fades, key bindings,
// the D-Bus surface) lives here.
//
// Usage:
//   shadectl set 0.5
//   shadectl fade 0.8
//   shadectl interactive
//   shadectl serve
// ============================================================================

const version = "1.0.0"

func printUsage() {
	fmt.Fprintf(os.Stderr, `shadectl v%s - drive the screenshade dimming helper

Usage:
  shadectl [options] <command> [args]

Commands:
  set <level>       Dim to <level> (0..1) immediately and hold until SIGINT
  fade <level>      Ease in to <level>, hold until SIGINT, ease back out
  interactive       Raw-terminal mode: +/- steps, 0-9 presets, q quits
  serve             Stay resident and expose a D-Bus control interface
  help              Show this help message

Options:
  -helper PATH        Helper binary (default "screenshade", found via PATH)
  -backend NAME       Backend passed through to the helper: auto, layer-shell, x11
  -ready-timeout DUR  How long to wait for the readiness notice (default %v)
  -ease-in RATE       Level increase per tick while fading in (default %v)
  -ease-out RATE      Level decrease per tick while fading out (default %v)
  -interval-ms MS     Fade tick interval in milliseconds (default %d)
  -dbus-name NAME     Bus name claimed by serve (default %q)
  -log-level LEVEL    error, warn, info, debug (default "info")

Examples:
  shadectl set 0.5
  shadectl -ease-in 0.03 fade 1
  shadectl -backend x11 interactive
`, version, shadeclient.DefaultReadyTimeout, fade.DefaultEaseInPerTick,
		fade.DefaultEaseOutPerTick, fade.DefaultIntervalMS, defaultBusName)
}

// app bundles the running helper with the fade engine. The mutex guards
// the engine: fades tick on one goroutine while GetStatus reads from the
// D-Bus dispatcher.
type app struct {
	helper   *shadeclient.Helper
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	engine *fade.Engine
}

func main() {
	var (
		helperPath   = flag.String("helper", "screenshade", "Helper binary path")
		backendKind  = flag.String("backend", "", "Backend passed to the helper")
		readyTimeout = flag.Duration("ready-timeout", shadeclient.DefaultReadyTimeout, "Readiness handshake timeout")
		easeIn       = flag.Float64("ease-in", fade.DefaultEaseInPerTick, "Fade-in rate per tick")
		easeOut      = flag.Float64("ease-out", fade.DefaultEaseOutPerTick, "Fade-out rate per tick")
		intervalMS   = flag.Int("interval-ms", fade.DefaultIntervalMS, "Fade tick interval (ms)")
		busName      = flag.String("dbus-name", defaultBusName, "D-Bus name for serve")
		logLevelStr  = flag.String("log-level", "info", "Log level")
		showVersion  = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("shadectl v%s\n", version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Validate the command before spawning anything.
	command := args[0]
	var level float64
	switch command {
	case "set", "fade":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: %s requires a level argument\n", command)
			os.Exit(1)
		}
		var err error
		level, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid level %q: %v\n", args[1], err)
			os.Exit(1)
		}

	case "interactive", "serve":

	case "help", "-h", "--help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(*logLevelStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	// Unlike the helper, the controller is an ordinary foreground app:
	// SIGINT/SIGTERM trigger an orderly fade-out and helper shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var helperArgs []string
	if *backendKind != "" {
		helperArgs = append(helperArgs, "-backend", *backendKind)
	}

	helper, err := shadeclient.Start(*helperPath, helperArgs, logger, *readyTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger.Info("overlays ready", "monitors", helper.Monitors())

	a := &app{
		helper:   helper,
		engine:   fade.New(*easeIn, *easeOut),
		interval: time.Duration(*intervalMS) * time.Millisecond,
		logger:   logger,
	}

	var runErr error
	switch command {
	case "set":
		runErr = a.runHold(ctx, level, false)
	case "fade":
		runErr = a.runHold(ctx, level, true)
	case "interactive":
		runErr = a.runInteractive(ctx)
	case "serve":
		runErr = a.serveDBus(ctx, *busName)
	}

	if err := helper.Stop(3 * time.Second); err != nil {
		logger.Debug("helper exit", "error", err)
	}
	if runErr != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

// runHold applies a level, waits for a termination signal, then eases the
// overlay back out so the screen never snaps from dimmed to clear.
func (a *app) runHold(ctx context.Context, level float64, eased bool) error {
	if eased {
		if err := a.fadeTo(ctx, level); err != nil && ctx.Err() == nil {
			return err
		}
	} else {
		if err := a.set(level); err != nil {
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	// The signal context is spent; the fade-out gets its own deadline.
	out, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.fadeTo(out, 0)
}

// set jumps the overlay to a level with no transition.
func (a *app) set(level float64) error {
	a.mu.Lock()
	a.engine.Jump(level)
	a.engine.SetTarget(level)
	a.mu.Unlock()
	return a.helper.SetOpacity(level)
}

// fadeTo eases the overlay toward target, one command per tick, and
// returns once the engine settles.
func (a *app) fadeTo(ctx context.Context, target float64) error {
	a.mu.Lock()
	a.engine.SetTarget(target)
	settled := a.engine.Settled()
	a.mu.Unlock()
	if settled {
		return nil
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.mu.Lock()
			level, changed := a.engine.Step()
			settled := a.engine.Settled()
			a.mu.Unlock()

			if changed {
				if err := a.helper.SetOpacity(level); err != nil {
					return err
				}
			}
			if settled {
				return nil
			}
		}
	}
}

// current returns the engine's present level.
func (a *app) current() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.Current()
}
