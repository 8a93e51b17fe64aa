package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"screenshade/internal/overlay"
	"screenshade/internal/shadeproto"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("screenshade v%s\n", version)
	fmt.Println("Per-monitor screen dimming helper for Wayland (layer-shell) and X11")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  screenshade [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Helper process spawned by a controlling application. Creates one")
	fmt.Println("  translucent always-on-top overlay per connected display, prints a")
	fmt.Println("  readiness notice to stdout, then reads JSON commands from stdin:")
	fmt.Println()
	fmt.Println("    {\"cmd\":\"set_opacity\",\"value\":0.5}")
	fmt.Println("    {\"cmd\":\"quit\"}")
	fmt.Println()
	fmt.Println("  Lines that don't decode are ignored. Commands are never answered.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional)")
	fmt.Println()
	fmt.Println("  -backend string")
	fmt.Println("        Windowing backend: auto, layer-shell, x11 (default \"auto\")")
	fmt.Println()
	fmt.Println("  -state-ws string")
	fmt.Println("        Listen address for the read-only state observer WebSocket")
	fmt.Println("        (e.g. \"127.0.0.1:7621\"; default disabled)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println("        Logs go to stderr; stdout carries only the readiness notice")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
}

// emitStartupError reports an unrecoverable startup fault on the protocol
// channel so the controller sees why the helper never became ready.
func emitStartupError(err error) {
	line, encErr := shadeproto.EncodeError(err.Error())
	if encErr != nil {
		return
	}
	_, _ = os.Stdout.Write(append(line, '\n'))
}

func main() {
	// Whichever backend wins, its event loop stays on this thread.
	runtime.LockOSThread()

	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		backendKind = flag.String("backend", "", "Windowing backend: auto, layer-shell, x11")
		stateWSAddr = flag.String("state-ws", "", "State observer WebSocket listen address")
		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	// Config file first, flags override.
	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
	if *backendKind != "" {
		cfg.Overlay.Backend = *backendKind
	}
	if *stateWSAddr != "" {
		cfg.StateWS.Addr = *stateWSAddr
	}
	if *logLevelStr != "" {
		cfg.Logging.Level = *logLevelStr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	backend, err := overlay.Select(cfg.Overlay.Backend, cfg.Overlay.MaxOpacity)
	if err != nil {
		emitStartupError(err)
		logger.Error("failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	loop := &controlLoop{backend: backend, out: os.Stdout, logger: logger}
	if err := loop.start(); err != nil {
		emitStartupError(err)
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.StateWS.Addr != "" {
		server := newStateServer(logger, loop.snapshot(), HubConfig{})
		loop.onChange = server.Publish
		g.Go(func() error {
			server.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			return runStateWS(ctx, cfg.StateWS.Addr, cfg.StateWS.Path, server, logger)
		})
	}

	lines := make(chan string, stdinLineBuffer)
	go watchStdin(lines, logger)

	g.Go(func() error {
		// Quitting the backend unblocks Run below for every exit path.
		defer backend.Quit()
		return loop.run(ctx, lines)
	})

	// The backend event loop owns the main thread until quit. External
	// termination signals are deliberately left to default OS behavior.
	runErr := backend.Run()
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("control loop failed", "error", err)
		os.Exit(1)
	}
	if runErr != nil {
		logger.Error("event loop failed", "error", runErr)
		os.Exit(1)
	}
	logger.Debug("exiting")
}
