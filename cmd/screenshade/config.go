package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"screenshade/internal/overlay"
)

// Config is the top-level YAML configuration for the screenshade helper.
//
// The zero-config invocation is the contract: spawn with no flags, read
// the readiness notice, stream commands. Everything here only adds
// observer and logging knobs on top of that, with defaults that leave
// every extra surface disabled.
type Config struct {
	// Overlay rendering configuration
	Overlay OverlayConfig `yaml:"overlay"`

	// State observer WebSocket endpoint (disabled unless an address is set)
	StateWS StateWSConfig `yaml:"state_ws"`

	// Logging (stderr only)
	Logging LoggingConfig `yaml:"logging"`
}

type OverlayConfig struct {
	// Backend selects the windowing path: auto, layer-shell, or x11.
	Backend string `yaml:"backend"`

	// MaxOpacity is the fill ceiling applied to the dimming level.
	// Kept below 1.0 so a maxed-out overlay never blacks the screen out.
	MaxOpacity float64 `yaml:"max_opacity"`
}

type StateWSConfig struct {
	// Addr is the HTTP listen address (e.g. "127.0.0.1:7621").
	// Empty disables the endpoint.
	Addr string `yaml:"addr"`

	// Path is the WebSocket mount point.
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Overlay: OverlayConfig{
			Backend:    overlay.BackendAuto,
			MaxOpacity: overlay.MaxOpacityCeiling,
		},
		StateWS: StateWSConfig{
			Addr: "",
			Path: defaultStateWSPath,
		},
		Logging: LoggingConfig{
			Level: string(LogLevelInfo),
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. Unknown keys are
// rejected so typos surface instead of silently doing nothing.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the helper cannot run with.
func (c Config) Validate() error {
	switch c.Overlay.Backend {
	case overlay.BackendAuto, overlay.BackendLayerShell, overlay.BackendX11:
	default:
		return fmt.Errorf("overlay.backend must be one of: %s, %s, %s",
			overlay.BackendAuto, overlay.BackendLayerShell, overlay.BackendX11)
	}

	if c.Overlay.MaxOpacity <= 0 || c.Overlay.MaxOpacity > 1 {
		return fmt.Errorf("overlay.max_opacity must be in (0, 1], got %v", c.Overlay.MaxOpacity)
	}

	if c.StateWS.Addr != "" && c.StateWS.Path == "" {
		return fmt.Errorf("state_ws.path must be set when state_ws.addr is")
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}
