package main

import (
	"os"
	"path/filepath"
	"testing"

	"screenshade/internal/overlay"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Overlay.Backend != overlay.BackendAuto {
		t.Errorf("default backend = %q, want %q", cfg.Overlay.Backend, overlay.BackendAuto)
	}
	if cfg.Overlay.MaxOpacity != overlay.MaxOpacityCeiling {
		t.Errorf("default max_opacity = %v, want %v", cfg.Overlay.MaxOpacity, overlay.MaxOpacityCeiling)
	}
	if cfg.StateWS.Addr != "" {
		t.Errorf("state observer enabled by default: %q", cfg.StateWS.Addr)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
overlay:
  backend: x11
  max_opacity: 0.7
state_ws:
  addr: "127.0.0.1:7621"
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}

	if cfg.Overlay.Backend != overlay.BackendX11 {
		t.Errorf("backend = %q, want %q", cfg.Overlay.Backend, overlay.BackendX11)
	}
	if cfg.Overlay.MaxOpacity != 0.7 {
		t.Errorf("max_opacity = %v, want 0.7", cfg.Overlay.MaxOpacity)
	}
	if cfg.StateWS.Addr != "127.0.0.1:7621" {
		t.Errorf("state_ws.addr = %q", cfg.StateWS.Addr)
	}
	// Unset keys keep their defaults.
	if cfg.StateWS.Path != defaultStateWSPath {
		t.Errorf("state_ws.path = %q, want default %q", cfg.StateWS.Path, defaultStateWSPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
overlay:
  backend: auto
  opacity_max: 0.7
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Overlay.Backend = "cocoa" }},
		{"zero max opacity", func(c *Config) { c.Overlay.MaxOpacity = 0 }},
		{"max opacity above one", func(c *Config) { c.Overlay.MaxOpacity = 1.5 }},
		{"ws addr without path", func(c *Config) {
			c.StateWS.Addr = "127.0.0.1:7621"
			c.StateWS.Path = ""
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"error", "warn", "warning", "info", "debug", "INFO"} {
		if _, err := parseLogLevel(s); err != nil {
			t.Errorf("parseLogLevel(%q) failed: %v", s, err)
		}
	}
	if _, err := parseLogLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
}
