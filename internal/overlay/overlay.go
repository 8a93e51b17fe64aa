// Package overlay presents per-display dimming surfaces behind a small
// capability interface, so the control loop never touches a windowing
// system directly. Two backends exist: a Wayland layer-shell backend
// (GTK4 + gtk4-layer-shell, cgo) and an X11 backend (jezek/xgb).
package overlay

import (
	"fmt"
	"image"
	"os"
)

// MaxOpacityCeiling is the default fixed ceiling applied to the dimming
// level before it becomes a fill alpha. Level 1.0 still leaves the screen
// faintly visible through the overlay.
const MaxOpacityCeiling = 0.85

// Display is one connected output as the compositor enumerates it.
// Read-only to this package; geometry is fixed at enumeration time.
type Display struct {
	Name     string
	Geometry image.Rectangle
}

// Surface is one always-on-top, keyboard-transparent fill covering a
// single display. A surface has exactly one operational state from
// creation to process exit.
type Surface interface {
	// SetLevel clamps v into [0,1], stores it, and schedules a redraw.
	// Must be called on the backend's event-loop thread (see
	// Backend.Dispatch). Idempotent; out-of-range input is not an error.
	SetLevel(v float64)

	// Level returns the stored (clamped) dimming level.
	Level() float64

	// Display returns the display this surface is bound to.
	Display() Display
}

// Backend is the windowing-system capability the control loop drives.
type Backend interface {
	// Name identifies the backend ("layer-shell", "x11").
	Name() string

	// Displays enumerates the connected displays. Stable order for the
	// lifetime of the process; called once during startup.
	Displays() ([]Display, error)

	// CreateSurface creates a visible overlay surface bound to d's
	// current geometry: borderless, always on top, no keyboard focus,
	// no exclusive screen-space reservation.
	CreateSurface(d Display) (Surface, error)

	// Run blocks dispatching windowing-system events until Quit is
	// called. It must run on the thread that created the backend.
	Run() error

	// Dispatch schedules fn on the event-loop thread. All surface
	// mutation goes through here so there is exactly one mutating thread.
	Dispatch(fn func())

	// Quit unwinds Run. Safe to call from any goroutine.
	Quit()

	// Close releases the windowing-system connection.
	Close() error
}

// ClampLevel bounds a dimming level to [0,1]. NaN collapses to 0 so no
// unrepresentable level is ever stored.
func ClampLevel(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Alpha returns the fill alpha for a level under a ceiling, as a fraction.
func Alpha(level, ceiling float64) float64 {
	return ClampLevel(level) * ceiling
}

// Alpha8 returns the fill alpha in an 8-bit channel model. Truncates like
// the integer conversion it replaces: level 0.5 under the default ceiling
// is 108, level 1.0 is 216.
func Alpha8(level, ceiling float64) uint8 {
	return uint8(Alpha(level, ceiling) * 255)
}

// Stage is the ordered collection of surfaces, one per display found at
// startup. It is owned by the control loop: built once, never mutated
// afterwards, and iterated read-only on every broadcast.
type Stage struct {
	backend  Backend
	surfaces []Surface
	names    []string
	level    float64
}

// NewStage enumerates displays through the backend and creates one surface
// per display, in enumeration order. Any failure is a startup fault; there
// is no partial recovery.
func NewStage(backend Backend) (*Stage, error) {
	displays, err := backend.Displays()
	if err != nil {
		return nil, fmt.Errorf("enumerate displays: %w", err)
	}

	st := &Stage{
		backend:  backend,
		surfaces: make([]Surface, 0, len(displays)),
		names:    make([]string, 0, len(displays)),
	}
	for _, d := range displays {
		s, err := backend.CreateSurface(d)
		if err != nil {
			return nil, fmt.Errorf("create surface for %s: %w", d.Name, err)
		}
		st.surfaces = append(st.surfaces, s)
		st.names = append(st.names, d.Name)
	}
	return st, nil
}

// MonitorNames returns the display names in enumeration order.
func (st *Stage) MonitorNames() []string {
	return st.names
}

// Size returns the number of surfaces.
func (st *Stage) Size() int {
	return len(st.surfaces)
}

// SetLevel clamps v and applies it to every surface. There is no
// per-display addressing: all displays dim identically.
// Must run on the backend's event-loop thread.
func (st *Stage) SetLevel(v float64) {
	st.level = ClampLevel(v)
	for _, s := range st.surfaces {
		s.SetLevel(st.level)
	}
}

// Level returns the last applied (clamped) level.
func (st *Stage) Level() float64 {
	return st.level
}

// Backend kind names accepted by Select.
const (
	BackendAuto       = "auto"
	BackendLayerShell = "layer-shell"
	BackendX11        = "x11"
)

// Select builds the backend for kind. BackendAuto prefers layer-shell
// when a Wayland session is present, falling back to X11.
func Select(kind string, ceiling float64) (Backend, error) {
	switch kind {
	case BackendLayerShell:
		return NewLayerShellBackend(ceiling)
	case BackendX11:
		return NewX11Backend(ceiling)
	case BackendAuto, "":
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			b, err := NewLayerShellBackend(ceiling)
			if err == nil {
				return b, nil
			}
		}
		return NewX11Backend(ceiling)
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}
