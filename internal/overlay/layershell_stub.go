//go:build !linux || !cgo

package overlay

import "errors"

// NewLayerShellBackend is unavailable without cgo and GTK4; the X11
// backend remains usable from pure Go builds.
func NewLayerShellBackend(ceiling float64) (Backend, error) {
	return nil, errors.New("layer-shell backend requires a cgo build with gtk4 and gtk4-layer-shell")
}
