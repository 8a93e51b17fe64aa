//go:build linux && cgo

package overlay

/*
#cgo pkg-config: gtk4 gtk4-layer-shell-0
#include <gtk/gtk.h>
#include <gtk4-layer-shell.h>

extern gboolean shadeDispatchIdle(gpointer data);

static void shade_draw(GtkDrawingArea *area, cairo_t *cr, int width, int height, gpointer data) {
	double alpha = *(double *)data;
	cairo_set_source_rgba(cr, 0, 0, 0, alpha);
	cairo_set_operator(cr, CAIRO_OPERATOR_SOURCE);
	cairo_paint(cr);
}

static double *shade_alpha_new(void) {
	return g_new0(double, 1);
}

static GtkWindow *shade_create_window(GdkMonitor *monitor, double *alpha) {
	GtkWindow *win = GTK_WINDOW(gtk_window_new());

	gtk_layer_init_for_window(win);
	gtk_layer_set_layer(win, GTK_LAYER_SHELL_LAYER_OVERLAY);
	gtk_layer_set_monitor(win, monitor);
	gtk_layer_set_exclusive_zone(win, -1);
	gtk_layer_set_keyboard_mode(win, GTK_LAYER_SHELL_KEYBOARD_MODE_NONE);
	gtk_layer_set_anchor(win, GTK_LAYER_SHELL_EDGE_TOP, TRUE);
	gtk_layer_set_anchor(win, GTK_LAYER_SHELL_EDGE_BOTTOM, TRUE);
	gtk_layer_set_anchor(win, GTK_LAYER_SHELL_EDGE_LEFT, TRUE);
	gtk_layer_set_anchor(win, GTK_LAYER_SHELL_EDGE_RIGHT, TRUE);

	GtkWidget *area = gtk_drawing_area_new();
	gtk_drawing_area_set_draw_func(GTK_DRAWING_AREA(area), shade_draw, alpha, NULL);
	gtk_window_set_child(win, area);

	gtk_window_present(win);
	return win;
}

static void shade_queue_draw(GtkWindow *win) {
	gtk_widget_queue_draw(GTK_WIDGET(win));
}

static GdkMonitor *shade_monitor_at(GListModel *monitors, guint i) {
	return GDK_MONITOR(g_list_model_get_item(monitors, i));
}

static void shade_schedule_flush(void) {
	g_idle_add(shadeDispatchIdle, NULL);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

// LayerShellBackend renders overlays as zwlr_layer_shell_v1 surfaces on the
// OVERLAY layer through GTK4 and gtk4-layer-shell: anchored to all four
// edges, exclusive zone -1, keyboard mode none. This is the Wayland path;
// it requires the process main thread to run the GTK main loop.
type LayerShellBackend struct {
	loop    *C.GMainLoop
	ceiling float64

	monitors []*C.GdkMonitor
	displays []Display
	bound    []bool

	mu    sync.Mutex
	queue []func()

	quitOnce sync.Once
}

// activeLayerShell is the backend reachable from the GLib idle callback.
// At most one backend exists per process.
var activeLayerShell *LayerShellBackend

// NewLayerShellBackend initializes GTK and verifies the compositor speaks
// the layer-shell protocol. Must be called on the locked main thread.
func NewLayerShellBackend(ceiling float64) (*LayerShellBackend, error) {
	if C.gtk_init_check() == C.FALSE {
		return nil, errors.New("gtk: cannot open display")
	}
	if C.gtk_layer_is_supported() == C.FALSE {
		return nil, errors.New("layer-shell: compositor does not support zwlr_layer_shell_v1")
	}

	b := &LayerShellBackend{
		loop:    C.g_main_loop_new(nil, C.FALSE),
		ceiling: ceiling,
	}
	activeLayerShell = b
	return b, nil
}

func (b *LayerShellBackend) Name() string { return "layer-shell" }

// Displays enumerates GDK monitors. The name is the connector
// (DP-1, HDMI-1, ...), falling back to the model string.
func (b *LayerShellBackend) Displays() ([]Display, error) {
	display := C.gdk_display_get_default()
	if display == nil {
		return nil, errors.New("gdk: no default display")
	}

	model := C.gdk_display_get_monitors(display)
	n := int(C.g_list_model_get_n_items(model))

	b.monitors = make([]*C.GdkMonitor, 0, n)
	b.displays = make([]Display, 0, n)
	b.bound = make([]bool, n)

	for i := 0; i < n; i++ {
		mon := C.shade_monitor_at(model, C.guint(i))

		name := ""
		if c := C.gdk_monitor_get_connector(mon); c != nil {
			name = C.GoString(c)
		}
		if name == "" {
			if c := C.gdk_monitor_get_model(mon); c != nil {
				name = C.GoString(c)
			}
		}
		if name == "" {
			name = fmt.Sprintf("monitor-%d", i)
		}

		var geo C.GdkRectangle
		C.gdk_monitor_get_geometry(mon, &geo)

		b.monitors = append(b.monitors, mon)
		b.displays = append(b.displays, Display{
			Name: name,
			Geometry: image.Rect(
				int(geo.x), int(geo.y),
				int(geo.x)+int(geo.width), int(geo.y)+int(geo.height),
			),
		})
	}
	return b.displays, nil
}

// CreateSurface presents a layer-shell window on d's monitor. The window
// is created invisible (alpha 0) and stays mapped until process exit.
func (b *LayerShellBackend) CreateSurface(d Display) (Surface, error) {
	idx := -1
	for i, known := range b.displays {
		if !b.bound[i] && known.Name == d.Name && known.Geometry == d.Geometry {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unknown display %q", d.Name)
	}
	b.bound[idx] = true

	alpha := C.shade_alpha_new()
	win := C.shade_create_window(b.monitors[idx], alpha)

	return &layerShellSurface{
		backend: b,
		win:     win,
		alpha:   alpha,
		display: d,
	}, nil
}

// Run executes the GTK main loop on the calling (locked main) thread.
func (b *LayerShellBackend) Run() error {
	C.g_main_loop_run(b.loop)
	return nil
}

// Dispatch queues fn and wakes the GTK loop with an idle source, so fn
// runs on the main thread between event dispatches.
func (b *LayerShellBackend) Dispatch(fn func()) {
	b.mu.Lock()
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
	C.shade_schedule_flush()
}

// flushDispatch drains the queued closures. Runs on the GTK main thread.
func (b *LayerShellBackend) flushDispatch() {
	b.mu.Lock()
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Quit stops the main loop. g_main_loop_quit is safe from any thread.
func (b *LayerShellBackend) Quit() {
	b.quitOnce.Do(func() {
		C.g_main_loop_quit(b.loop)
	})
}

// Close tears down the loop handle. Window destruction is left to process
// exit, like every other resource here. Call after Run has returned.
func (b *LayerShellBackend) Close() error {
	C.g_main_loop_unref(b.loop)
	return nil
}

type layerShellSurface struct {
	backend *LayerShellBackend
	win     *C.GtkWindow
	alpha   *C.double
	display Display
	level   float64
}

// SetLevel stores the clamped level, updates the fill alpha read by the
// draw callback, and queues a redraw. Main thread only.
func (s *layerShellSurface) SetLevel(v float64) {
	s.level = ClampLevel(v)
	*s.alpha = C.double(Alpha(s.level, s.backend.ceiling))
	C.shade_queue_draw(s.win)
}

func (s *layerShellSurface) Level() float64 { return s.level }

func (s *layerShellSurface) Display() Display { return s.display }
