package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/shape"
	"github.com/jezek/xgb/xfixes"
	"github.com/jezek/xgb/xproto"
)

// X11Backend creates one override-redirect window per connected RandR
// output. Dimming is applied through the _NET_WM_WINDOW_OPACITY property
// on a solid black window, so a running compositor is assumed (the same
// assumption every translucent X11 overlay makes). The input shape is
// emptied via XFixes so clicks and keys pass straight through.
type X11Backend struct {
	conn    *xgb.Conn
	screen  *xproto.ScreenInfo
	ceiling float64

	opacityAtom xproto.Atom

	dispatch chan func()
	quit     chan struct{}
	quitOnce sync.Once

	surfaces map[xproto.Window]*x11Surface
}

// NewX11Backend connects to the X server and initializes the RandR,
// Shape and XFixes extensions.
func NewX11Backend(ceiling float64) (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}

	if err := randr.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init randr: %w", err)
	}
	if err := shape.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init shape: %w", err)
	}
	if err := xfixes.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init xfixes: %w", err)
	}
	// Region requests are available from XFixes 2.0 on; the version
	// handshake is mandatory before using them.
	if _, err := xfixes.QueryVersion(conn, 5, 0).Reply(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("xfixes version handshake: %w", err)
	}

	atomName := "_NET_WM_WINDOW_OPACITY"
	atomReply, err := xproto.InternAtom(conn, false, uint16(len(atomName)), atomName).Reply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("intern %s: %w", atomName, err)
	}

	return &X11Backend{
		conn:        conn,
		screen:      xproto.Setup(conn).DefaultScreen(conn),
		ceiling:     ceiling,
		opacityAtom: atomReply.Atom,
		dispatch:    make(chan func(), 16),
		quit:        make(chan struct{}),
		surfaces:    make(map[xproto.Window]*x11Surface),
	}, nil
}

func (b *X11Backend) Name() string { return "x11" }

// Displays lists connected RandR outputs that are driven by a CRTC.
// The output name is the connector name (DP-1, HDMI-1, ...).
func (b *X11Backend) Displays() ([]Display, error) {
	res, err := randr.GetScreenResourcesCurrent(b.conn, b.screen.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("get screen resources: %w", err)
	}

	var displays []Display
	for _, output := range res.Outputs {
		info, err := randr.GetOutputInfo(b.conn, output, res.ConfigTimestamp).Reply()
		if err != nil {
			return nil, fmt.Errorf("get output info: %w", err)
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}

		crtc, err := randr.GetCrtcInfo(b.conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			return nil, fmt.Errorf("get crtc info: %w", err)
		}

		displays = append(displays, Display{
			Name: string(info.Name),
			Geometry: image.Rect(
				int(crtc.X), int(crtc.Y),
				int(crtc.X)+int(crtc.Width), int(crtc.Y)+int(crtc.Height),
			),
		})
	}
	return displays, nil
}

// CreateSurface maps a black override-redirect window over d's geometry,
// raised above everything, with an empty input region.
func (b *X11Backend) CreateSurface(d Display) (Surface, error) {
	wid, err := xproto.NewWindowId(b.conn)
	if err != nil {
		return nil, fmt.Errorf("allocate window id: %w", err)
	}

	geo := d.Geometry
	err = xproto.CreateWindowChecked(b.conn,
		b.screen.RootDepth, wid, b.screen.Root,
		int16(geo.Min.X), int16(geo.Min.Y),
		uint16(geo.Dx()), uint16(geo.Dy()),
		0, xproto.WindowClassInputOutput, b.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwOverrideRedirect|xproto.CwEventMask,
		[]uint32{
			0x000000, // back pixel: black
			1,        // override redirect: unmanaged, undecorated
			xproto.EventMaskExposure,
		}).Check()
	if err != nil {
		return nil, fmt.Errorf("create window on %s: %w", d.Name, err)
	}

	if err := b.emptyInputRegion(wid); err != nil {
		return nil, fmt.Errorf("clear input region on %s: %w", d.Name, err)
	}

	s := &x11Surface{backend: b, window: wid, display: d}
	// Start fully transparent; the window is mapped once and stays mapped.
	s.applyOpacity()

	if err := xproto.MapWindowChecked(b.conn, wid).Check(); err != nil {
		return nil, fmt.Errorf("map window on %s: %w", d.Name, err)
	}
	if err := xproto.ConfigureWindowChecked(b.conn, wid,
		xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove}).Check(); err != nil {
		return nil, fmt.Errorf("raise window on %s: %w", d.Name, err)
	}

	b.surfaces[wid] = s
	return s, nil
}

// emptyInputRegion shapes the window's input region to nothing so the
// overlay never intercepts pointer or keyboard input.
func (b *X11Backend) emptyInputRegion(wid xproto.Window) error {
	region, err := xfixes.NewRegionId(b.conn)
	if err != nil {
		return fmt.Errorf("allocate region id: %w", err)
	}
	if err := xfixes.CreateRegionChecked(b.conn, region, []xproto.Rectangle{}).Check(); err != nil {
		return fmt.Errorf("create empty region: %w", err)
	}
	defer xfixes.DestroyRegion(b.conn, region)

	if err := xfixes.SetWindowShapeRegionChecked(b.conn, wid, shape.SkInput, 0, 0, region).Check(); err != nil {
		return fmt.Errorf("set input shape: %w", err)
	}
	return nil
}

// Run pumps X events and dispatched closures until Quit. X11 has no
// thread-affine main loop, but surface mutation is still confined to this
// goroutine so both backends give the control loop the same guarantee.
func (b *X11Backend) Run() error {
	events := make(chan xgb.Event, 16)
	connErr := make(chan error, 1)

	go func() {
		for {
			ev, err := b.conn.WaitForEvent()
			if ev == nil && err == nil {
				connErr <- fmt.Errorf("X connection closed")
				return
			}
			if err != nil {
				// Protocol-level errors are not fatal to the loop.
				continue
			}
			events <- ev
		}
	}()

	for {
		select {
		case <-b.quit:
			return nil
		case err := <-connErr:
			return err
		case fn := <-b.dispatch:
			fn()
		case ev := <-events:
			if expose, ok := ev.(xproto.ExposeEvent); ok {
				// Background pixel repaints are server-side; nudge the
				// exposed window anyway in case the region was damaged.
				xproto.ClearArea(b.conn, false, expose.Window, 0, 0, 0, 0)
			}
		}
	}
}

func (b *X11Backend) Dispatch(fn func()) {
	select {
	case b.dispatch <- fn:
	case <-b.quit:
	}
}

func (b *X11Backend) Quit() {
	b.quitOnce.Do(func() { close(b.quit) })
}

func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

type x11Surface struct {
	backend *X11Backend
	window  xproto.Window
	display Display
	level   float64
}

func (s *x11Surface) SetLevel(v float64) {
	s.level = ClampLevel(v)
	s.applyOpacity()
}

func (s *x11Surface) Level() float64 { return s.level }

func (s *x11Surface) Display() Display { return s.display }

// applyOpacity writes _NET_WM_WINDOW_OPACITY from the 8-bit fill alpha,
// replicated across the 32-bit property range. The compositor blends the
// black window at that opacity, which is the whole redraw.
func (s *x11Surface) applyOpacity() {
	opacity := uint32(Alpha8(s.level, s.backend.ceiling)) * 0x01010101

	data := make([]byte, 4)
	xgb.Put32(data, opacity)
	xproto.ChangeProperty(s.backend.conn, xproto.PropModeReplace, s.window,
		s.backend.opacityAtom, xproto.AtomCardinal, 32, 1, data)
}
