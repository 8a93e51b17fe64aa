package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"

	"screenshade/internal/overlay"
)

// testBackend is a synchronous in-memory backend: Dispatch runs the
// function inline, so by the time run returns every applied command has
// reached the surfaces.
type testBackend struct {
	displays   []overlay.Display
	surfaces   []*testSurface
	displayErr error
	surfaceErr error
}

type testSurface struct {
	display overlay.Display
	level   float64
}

func (s *testSurface) SetLevel(v float64)       { s.level = overlay.ClampLevel(v) }
func (s *testSurface) Level() float64           { return s.level }
func (s *testSurface) Display() overlay.Display { return s.display }

func (b *testBackend) Name() string { return "test" }

func (b *testBackend) Displays() ([]overlay.Display, error) {
	if b.displayErr != nil {
		return nil, b.displayErr
	}
	return b.displays, nil
}

func (b *testBackend) CreateSurface(d overlay.Display) (overlay.Surface, error) {
	if b.surfaceErr != nil {
		return nil, b.surfaceErr
	}
	s := &testSurface{display: d}
	b.surfaces = append(b.surfaces, s)
	return s, nil
}

func (b *testBackend) Run() error         { return nil }
func (b *testBackend) Dispatch(fn func()) { fn() }
func (b *testBackend) Quit()              {}
func (b *testBackend) Close() error       { return nil }

func dualHeadBackend() *testBackend {
	return &testBackend{
		displays: []overlay.Display{
			{Name: "DP-1", Geometry: image.Rect(0, 0, 2560, 1440)},
			{Name: "HDMI-1", Geometry: image.Rect(2560, 0, 4480, 1080)},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoop(backend *testBackend) (*controlLoop, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &controlLoop{backend: backend, out: out, logger: quietLogger()}, out
}

// drive starts the loop, feeds it the lines in order, then sends quit
// and waits for run to return.
func drive(t *testing.T, loop *controlLoop, inputs ...string) {
	t.Helper()

	if err := loop.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	lines := make(chan string, len(inputs)+1)
	for _, in := range inputs {
		lines <- in
	}
	lines <- `{"cmd":"quit"}`

	if err := loop.run(context.Background(), lines); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestControlLoopReadyNotice(t *testing.T) {
	backend := dualHeadBackend()
	loop, out := newTestLoop(backend)

	if err := loop.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	want := `{"status":"ready","monitors":["DP-1","HDMI-1"]}` + "\n"
	if got := out.String(); got != want {
		t.Errorf("readiness notice = %q, want %q", got, want)
	}
	if len(backend.surfaces) != 2 {
		t.Errorf("created %d surfaces, want 2", len(backend.surfaces))
	}
}

func TestControlLoopReadyNoticeNoDisplays(t *testing.T) {
	loop, out := newTestLoop(&testBackend{})

	if err := loop.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	want := `{"status":"ready","monitors":[]}` + "\n"
	if got := out.String(); got != want {
		t.Errorf("readiness notice = %q, want %q", got, want)
	}
}

func TestControlLoopStartFailure(t *testing.T) {
	backend := dualHeadBackend()
	backend.surfaceErr = errors.New("compositor said no")
	loop, out := newTestLoop(backend)

	if err := loop.start(); err == nil {
		t.Fatal("expected start to fail")
	}
	if out.Len() != 0 {
		t.Errorf("stdout not silent on startup failure: %q", out.String())
	}
}

func TestControlLoopSetOpacity(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantLevel float64
		wantAlpha uint8
	}{
		{"half", `{"cmd":"set_opacity","value":0.5}`, 0.5, 108},
		{"full", `{"cmd":"set_opacity","value":1}`, 1, 216},
		{"clamped high", `{"cmd":"set_opacity","value":5}`, 1, 216},
		{"clamped low", `{"cmd":"set_opacity","value":-3}`, 0, 0},
		{"zero", `{"cmd":"set_opacity","value":0}`, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := dualHeadBackend()
			loop, _ := newTestLoop(backend)

			drive(t, loop, tt.line)

			for i, s := range backend.surfaces {
				if s.Level() != tt.wantLevel {
					t.Errorf("surface %d level = %v, want %v", i, s.Level(), tt.wantLevel)
				}
				if a := overlay.Alpha8(s.Level(), overlay.MaxOpacityCeiling); a != tt.wantAlpha {
					t.Errorf("surface %d alpha = %d, want %d", i, a, tt.wantAlpha)
				}
			}
		})
	}
}

func TestControlLoopIgnoresJunk(t *testing.T) {
	backend := dualHeadBackend()
	loop, out := newTestLoop(backend)

	drive(t, loop,
		"",
		"not json at all",
		`{"value":0.9}`,
		`{"cmd":""}`,
		`{"cmd":"mystery","value":0.9}`,
		`[1,2,3]`,
	)

	for i, s := range backend.surfaces {
		if s.Level() != 0 {
			t.Errorf("surface %d level changed to %v on junk input", i, s.Level())
		}
	}

	// The ready line is the only thing ever written. Junk gets no reply.
	want := `{"status":"ready","monitors":["DP-1","HDMI-1"]}` + "\n"
	if got := out.String(); got != want {
		t.Errorf("stdout = %q, want only the readiness notice", got)
	}
}

func TestControlLoopQuit(t *testing.T) {
	backend := dualHeadBackend()
	loop, _ := newTestLoop(backend)

	if err := loop.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	lines := make(chan string, 2)
	lines <- `{"cmd":"quit"}`
	lines <- `{"cmd":"set_opacity","value":1}`

	if err := loop.run(context.Background(), lines); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The line after quit was never consumed.
	if len(lines) != 1 {
		t.Errorf("loop kept reading after quit, %d lines left", len(lines))
	}
	if backend.surfaces[0].Level() != 0 {
		t.Error("command after quit was applied")
	}
}

func TestControlLoopContextCancel(t *testing.T) {
	backend := dualHeadBackend()
	loop, _ := newTestLoop(backend)

	if err := loop.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := loop.run(ctx, make(chan string)); !errors.Is(err, context.Canceled) {
		t.Errorf("run returned %v, want context.Canceled", err)
	}
}

func TestControlLoopClosedInput(t *testing.T) {
	backend := dualHeadBackend()
	loop, _ := newTestLoop(backend)

	if err := loop.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	lines := make(chan string)
	close(lines)

	if err := loop.run(context.Background(), lines); err != nil {
		t.Fatalf("run failed on closed input: %v", err)
	}
}

func TestControlLoopSnapshots(t *testing.T) {
	backend := dualHeadBackend()
	loop, _ := newTestLoop(backend)

	var snaps []stateSnapshot
	loop.onChange = func(s stateSnapshot) { snaps = append(snaps, s) }

	drive(t, loop,
		`{"cmd":"set_opacity","value":0.3}`,
		`{"cmd":"set_opacity","value":2}`,
	)

	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	if snaps[0].Level != 0.3 || snaps[1].Level != 1 {
		t.Errorf("snapshot levels = %v, %v; want 0.3, 1", snaps[0].Level, snaps[1].Level)
	}
	if snaps[0].Backend != "test" {
		t.Errorf("snapshot backend = %q, want %q", snaps[0].Backend, "test")
	}
	if len(snaps[0].Monitors) != 2 || snaps[0].Monitors[0] != "DP-1" {
		t.Errorf("snapshot monitors = %v", snaps[0].Monitors)
	}
}
