// Package fade steps a dimming level toward a target with asymmetric
// per-tick rates: darkening creeps in, clearing snaps back out. This is
// controller-side policy; the helper itself only ever stores a level.
package fade

// Defaults match the desktop overlay's transitions: eased at ~30 FPS,
// ease-in about 1/64 per tick and ease-out about 3/64 per tick.
const (
	DefaultEaseInPerTick  = 0.015
	DefaultEaseOutPerTick = 0.047
	DefaultIntervalMS     = 33

	// settleEpsilon is the band within which current and target are
	// considered equal.
	settleEpsilon = 0.001
)

// Engine integrates a level toward a target, one tick at a time.
// Not safe for concurrent use; owned by the caller's tick loop.
type Engine struct {
	current float64
	target  float64
	easeIn  float64
	easeOut float64
}

// New returns an engine starting at level 0. Non-positive rates fall back
// to the defaults.
func New(easeIn, easeOut float64) *Engine {
	if easeIn <= 0 {
		easeIn = DefaultEaseInPerTick
	}
	if easeOut <= 0 {
		easeOut = DefaultEaseOutPerTick
	}
	return &Engine{easeIn: easeIn, easeOut: easeOut}
}

// SetTarget sets the level the engine converges to, clamped to [0,1].
func (e *Engine) SetTarget(v float64) {
	e.target = clamp(v)
}

// Jump snaps the current level without transitioning.
func (e *Engine) Jump(v float64) {
	e.current = clamp(v)
}

// Current returns the present level.
func (e *Engine) Current() float64 { return e.current }

// Target returns the level being converged to.
func (e *Engine) Target() float64 { return e.target }

// Settled reports whether the engine has reached its target.
func (e *Engine) Settled() bool {
	diff := e.current - e.target
	if diff < 0 {
		diff = -diff
	}
	return diff < settleEpsilon
}

// Step advances one tick. It returns the new current level and whether it
// changed; an unchanged level needs no command to the helper.
func (e *Engine) Step() (float64, bool) {
	if e.Settled() {
		return e.current, false
	}

	if e.current < e.target {
		e.current += e.easeIn
		if e.current > e.target {
			e.current = e.target
		}
	} else {
		e.current -= e.easeOut
		if e.current < e.target {
			e.current = e.target
		}
	}
	return e.current, true
}

func clamp(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
