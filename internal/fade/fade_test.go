package fade

import (
	"math"
	"testing"
)

func TestEngine_ConvergesUpward(t *testing.T) {
	e := New(0.015, 0.047)
	e.SetTarget(0.3)

	steps := 0
	for !e.Settled() {
		if _, changed := e.Step(); !changed {
			t.Fatal("Step reported no change before settling")
		}
		steps++
		if steps > 1000 {
			t.Fatal("engine did not converge")
		}
	}

	// 0.3 / 0.015 = 20 ticks.
	if steps != 20 {
		t.Errorf("expected 20 steps to reach 0.3, got %d", steps)
	}
	// Accumulated float steps may land a hair under the target.
	if math.Abs(e.Current()-0.3) >= settleEpsilon {
		t.Errorf("expected current ~0.3, got %v", e.Current())
	}
}

func TestEngine_EaseOutIsFaster(t *testing.T) {
	e := New(0.015, 0.047)
	e.Jump(1.0)
	e.SetTarget(0)

	down := 0
	for !e.Settled() {
		e.Step()
		down++
		if down > 1000 {
			t.Fatal("engine did not converge")
		}
	}

	e2 := New(0.015, 0.047)
	e2.SetTarget(1.0)
	up := 0
	for !e2.Settled() {
		e2.Step()
		up++
		if up > 1000 {
			t.Fatal("engine did not converge")
		}
	}

	if down >= up {
		t.Errorf("expected ease-out (%d ticks) to be faster than ease-in (%d ticks)", down, up)
	}
}

func TestEngine_StepNeverOvershoots(t *testing.T) {
	e := New(0.015, 0.047)
	e.SetTarget(0.01) // below one ease-in increment

	level, changed := e.Step()
	if !changed {
		t.Fatal("expected first step to change the level")
	}
	if level != 0.01 {
		t.Errorf("expected step to land exactly on target, got %v", level)
	}
	if !e.Settled() {
		t.Error("expected engine to be settled")
	}
}

func TestEngine_SettledStepIsNoop(t *testing.T) {
	e := New(0.015, 0.047)
	e.SetTarget(0)

	if _, changed := e.Step(); changed {
		t.Error("expected no change when already at target")
	}
}

func TestEngine_TargetClamped(t *testing.T) {
	e := New(0.015, 0.047)

	e.SetTarget(5)
	if e.Target() != 1 {
		t.Errorf("expected target clamped to 1, got %v", e.Target())
	}

	e.SetTarget(-2)
	if e.Target() != 0 {
		t.Errorf("expected target clamped to 0, got %v", e.Target())
	}

	e.SetTarget(math.NaN())
	if e.Target() != 0 {
		t.Errorf("expected NaN target collapsed to 0, got %v", e.Target())
	}
}

func TestNew_DefaultsForNonPositiveRates(t *testing.T) {
	e := New(0, -1)
	e.SetTarget(1)

	level, _ := e.Step()
	if level != DefaultEaseInPerTick {
		t.Errorf("expected default ease-in step %v, got %v", DefaultEaseInPerTick, level)
	}
}
