package filter

import (
	"math"
	"testing"
)

func TestStepResponseConverges(t *testing.T) {
	b := NewLowPassBank(6)

	var y float64
	for i := 0; i < 300; i++ {
		y = b.Apply(0, 1.0)
	}
	if math.Abs(y-1.0) > 1e-3 {
		t.Errorf("expected step response to settle near 1.0, got %f", y)
	}
}

func TestStepResponseFollowsFirstOrderCurve(t *testing.T) {
	b := NewLowPassBank(1)

	prev := 0.0
	for i := 0; i < 100; i++ {
		y := b.Apply(0, 1.0)
		if y < prev-1e-12 {
			t.Fatalf("step response not monotone at sample %d: %f < %f", i, y, prev)
		}
		if y > 1.0+1e-9 {
			t.Fatalf("step response overshoots at sample %d: %f", i, y)
		}
		prev = y
	}

	// The discrete pole sets the decay rate of the residual. Check the
	// residual shrinks by roughly the pole ratio per sample once past the
	// transient.
	b2 := NewLowPassBank(1)
	var r1, r2 float64
	for i := 0; i < 50; i++ {
		y := b2.Apply(0, 1.0)
		if i == 48 {
			r1 = 1.0 - y
		}
		if i == 49 {
			r2 = 1.0 - y
		}
	}
	ratio := r2 / r1
	if math.Abs(ratio-lpfFeedback) > 0.01 {
		t.Errorf("expected residual ratio near %f, got %f", lpfFeedback, ratio)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	b := NewLowPassBank(2)

	for i := 0; i < 50; i++ {
		b.Apply(0, 1.0)
	}
	// Channel 1 was never driven: one step on it must match one step on a
	// fresh bank.
	got := b.Apply(1, 1.0)
	want := NewLowPassBank(2).Apply(0, 1.0)
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("channel 1 state was contaminated: got %g, want %g", got, want)
	}
}

func TestInvalidChannelIsNeutral(t *testing.T) {
	b := NewLowPassBank(6)

	// Drive channel 0 into a known state.
	var before float64
	for i := 0; i < 10; i++ {
		before = b.Apply(0, 1.0)
	}

	for _, ch := range []int{-1, 6, 99} {
		if got := b.Apply(ch, 123.0); got != 0 {
			t.Errorf("channel %d: expected neutral zero, got %f", ch, got)
		}
	}

	// Channel 0 must continue exactly from where it was.
	b2 := NewLowPassBank(6)
	var want float64
	for i := 0; i < 11; i++ {
		want = b2.Apply(0, 1.0)
	}
	got := b.Apply(0, 1.0)
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("out-of-range apply corrupted channel 0: got %g, want %g (was %g)", got, want, before)
	}
}
