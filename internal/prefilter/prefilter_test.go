package prefilter

import (
	"math"
	"testing"

	"github.com/relabs-tech/torque_observer/internal/body"
)

func rawSample(seq uint32, stamp float64, fill float64) body.InertialSample {
	values := make([]float64, body.InertialComponents)
	for i := range values {
		values[i] = fill
	}
	return body.InertialSample{
		Envelope: body.Envelope{Seq: seq, Stamp: stamp},
		Values:   values,
	}
}

func TestEnvelopeIsPreserved(t *testing.T) {
	var got []body.InertialSample
	p := New(func(s body.InertialSample) error {
		got = append(got, s)
		return nil
	})

	p.OnRaw(rawSample(7, 12.5, 1.0))
	p.OnRaw(rawSample(8, 12.6, 1.0))

	if len(got) != 2 {
		t.Fatalf("expected 2 republished samples, got %d", len(got))
	}
	if got[0].Seq != 7 || got[0].Stamp != 12.5 {
		t.Errorf("sample 0 envelope: got seq=%d stamp=%f", got[0].Seq, got[0].Stamp)
	}
	if got[1].Seq != 8 || got[1].Stamp != 12.6 {
		t.Errorf("sample 1 envelope: got seq=%d stamp=%f", got[1].Seq, got[1].Stamp)
	}
}

func TestOutputWidthAndStepResponse(t *testing.T) {
	var last body.InertialSample
	p := New(func(s body.InertialSample) error {
		last = s
		return nil
	})

	for i := 0; i < 300; i++ {
		p.OnRaw(rawSample(uint32(i), float64(i)*0.01, 2.0))
	}

	if len(last.Values) != body.FilteredInertialComponents {
		t.Fatalf("expected %d output components, got %d", body.FilteredInertialComponents, len(last.Values))
	}
	// All six republished channels see the same step and must settle on it.
	for i, v := range last.Values {
		if math.Abs(v-2.0) > 1e-2 {
			t.Errorf("channel %d: expected convergence toward 2.0, got %f", i, v)
		}
	}
}

func TestStepResponseIsGradual(t *testing.T) {
	var first body.InertialSample
	n := 0
	p := New(func(s body.InertialSample) error {
		if n == 0 {
			first = s
		}
		n++
		return nil
	})

	p.OnRaw(rawSample(0, 0, 1.0))
	// A first-order low-pass cannot jump to the step value on one sample.
	if first.Values[0] > 0.5 {
		t.Errorf("first filtered sample too close to step value: %f", first.Values[0])
	}
	if first.Values[0] <= 0 {
		t.Errorf("first filtered sample should move toward the step, got %f", first.Values[0])
	}
}

func TestShortSampleIsDropped(t *testing.T) {
	calls := 0
	p := New(func(s body.InertialSample) error {
		calls++
		return nil
	})

	p.OnRaw(body.InertialSample{Values: []float64{1, 2, 3}})
	if calls != 0 {
		t.Errorf("short sample must not be republished, got %d publishes", calls)
	}
}
