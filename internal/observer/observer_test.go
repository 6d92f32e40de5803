package observer

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/torque_observer/internal/body"
	"github.com/relabs-tech/torque_observer/internal/dynamics"
)

type fakeEncoder struct {
	mu     sync.Mutex
	chain  string
	angles []float64
	err    error
}

func (f *fakeEncoder) Read(wait bool) (*body.EncoderFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a := make([]float64, len(f.angles))
	copy(a, f.angles)
	return &body.EncoderFrame{Chain: f.chain, Angles: a}, nil
}

type fakeFT struct {
	mu    sync.Mutex
	w     body.Wrench
	fresh bool
}

func (f *fakeFT) Read(wait bool) (*body.FTSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !wait && !f.fresh {
		return nil, nil
	}
	f.fresh = false
	return &body.FTSample{Wrench: f.w}, nil
}

func (f *fakeFT) set(w body.Wrench) {
	f.mu.Lock()
	f.w = w
	f.fresh = true
	f.mu.Unlock()
}

type fakeInertial struct {
	mu   sync.Mutex
	vals []float64
}

func (f *fakeInertial) Read(wait bool) (*body.InertialSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vals == nil {
		return nil, nil
	}
	v := make([]float64, len(f.vals))
	copy(v, f.vals)
	return &body.InertialSample{Values: v}, nil
}

type fixedMode body.Mode

func (m fixedMode) Mode() body.Mode { return body.Mode(m) }

type recorder struct {
	mu          sync.Mutex
	torques     map[string][]body.TorqueMessage
	timings     []body.TimingReport
	ftTimings   []body.TimingReport
	comparisons []body.ComparisonReport
}

func newRecorder() *recorder {
	return &recorder{torques: make(map[string][]body.TorqueMessage)}
}

func (r *recorder) WriteTorques(limb string, msg body.TorqueMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.torques[limb] = append(r.torques[limb], msg)
	return nil
}

func (r *recorder) WriteTiming(t body.TimingReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, t)
	return nil
}

func (r *recorder) WriteFTReadTiming(t body.TimingReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ftTimings = append(r.ftTimings, t)
	return nil
}

func (r *recorder) WriteComparison(c body.ComparisonReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comparisons = append(r.comparisons, c)
	return nil
}

func (r *recorder) lastTorque(limb string) (body.TorqueMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.torques[limb]
	if len(msgs) == 0 {
		return body.TorqueMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

type rig struct {
	encoders map[string]*fakeEncoder
	ft       map[string]*fakeFT
	inertial *fakeInertial
}

func newTestObserver(mode body.Mode) (*Observer, *rig, *recorder) {
	r := &rig{
		encoders: make(map[string]*fakeEncoder),
		ft:       make(map[string]*fakeFT),
		inertial: &fakeInertial{vals: make([]float64, body.FilteredInertialComponents)},
	}
	encoders := make(map[string]EncoderReader)
	for _, chain := range append(append([]string{}, body.UpperChains...), body.LowerChains...) {
		e := &fakeEncoder{chain: chain, angles: make([]float64, body.DOF(chain))}
		r.encoders[chain] = e
		encoders[chain] = e
	}
	ft := make(map[string]WrenchReader)
	for _, limb := range body.FTLimbs {
		f := &fakeFT{}
		r.ft[limb] = f
		ft[limb] = f
	}

	rec := newRecorder()
	spec := dynamics.DefaultBodySpec()
	o := New(
		Config{Period: 10 * time.Millisecond, CalibrationTrials: 5},
		Inputs{
			Encoders: encoders,
			FT:       ft,
			Inertial: r.inertial,
			Mode:     fixedMode(mode),
		},
		Outputs{Torques: rec, Diagnostics: rec},
		dynamics.NewBody(spec),
		dynamics.NewBody(spec),
	)
	clock := 0.0
	o.now = func() float64 {
		clock += 0.001
		return clock
	}
	return o, r, rec
}

func TestCalibrationLearnsRawBiasAtRest(t *testing.T) {
	o, r, _ := newTestObserver(body.ModeIdle)
	bias := body.Wrench{1.5, -0.3, 9.2, 0.01, -0.02, 0.4}
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(bias)
	}

	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// With the rig at rest and no base acceleration the model predicts a
	// zero sensor wrench, so the offset is the raw bias itself and the
	// corrected wrench is zero.
	for _, limb := range body.FTLimbs {
		off := o.Offset(limb)
		for i := range off {
			if math.Abs(off[i]-bias[i]) > 1e-9 {
				t.Fatalf("%s offset[%d] = %g, want %g", limb, i, off[i], bias[i])
			}
			if math.Abs(o.corrected[limb][i]) > 1e-9 {
				t.Fatalf("%s corrected[%d] = %g, want 0", limb, i, o.corrected[limb][i])
			}
		}
	}
}

func TestTickPublishesZeroTorquesAtRest(t *testing.T) {
	o, r, rec := newTestObserver(body.ModeIdle)
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{0.7, 0, 0, 0, 0.1, 0})
	}
	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	for i := 0; i < 50; i++ {
		for _, limb := range body.FTLimbs {
			r.ft[limb].set(body.Wrench{0.7, 0, 0, 0, 0.1, 0})
		}
		o.tick()
	}

	wantAddr := map[string]int{
		body.LimbRightArm: body.AddressArm,
		body.LimbLeftArm:  body.AddressArm,
		body.LimbRightLeg: body.AddressLeg,
		body.LimbLeftLeg:  body.AddressLeg,
	}
	for limb, addr := range wantAddr {
		msg, ok := rec.lastTorque(limb)
		if !ok {
			t.Fatalf("no torques published for %s", limb)
		}
		if msg.Address != addr {
			t.Fatalf("%s address = %d, want %d", limb, msg.Address, addr)
		}
		if len(msg.Torques) != body.DOF(limb) {
			t.Fatalf("%s torque length = %d, want %d", limb, len(msg.Torques), body.DOF(limb))
		}
		for i, tau := range msg.Torques {
			if math.Abs(tau) > 1e-9 {
				t.Fatalf("%s torque[%d] = %g, want 0", limb, i, tau)
			}
		}
	}

	// Head and torso torques have no topic but must still be computed.
	if got := o.Torques(body.ChainHead); len(got) != body.DOF(body.ChainHead) {
		t.Fatalf("head torques length = %d, want %d", len(got), body.DOF(body.ChainHead))
	}
	if got := o.Torques(body.ChainTorso); len(got) != body.DOF(body.ChainTorso) {
		t.Fatalf("torso torques length = %d, want %d", len(got), body.DOF(body.ChainTorso))
	}
	if o.Status() != StatusOK {
		t.Fatalf("status = %v, want StatusOK", o.Status())
	}
}

func TestCorrectedWrenchIsNegatedOffsetResidual(t *testing.T) {
	o, r, rec := newTestObserver(body.ModeComparisonTest)
	bias := body.Wrench{2, 1, -3, 0.2, 0, 0.1}
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(bias)
	}
	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	load := body.Wrench{0.5, -0.25, 1, 0, 0.05, 0}
	r.ft[body.LimbRightArm].set(bias.Add(load))
	o.tick()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.comparisons) == 0 {
		t.Fatal("no comparison report published")
	}
	got := rec.comparisons[len(rec.comparisons)-1].MeasuredRA
	want := load.Neg()
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("measured RA[%d] = %g, want %g", i, got[i], want[i])
		}
	}
	// The other limbs saw no new sample and keep the value derived during
	// calibration.
	for i, v := range rec.comparisons[len(rec.comparisons)-1].MeasuredLA {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("measured LA[%d] = %g, want 0", i, v)
		}
	}
}

func TestComparisonPredictsZeroAtRest(t *testing.T) {
	o, r, rec := newTestObserver(body.ModeComparisonTest)
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{})
	}
	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	o.tick()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := rec.comparisons[len(rec.comparisons)-1]
	for _, w := range []body.Wrench{last.PredictedRA, last.PredictedLA, last.PredictedRL, last.PredictedLL} {
		for i, v := range w {
			if math.Abs(v) > 1e-9 {
				t.Fatalf("predicted wrench[%d] = %g, want 0", i, v)
			}
		}
	}
}

func TestComparisonMatchesLiveModelPrediction(t *testing.T) {
	o, r, rec := newTestObserver(body.ModeComparisonTest)
	// Bent posture under gravity: the predicted sensor wrenches are nonzero.
	for _, chain := range body.UpperChains {
		angles := r.encoders[chain].angles
		for j := range angles {
			angles[j] = 20
		}
	}
	r.inertial.vals = []float64{0, 0, 9.81, 0, 0, 0}
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{})
	}
	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	o.tick()

	// Live and shadow received identical input, so the published predicted
	// wrench must equal what the live model itself would predict.
	fmUp := o.live.Upper.EstimateSensorsWrench(body.Wrench{}, body.Wrench{})
	want := negColumn(fmUp, 0)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	got := rec.comparisons[len(rec.comparisons)-1].PredictedRA
	nonzero := false
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("predicted RA[%d] = %g, live model predicts %g", i, got[i], want[i])
		}
		if math.Abs(want[i]) > 1e-9 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Fatal("expected a nonzero predicted wrench in this posture")
	}
}

func TestEncoderFailureMarksDisconnectedButKeepsPublishing(t *testing.T) {
	o, r, rec := newTestObserver(body.ModeIdle)
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{})
	}
	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	r.encoders[body.ChainRightArm].mu.Lock()
	r.encoders[body.ChainRightArm].err = errors.New("stale")
	r.encoders[body.ChainRightArm].mu.Unlock()

	o.tick()

	if o.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want StatusDisconnected", o.Status())
	}
	if _, ok := rec.lastTorque(body.LimbRightArm); !ok {
		t.Fatal("torques not published while disconnected")
	}
}

func TestTimingModeReports(t *testing.T) {
	o, r, rec := newTestObserver(body.ModeTimingTest)
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{})
	}
	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{})
	}
	o.tick() // all sensors fresh
	o.tick() // no new FT data

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.timings) != 2 || len(rec.ftTimings) != 2 {
		t.Fatalf("got %d loop and %d ft-read reports, want 2 and 2", len(rec.timings), len(rec.ftTimings))
	}
	if !rec.timings[0].NewData {
		t.Fatal("first tick should report fresh FT data")
	}
	if rec.timings[1].NewData {
		t.Fatal("second tick should report no fresh FT data")
	}
	for _, report := range rec.timings {
		if report.Total < report.Compute || report.Compute < 0 {
			t.Fatalf("inconsistent timing report: total %g compute %g", report.Total, report.Compute)
		}
	}
	if rec.timings[1].Start <= rec.timings[0].Start {
		t.Fatal("tick start times must increase")
	}
}

func TestStopCompletesInFlightTick(t *testing.T) {
	o, r, rec := newTestObserver(body.ModeIdle)
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{})
	}
	if err := o.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	o.Start()
	time.Sleep(60 * time.Millisecond)
	o.Stop()

	select {
	case <-o.done:
	default:
		t.Fatal("loop goroutine still running after Stop")
	}
	if _, ok := rec.lastTorque(body.LimbRightArm); !ok {
		t.Fatal("no torques published before shutdown")
	}
}

func TestCalibrationFailsOnSilentEncoder(t *testing.T) {
	o, r, _ := newTestObserver(body.ModeIdle)
	for _, limb := range body.FTLimbs {
		r.ft[limb].set(body.Wrench{})
	}
	r.encoders[body.ChainTorso].err = errors.New("read timeout")

	if err := o.Calibrate(); err == nil {
		t.Fatal("Calibrate should fail when an encoder stream is silent")
	}
}
