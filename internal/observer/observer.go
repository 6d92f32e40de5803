// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package observer runs the periodic whole-body estimation loop: it turns
// encoder, inertial and raw FT streams into per-limb joint torques through
// a rigid-body model, after learning the FT sensors' additive offsets at
// startup.
package observer

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/torque_observer/internal/body"
	"github.com/relabs-tech/torque_observer/internal/dynamics"
	"github.com/relabs-tech/torque_observer/internal/estimate"
)

const degToRad = math.Pi / 180.0

// Input stream interfaces, satisfied by internal/transport and by the test
// fakes. A nil sample from a non-blocking FT or inertial read means "no new
// data", which is a valid outcome.
type (
	EncoderReader interface {
		Read(wait bool) (*body.EncoderFrame, error)
	}
	WrenchReader interface {
		Read(wait bool) (*body.FTSample, error)
	}
	InertialReader interface {
		Read(wait bool) (*body.InertialSample, error)
	}
	ModeSource interface {
		Mode() body.Mode
	}
)

// Output interfaces.
type (
	TorqueWriter interface {
		WriteTorques(limb string, msg body.TorqueMessage) error
	}
	DiagnosticsWriter interface {
		WriteTiming(r body.TimingReport) error
		WriteFTReadTiming(r body.TimingReport) error
		WriteComparison(r body.ComparisonReport) error
	}
)

// Inputs bundles every stream the loop consumes.
type Inputs struct {
	Encoders map[string]EncoderReader // keyed by chain
	FT       map[string]WrenchReader  // keyed by limb
	Inertial InertialReader           // pre-filtered 6-vector
	Mode     ModeSource
}

// Outputs bundles the loop's publications.
type Outputs struct {
	Torques     TorqueWriter
	Diagnostics DiagnosticsWriter
}

// Status of the last completed tick.
type Status int32

const (
	StatusOK Status = iota
	StatusDisconnected
)

// Config carries loop tuning.
type Config struct {
	Period            time.Duration
	CalibrationTrials int
}

// Observer owns the two dynamics-model instances, the five differentiators
// and all per-tick state. Everything below is mutated only by the loop
// goroutine; the published snapshot is the only API other goroutines touch.
type Observer struct {
	cfg Config
	in  Inputs
	out Outputs
	now func() float64 // seconds, injectable

	live   *dynamics.Body
	shadow *dynamics.Body

	velUp, accUp   *estimate.Differentiator
	velLow, accLow *estimate.Differentiator
	rateEst        *estimate.Differentiator // base angular-rate derivative

	q   map[string][]float64 // degrees, latest per chain
	dq  map[string][]float64 // degrees/s, recomputed every tick
	ddq map[string][]float64 // degrees/s^2, recomputed every tick

	offsets   map[string]body.Wrench // learned at calibration, fixed after
	corrected map[string]body.Wrench // latest offset-corrected measurement
	lastRaw   map[string]body.Wrench

	w0, dw0, ddp0 [3]float64

	// FT-read latency bookkeeping for the timing diagnostics.
	ftNew    bool
	ftReadAt float64
	ftCurAt  float64

	aliveAt    time.Time
	aliveCount int

	snap struct {
		sync.Mutex
		status  Status
		torques map[string][]float64
	}

	stop chan struct{}
	done chan struct{}
}

// New builds an observer around its collaborators. The live and shadow
// bodies must be distinct instances; the observer never aliases them.
func New(cfg Config, in Inputs, out Outputs, live, shadow *dynamics.Body) *Observer {
	o := &Observer{
		cfg:    cfg,
		in:     in,
		out:    out,
		now:    func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		live:   live,
		shadow: shadow,

		velUp:   estimate.NewVelocity(estimate.VelocityWindow, estimate.DefaultHalfLife),
		accUp:   estimate.NewAcceleration(estimate.AccelerationWindow, estimate.DefaultHalfLife),
		velLow:  estimate.NewVelocity(estimate.VelocityWindow, estimate.DefaultHalfLife),
		accLow:  estimate.NewAcceleration(estimate.AccelerationWindow, estimate.DefaultHalfLife),
		rateEst: estimate.NewVelocity(estimate.VelocityWindow, estimate.DefaultHalfLife),

		q:         make(map[string][]float64),
		dq:        make(map[string][]float64),
		ddq:       make(map[string][]float64),
		offsets:   make(map[string]body.Wrench),
		corrected: make(map[string]body.Wrench),
		lastRaw:   make(map[string]body.Wrench),

		aliveAt: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, chain := range append(append([]string{}, body.UpperChains...), body.LowerChains...) {
		n := body.DOF(chain)
		o.q[chain] = make([]float64, n)
		o.dq[chain] = make([]float64, n)
		o.ddq[chain] = make([]float64, n)
	}
	o.snap.torques = make(map[string][]float64)
	return o
}

// Start launches the periodic loop. Calibrate must have been run first.
func (o *Observer) Start() {
	go o.run()
}

// Stop requests a cooperative shutdown and waits for the in-flight tick to
// finish and publish.
func (o *Observer) Stop() {
	close(o.stop)
	<-o.done
}

// Status reports the outcome of the last completed tick.
func (o *Observer) Status() Status {
	o.snap.Lock()
	defer o.snap.Unlock()
	return o.snap.status
}

// Torques returns the last computed joint torques for any chain, including
// the head and torso, which have no torque topic of their own.
func (o *Observer) Torques(chain string) []float64 {
	o.snap.Lock()
	defer o.snap.Unlock()
	t, ok := o.snap.torques[chain]
	if !ok {
		return nil
	}
	out := make([]float64, len(t))
	copy(out, t)
	return out
}

// Offset returns the learned offset of a limb's FT sensor.
func (o *Observer) Offset(limb string) body.Wrench {
	return o.offsets[limb]
}

func (o *Observer) run() {
	defer close(o.done)
	ticker := time.NewTicker(o.cfg.Period)
	defer ticker.Stop()
	for {
		// The stop request is honored between ticks only; a tick in
		// progress always completes and publishes.
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

// tick executes one full estimation cycle: read, differentiate, correct,
// update the live model, publish, and optionally serve the diagnostic
// modes.
func (o *Observer) tick() {
	mode := body.ModeIdle
	if o.in.Mode != nil {
		mode = o.in.Mode.Mode()
	}

	startRun := o.now()
	o.heartbeat()

	status := StatusOK
	if !o.readAndUpdate(false) {
		log.Printf("observer: lost connection with the robot interface")
		status = StatusDisconnected
	}

	startCompute := o.now()
	o.setMeasures(o.live)
	if mode == body.ModeComparisonTest {
		o.setMeasures(o.shadow)
	}

	o.live.Upper.SetInertialMeasure(o.w0, o.dw0, o.ddp0)
	o.live.Upper.Update(o.corrected[body.LimbRightArm], o.corrected[body.LimbLeftArm])
	o.live.Lower.SetInertialMeasure(o.live.Upper.TorsoAngVel(), o.live.Upper.TorsoAngAcc(), o.live.Upper.TorsoLinAcc())
	o.live.Lower.Update(o.corrected[body.LimbRightLeg], o.corrected[body.LimbLeftLeg])
	endCompute := o.now()

	torques := map[string][]float64{
		body.ChainHead:     o.live.Upper.Torques(body.ChainHead),
		body.ChainLeftArm:  o.live.Upper.Torques(body.ChainLeftArm),
		body.ChainRightArm: o.live.Upper.Torques(body.ChainRightArm),
		body.ChainTorso:    o.live.Lower.Torques(body.ChainTorso),
		body.ChainLeftLeg:  o.live.Lower.Torques(body.ChainLeftLeg),
		body.ChainRightLeg: o.live.Lower.Torques(body.ChainRightLeg),
	}

	stamp := o.now()
	o.writeTorques(body.LimbRightLeg, body.AddressLeg, torques[body.ChainRightLeg], stamp)
	o.writeTorques(body.LimbLeftLeg, body.AddressLeg, torques[body.ChainLeftLeg], stamp)
	o.writeTorques(body.LimbRightArm, body.AddressArm, torques[body.ChainRightArm], stamp)
	o.writeTorques(body.LimbLeftArm, body.AddressArm, torques[body.ChainLeftArm], stamp)

	endRun := o.now()

	if mode == body.ModeTimingTest && o.out.Diagnostics != nil {
		if err := o.out.Diagnostics.WriteTiming(body.TimingReport{
			NewData: o.ftNew,
			Start:   startRun,
			Total:   endRun - startRun,
			Compute: endCompute - startCompute,
		}); err != nil {
			log.Printf("observer: timing publish: %v", err)
		}
		if err := o.out.Diagnostics.WriteFTReadTiming(body.TimingReport{
			NewData: o.ftNew,
			Start:   startRun,
			Total:   endRun - o.ftCurAt,
			Compute: o.ftCurAt - o.ftReadAt,
		}); err != nil {
			log.Printf("observer: ft-read timing publish: %v", err)
		}
	}

	if mode == body.ModeComparisonTest && o.out.Diagnostics != nil {
		o.publishComparison(o.ftNew, startRun)
	}

	o.snap.Lock()
	o.snap.status = status
	for chain, t := range torques {
		o.snap.torques[chain] = t
	}
	o.snap.Unlock()
}

func (o *Observer) writeTorques(limb string, address int, torques []float64, stamp float64) {
	if o.out.Torques == nil {
		return
	}
	err := o.out.Torques.WriteTorques(limb, body.TorqueMessage{
		Address: address,
		Torques: torques,
		Stamp:   stamp,
	})
	if err != nil {
		log.Printf("observer: torque publish for %s: %v", limb, err)
	}
}

// publishComparison drives the shadow model and reports its predicted
// sensor wrenches next to the corrected measurements. The shadow never
// feeds the published torques.
func (o *Observer) publishComparison(newData bool, start float64) {
	o.shadow.Upper.SetInertialMeasure(o.w0, o.dw0, o.ddp0)
	fmUp := o.shadow.Upper.EstimateSensorsWrench(body.Wrench{}, body.Wrench{})
	o.shadow.Lower.SetInertialMeasure(o.shadow.Upper.TorsoAngVel(), o.shadow.Upper.TorsoAngAcc(), o.shadow.Upper.TorsoLinAcc())
	fmLow := o.shadow.Lower.EstimateSensorsWrench(body.Wrench{}, body.Wrench{})

	report := body.ComparisonReport{
		NewData:     newData,
		Start:       start,
		PredictedRA: negColumn(fmUp, 0),
		PredictedLA: negColumn(fmUp, 1),
		PredictedRL: negColumn(fmLow, 0),
		PredictedLL: negColumn(fmLow, 1),
		MeasuredRA:  o.corrected[body.LimbRightArm],
		MeasuredLA:  o.corrected[body.LimbLeftArm],
		MeasuredRL:  o.corrected[body.LimbRightLeg],
		MeasuredLL:  o.corrected[body.LimbLeftLeg],
	}
	if err := o.out.Diagnostics.WriteComparison(report); err != nil {
		log.Printf("observer: comparison publish: %v", err)
	}
}

// readAndUpdate pulls the latest samples from every input stream. With wait
// set (calibration only) each read blocks until data arrives or its timeout
// fires. It reports false when any encoder read failed.
func (o *Observer) readAndUpdate(wait bool) bool {
	ok := true

	// FT sensors: a nil sample keeps the previous corrected value.
	allNew := true
	for _, limb := range body.FTLimbs {
		s, err := o.in.FT[limb].Read(wait)
		if err != nil {
			log.Printf("observer: %s FT read: %v", limb, err)
			allNew = false
			if wait {
				ok = false
			}
			continue
		}
		if s == nil {
			allNew = false
			continue
		}
		o.lastRaw[limb] = s.Wrench
		o.corrected[limb] = s.Wrench.Sub(o.offsets[limb]).Neg()
	}
	o.ftCurAt = o.now()
	o.ftNew = allNew
	if allNew {
		o.ftReadAt = o.ftCurAt
	}

	// Inertial: pre-filtered 6-vector, acceleration then angular rate. The
	// angular-rate derivative comes from its own differentiator.
	if s, err := o.in.Inertial.Read(wait); err != nil {
		log.Printf("observer: inertial read: %v", err)
		if wait {
			ok = false
		}
	} else if s != nil && len(s.Values) >= body.FilteredInertialComponents {
		copy(o.ddp0[:], s.Values[0:3])
		copy(o.w0[:], s.Values[3:6])
		dw := o.rateEst.Estimate(o.w0[:], o.now())
		copy(o.dw0[:], dw)
	}

	// Encoders: derivatives are zeroed first and recomputed from the
	// position windows; a chain whose read failed keeps its previous
	// position and contributes zero velocity and acceleration this tick.
	for chain := range o.dq {
		zero(o.dq[chain])
		zero(o.ddq[chain])
	}
	freshUp := o.readChains(body.UpperChains, wait)
	freshLow := o.readChains(body.LowerChains, wait)
	if !freshUp.all || !freshLow.all {
		ok = false
	}

	t := o.now()
	o.differentiate(body.UpperChains, o.velUp, o.accUp, freshUp, t)
	o.differentiate(body.LowerChains, o.velLow, o.accLow, freshLow, t)

	return ok
}

type freshness struct {
	chains map[string]bool
	all    bool
}

func (o *Observer) readChains(chains []string, wait bool) freshness {
	f := freshness{chains: make(map[string]bool), all: true}
	for _, chain := range chains {
		frame, err := o.in.Encoders[chain].Read(wait)
		if err != nil {
			log.Printf("observer: %s encoder read: %v", chain, err)
			f.all = false
			continue
		}
		copy(o.q[chain], frame.Angles)
		f.chains[chain] = true
	}
	return f
}

// differentiate runs the stacked velocity and acceleration estimators for
// one body half and scatters the results back into the per-chain buffers,
// skipping chains whose encoder signal was not fresh this tick.
func (o *Observer) differentiate(chains []string, vel, acc *estimate.Differentiator, fresh freshness, t float64) {
	stack := make([]float64, 0, body.TotalDOF(chains))
	for _, chain := range chains {
		stack = append(stack, o.q[chain]...)
	}

	dstack := vel.Estimate(stack, t)
	ddstack := acc.Estimate(stack, t)

	i := 0
	for _, chain := range chains {
		n := body.DOF(chain)
		if fresh.chains[chain] {
			copy(o.dq[chain], dstack[i:i+n])
			copy(o.ddq[chain], ddstack[i:i+n])
		}
		i += n
	}
}

// setMeasures pushes the current joint state, converted to radians, into
// one body instance.
func (o *Observer) setMeasures(b *dynamics.Body) {
	for _, chain := range body.UpperChains {
		setChain(b.Upper, chain, o.q[chain], o.dq[chain], o.ddq[chain])
	}
	for _, chain := range body.LowerChains {
		setChain(b.Lower, chain, o.q[chain], o.dq[chain], o.ddq[chain])
	}
}

func setChain(m *dynamics.Model, chain string, q, dq, ddq []float64) {
	if err := m.SetAng(chain, scaled(q, degToRad)); err != nil {
		log.Printf("observer: set %s angles: %v", chain, err)
		return
	}
	if err := m.SetDAng(chain, scaled(dq, degToRad)); err != nil {
		log.Printf("observer: set %s velocities: %v", chain, err)
	}
	if err := m.SetD2Ang(chain, scaled(ddq, degToRad)); err != nil {
		log.Printf("observer: set %s accelerations: %v", chain, err)
	}
}

func (o *Observer) heartbeat() {
	if time.Since(o.aliveAt) > time.Minute {
		o.aliveCount++
		log.Printf("observer: alive, running for %d min", o.aliveCount)
		o.aliveAt = time.Now()
	}
}

func scaled(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = k * x
	}
	return out
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
