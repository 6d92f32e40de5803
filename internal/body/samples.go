package body

// Envelope is the timestamp/sequence metadata attached to a published
// sample. Filtering stages republish it unchanged.
type Envelope struct {
	Seq   uint32  `json:"seq"`
	Stamp float64 `json:"stamp"` // seconds, producer clock
}

// Wrench is a 6-component force/torque vector: force (3) then torque (3).
type Wrench [6]float64

// Sub returns w - o.
func (w Wrench) Sub(o Wrench) Wrench {
	var r Wrench
	for i := range w {
		r[i] = w[i] - o[i]
	}
	return r
}

// Add returns w + o.
func (w Wrench) Add(o Wrench) Wrench {
	var r Wrench
	for i := range w {
		r[i] = w[i] + o[i]
	}
	return r
}

// Scale returns k * w.
func (w Wrench) Scale(k float64) Wrench {
	var r Wrench
	for i := range w {
		r[i] = k * w[i]
	}
	return r
}

// Neg returns -w.
func (w Wrench) Neg() Wrench {
	return w.Scale(-1)
}

// FTSample is one raw force/torque sensor reading.
type FTSample struct {
	Envelope
	Wrench Wrench `json:"wrench"`
}

// InertialSample is one inertial stream sample, raw (12 values) or
// pre-filtered (6 values).
type InertialSample struct {
	Envelope
	Values []float64 `json:"values"`
}

// EncoderFrame is one joint-position reading for a single chain, in degrees.
type EncoderFrame struct {
	Envelope
	Chain  string    `json:"chain"`
	Angles []float64 `json:"angles"`
}

// TorqueMessage is the published per-limb torque vector. Address identifies
// the limb class (AddressArm or AddressLeg).
type TorqueMessage struct {
	Address int       `json:"address"`
	Torques []float64 `json:"torques"`
	Stamp   float64   `json:"stamp"`
}

// TimingReport is published each tick while the timing test mode is active.
type TimingReport struct {
	NewData bool    `json:"new_data"`
	Start   float64 `json:"start"`
	Total   float64 `json:"total"`
	Compute float64 `json:"compute"`
}

// ComparisonReport carries the predicted vs measured sensor wrenches for all
// four limbs, published while the comparison test mode is active.
// Field order matches the wire contract: predicted RA, LA, RL, LL then
// measured RA, LA, RL, LL.
type ComparisonReport struct {
	NewData bool    `json:"new_data"`
	Start   float64 `json:"start"`

	PredictedRA Wrench `json:"predicted_ra"`
	PredictedLA Wrench `json:"predicted_la"`
	PredictedRL Wrench `json:"predicted_rl"`
	PredictedLL Wrench `json:"predicted_ll"`

	MeasuredRA Wrench `json:"measured_ra"`
	MeasuredLA Wrench `json:"measured_la"`
	MeasuredRL Wrench `json:"measured_rl"`
	MeasuredLL Wrench `json:"measured_ll"`
}
