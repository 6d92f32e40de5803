// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package observer

import (
	"fmt"
	"log"

	"github.com/relabs-tech/torque_observer/internal/body"
)

// Calibrate learns the additive offset of every FT sensor by averaging the
// difference between the raw readings and the shadow model's prediction
// over a number of trials. The robot must be stationary and unloaded while
// it runs. Reads block, so a silent stream fails the whole calibration.
func (o *Observer) Calibrate() error {
	trials := o.cfg.CalibrationTrials
	if trials <= 0 {
		trials = 10
	}
	log.Printf("observer: calibrating FT sensor offsets over %d trials", trials)

	sums := make(map[string]body.Wrench, len(body.FTLimbs))

	for trial := 0; trial < trials; trial++ {
		if !o.readAndUpdate(true) {
			return fmt.Errorf("calibration trial %d: input stream unavailable", trial)
		}

		o.setMeasures(o.shadow)
		o.shadow.Upper.SetInertialMeasure(o.w0, o.dw0, o.ddp0)
		fmUp := o.shadow.Upper.EstimateSensorsWrench(body.Wrench{}, body.Wrench{})
		o.shadow.Lower.SetInertialMeasure(o.shadow.Upper.TorsoAngVel(), o.shadow.Upper.TorsoAngAcc(), o.shadow.Upper.TorsoLinAcc())
		fmLow := o.shadow.Lower.EstimateSensorsWrench(body.Wrench{}, body.Wrench{})

		predicted := map[string]body.Wrench{
			body.LimbRightArm: negColumn(fmUp, 0),
			body.LimbLeftArm:  negColumn(fmUp, 1),
			body.LimbRightLeg: negColumn(fmLow, 0),
			body.LimbLeftLeg:  negColumn(fmLow, 1),
		}
		for _, limb := range body.FTLimbs {
			sums[limb] = sums[limb].Add(o.lastRaw[limb].Sub(predicted[limb]))
		}
	}

	for _, limb := range body.FTLimbs {
		o.offsets[limb] = sums[limb].Scale(1.0 / float64(trials))
		// Re-derive the corrected wrench held from the calibration reads,
		// so the first loop tick does not start from an uncorrected value.
		o.corrected[limb] = o.lastRaw[limb].Sub(o.offsets[limb]).Neg()
		off := o.offsets[limb]
		log.Printf("observer: %s FT offset [%.4f %.4f %.4f %.4f %.4f %.4f]",
			limb, off[0], off[1], off[2], off[3], off[4], off[5])
	}
	log.Printf("observer: calibration done")
	return nil
}

func negColumn(m interface{ At(i, j int) float64 }, j int) body.Wrench {
	var w body.Wrench
	for i := 0; i < 6; i++ {
		w[i] = -m.At(i, j)
	}
	return w
}
