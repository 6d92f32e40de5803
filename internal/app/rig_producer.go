package app

import (
	"log"
	"math"
	"time"

	"github.com/relabs-tech/torque_observer/internal/body"
	"github.com/relabs-tech/torque_observer/internal/config"
	"github.com/relabs-tech/torque_observer/internal/transport"
)

// RunRigProducer publishes a synthetic robot: encoder frames for all six
// chains, raw FT wrenches with a fixed per-limb bias, and a raw inertial
// stream with gravity on the vertical axis. It lets the whole pipeline run
// without hardware.
func RunRigProducer() error {
	log.Println("rig: starting synthetic robot producer")

	cfg := config.Get()

	client, err := transport.Dial(cfg.MQTTBroker, cfg.MQTTClientIDRig)
	if err != nil {
		return err
	}
	defer client.Disconnect()
	log.Printf("rig: connected to MQTT broker at %s", cfg.MQTTBroker)

	biases := map[string]body.Wrench{
		body.LimbRightArm: {1.2, -0.4, 8.9, 0.03, -0.01, 0.02},
		body.LimbLeftArm:  {-0.9, 0.6, 9.4, -0.02, 0.04, -0.01},
		body.LimbRightLeg: {2.1, 0.3, 21.5, 0.05, 0.02, -0.03},
		body.LimbLeftLeg:  {-1.8, -0.5, 20.8, -0.04, 0.01, 0.02},
	}

	chains := append(append([]string{}, body.UpperChains...), body.LowerChains...)
	start := time.Now()
	var seq uint32

	ticker := time.NewTicker(time.Duration(cfg.RigSampleIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		seq++
		elapsed := t.Sub(start).Seconds()
		env := body.Envelope{Seq: seq, Stamp: elapsed}

		// Slow sinusoidal sway on the arm joints; everything else holds a
		// neutral posture.
		for _, chain := range chains {
			angles := make([]float64, body.DOF(chain))
			if chain == body.ChainLeftArm || chain == body.ChainRightArm {
				for j := range angles {
					angles[j] = 5.0 * math.Sin(0.2*elapsed+float64(j))
				}
			}
			frame := body.EncoderFrame{Envelope: env, Chain: chain, Angles: angles}
			if err := client.PublishJSON(transport.EncoderTopic(cfg.RobotName, chain), frame); err != nil {
				log.Printf("rig: %s encoder publish error: %v", chain, err)
			}
		}

		for _, limb := range body.FTLimbs {
			w := biases[limb]
			w[2] += 0.05 * math.Sin(0.5*elapsed)
			sample := body.FTSample{Envelope: env, Wrench: w}
			if err := client.PublishJSON(transport.FTTopic(cfg.RobotName, limb), sample); err != nil {
				log.Printf("rig: %s FT publish error: %v", limb, err)
			}
		}

		// Raw inertial layout: orientation, linear acceleration, angular
		// rate, magnetic field. Gravity sits on the vertical axis.
		values := make([]float64, body.InertialComponents)
		values[5] = 9.81
		values[6] = 0.02 * math.Sin(0.2*elapsed)
		inertial := body.InertialSample{Envelope: env, Values: values}
		if err := client.PublishJSON(transport.RawInertialTopic(cfg.RobotName), inertial); err != nil {
			log.Printf("rig: inertial publish error: %v", err)
		}

		if seq%100 == 0 {
			log.Printf("rig: %s published frame %d", t.Format(time.RFC3339), seq)
		}
	}
	return nil
}
