// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dynamics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/torque_observer/internal/body"
)

// LinkSpec describes one rigid link of a chain.
type LinkSpec struct {
	Mass    float64    `yaml:"mass"`    // kg
	Offset  [3]float64 `yaml:"offset"`  // joint origin offset from parent origin, parent frame, m
	COM     [3]float64 `yaml:"com"`     // center of mass, link frame, m
	Inertia [3]float64 `yaml:"inertia"` // principal moments, link frame, kg m^2
	Axis    [3]float64 `yaml:"axis"`    // joint rotation axis, link frame
}

// ChainSpec describes one kinematic chain. SensorLink is the link index
// whose proximal joint carries the FT sensor, or -1 when the chain has none.
type ChainSpec struct {
	Links      []LinkSpec `yaml:"links"`
	SensorLink int        `yaml:"sensor_link"`
	TipOffset  [3]float64 `yaml:"tip_offset"` // end-effector point beyond the last link, m
}

// BodySpec holds the model parameters for every chain of the robot.
type BodySpec struct {
	Chains map[string]ChainSpec `yaml:"chains"`
}

// LoadBodySpec reads model parameters from a YAML file and validates the
// chain shapes against the robot layout.
func LoadBodySpec(path string) (BodySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BodySpec{}, fmt.Errorf("dynamics: read model file: %w", err)
	}
	var spec BodySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return BodySpec{}, fmt.Errorf("dynamics: parse model file: %w", err)
	}
	if err := spec.validate(); err != nil {
		return BodySpec{}, err
	}
	return spec, nil
}

func (s BodySpec) validate() error {
	for _, chain := range append(append([]string{}, body.UpperChains...), body.LowerChains...) {
		cs, ok := s.Chains[chain]
		if !ok {
			return fmt.Errorf("dynamics: model file is missing chain %q", chain)
		}
		if got, want := len(cs.Links), body.DOF(chain); got != want {
			return fmt.Errorf("dynamics: chain %q has %d links, layout requires %d", chain, got, want)
		}
		if cs.SensorLink >= len(cs.Links) {
			return fmt.Errorf("dynamics: chain %q sensor link %d out of range", chain, cs.SensorLink)
		}
	}
	return nil
}

// DefaultBodySpec builds a plausible humanoid parameter set so the observer
// runs without a model file. Masses and lengths are rough CAD-scale values;
// a real deployment overrides them via MODEL_FILE.
func DefaultBodySpec() BodySpec {
	spec := BodySpec{Chains: make(map[string]ChainSpec)}

	axes := []Vec3{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}}
	mkChain := func(n int, linkLen, mass float64, sensorLink int) ChainSpec {
		cs := ChainSpec{SensorLink: sensorLink}
		for i := 0; i < n; i++ {
			a := axes[i%3]
			cs.Links = append(cs.Links, LinkSpec{
				Mass:    mass,
				Offset:  [3]float64{0, 0, linkLen},
				COM:     [3]float64{0, 0, linkLen / 2},
				Inertia: [3]float64{mass * linkLen * linkLen / 12, mass * linkLen * linkLen / 12, mass * linkLen * linkLen / 50},
				Axis:    [3]float64{a[0], a[1], a[2]},
			})
		}
		cs.TipOffset = [3]float64{0, 0, linkLen / 2}
		return cs
	}

	spec.Chains[body.ChainHead] = mkChain(3, 0.08, 0.6, -1)
	spec.Chains[body.ChainLeftArm] = mkChain(7, 0.12, 0.9, 2)
	spec.Chains[body.ChainRightArm] = mkChain(7, 0.12, 0.9, 2)
	spec.Chains[body.ChainTorso] = mkChain(3, 0.10, 2.5, -1)
	spec.Chains[body.ChainLeftLeg] = mkChain(6, 0.16, 1.8, 1)
	spec.Chains[body.ChainRightLeg] = mkChain(6, 0.16, 1.8, 1)
	return spec
}
