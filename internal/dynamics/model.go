// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dynamics implements the rigid-body model of the robot: a
// Newton-Euler recursion per kinematic chain that yields joint torques and
// the wrench transmitted across each FT-sensor mount. Model instances hold
// no global state, so independent instances can be driven with different
// inputs without cross-contamination.
package dynamics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/torque_observer/internal/body"
)

type chainState struct {
	spec    ChainSpec
	q       []float64 // radians
	dq      []float64
	ddq     []float64
	torques []float64
	sensor  body.Wrench
}

// Model is one half-body dynamics instance: a central chain plus a right
// and a left limb, all rooted at the same base node. The caller owns the
// instance exclusively.
type Model struct {
	central string
	right   string
	left    string
	chains  map[string]*chainState

	baseAngVel Vec3
	baseAngAcc Vec3
	baseLinAcc Vec3
}

// NewModel builds a half-body model from the parameter spec. The returned
// model has all joint state zeroed.
func NewModel(spec BodySpec, central, rightLimb, leftLimb string) *Model {
	m := &Model{
		central: central,
		right:   rightLimb,
		left:    leftLimb,
		chains:  make(map[string]*chainState),
	}
	for _, name := range []string{central, rightLimb, leftLimb} {
		cs := spec.Chains[name]
		n := len(cs.Links)
		m.chains[name] = &chainState{
			spec:    cs,
			q:       make([]float64, n),
			dq:      make([]float64, n),
			ddq:     make([]float64, n),
			torques: make([]float64, n),
		}
	}
	return m
}

// NewUpper builds the head/arms model.
func NewUpper(spec BodySpec) *Model {
	return NewModel(spec, body.ChainHead, body.ChainRightArm, body.ChainLeftArm)
}

// NewLower builds the torso/legs model.
func NewLower(spec BodySpec) *Model {
	return NewModel(spec, body.ChainTorso, body.ChainRightLeg, body.ChainLeftLeg)
}

func (m *Model) set(dst string, chain string, v []float64) error {
	cs, ok := m.chains[chain]
	if !ok {
		return fmt.Errorf("dynamics: unknown chain %q", chain)
	}
	if len(v) != len(cs.q) {
		return fmt.Errorf("dynamics: chain %q expects %d joints, got %d", chain, len(cs.q), len(v))
	}
	var target []float64
	switch dst {
	case "q":
		target = cs.q
	case "dq":
		target = cs.dq
	case "ddq":
		target = cs.ddq
	}
	copy(target, v)
	return nil
}

// SetAng sets a chain's joint angles in radians.
func (m *Model) SetAng(chain string, q []float64) error { return m.set("q", chain, q) }

// SetDAng sets a chain's joint velocities in radians/s.
func (m *Model) SetDAng(chain string, dq []float64) error { return m.set("dq", chain, dq) }

// SetD2Ang sets a chain's joint accelerations in radians/s^2.
func (m *Model) SetD2Ang(chain string, ddq []float64) error { return m.set("ddq", chain, ddq) }

// SetInertialMeasure sets the base angular velocity, angular acceleration
// and linear acceleration. The measured linear acceleration includes
// gravity, which is how static loads enter the recursion.
func (m *Model) SetInertialMeasure(w0, dw0, ddp0 [3]float64) {
	m.baseAngVel = w0
	m.baseAngAcc = dw0
	m.baseLinAcc = ddp0
}

// Update propagates the dynamics through all three chains with the given
// boundary wrenches applied at the right and left limb tips, refreshing
// joint torques and sensor-mount wrenches.
func (m *Model) Update(wrenchRight, wrenchLeft body.Wrench) {
	m.propagate(m.central, body.Wrench{})
	m.propagate(m.right, wrenchRight)
	m.propagate(m.left, wrenchLeft)
}

// Torques returns the most recently computed joint torques of a chain.
// The returned slice is a copy.
func (m *Model) Torques(chain string) []float64 {
	cs, ok := m.chains[chain]
	if !ok {
		return nil
	}
	out := make([]float64, len(cs.torques))
	copy(out, cs.torques)
	return out
}

// EstimateSensorsWrench predicts the wrench each FT sensor should read given
// the current kinematic and base state, with extRight/extLeft applied at the
// limb tips. The result is a 6x2 matrix: column 0 right limb, column 1 left
// limb.
func (m *Model) EstimateSensorsWrench(extRight, extLeft body.Wrench) *mat.Dense {
	m.propagate(m.central, body.Wrench{})
	m.propagate(m.right, extRight)
	m.propagate(m.left, extLeft)

	out := mat.NewDense(6, 2, nil)
	for i := 0; i < 6; i++ {
		out.Set(i, 0, m.chains[m.right].sensor[i])
		out.Set(i, 1, m.chains[m.left].sensor[i])
	}
	return out
}

// Base state pass-through for chaining the lower model off the upper one.
// The lower model's root frame coincides with the upper model's root.
func (m *Model) TorsoAngVel() [3]float64 { return m.baseAngVel }
func (m *Model) TorsoAngAcc() [3]float64 { return m.baseAngAcc }
func (m *Model) TorsoLinAcc() [3]float64 { return m.baseLinAcc }

// propagate runs the Newton-Euler recursion over one chain: a forward pass
// propagating angular velocity/acceleration and linear acceleration from
// the base, then a backward pass accumulating forces and moments from the
// tip wrench and each link's inertial load.
func (m *Model) propagate(chain string, tip body.Wrench) {
	cs := m.chains[chain]
	n := len(cs.spec.Links)

	// Forward pass, world frame.
	rot := make([]Mat3, n)     // link orientation
	pos := make([]Vec3, n)     // joint origin position
	omega := make([]Vec3, n)   // angular velocity
	domega := make([]Vec3, n)  // angular acceleration
	acc := make([]Vec3, n)     // linear acceleration of joint origin
	accCOM := make([]Vec3, n)  // linear acceleration of link COM

	parentRot := Identity3
	parentPos := Vec3{}
	parentOmega := Vec3(m.baseAngVel)
	parentDomega := Vec3(m.baseAngAcc)
	parentAcc := Vec3(m.baseLinAcc)

	for i := 0; i < n; i++ {
		link := cs.spec.Links[i]
		offset := parentRot.Apply(Vec3(link.Offset))

		pos[i] = parentPos.Add(offset)
		rot[i] = parentRot.Mul(AxisAngle(Vec3(link.Axis), cs.q[i]))

		axisW := rot[i].Apply(Vec3(link.Axis))
		omega[i] = parentOmega.Add(axisW.Scale(cs.dq[i]))
		domega[i] = parentDomega.
			Add(axisW.Scale(cs.ddq[i])).
			Add(parentOmega.Cross(axisW.Scale(cs.dq[i])))
		acc[i] = parentAcc.
			Add(parentDomega.Cross(offset)).
			Add(parentOmega.Cross(parentOmega.Cross(offset)))

		com := rot[i].Apply(Vec3(link.COM))
		accCOM[i] = acc[i].
			Add(domega[i].Cross(com)).
			Add(omega[i].Cross(omega[i].Cross(com)))

		parentRot = rot[i]
		parentPos = pos[i]
		parentOmega = omega[i]
		parentDomega = domega[i]
		parentAcc = acc[i]
	}

	// Backward pass: start from the boundary wrench at the tip point.
	tipPos := parentPos.Add(parentRot.Apply(Vec3(cs.spec.TipOffset)))
	childForce := Vec3{tip[0], tip[1], tip[2]}
	childMoment := Vec3{tip[3], tip[4], tip[5]}
	childPos := tipPos

	for i := n - 1; i >= 0; i-- {
		link := cs.spec.Links[i]
		com := rot[i].Apply(Vec3(link.COM))

		inertial := accCOM[i].Scale(link.Mass)
		iw := rot[i].Apply(Vec3{
			link.Inertia[0] * rot[i].ApplyT(omega[i])[0],
			link.Inertia[1] * rot[i].ApplyT(omega[i])[1],
			link.Inertia[2] * rot[i].ApplyT(omega[i])[2],
		})
		idw := rot[i].Apply(Vec3{
			link.Inertia[0] * rot[i].ApplyT(domega[i])[0],
			link.Inertia[1] * rot[i].ApplyT(domega[i])[1],
			link.Inertia[2] * rot[i].ApplyT(domega[i])[2],
		})
		gyro := idw.Add(omega[i].Cross(iw))

		force := childForce.Add(inertial)
		moment := childMoment.
			Add(childPos.Sub(pos[i]).Cross(childForce)).
			Add(com.Cross(inertial)).
			Add(gyro)

		axisW := rot[i].Apply(Vec3(link.Axis))
		cs.torques[i] = axisW.Dot(moment)

		if i == cs.spec.SensorLink {
			cs.sensor = body.Wrench{
				force[0], force[1], force[2],
				moment[0], moment[1], moment[2],
			}
		}

		childForce = force
		childMoment = moment
		childPos = pos[i]
	}
}

// Body bundles the two half-body models the way the observer drives them.
type Body struct {
	Upper *Model
	Lower *Model
}

// NewBody builds upper and lower models from one parameter spec.
func NewBody(spec BodySpec) *Body {
	return &Body{Upper: NewUpper(spec), Lower: NewLower(spec)}
}
