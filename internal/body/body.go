// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package body defines the kinematic layout of the observed robot and the
// sample types exchanged over the transport.
package body

// Chain names. A chain is one kinematic sub-tree with its own joint count
// and ordering.
const (
	ChainHead     = "head"
	ChainLeftArm  = "left_arm"
	ChainRightArm = "right_arm"
	ChainTorso    = "torso"
	ChainLeftLeg  = "left_leg"
	ChainRightLeg = "right_leg"
)

// Limbs carrying a force/torque sensor.
const (
	LimbRightArm = ChainRightArm
	LimbLeftArm  = ChainLeftArm
	LimbRightLeg = ChainRightLeg
	LimbLeftLeg  = ChainLeftLeg
)

// Torque message address codes, one per limb class.
const (
	AddressArm = 1
	AddressLeg = 2
)

// UpperChains and LowerChains give the composition order of the two body
// halves. The stacked joint vectors fed to the differentiators follow this
// order.
var (
	UpperChains = []string{ChainHead, ChainLeftArm, ChainRightArm}
	LowerChains = []string{ChainTorso, ChainLeftLeg, ChainRightLeg}

	FTLimbs = []string{LimbRightArm, LimbLeftArm, LimbRightLeg, LimbLeftLeg}
)

var chainDOF = map[string]int{
	ChainHead:     3,
	ChainLeftArm:  7,
	ChainRightArm: 7,
	ChainTorso:    3,
	ChainLeftLeg:  6,
	ChainRightLeg: 6,
}

// DOF returns the joint count of a chain, or 0 for an unknown name.
func DOF(chain string) int {
	return chainDOF[chain]
}

// TotalDOF sums the joint counts of the given chains.
func TotalDOF(chains []string) int {
	n := 0
	for _, c := range chains {
		n += chainDOF[c]
	}
	return n
}

// InertialComponents is the width of the raw inertial stream.
// Layout: orientation (3), linear acceleration (3), angular rate (3),
// magnetic field (3).
const InertialComponents = 12

// FilteredInertialComponents is the width of the pre-filtered stream:
// linear acceleration (3) followed by angular rate (3).
const FilteredInertialComponents = 6
