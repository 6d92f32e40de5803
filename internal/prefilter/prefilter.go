// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package prefilter smooths the raw inertial stream before the estimation
// loop consumes it. It runs in the transport callback whenever a raw sample
// arrives, independent of the loop's period: the loop only ever picks up
// the latest republished value.
package prefilter

import (
	"log"

	"github.com/relabs-tech/torque_observer/internal/body"
	"github.com/relabs-tech/torque_observer/internal/filter"
)

// Indices of the republished window inside the raw 12-component stream:
// linear acceleration (3..5) and angular rate (6..8).
const (
	outFirst = 3
	outLast  = 8
)

// PreFilter low-pass filters the raw inertial vector and republishes the
// 6-component window the estimation loop needs, preserving the input's
// envelope. The per-channel filter state is owned exclusively by this
// instance.
type PreFilter struct {
	bank    *filter.LowPassBank
	publish func(body.InertialSample) error
}

// New returns a pre-filter that republishes through the given function.
func New(publish func(body.InertialSample) error) *PreFilter {
	return &PreFilter{
		bank:    filter.NewLowPassBank(body.InertialComponents),
		publish: publish,
	}
}

// OnRaw processes one raw inertial sample. Short samples are dropped with a
// log line; they would otherwise desynchronize the per-channel state.
func (p *PreFilter) OnRaw(raw body.InertialSample) {
	if len(raw.Values) < body.InertialComponents {
		log.Printf("prefilter: raw sample has %d values, want %d; dropped", len(raw.Values), body.InertialComponents)
		return
	}

	filtered := make([]float64, body.InertialComponents)
	for i := range filtered {
		filtered[i] = p.bank.Apply(i, raw.Values[i])
	}

	out := body.InertialSample{
		Envelope: raw.Envelope,
		Values:   filtered[outFirst : outLast+1],
	}
	if err := p.publish(out); err != nil {
		log.Printf("prefilter: publish: %v", err)
	}
}
