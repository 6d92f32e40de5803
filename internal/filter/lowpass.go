// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter provides the per-channel first-order low-pass bank used to
// smooth the raw inertial stream before it reaches the estimation loop.
package filter

import "log"

// Coefficients of the first-order ~3 Hz Butterworth design, normalized to
// unity DC gain at the inertial stream rate.
const (
	lpfGain     = 1.870043440e+01
	lpfFeedback = 0.8930506128
)

// MaxChannels bounds the number of independent filter channels.
const MaxChannels = 12

// LowPassBank holds independent first-order low-pass state per channel
// index. A bank instance is exclusively owned by the task that feeds it;
// channel state never leaks between indices.
type LowPassBank struct {
	channels int
	x        [MaxChannels][2]float64
	y        [MaxChannels][2]float64
}

// NewLowPassBank returns a bank with n independent channels, n capped at
// MaxChannels. All channel state starts at zero.
func NewLowPassBank(n int) *LowPassBank {
	if n < 0 {
		n = 0
	}
	if n > MaxChannels {
		n = MaxChannels
	}
	return &LowPassBank{channels: n}
}

// Channels returns the number of valid channel indices.
func (b *LowPassBank) Channels() int { return b.channels }

// Apply runs one filter step on channel ch and returns the filtered value.
// An out-of-range channel index is logged and yields zero without touching
// any channel's state.
func (b *LowPassBank) Apply(ch int, input float64) float64 {
	if ch < 0 || ch >= b.channels {
		log.Printf("filter: invalid channel index %d (bank has %d channels)", ch, b.channels)
		return 0
	}
	b.x[ch][0] = b.x[ch][1]
	b.x[ch][1] = input / lpfGain
	b.y[ch][0] = b.y[ch][1]
	b.y[ch][1] = (b.x[ch][0] + b.x[ch][1]) + lpfFeedback*b.y[ch][0]
	return b.y[ch][1]
}
