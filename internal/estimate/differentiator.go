// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package estimate turns noisy, irregularly timed position samples into
// velocity and acceleration estimates via locally weighted polynomial fits
// over a sliding window.
package estimate

import (
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Default window lengths, matching the tuning of the original observer.
const (
	VelocityWindow     = 16
	AccelerationWindow = 25
	DefaultHalfLife    = 1.0 // seconds
)

// Differentiator estimates the first or second time derivative of a vector
// signal. Each instance owns its window exclusively; instances must never be
// shared between signals.
type Differentiator struct {
	order    int // 1 = velocity (linear fit), 2 = acceleration (quadratic fit)
	winLen   int
	halfLife float64

	dim   int // fixed by the first sample
	times []float64
	data  [][]float64
}

// NewVelocity returns a first-derivative estimator fitting a line over a
// window of up to win samples.
func NewVelocity(win int, halfLife float64) *Differentiator {
	return newDifferentiator(1, win, halfLife)
}

// NewAcceleration returns a second-derivative estimator fitting a parabola
// over a window of up to win samples.
func NewAcceleration(win int, halfLife float64) *Differentiator {
	return newDifferentiator(2, win, halfLife)
}

func newDifferentiator(order, win int, halfLife float64) *Differentiator {
	if win < order+1 {
		win = order + 1
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Differentiator{
		order:    order,
		winLen:   win,
		halfLife: halfLife,
		dim:      -1,
	}
}

// Reset drops all window state.
func (d *Differentiator) Reset() {
	d.dim = -1
	d.times = d.times[:0]
	d.data = d.data[:0]
}

// Estimate appends one (sample, timestamp) pair and returns the derivative
// of the fitted polynomial evaluated at the latest timestamp. Before the
// window fills the fit runs over the samples available; with fewer samples
// than the polynomial needs the estimate is zero. A sample whose length does
// not match the first sample's is rejected: it is logged and a zero vector
// of the window's dimension is returned, leaving the window untouched.
func (d *Differentiator) Estimate(x []float64, t float64) []float64 {
	if d.dim < 0 {
		d.dim = len(x)
	}
	if len(x) != d.dim {
		log.Printf("estimate: sample length %d does not match signal dimension %d", len(x), d.dim)
		return make([]float64, d.dim)
	}

	sample := make([]float64, d.dim)
	copy(sample, x)
	d.times = append(d.times, t)
	d.data = append(d.data, sample)
	if len(d.times) > d.winLen {
		d.times = d.times[1:]
		d.data = d.data[1:]
	}

	return d.fit()
}

// fit solves the weighted least-squares polynomial fit for every component
// at once and reads the requested derivative off the coefficients at the
// latest timestamp.
func (d *Differentiator) fit() []float64 {
	out := make([]float64, d.dim)
	n := len(d.times)
	cols := d.order + 1
	if n < cols || d.dim == 0 {
		return out
	}

	latest := d.times[n-1]

	// Rows are scaled by sqrt(weight); timestamps are centered on the
	// latest sample so the derivative falls out of the low-order
	// coefficients directly.
	a := mat.NewDense(n, cols, nil)
	b := mat.NewDense(n, d.dim, nil)
	for i := 0; i < n; i++ {
		dt := d.times[i] - latest
		w := math.Sqrt(math.Pow(0.5, (latest-d.times[i])/d.halfLife))
		basis := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, w*basis)
			basis *= dt
		}
		for j := 0; j < d.dim; j++ {
			b.Set(i, j, w*d.data[i][j])
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	var coeff mat.Dense
	if err := qr.SolveTo(&coeff, false, b); err != nil {
		// Degenerate window (e.g. repeated timestamps): no usable fit.
		return out
	}

	for j := 0; j < d.dim; j++ {
		switch d.order {
		case 1:
			out[j] = coeff.At(1, j)
		case 2:
			out[j] = 2 * coeff.At(2, j)
		}
	}
	return out
}

// Len reports how many samples the window currently holds.
func (d *Differentiator) Len() int { return len(d.times) }
