// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"sync"
	"time"
)

// cell is a single-writer latest-value mailbox between an MQTT callback and
// one consumer. The consumer can poll the latest payload, take only unseen
// payloads, or block for the next unseen payload with a deadline.
type cell struct {
	mu      sync.Mutex
	payload []byte
	arrived time.Time
	seq     uint64
	taken   uint64
	updated chan struct{}
}

func newCell() *cell {
	return &cell{updated: make(chan struct{})}
}

// Put stores a new payload, replacing any unconsumed one.
func (c *cell) Put(payload []byte) {
	c.mu.Lock()
	c.payload = payload
	c.arrived = time.Now()
	c.seq++
	close(c.updated)
	c.updated = make(chan struct{})
	c.mu.Unlock()
}

// Latest returns the most recent payload and its arrival time, with ok false
// when nothing has ever arrived. It does not mark the payload as seen.
func (c *cell) Latest() (payload []byte, arrived time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == 0 {
		return nil, time.Time{}, false
	}
	return c.payload, c.arrived, true
}

// TryTake returns the latest payload only if it has not been taken before.
func (c *cell) TryTake() (payload []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == 0 || c.seq == c.taken {
		return nil, false
	}
	c.taken = c.seq
	return c.payload, true
}

// WaitTake blocks until an unseen payload arrives or the timeout expires.
func (c *cell) WaitTake(timeout time.Duration) (payload []byte, ok bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		c.mu.Lock()
		if c.seq != c.taken {
			c.taken = c.seq
			p := c.payload
			c.mu.Unlock()
			return p, true
		}
		updated := c.updated
		c.mu.Unlock()

		select {
		case <-updated:
		case <-deadline.C:
			return nil, false
		}
	}
}
