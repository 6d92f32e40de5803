// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/torque_observer/internal/body"
)

// EncoderSource reads one chain's joint positions. A non-blocking read
// returns the latest cached frame; it fails when nothing has arrived yet or
// the cached frame is older than staleAfter, which the loop reports as a
// lost connection. A blocking read waits up to waitTimeout for a fresh
// frame.
type EncoderSource struct {
	chain       string
	cell        *cell
	staleAfter  time.Duration
	waitTimeout time.Duration
}

// NewEncoderSource subscribes to the chain's encoder topic.
func NewEncoderSource(c *Client, robot, chain string, staleAfter, waitTimeout time.Duration) (*EncoderSource, error) {
	cl, err := c.SubscribeCell(EncoderTopic(robot, chain))
	if err != nil {
		return nil, err
	}
	return &EncoderSource{chain: chain, cell: cl, staleAfter: staleAfter, waitTimeout: waitTimeout}, nil
}

// Read returns the current encoder frame for the chain, in degrees.
func (s *EncoderSource) Read(wait bool) (*body.EncoderFrame, error) {
	var payload []byte
	if wait {
		p, ok := s.cell.WaitTake(s.waitTimeout)
		if !ok {
			return nil, fmt.Errorf("transport: %s encoders: no frame within %v", s.chain, s.waitTimeout)
		}
		payload = p
	} else {
		p, arrived, ok := s.cell.Latest()
		if !ok {
			return nil, fmt.Errorf("transport: %s encoders: no frame received", s.chain)
		}
		if age := time.Since(arrived); age > s.staleAfter {
			return nil, fmt.Errorf("transport: %s encoders: frame stale by %v", s.chain, age)
		}
		payload = p
	}

	var frame body.EncoderFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("transport: %s encoders: %w", s.chain, err)
	}
	if want := body.DOF(s.chain); len(frame.Angles) != want {
		return nil, fmt.Errorf("transport: %s encoders: %d angles, want %d", s.chain, len(frame.Angles), want)
	}
	return &frame, nil
}

// WrenchSource reads one limb's raw FT stream. A non-blocking read yields
// nil when no sample arrived since the previous read; that is a valid
// outcome, not an error.
type WrenchSource struct {
	limb        string
	cell        *cell
	waitTimeout time.Duration
}

// NewWrenchSource subscribes to the limb's FT topic.
func NewWrenchSource(c *Client, robot, limb string, waitTimeout time.Duration) (*WrenchSource, error) {
	cl, err := c.SubscribeCell(FTTopic(robot, limb))
	if err != nil {
		return nil, err
	}
	return &WrenchSource{limb: limb, cell: cl, waitTimeout: waitTimeout}, nil
}

// Read returns the next unseen FT sample, or nil when there is none and
// wait is false.
func (s *WrenchSource) Read(wait bool) (*body.FTSample, error) {
	var payload []byte
	if wait {
		p, ok := s.cell.WaitTake(s.waitTimeout)
		if !ok {
			return nil, fmt.Errorf("transport: %s FT: no sample within %v", s.limb, s.waitTimeout)
		}
		payload = p
	} else {
		p, ok := s.cell.TryTake()
		if !ok {
			return nil, nil
		}
		payload = p
	}

	var sample body.FTSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return nil, fmt.Errorf("transport: %s FT: %w", s.limb, err)
	}
	return &sample, nil
}

// InertialSource reads the pre-filtered inertial stream with the same
// unseen-only semantics as WrenchSource.
type InertialSource struct {
	topic       string
	cell        *cell
	waitTimeout time.Duration
}

// NewInertialSource subscribes to the given inertial topic (raw or
// filtered).
func NewInertialSource(c *Client, topic string, waitTimeout time.Duration) (*InertialSource, error) {
	cl, err := c.SubscribeCell(topic)
	if err != nil {
		return nil, err
	}
	return &InertialSource{topic: topic, cell: cl, waitTimeout: waitTimeout}, nil
}

// Read returns the next unseen inertial sample, or nil when there is none
// and wait is false.
func (s *InertialSource) Read(wait bool) (*body.InertialSample, error) {
	var payload []byte
	if wait {
		p, ok := s.cell.WaitTake(s.waitTimeout)
		if !ok {
			return nil, fmt.Errorf("transport: inertial %s: no sample within %v", s.topic, s.waitTimeout)
		}
		payload = p
	} else {
		p, ok := s.cell.TryTake()
		if !ok {
			return nil, nil
		}
		payload = p
	}

	var sample body.InertialSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return nil, fmt.Errorf("transport: inertial %s: %w", s.topic, err)
	}
	return &sample, nil
}

// ModeSource tracks the latest diagnostic-mode command. Unknown commands
// are ignored, keeping the previous mode.
type ModeSource struct {
	mode atomic.Int32
}

// NewModeSource subscribes to the observer's control topic.
func NewModeSource(c *Client, name string) (*ModeSource, error) {
	s := &ModeSource{}
	err := c.Subscribe(ModeTopic(name), func(payload []byte) {
		var cmd body.ModeCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return
		}
		mode, err := body.ParseMode(cmd.Mode)
		if err != nil {
			return
		}
		s.mode.Store(int32(mode))
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Mode returns the currently commanded diagnostic mode.
func (s *ModeSource) Mode() body.Mode {
	return body.Mode(s.mode.Load())
}
