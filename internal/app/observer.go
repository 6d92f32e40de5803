// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the module's binaries: the estimation daemon, the
// console and web subscribers, and the synthetic test rig.
package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/torque_observer/internal/body"
	"github.com/relabs-tech/torque_observer/internal/config"
	"github.com/relabs-tech/torque_observer/internal/dynamics"
	"github.com/relabs-tech/torque_observer/internal/observer"
	"github.com/relabs-tech/torque_observer/internal/prefilter"
	"github.com/relabs-tech/torque_observer/internal/transport"
)

// RunObserver starts the whole estimation daemon: the inertial pre-filter,
// the FT offset calibration and the periodic loop, then blocks until
// SIGINT/SIGTERM.
func RunObserver() error {
	cfg := config.Get()

	spec, err := loadBodySpec(cfg.ModelFile)
	if err != nil {
		return err
	}

	client, err := transport.Dial(cfg.MQTTBroker, cfg.MQTTClientIDObserver)
	if err != nil {
		return err
	}
	defer client.Disconnect()
	log.Printf("observer: connected to MQTT broker at %s", cfg.MQTTBroker)

	// The raw inertial stream is filtered on arrival and republished; the
	// loop subscribes to the filtered topic like any other consumer could.
	sink := transport.NewInertialSink(client, cfg.ProcessName)
	pf := prefilter.New(sink.WriteInertial)
	err = client.Subscribe(transport.RawInertialTopic(cfg.RobotName), func(payload []byte) {
		var raw body.InertialSample
		if err := json.Unmarshal(payload, &raw); err != nil {
			log.Printf("observer: raw inertial unmarshal error: %v", err)
			return
		}
		pf.OnRaw(raw)
	})
	if err != nil {
		return err
	}

	staleAfter := time.Duration(cfg.EncoderStaleMS) * time.Millisecond
	waitTimeout := time.Duration(cfg.CalibReadTimeoutMS) * time.Millisecond

	encoders := make(map[string]observer.EncoderReader)
	for _, chain := range append(append([]string{}, body.UpperChains...), body.LowerChains...) {
		src, err := transport.NewEncoderSource(client, cfg.RobotName, chain, staleAfter, waitTimeout)
		if err != nil {
			return err
		}
		encoders[chain] = src
	}
	ft := make(map[string]observer.WrenchReader)
	for _, limb := range body.FTLimbs {
		src, err := transport.NewWrenchSource(client, cfg.RobotName, limb, waitTimeout)
		if err != nil {
			return err
		}
		ft[limb] = src
	}
	inertial, err := transport.NewInertialSource(client, transport.FilteredInertialTopic(cfg.ProcessName), waitTimeout)
	if err != nil {
		return err
	}
	mode, err := transport.NewModeSource(client, cfg.ProcessName)
	if err != nil {
		return err
	}

	obs := observer.New(
		observer.Config{
			Period:            time.Duration(cfg.LoopPeriodMS) * time.Millisecond,
			CalibrationTrials: cfg.CalibTrials,
		},
		observer.Inputs{
			Encoders: encoders,
			FT:       ft,
			Inertial: inertial,
			Mode:     mode,
		},
		observer.Outputs{
			Torques:     transport.NewTorqueSink(client, cfg.ProcessName),
			Diagnostics: transport.NewDiagnosticsSink(client, cfg.ProcessName),
		},
		dynamics.NewBody(spec),
		dynamics.NewBody(spec),
	)

	// The robot must be unloaded and stationary here; a silent stream
	// aborts startup rather than baking a bad offset in.
	if err := obs.Calibrate(); err != nil {
		return fmt.Errorf("FT offset calibration failed: %w", err)
	}

	obs.Start()
	log.Printf("observer: estimation loop started, period %d ms", cfg.LoopPeriodMS)

	// Watchdog: polls the loop status at 1 Hz, logs transitions, and gives
	// up when the robot interface stays lost.
	watchdogDone := make(chan struct{})
	lost := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		last := observer.StatusOK
		disconnected := 0
		alive := 0
		for {
			select {
			case <-watchdogDone:
				return
			case <-ticker.C:
				status := obs.Status()
				if status != last {
					if status == observer.StatusDisconnected {
						log.Printf("observer: robot interface lost, holding last joint state")
					} else {
						log.Printf("observer: robot interface recovered")
					}
					last = status
				}
				if status == observer.StatusDisconnected {
					disconnected++
					if disconnected == disconnectGrace {
						close(lost)
						return
					}
				} else {
					disconnected = 0
				}
				if alive++; alive%60 == 0 {
					log.Printf("observer: supervisor alive, %d min", alive/60)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var reason error
	select {
	case <-sigCh:
	case <-lost:
		reason = fmt.Errorf("robot interface lost for %d s", disconnectGrace)
	}

	log.Println("observer: shutting down")
	close(watchdogDone)
	obs.Stop()
	return reason
}

// Seconds of uninterrupted DISCONNECTED status before the daemon gives up.
const disconnectGrace = 10

func loadBodySpec(path string) (dynamics.BodySpec, error) {
	if path == "" {
		log.Println("observer: using built-in rigid-body parameters")
		return dynamics.DefaultBodySpec(), nil
	}
	spec, err := dynamics.LoadBodySpec(path)
	if err != nil {
		return dynamics.BodySpec{}, fmt.Errorf("load model file %s: %w", path, err)
	}
	log.Printf("observer: loaded rigid-body parameters from %s", path)
	return spec, nil
}
