// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/torque_observer/internal/app"
	"github.com/relabs-tech/torque_observer/internal/config"
)

func main() {
	configPath := flag.String("config", "./observer_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting torque observer console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
