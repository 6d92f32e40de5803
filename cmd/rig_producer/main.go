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

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunRigProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
