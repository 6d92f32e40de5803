package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/torque_observer/internal/body"
	"github.com/relabs-tech/torque_observer/internal/config"
	"github.com/relabs-tech/torque_observer/internal/transport"
)

// RunConsole subscribes to the observer's output topics and prints them.
// The torque streams are rate-limited per limb so a slow terminal does not
// drown in loop-rate traffic.
func RunConsole() error {
	cfg := config.Get()

	client, err := transport.Dial(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect()
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	interval := time.Duration(cfg.ConsoleLogIntervalMS) * time.Millisecond
	var mu sync.Mutex
	lastPrint := make(map[string]time.Time)
	throttled := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(lastPrint[key]) < interval {
			return true
		}
		lastPrint[key] = time.Now()
		return false
	}

	tags := map[string]string{
		body.LimbRightArm: "TORQ-RA",
		body.LimbLeftArm:  "TORQ-LA",
		body.LimbRightLeg: "TORQ-RL",
		body.LimbLeftLeg:  "TORQ-LL",
	}
	for _, limb := range body.FTLimbs {
		limb := limb
		err := client.Subscribe(transport.TorqueTopic(cfg.ProcessName, limb), func(payload []byte) {
			var msg body.TorqueMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Printf("console: %s torque unmarshal error: %v", limb, err)
				return
			}
			if throttled(limb) {
				return
			}
			fmt.Printf("[%s] addr=%d %s\n", tags[limb], msg.Address, formatVector(msg.Torques))
		})
		if err != nil {
			return err
		}
		log.Printf("console: subscribed to %s", transport.TorqueTopic(cfg.ProcessName, limb))
	}

	err = client.Subscribe(transport.TimingTopic(cfg.ProcessName), func(payload []byte) {
		var r body.TimingReport
		if err := json.Unmarshal(payload, &r); err != nil {
			log.Printf("console: timing unmarshal error: %v", err)
			return
		}
		fmt.Printf("[TIME]  new=%v total=%.4fs compute=%.4fs\n", r.NewData, r.Total, r.Compute)
	})
	if err != nil {
		return err
	}

	err = client.Subscribe(transport.FTReadTimingTopic(cfg.ProcessName), func(payload []byte) {
		var r body.TimingReport
		if err := json.Unmarshal(payload, &r); err != nil {
			log.Printf("console: ft-read timing unmarshal error: %v", err)
			return
		}
		fmt.Printf("[FTRD]  new=%v since_read=%.4fs read_gap=%.4fs\n", r.NewData, r.Total, r.Compute)
	})
	if err != nil {
		return err
	}

	err = client.Subscribe(transport.ComparisonTopic(cfg.ProcessName), func(payload []byte) {
		var r body.ComparisonReport
		if err := json.Unmarshal(payload, &r); err != nil {
			log.Printf("console: comparison unmarshal error: %v", err)
			return
		}
		if throttled("comparison") {
			return
		}
		fmt.Printf("[FTER]  RA pred=%s meas=%s\n", formatWrench(r.PredictedRA), formatWrench(r.MeasuredRA))
		fmt.Printf("[FTER]  LA pred=%s meas=%s\n", formatWrench(r.PredictedLA), formatWrench(r.MeasuredLA))
		fmt.Printf("[FTER]  RL pred=%s meas=%s\n", formatWrench(r.PredictedRL), formatWrench(r.MeasuredRL))
		fmt.Printf("[FTER]  LL pred=%s meas=%s\n", formatWrench(r.PredictedLL), formatWrench(r.MeasuredLL))
	})
	if err != nil {
		return err
	}
	log.Printf("console: subscribed to performance topics")

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%7.3f", x)
	}
	return strings.Join(parts, " ")
}

func formatWrench(w body.Wrench) string {
	return formatVector(w[:])
}
