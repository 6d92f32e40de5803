// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/torque_observer/internal/body"
	"github.com/relabs-tech/torque_observer/internal/config"
	"github.com/relabs-tech/torque_observer/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// snapshot is the latest state pushed to web clients.
type snapshot struct {
	Torques    map[string]body.TorqueMessage `json:"torques"`
	Timing     *body.TimingReport            `json:"timing,omitempty"`
	FTRead     *body.TimingReport            `json:"ft_read,omitempty"`
	Comparison *body.ComparisonReport        `json:"comparison,omitempty"`
}

// RunWeb serves the observer's output over HTTP: a JSON API for the latest
// torques and diagnostics, a websocket pushing live updates, and a mode
// control endpoint that republishes onto the observer's control topic.
func RunWeb() error {
	cfg := config.Get()

	var (
		mu    sync.RWMutex
		state = snapshot{Torques: make(map[string]body.TorqueMessage)}
	)

	client, err := transport.Dial(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect()
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	for _, limb := range body.FTLimbs {
		limb := limb
		err := client.Subscribe(transport.TorqueTopic(cfg.ProcessName, limb), func(payload []byte) {
			var msg body.TorqueMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Printf("web: %s torque unmarshal error: %v", limb, err)
				return
			}
			mu.Lock()
			state.Torques[limb] = msg
			mu.Unlock()
		})
		if err != nil {
			return err
		}
	}
	err = client.Subscribe(transport.TimingTopic(cfg.ProcessName), func(payload []byte) {
		var r body.TimingReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return
		}
		mu.Lock()
		state.Timing = &r
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	err = client.Subscribe(transport.FTReadTimingTopic(cfg.ProcessName), func(payload []byte) {
		var r body.TimingReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return
		}
		mu.Lock()
		state.FTRead = &r
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	err = client.Subscribe(transport.ComparisonTopic(cfg.ProcessName), func(payload []byte) {
		var r body.ComparisonReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return
		}
		mu.Lock()
		state.Comparison = &r
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	log.Printf("web: subscribed to observer topics")

	clone := func() snapshot {
		mu.RLock()
		defer mu.RUnlock()
		s := snapshot{Torques: make(map[string]body.TorqueMessage, len(state.Torques))}
		for limb, msg := range state.Torques {
			s.Torques[limb] = msg
		}
		s.Timing = state.Timing
		s.FTRead = state.FTRead
		s.Comparison = state.Comparison
		return s
	}

	// JSON API endpoint: latest torques and diagnostics
	http.HandleFunc("/api/torques", func(w http.ResponseWriter, r *http.Request) {
		s := clone()
		if len(s.Torques) == 0 {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// Mode control: republishes onto the observer's control topic.
	http.HandleFunc("/api/mode", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var cmd body.ModeCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := body.ParseMode(cmd.Mode); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := client.PublishJSON(transport.ModeTopic(cfg.ProcessName), cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// Live updates over websocket: one snapshot per second per client.
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteJSON(clone()); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	})

	// Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
