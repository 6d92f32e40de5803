package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDObserver string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDRig      string

	// Identity: PROCESS_NAME prefixes the output topics, ROBOT_NAME
	// prefixes the input topics.
	ProcessName string
	RobotName   string

	// Estimation loop
	LoopPeriodMS       int
	CalibTrials        int
	CalibReadTimeoutMS int
	EncoderStaleMS     int

	// Optional rigid-body parameter file (YAML). Empty means built-in
	// defaults.
	ModelFile string

	// Synthetic rig producer
	RigSampleIntervalMS int

	// Console
	ConsoleLogIntervalMS int

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MQTTClientIDObserver: "torque-observer",
		MQTTClientIDConsole:  "torque-console",
		MQTTClientIDWeb:      "torque-web",
		MQTTClientIDRig:      "torque-rig",

		ProcessName: "torque_observer",
		RobotName:   "icub",

		LoopPeriodMS:       100,
		CalibTrials:        10,
		CalibReadTimeoutMS: 5000,
		EncoderStaleMS:     500,

		RigSampleIntervalMS:  10,
		ConsoleLogIntervalMS: 1000,
		WebServerPort:        8080,
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_OBSERVER":
		c.MQTTClientIDObserver = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_RIG":
		c.MQTTClientIDRig = value

	// Identity
	case "PROCESS_NAME":
		c.ProcessName = value
	case "ROBOT_NAME":
		c.RobotName = value

	// Estimation loop
	case "LOOP_PERIOD_MS":
		period, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LOOP_PERIOD_MS %q: %w", value, err)
		}
		if period < 15 {
			return fmt.Errorf("LOOP_PERIOD_MS must be at least 15, got %d", period)
		}
		c.LoopPeriodMS = period
	case "CALIB_TRIALS":
		trials, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIB_TRIALS %q: %w", value, err)
		}
		if trials < 1 {
			return fmt.Errorf("CALIB_TRIALS must be positive, got %d", trials)
		}
		c.CalibTrials = trials
	case "CALIB_READ_TIMEOUT_MS":
		timeout, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIB_READ_TIMEOUT_MS %q: %w", value, err)
		}
		if timeout < 1 {
			return fmt.Errorf("CALIB_READ_TIMEOUT_MS must be positive, got %d", timeout)
		}
		c.CalibReadTimeoutMS = timeout
	case "ENCODER_STALE_MS":
		stale, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ENCODER_STALE_MS %q: %w", value, err)
		}
		if stale < 1 {
			return fmt.Errorf("ENCODER_STALE_MS must be positive, got %d", stale)
		}
		c.EncoderStaleMS = stale

	// Model
	case "MODEL_FILE":
		c.ModelFile = value

	// Synthetic rig producer
	case "RIG_SAMPLE_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RIG_SAMPLE_INTERVAL_MS %q: %w", value, err)
		}
		if interval < 1 {
			return fmt.Errorf("RIG_SAMPLE_INTERVAL_MS must be positive, got %d", interval)
		}
		c.RigSampleIntervalMS = interval

	// Console
	case "CONSOLE_LOG_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL_MS %q: %w", value, err)
		}
		if interval < 1 {
			return fmt.Errorf("CONSOLE_LOG_INTERVAL_MS must be positive, got %d", interval)
		}
		c.ConsoleLogIntervalMS = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.ProcessName == "" {
		return fmt.Errorf("PROCESS_NAME must not be empty")
	}
	if c.RobotName == "" {
		return fmt.Errorf("ROBOT_NAME must not be empty")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
