package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observer.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER=tcp://localhost:1883\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "tcp://localhost:1883" {
		t.Fatalf("MQTTBroker = %q", cfg.MQTTBroker)
	}
	if cfg.RobotName != "icub" || cfg.ProcessName != "torque_observer" {
		t.Fatalf("default identity = %q/%q", cfg.RobotName, cfg.ProcessName)
	}
	if cfg.LoopPeriodMS != 100 || cfg.CalibTrials != 10 {
		t.Fatalf("default loop settings = %d/%d", cfg.LoopPeriodMS, cfg.CalibTrials)
	}
}

func TestLoadOverridesAndComments(t *testing.T) {
	path := writeConfig(t, `# observer settings
MQTT_BROKER = tcp://broker:1883

ROBOT_NAME = icubSim
LOOP_PERIOD_MS = 20
CALIB_TRIALS = 3
MODEL_FILE = /etc/observer/body.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RobotName != "icubSim" || cfg.LoopPeriodMS != 20 || cfg.CalibTrials != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ModelFile != "/etc/observer/body.yaml" {
		t.Fatalf("ModelFile = %q", cfg.ModelFile)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing broker":   "LOOP_PERIOD_MS=100\n",
		"unknown key":      "MQTT_BROKER=tcp://x:1883\nBOGUS=1\n",
		"malformed line":   "MQTT_BROKER=tcp://x:1883\nnot a pair\n",
		"period too small": "MQTT_BROKER=tcp://x:1883\nLOOP_PERIOD_MS=5\n",
		"bad port":         "MQTT_BROKER=tcp://x:1883\nWEB_SERVER_PORT=70000\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: Load should fail", name)
		}
	}
}
