package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DB.Path != "app.db" {
		t.Fatalf("port=%q db=%q", cfg.Port, cfg.DB.Path)
	}
	if cfg.Device.IdleTimeout != 300*time.Second || cfg.Device.Heartbeat != 20*time.Second {
		t.Fatalf("idle=%s heartbeat=%s", cfg.Device.IdleTimeout, cfg.Device.Heartbeat)
	}
	if cfg.Device.Timezone != "America/New_York" {
		t.Fatalf("timezone=%q", cfg.Device.Timezone)
	}
	if cfg.Scheduler.MisfireGrace != time.Minute {
		t.Fatalf("misfire grace=%s", cfg.Scheduler.MisfireGrace)
	}
	if cfg.Status.PollInterval != 0 {
		t.Fatalf("poller must be off by default, got %s", cfg.Status.PollInterval)
	}
}

func TestLoad_FileValues(t *testing.T) {
	dir := writeConfig(t, `
port: "9090"
device:
  idle_timeout: 45s
  heartbeat: 5s
  timezone: Europe/Rome
  simulator:
    unit: c
scheduler:
  remove_completed: true
status:
  poll_interval: 30s
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port=%q", cfg.Port)
	}
	if cfg.Device.IdleTimeout != 45*time.Second || cfg.Device.Heartbeat != 5*time.Second {
		t.Fatalf("idle=%s heartbeat=%s", cfg.Device.IdleTimeout, cfg.Device.Heartbeat)
	}
	if cfg.Device.Timezone != "Europe/Rome" || cfg.Device.Simulator.Unit != "c" {
		t.Fatalf("device=%+v", cfg.Device)
	}
	if !cfg.Scheduler.RemoveCompleted || cfg.Status.PollInterval != 30*time.Second {
		t.Fatalf("scheduler=%+v status=%+v", cfg.Scheduler, cfg.Status)
	}
	// untouched keys keep their defaults
	if cfg.Device.CommandTimeout != 15*time.Second {
		t.Fatalf("command timeout=%s", cfg.Device.CommandTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SOUSVIDE_PORT", "7070")
	t.Setenv("SOUSVIDE_DEVICE_IDLE_TIMEOUT", "2m")
	t.Setenv("SOUSVIDE_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load(writeConfig(t, "port: \"9090\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("port=%q, env must win over file", cfg.Port)
	}
	if cfg.Device.IdleTimeout != 2*time.Minute {
		t.Fatalf("idle=%s", cfg.Device.IdleTimeout)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Fatalf("broker=%q", cfg.MQTT.Broker)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"zero idle timeout":   "device:\n  idle_timeout: 0s\n",
		"bad timezone":        "device:\n  timezone: Mars/Olympus\n",
		"auth without key":    "auth:\n  enabled: true\n",
		"mqtt without broker": "mqtt:\n  enabled: true\n",
		"negative poll":       "status:\n  poll_interval: -1s\n",
		"broken yaml":         "device: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
