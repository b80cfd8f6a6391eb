package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "80" || cfg.Server.ReadBuffer != 1024 {
		t.Fatalf("server defaults not applied: %+v", cfg.Server)
	}
	if cfg.StepInterval != 100*time.Millisecond || cfg.PollInterval != 5*time.Millisecond {
		t.Fatalf("timing defaults: step %v poll %v", cfg.StepInterval, cfg.PollInterval)
	}
	if cfg.ConnDeadline != 2*time.Second {
		t.Fatalf("conn deadline %v", cfg.ConnDeadline)
	}
	if len(cfg.Output.Pins) != 8 || cfg.Output.Pins[7] != 26 {
		t.Fatalf("pins %v", cfg.Output.Pins)
	}
}

func TestLoad_OverridesAndSanitizes(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": " 8080 ", "homepage_file": "web/index.html"},
		"animation": {"step_interval": "250ms"},
		"mqtt": {"enabled": true, "topic_prefix": "home/ledbar/"},
		"schedules": [{"spec": " 0 23 * * * ", "command": "9"}]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("port %q", cfg.Server.Port)
	}
	if cfg.StepInterval != 250*time.Millisecond {
		t.Fatalf("step interval %v", cfg.StepInterval)
	}
	if cfg.MQTT.TopicPrefix != "home/ledbar" {
		t.Fatalf("topic prefix %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.Schedules[0].Spec != "0 23 * * *" {
		t.Fatalf("schedule spec %q", cfg.Schedules[0].Spec)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "decode json"},
		{"bad duration", `{"animation": {"step_interval": "fast"}}`, "step_interval"},
		{"negative poll", `{"animation": {"poll_interval": "-5ms"}}`, "must be positive"},
		{"pin count", `{"output": {"pins": [1, 2, 3]}}`, "exactly 8 pins"},
		{"empty schedule", `{"schedules": [{"spec": "@daily"}]}`, "schedule 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
