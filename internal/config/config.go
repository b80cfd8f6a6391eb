package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ledbar-controller/internal/output"
)

// ServerConfig covers the control port.
type ServerConfig struct {
	Port         string `json:"port"`
	HomepageFile string `json:"homepage_file"`
	ConnDeadline string `json:"conn_deadline"`
	AcceptWindow string `json:"accept_window"`
	ReadBuffer   int    `json:"read_buffer"`
}

// AnimationConfig covers loop timing.
type AnimationConfig struct {
	StepInterval string `json:"step_interval"`
	PollInterval string `json:"poll_interval"`
}

// OutputConfig maps lines to GPIO numbers.
type OutputConfig struct {
	Pins      []int `json:"pins"`
	LogFrames bool  `json:"log_frames"`
}

// MonitorConfig covers the optional websocket frame stream.
type MonitorConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           string   `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig covers the optional MQTT command source and Home Assistant discovery.
type MQTTConfig struct {
	Enabled            bool    `json:"enabled"`
	Broker             string  `json:"broker"` // tcp://IP:PORT
	Username           string  `json:"username"`
	Password           string  `json:"password"`
	ClientID           string  `json:"client_id"`
	TopicPrefix        string  `json:"topic_prefix"`
	HADiscoveryEnabled bool    `json:"ha_discovery_enabled"`
	HADiscoveryPrefix  string  `json:"ha_discovery_prefix"`
	RateLimit          float64 `json:"command_rate_limit"`
	RateBurst          int     `json:"command_rate_burst"`
}

// ScheduleEntry is a cron spec paired with a control token.
type ScheduleEntry struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Config is the top-level structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Animation AnimationConfig `json:"animation"`
	Output    OutputConfig    `json:"output"`
	Monitor   MonitorConfig   `json:"monitor"`
	MQTT      MQTTConfig      `json:"mqtt"`
	Schedules []ScheduleEntry `json:"schedules"`

	// Parsed durations, filled by Load.
	StepInterval time.Duration `json:"-"`
	PollInterval time.Duration `json:"-"`
	ConnDeadline time.Duration `json:"-"`
	AcceptWindow time.Duration `json:"-"`
}

// DefaultPins is the Pico W wiring: GP16..GP22 and GP26.
var DefaultPins = []int{16, 17, 18, 19, 20, 21, 22, 26}

// Load reads the file, parses JSON and applies defaults and validation.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
		}
	} else {
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	_ = cfg.validate()
	return cfg
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.HomepageFile = strings.TrimSpace(c.Server.HomepageFile)
	c.Monitor.Port = strings.TrimSpace(c.Monitor.Port)
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.TopicPrefix = strings.TrimSuffix(strings.TrimSpace(c.MQTT.TopicPrefix), "/")
	for i := range c.Schedules {
		c.Schedules[i].Spec = strings.TrimSpace(c.Schedules[i].Spec)
		c.Schedules[i].Command = strings.TrimSpace(c.Schedules[i].Command)
	}
}

func (c *Config) setDefaults() {
	// Server Defaults
	if c.Server.Port == "" {
		c.Server.Port = "80"
	}
	if c.Server.HomepageFile == "" {
		c.Server.HomepageFile = "index.html"
	}
	if c.Server.ConnDeadline == "" {
		c.Server.ConnDeadline = "2s"
	}
	if c.Server.AcceptWindow == "" {
		c.Server.AcceptWindow = "1ms"
	}
	if c.Server.ReadBuffer <= 0 {
		c.Server.ReadBuffer = 1024
	}

	// Animation Defaults
	if c.Animation.StepInterval == "" {
		c.Animation.StepInterval = "100ms"
	}
	if c.Animation.PollInterval == "" {
		c.Animation.PollInterval = "5ms"
	}

	if len(c.Output.Pins) == 0 {
		c.Output.Pins = append([]int(nil), DefaultPins...)
	}

	// Monitor Defaults
	if c.Monitor.Port == "" {
		c.Monitor.Port = "8081"
	}

	// MQTT Defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ledbar-controller"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ledbar"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.RateLimit <= 0 {
		c.MQTT.RateLimit = 5
	}
	if c.MQTT.RateBurst <= 0 {
		c.MQTT.RateBurst = 5
	}
}

func (c *Config) validate() error {
	var err error
	if c.StepInterval, err = parsePositive("animation.step_interval", c.Animation.StepInterval); err != nil {
		return err
	}
	if c.PollInterval, err = parsePositive("animation.poll_interval", c.Animation.PollInterval); err != nil {
		return err
	}
	if c.ConnDeadline, err = parsePositive("server.conn_deadline", c.Server.ConnDeadline); err != nil {
		return err
	}
	if c.AcceptWindow, err = parsePositive("server.accept_window", c.Server.AcceptWindow); err != nil {
		return err
	}
	if len(c.Output.Pins) != output.LineCount {
		return fmt.Errorf("config error: 'output.pins' must list exactly %d pins, got %d", output.LineCount, len(c.Output.Pins))
	}
	for i, s := range c.Schedules {
		if s.Spec == "" || s.Command == "" {
			return fmt.Errorf("config error: schedule %d needs both 'spec' and 'command'", i)
		}
	}
	return nil
}

func parsePositive(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config error: '%s': %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config error: '%s' must be positive", name)
	}
	return d, nil
}
