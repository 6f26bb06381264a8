package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds runtime configuration for every lanpeek component.
type Config struct {
	Signal struct {
		Address string `yaml:"address"`
	} `yaml:"signal"`

	WebRTC struct {
		STUNServers []string `yaml:"stun_servers"`
		TURN        struct {
			URL      string `yaml:"url"`
			Username string `yaml:"username,omitempty"`
			Password string `yaml:"password,omitempty"`
		} `yaml:"turn"`
		ForceRelay bool `yaml:"force_relay"`
	} `yaml:"webrtc"`

	Broadcast struct {
		Address       string        `yaml:"address"`
		FrameInterval time.Duration `yaml:"frame_interval"`
	} `yaml:"broadcast"`

	Discovery struct {
		ServiceName     string        `yaml:"service_name"`
		ProbePorts      []int         `yaml:"probe_ports"`
		ProbeTimeout    time.Duration `yaml:"probe_timeout"`
		ProbesPerSecond float64       `yaml:"probes_per_second"`
		MDNSTimeout     time.Duration `yaml:"mdns_timeout"`
	} `yaml:"discovery"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Signal.Address = ":8080"
	cfg.WebRTC.STUNServers = []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	}
	cfg.Broadcast.Address = ":8090"
	cfg.Broadcast.FrameInterval = 100 * time.Millisecond
	cfg.Discovery.ServiceName = "lanpeek.local"
	cfg.Discovery.ProbePorts = []int{8080, 8090, 22, 80, 443, 445, 3389}
	cfg.Discovery.ProbeTimeout = 500 * time.Millisecond
	cfg.Discovery.ProbesPerSecond = 200
	cfg.Discovery.MDNSTimeout = 2 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	return cfg
}

// Load reads configuration from path. A missing file is not an error:
// defaults are returned, matching how a first run behaves.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Broadcast.Address == "" {
		return fmt.Errorf("broadcast.address must not be empty")
	}
	if c.Broadcast.FrameInterval <= 0 {
		return fmt.Errorf("broadcast.frame_interval must be > 0")
	}
	if c.Discovery.ProbeTimeout <= 0 {
		return fmt.Errorf("discovery.probe_timeout must be > 0")
	}
	if c.Discovery.ProbesPerSecond <= 0 {
		return fmt.Errorf("discovery.probes_per_second must be > 0")
	}
	if c.Discovery.MDNSTimeout <= 0 {
		return fmt.Errorf("discovery.mdns_timeout must be > 0")
	}
	if c.WebRTC.ForceRelay && c.WebRTC.TURN.URL == "" {
		return fmt.Errorf("webrtc.force_relay requires webrtc.turn.url")
	}
	for _, p := range c.Discovery.ProbePorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("discovery.probe_ports contains invalid port %d", p)
		}
	}
	return nil
}
