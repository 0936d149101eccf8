package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultControllerListen     = "127.0.0.1:8080"
	DefaultTelemetryListen      = "127.0.0.1:9000"
	DefaultSwitchAPIListen      = "127.0.0.1:8081"
	DefaultLoadTTLSec           = 30
	DefaultTelemetryIntervalSec = 5
	DefaultCapacityPPS          = 1000
)

// Config holds controller, switch agent and topology settings. One file can
// drive every process of a small lab.
type Config struct {
	Controller *ControllerConfig `yaml:"controller,omitempty"`
	Switch     *SwitchConfig     `yaml:"switch,omitempty"`
	Topology   Topology          `yaml:"topology"`
}

// ControllerConfig is used by the controller process.
type ControllerConfig struct {
	Listen          string `yaml:"listen"`
	TelemetryListen string `yaml:"telemetry_listen"`
	// FlowAPI is the default base URL of flow-rule endpoints for switches
	// that do not set their own api.
	FlowAPI             string `yaml:"flow_api"`
	DataDir             string `yaml:"data_dir"`
	TelemetryPath       string `yaml:"telemetry_path"`
	LoadTTLSec          int    `yaml:"load_ttl_sec"`
	OptimizeIntervalSec int    `yaml:"optimize_interval_sec"`
}

// SwitchConfig is used by a switch agent process.
type SwitchConfig struct {
	ID                   string            `yaml:"id"`
	APIListen            string            `yaml:"api_listen"`
	DataListen           string            `yaml:"data_listen"`
	Controller           string            `yaml:"controller"`
	// TelemetryAddr overrides the update listener address derived from
	// controller.
	TelemetryAddr        string            `yaml:"telemetry_addr"`
	TelemetryIntervalSec int               `yaml:"telemetry_interval_sec"`
	CapacityPPS          int               `yaml:"capacity_pps"`
	Ports                map[string]string `yaml:"ports"`
	STUNServers          []string          `yaml:"stun_servers"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Controller == nil && cfg.Switch == nil && len(cfg.Topology.Hosts) == 0 {
		return fmt.Errorf("config must contain controller, switch or topology section")
	}
	if cfg.Controller != nil && cfg.Controller.Listen == "" {
		return fmt.Errorf("controller.listen is required")
	}
	if cfg.Switch != nil {
		if cfg.Switch.ID == "" {
			return fmt.Errorf("switch.id is required")
		}
		if cfg.Switch.Controller == "" {
			return fmt.Errorf("switch.controller is required")
		}
		if _, ok := cfg.Topology.Switch(cfg.Switch.ID); !ok {
			return fmt.Errorf("switch %q is not in topology.switches", cfg.Switch.ID)
		}
	}
	return cfg.Topology.Validate()
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Controller != nil {
		if cfg.Controller.Listen == "" {
			cfg.Controller.Listen = DefaultControllerListen
		}
		if cfg.Controller.TelemetryListen == "" {
			cfg.Controller.TelemetryListen = DefaultTelemetryListen
		}
		if cfg.Controller.LoadTTLSec == 0 {
			cfg.Controller.LoadTTLSec = DefaultLoadTTLSec
		}
	}

	if cfg.Switch != nil {
		if cfg.Switch.APIListen == "" {
			cfg.Switch.APIListen = DefaultSwitchAPIListen
		}
		if cfg.Switch.TelemetryIntervalSec == 0 {
			cfg.Switch.TelemetryIntervalSec = DefaultTelemetryIntervalSec
		}
		if cfg.Switch.CapacityPPS == 0 {
			cfg.Switch.CapacityPPS = DefaultCapacityPPS
		}
		if cfg.Switch.DataListen == "" {
			if node, ok := cfg.Topology.Switch(cfg.Switch.ID); ok {
				cfg.Switch.DataListen = node.DataAddr
			}
		}
	}
}
