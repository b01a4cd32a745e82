package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the layout the microvm hosts are provisioned with.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8081
	DefaultStatesDir       = "/var/lib/microvms/states"
	DefaultSlotsDir        = "/var/lib/microvms"
	DefaultAssignmentsFile = "/etc/vm-state-assignments.json"
	DefaultPool            = "microvms"
	DefaultBaseDataset     = "storage/states"
	DefaultDataDir         = "/var/lib/slotpool"
	DefaultServiceTemplate = "microvm@%s.service"
)

// Config holds the full slotpool configuration
type Config struct {
	// Host and Port are the webhook listen address
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Pool and BaseDataset locate the state namespace inside ZFS
	// (datasets live at <pool>/<base_dataset>/<state>)
	Pool        string `yaml:"pool"`
	BaseDataset string `yaml:"base_dataset"`

	// StatesDir is where state datasets are mounted
	StatesDir string `yaml:"states_dir"`

	// SlotsDir holds the per-slot runtime directories whose data.img
	// symlink exposes the bound state to the VM
	SlotsDir string `yaml:"slots_dir"`

	// AssignmentsFile is the durable slot-to-state registry
	AssignmentsFile string `yaml:"assignments_file"`

	// DataDir holds slotpool's own data (operation journal)
	DataDir string `yaml:"data_dir"`

	// ServiceTemplate is the systemd unit name pattern for a slot
	ServiceTemplate string `yaml:"service_template"`

	// Owner, if set, is applied as "chown Owner" on state mountpoints
	// after create/clone (e.g. "microvm:kvm")
	Owner string `yaml:"owner"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns a Config populated with defaults
func Default() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Pool:            DefaultPool,
		BaseDataset:     DefaultBaseDataset,
		StatesDir:       DefaultStatesDir,
		SlotsDir:        DefaultSlotsDir,
		AssignmentsFile: DefaultAssignmentsFile,
		DataDir:         DefaultDataDir,
		ServiceTemplate: DefaultServiceTemplate,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("SLOTPOOL_POOL"); v != "" {
		c.Pool = v
	}
	if v := os.Getenv("SLOTPOOL_BASE_DATASET"); v != "" {
		c.BaseDataset = v
	}
	if v := os.Getenv("SLOTPOOL_STATES_DIR"); v != "" {
		c.StatesDir = v
	}
	if v := os.Getenv("SLOTPOOL_SLOTS_DIR"); v != "" {
		c.SlotsDir = v
	}
	if v := os.Getenv("SLOTPOOL_ASSIGNMENTS_FILE"); v != "" {
		c.AssignmentsFile = v
	}
	if v := os.Getenv("SLOTPOOL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SLOTPOOL_OWNER"); v != "" {
		c.Owner = v
	}
	if v := os.Getenv("SLOTPOOL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the configuration for obvious misconfiguration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Pool == "" {
		return fmt.Errorf("pool cannot be empty")
	}
	if c.BaseDataset == "" {
		return fmt.Errorf("base_dataset cannot be empty")
	}
	return nil
}

// ListenAddr returns the webhook listen address
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
