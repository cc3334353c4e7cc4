package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxCapacity is the HomeKit accessory limit for a single bridge.
const MaxCapacity = 150

// ErrInvalidConfig is wrapped by every validation failure returned from Load and Validate.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the root configuration structure for the bridge manager.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	// HAConfigPath is the Home Assistant configuration directory (the one holding .storage).
	HAConfigPath string `yaml:"ha_config_path"`

	// OutputDir is where the mapping artifact and the history database live.
	OutputDir string `yaml:"output_dir"`

	// MappingFile is the artifact file name, relative to OutputDir unless absolute.
	MappingFile string `yaml:"mapping_file"`

	// Capacity is the per-bridge entity limit. Must not exceed MaxCapacity.
	Capacity int `yaml:"capacity"`

	Service ServiceConfig `yaml:"service"`

	ExcludedIntegrations []string `yaml:"excluded_integrations"`
	ExcludedPatterns     []string `yaml:"excluded_patterns"`
	IgnoredEntities      []string `yaml:"ignored_entities"`

	// IncludeDomains limits generation to these entity domains. Empty means all.
	IncludeDomains  []string `yaml:"include_domains"`
	IncludeDisabled bool     `yaml:"include_disabled"`

	Bridges []BridgeConfig `yaml:"bridges"`

	Logging  LoggingConfig  `yaml:"logging"`
	History  HistoryConfig  `yaml:"history"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// BridgeConfig assigns areas to an existing HomeKit bridge.
type BridgeConfig struct {
	// Name must exactly match the HomeKit bridge title in Home Assistant.
	Name string `yaml:"name"`

	// Areas are area IDs or area display names.
	Areas []string `yaml:"areas"`
}

// ServiceConfig describes how to stop and start Home Assistant.
type ServiceConfig struct {
	// Unit is the systemd unit name (e.g., "home-assistant@homeassistant").
	Unit string `yaml:"unit"`

	// Systemctl is the systemctl binary. Default: "systemctl"
	Systemctl string `yaml:"systemctl"`

	// UseSudo prefixes every systemctl call with sudo.
	UseSudo bool `yaml:"use_sudo"`

	StopTimeout  time.Duration `yaml:"stop_timeout"`
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HistoryConfig contains settings for the apply history database.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite file, relative to OutputDir unless absolute.
	Path string `yaml:"path"`
}

// MQTTConfig contains MQTT broker connection settings for outcome notifications.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HKBRIDGE_KEY
// For example: HKBRIDGE_HA_CONFIG_PATH, HKBRIDGE_SERVICE_UNIT
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		HAConfigPath: "/srv/HA/ha-config",
		OutputDir:    ".",
		MappingFile:  "homekit_mapping.json",
		Capacity:     MaxCapacity,
		Service: ServiceConfig{
			Unit:         "home-assistant@homeassistant",
			Systemctl:    "systemctl",
			UseSudo:      true,
			StopTimeout:  2 * time.Minute,
			StartTimeout: 2 * time.Minute,
		},
		ExcludedIntegrations: []string{
			"unifi",
			"unifiprotect",
			"alexa_media",
			"frigate",
			"sonos",
			"stateful_scenes",
			"nest_protect",
			"adguard",
			"pura",
			"spook",
			"rachio",
			"litterrobot",
			"bambu_lab",
			"teslemetry",
			"wake_on_lan",
			"synology_dsm",
			"hacs",
		},
		ExcludedPatterns: []string{
			`_segment_\d{3}`, // Govee light segments
		},
		IncludeDomains: []string{"light", "switch"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "hkbridge_history.db",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hkbridge",
			},
			QoS:         1,
			TopicPrefix: "hkbridge",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 1,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HKBRIDGE_HA_CONFIG_PATH"); v != "" {
		cfg.HAConfigPath = v
	}
	if v := os.Getenv("HKBRIDGE_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("HKBRIDGE_SERVICE_UNIT"); v != "" {
		cfg.Service.Unit = v
	}
	if v := os.Getenv("HKBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("HKBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HKBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HKBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HKBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.HAConfigPath) == "" {
		errs = append(errs, "ha_config_path is required")
	}
	if strings.TrimSpace(c.MappingFile) == "" {
		errs = append(errs, "mapping_file is required")
	}
	if c.Capacity < 1 || c.Capacity > MaxCapacity {
		errs = append(errs, fmt.Sprintf("capacity must be between 1 and %d", MaxCapacity))
	}

	// Service validation
	if strings.TrimSpace(c.Service.Unit) == "" {
		errs = append(errs, "service.unit is required")
	}
	if c.Service.StopTimeout <= 0 {
		errs = append(errs, "service.stop_timeout must be positive")
	}
	if c.Service.StartTimeout <= 0 {
		errs = append(errs, "service.start_timeout must be positive")
	}

	errs = append(errs, c.validateBridges()...)

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// validateBridges checks bridge names are unique and that no area is claimed twice.
func (c *Config) validateBridges() []string {
	var errs []string

	names := make(map[string]bool, len(c.Bridges))
	owner := make(map[string]string)

	for i, b := range c.Bridges {
		if strings.TrimSpace(b.Name) == "" {
			errs = append(errs, fmt.Sprintf("bridges[%d].name is required", i))
			continue
		}
		if names[b.Name] {
			errs = append(errs, fmt.Sprintf("bridge %q is defined more than once", b.Name))
		}
		names[b.Name] = true

		for _, area := range b.Areas {
			if prev, ok := owner[area]; ok {
				errs = append(errs, fmt.Sprintf("area %q is claimed by both %q and %q", area, prev, b.Name))
				continue
			}
			owner[area] = b.Name
		}
	}

	return errs
}

// StoragePath returns the Home Assistant .storage directory.
func (c *Config) StoragePath() string {
	return filepath.Join(c.HAConfigPath, ".storage")
}

// ConfigEntriesPath returns the persisted integration entries file.
func (c *Config) ConfigEntriesPath() string {
	return filepath.Join(c.StoragePath(), "core.config_entries")
}

// MappingPath returns the mapping artifact path.
func (c *Config) MappingPath() string {
	return c.resolve(c.MappingFile)
}

// HistoryPath returns the history database path.
func (c *Config) HistoryPath() string {
	return c.resolve(c.History.Path)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}
