package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
ha_config_path: "/tmp/ha"
output_dir: "/tmp/out"
service:
  unit: "home-assistant"
  stop_timeout: 30s
excluded_integrations: ["alexa_media"]
bridges:
  - name: "First Floor"
    areas: ["Kitchen", "Living Room"]
  - name: "Second Floor"
    areas: ["Bedroom"]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HAConfigPath != "/tmp/ha" {
		t.Errorf("HAConfigPath = %q, want %q", cfg.HAConfigPath, "/tmp/ha")
	}
	if cfg.Service.StopTimeout != 30*time.Second {
		t.Errorf("Service.StopTimeout = %v, want 30s", cfg.Service.StopTimeout)
	}
	if cfg.Service.StartTimeout != 2*time.Minute {
		t.Errorf("Service.StartTimeout = %v, want default 2m", cfg.Service.StartTimeout)
	}
	if len(cfg.ExcludedIntegrations) != 1 || cfg.ExcludedIntegrations[0] != "alexa_media" {
		t.Errorf("ExcludedIntegrations = %v, want [alexa_media]", cfg.ExcludedIntegrations)
	}
	if len(cfg.Bridges) != 2 || cfg.Bridges[0].Name != "First Floor" {
		t.Errorf("Bridges = %+v, want two bridges starting with First Floor", cfg.Bridges)
	}
	if got := cfg.ConfigEntriesPath(); got != "/tmp/ha/.storage/core.config_entries" {
		t.Errorf("ConfigEntriesPath() = %q", got)
	}
	if got := cfg.MappingPath(); got != "/tmp/out/homekit_mapping.json" {
		t.Errorf("MappingPath() = %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_DuplicateAreaIsConfigError(t *testing.T) {
	configPath := writeConfig(t, `
bridges:
  - name: "First Floor"
    areas: ["Kitchen"]
  - name: "Second Floor"
    areas: ["Kitchen"]
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for area claimed twice, got nil")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), `"Kitchen"`) {
		t.Errorf("error %q should name the area", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
ha_config_path: "/from/file"
`)
	t.Setenv("HKBRIDGE_HA_CONFIG_PATH", "/from/env")
	t.Setenv("HKBRIDGE_SERVICE_UNIT", "hass.service")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HAConfigPath != "/from/env" {
		t.Errorf("HAConfigPath = %q, want %q", cfg.HAConfigPath, "/from/env")
	}
	if cfg.Service.Unit != "hass.service" {
		t.Errorf("Service.Unit = %q, want %q", cfg.Service.Unit, "hass.service")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty ha_config_path",
			mutate:  func(c *Config) { c.HAConfigPath = "" },
			wantErr: "ha_config_path",
		},
		{
			name:    "capacity above protocol limit",
			mutate:  func(c *Config) { c.Capacity = 151 },
			wantErr: "capacity",
		},
		{
			name:    "zero capacity",
			mutate:  func(c *Config) { c.Capacity = 0 },
			wantErr: "capacity",
		},
		{
			name:    "missing service unit",
			mutate:  func(c *Config) { c.Service.Unit = " " },
			wantErr: "service.unit",
		},
		{
			name:    "non-positive stop timeout",
			mutate:  func(c *Config) { c.Service.StopTimeout = 0 },
			wantErr: "service.stop_timeout",
		},
		{
			name: "duplicate bridge name",
			mutate: func(c *Config) {
				c.Bridges = []BridgeConfig{{Name: "A"}, {Name: "A"}}
			},
			wantErr: "defined more than once",
		},
		{
			name: "unnamed bridge",
			mutate: func(c *Config) {
				c.Bridges = []BridgeConfig{{Areas: []string{"Kitchen"}}}
			},
			wantErr: "bridges[0].name",
		},
		{
			name: "area listed twice in one bridge",
			mutate: func(c *Config) {
				c.Bridges = []BridgeConfig{{Name: "A", Areas: []string{"Kitchen", "Kitchen"}}}
			},
			wantErr: "claimed by both",
		},
		{
			name: "mqtt enabled with bad qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Org = "home"
			},
			wantErr: "influxdb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_ReportsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.HAConfigPath = ""
	cfg.Service.Unit = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"ha_config_path", "service.unit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %q, missing %q", err, want)
		}
	}
}

func TestConfig_ResolvesAbsolutePaths(t *testing.T) {
	cfg := Defaults()
	cfg.OutputDir = "/srv/out"
	cfg.MappingFile = "/etc/hkbridge/mapping.json"
	cfg.History.Path = "history.db"

	if got := cfg.MappingPath(); got != "/etc/hkbridge/mapping.json" {
		t.Errorf("MappingPath() = %q, want absolute path unchanged", got)
	}
	if got := cfg.HistoryPath(); got != "/srv/out/history.db" {
		t.Errorf("HistoryPath() = %q, want %q", got, "/srv/out/history.db")
	}
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := WriteExample(path, false); err != nil {
		t.Fatalf("WriteExample() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of example error = %v", err)
	}
	if len(cfg.Bridges) != 2 {
		t.Errorf("example bridges = %d, want 2", len(cfg.Bridges))
	}
	if cfg.Service.StopTimeout != 2*time.Minute {
		t.Errorf("example StopTimeout = %v, want 2m", cfg.Service.StopTimeout)
	}

	err = WriteExample(path, false)
	if !errors.Is(err, ErrConfigExists) {
		t.Errorf("second WriteExample() error = %v, want ErrConfigExists", err)
	}

	if err := WriteExample(path, true); err != nil {
		t.Errorf("WriteExample(force) error = %v", err)
	}
}
