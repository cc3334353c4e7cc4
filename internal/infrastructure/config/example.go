package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteExample when the target already exists.
var ErrConfigExists = errors.New("config: file already exists")

// configFilePermissions keeps credentials in the file private to the owner.
const configFilePermissions = 0600

// Example returns the configuration written by the init command.
func Example() *Config {
	cfg := Defaults()
	cfg.Bridges = []BridgeConfig{
		{
			Name:  "First Floor",
			Areas: []string{"Kitchen", "Living Room", "Family Room"},
		},
		{
			Name:  "Second Floor",
			Areas: []string{"Master Bedroom", "Kids Bedroom", "Bathroom"},
		},
	}
	return cfg
}

// WriteExample writes Example() as YAML to path.
// An existing file is only replaced when force is set.
func WriteExample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return fmt.Errorf("encoding example config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePermissions); err != nil {
		return fmt.Errorf("writing example config: %w", err)
	}
	return nil
}
