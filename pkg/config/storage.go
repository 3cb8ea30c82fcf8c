package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flynn/json5"
)

func writeJSON(v interface{}, path string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// readJSON accepts plain JSON as well as JSON5 with comments
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json5.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return nil
}

// SaveToFile writes a device configuration as indented JSON
func SaveToFile(configuration *DeviceConfig, path string) error {
	return writeJSON(configuration, path)
}

// LoadFromFile reads a device configuration
func LoadFromFile(path string) (*DeviceConfig, error) {
	var configuration DeviceConfig
	if err := readJSON(path, &configuration); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// SaveSettings writes bare settings as indented JSON
func SaveSettings(settings *Settings, path string) error {
	return writeJSON(settings, path)
}

// LoadSettings reads settings on top of the defaults, so a file only
// needs the fields it changes. The result is validated.
func LoadSettings(path string) (*Settings, error) {
	settings := Default()
	if err := readJSON(path, &settings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return &settings, nil
}

// GetConfigPath returns the conventional path for a device's saved configuration
func GetConfigPath(serial string) string {
	return filepath.Join("etc", "blueboxes", fmt.Sprintf("%s.json", serial))
}
