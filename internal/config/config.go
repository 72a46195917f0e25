// Package config loads the enginebridge configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds everything the CLI needs to start an engine session.
// Command-line flags override values loaded from the file.
type Config struct {
	// Engine is the path to the engine executable, or a bare name
	// resolved via PATH.
	Engine string `yaml:"engine"`

	// Args are passed to the engine executable.
	Args []string `yaml:"args"`

	// UsePTY runs the engine on a pseudo-terminal.
	UsePTY bool `yaml:"use_pty"`

	// LogInfoLines enables logging of engine search output and of
	// discarded stale lines.
	LogInfoLines bool `yaml:"log_info_lines"`

	// Options are UCI options set right after session setup, in
	// unspecified order.
	Options map[string]string `yaml:"options"`

	// MonitorInterval is how often engine resource usage is logged.
	// Zero disables monitoring.
	MonitorInterval Duration `yaml:"monitor_interval"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: "stockfish",
	}
}

// Load reads a YAML config file. A missing file is not an error: the
// defaults are returned. Unknown keys are rejected to catch typos.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
