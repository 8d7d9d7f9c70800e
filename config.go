package qhsm

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config describes a set of active objects and how they log.
//
//	log_level: debug
//	actives:
//	  - name: oven
//	    priority: 1
//	  - name: display
//	    priority: 2
type Config struct {
	LogLevel string         `yaml:"log_level,omitempty"`
	Actives  []ActiveConfig `yaml:"actives"`
}

// ActiveConfig is the configuration of one active object.
type ActiveConfig struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return LoadConfig(bytes.NewReader(data))
}

// LoadConfig decodes and validates a YAML configuration read from r. Unknown
// keys are rejected. An empty document is an empty configuration.
func LoadConfig(r io.Reader) (*Config, error) {
	var config Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects unnamed, duplicate or negatively prioritized active
// objects and unknown log levels.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Actives))
	for i, active := range c.Actives {
		if active.Name == "" {
			return errors.Wrapf(ErrInvalidConfig, "actives[%d]: missing name", i)
		}
		if _, ok := seen[active.Name]; ok {
			return errors.Wrapf(ErrInvalidConfig, "actives[%d]: duplicate name %q", i, active.Name)
		}
		seen[active.Name] = struct{}{}
		if active.Priority < 0 {
			return errors.Wrapf(ErrInvalidConfig, "actives[%d]: %s: %d", i, ErrNegativePriority, active.Priority)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Priority returns the configured priority of the named active object.
func (c *Config) Priority(name string) (int, bool) {
	if c == nil {
		return 0, false
	}
	for _, active := range c.Actives {
		if active.Name == name {
			return active.Priority, true
		}
	}
	return 0, false
}

// Level returns the configured log level, Info when unset.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c == nil || c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, errors.Wrapf(ErrInvalidConfig, "log_level %q", c.LogLevel)
	}
	return level, nil
}
