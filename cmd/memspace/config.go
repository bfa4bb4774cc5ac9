package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/memspace/internal/memory"
	"github.com/samcharles93/memspace/internal/space"
)

// Config represents the memspace configuration file
// (~/.config/memspace/config.yaml). Memory settings left out of the file
// keep memory.DefaultConfig values.
type Config struct {
	Memory memory.Config `yaml:"memory"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "memspace", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing default file is not an error; a missing
// explicit one is.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Memory: memory.DefaultConfig()}
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyMemoryFlags overrides file settings with the flags set on the
// command line.
func applyMemoryFlags(c *cli.Command, cfg *memory.Config) error {
	if c.IsSet("accelerator") || cfg.Accelerator == "" {
		cfg.Accelerator = accelerator
	}
	if c.IsSet("emulated-capacity") {
		cfg.EmulatedCapacity = emulatedCapacity
	}
	if c.IsSet("unified-memory") {
		cfg.UnifiedMemory = unifiedMemory
	}
	if c.IsSet("check-locations") {
		cfg.CheckLocations = checkLocations
	}
	if c.IsSet("default-policy") {
		p, err := space.ParsePolicy(defaultPolicy)
		if err != nil {
			return err
		}
		cfg.DefaultPolicy = p
	}
	for _, st := range []struct {
		flag     string
		val, dst *string
	}{
		{"host-strategy", &hostStrategy, &cfg.Strategies.Host},
		{"pinned-strategy", &pinnedStrategy, &cfg.Strategies.HostPinned},
		{"device-strategy", &deviceStrategy, &cfg.Strategies.Device},
		{"unified-strategy", &unifiedStrategy, &cfg.Strategies.Unified},
	} {
		if c.IsSet(st.flag) {
			*st.dst = *st.val
		}
	}
	if c.IsSet("pool-size") {
		for _, ps := range []*memory.PoolSetting{&cfg.Pools.Host, &cfg.Pools.HostPinned, &cfg.Pools.Device, &cfg.Pools.Unified} {
			ps.Size = poolSize
		}
	}
	return nil
}

// applyLoggingConfig fills the logging flags from the file when they were
// not given explicitly.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
