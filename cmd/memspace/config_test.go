package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/memspace/internal/memory"
	"github.com/samcharles93/memspace/internal/space"
)

const sampleConfig = `
log_level: debug
server_address: 0.0.0.0:9000
memory:
  accelerator: emulated
  unified_memory: true
  default_policy: host
  strategies:
    device: caching
  pools:
    device:
      name: JOB_DEVICE_POOL
      size: 1048576
  caching:
    bin_growth: 4
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	def := memory.DefaultConfig()
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "0.0.0.0:9000", cfg.ServerAddress)
	require.Equal(t, "emulated", cfg.Memory.Accelerator)
	require.True(t, cfg.Memory.UnifiedMemory)
	require.Equal(t, space.PolicyHost, cfg.Memory.DefaultPolicy)
	require.Equal(t, "caching", cfg.Memory.Strategies.Device)
	require.Equal(t, "JOB_DEVICE_POOL", cfg.Memory.Pools.Device.Name)
	require.Equal(t, uint64(1<<20), cfg.Memory.Pools.Device.Size)
	require.Equal(t, def.Pools.Host, cfg.Memory.Pools.Host)
	require.Equal(t, 4, cfg.Memory.Caching.BinGrowth)
	require.Equal(t, def.Caching.MaxBin, cfg.Memory.Caching.MaxBin)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "memory: [not, a, map]"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "memory:\n  default_policy: sideways\n"))
	require.Error(t, err)
}

// runApp runs the root command with args and returns the context setup
// produced.
func runApp(t *testing.T, args ...string) Config {
	t.Helper()
	var got Config
	app := &cli.Command{
		Name:   "memspace",
		Flags:  append(globalFlags(), loggingFlags()...),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			got = configFrom(ctx)
			return nil
		},
	}
	require.NoError(t, app.Run(context.Background(), append([]string{"memspace"}, args...)))
	return got
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg := runApp(t, "--config", path)
	require.Equal(t, "emulated", cfg.Memory.Accelerator)
	require.Equal(t, "caching", cfg.Memory.Strategies.Device)
	require.Equal(t, "debug", logLevel)

	cfg = runApp(t, "--config", path,
		"--accelerator", "none",
		"--device-strategy", "pool",
		"--default-policy", "device",
		"--pool-size", "4096",
		"--check-locations",
		"--log-level", "warn",
	)
	require.Equal(t, "none", cfg.Memory.Accelerator)
	require.Equal(t, "pool", cfg.Memory.Strategies.Device)
	require.Equal(t, space.PolicyDevice, cfg.Memory.DefaultPolicy)
	require.True(t, cfg.Memory.CheckLocations)
	require.Equal(t, uint64(4096), cfg.Memory.Pools.Unified.Size)
	require.Equal(t, "JOB_DEVICE_POOL", cfg.Memory.Pools.Device.Name)
	require.Equal(t, "warn", logLevel)
}

func TestBadFlagValues(t *testing.T) {
	app := &cli.Command{
		Name:   "memspace",
		Flags:  append(globalFlags(), loggingFlags()...),
		Before: setup,
		Action: func(context.Context, *cli.Command) error { return nil },
	}
	path := writeConfig(t, "")
	for _, args := range [][]string{
		{"--default-policy", "sideways"},
		{"--log-level", "loud"},
		{"--log-format", "xml"},
	} {
		err := app.Run(context.Background(), append([]string{"memspace", "--config", path}, args...))
		require.Error(t, err, args)
	}
}
