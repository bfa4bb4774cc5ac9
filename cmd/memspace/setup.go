package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/memory"
)

type configKey struct{}

// setup loads the config file, builds the logger and stores both in the
// context for the subcommands.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	applyLoggingConfig(cmd, cfg)
	if err := applyMemoryFlags(cmd, &cfg.Memory); err != nil {
		return ctx, err
	}

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, err
	}
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.Open(logFormat, os.Stderr, level)
	if err != nil {
		return ctx, err
	}

	ctx = logger.WithContext(ctx, log)
	return context.WithValue(ctx, configKey{}, cfg), nil
}

func configFrom(ctx context.Context) Config {
	if cfg, ok := ctx.Value(configKey{}).(Config); ok {
		return cfg
	}
	return Config{Memory: memory.DefaultConfig()}
}

// openHandle builds a memory Handle from the resolved configuration. Fatal
// memory errors end the process.
func openHandle(ctx context.Context) (*memory.Handle, error) {
	cfg := configFrom(ctx)
	h, err := memory.New(cfg.Memory, memory.WithLogger(logger.FromContext(ctx)))
	if err != nil {
		return nil, fmt.Errorf("open memory layer: %w", err)
	}
	return h, nil
}
