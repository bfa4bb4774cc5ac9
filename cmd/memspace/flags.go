package main

import "github.com/urfave/cli/v3"

var (
	configFile       string
	accelerator      string
	emulatedCapacity uint64
	unifiedMemory    bool
	checkLocations   bool
	defaultPolicy    string
	hostStrategy     string
	pinnedStrategy   string
	deviceStrategy   string
	unifiedStrategy  string
	poolSize         uint64
	logLevel         string
	logFormat        string
	debug            bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: user config dir)",
			Sources:     cli.EnvVars("MEMSPACE_CONFIG"),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "accelerator",
			Aliases:     []string{"a"},
			Usage:       "accelerator runtime (auto, none, emulated, cuda)",
			Value:       "auto",
			Sources:     cli.EnvVars("MEMSPACE_ACCELERATOR"),
			Destination: &accelerator,
		},
		&cli.Uint64Flag{
			Name:        "emulated-capacity",
			Usage:       "device memory of the emulated accelerator in bytes",
			Destination: &emulatedCapacity,
		},
		&cli.BoolFlag{
			Name:        "unified-memory",
			Usage:       "serve device requests from unified memory",
			Destination: &unifiedMemory,
		},
		&cli.BoolFlag{
			Name:        "check-locations",
			Usage:       "verify pointer locations on every call",
			Destination: &checkLocations,
		},
		&cli.StringFlag{
			Name:        "default-policy",
			Usage:       "execution policy for unified memory (host, device)",
			Destination: &defaultPolicy,
		},
		&cli.StringFlag{
			Name:        "host-strategy",
			Usage:       "host allocator (system, pool)",
			Destination: &hostStrategy,
		},
		&cli.StringFlag{
			Name:        "pinned-strategy",
			Usage:       "pinned host allocator (vendor, pool)",
			Destination: &pinnedStrategy,
		},
		&cli.StringFlag{
			Name:        "device-strategy",
			Usage:       "device allocator (vendor, caching, pool)",
			Destination: &deviceStrategy,
		},
		&cli.StringFlag{
			Name:        "unified-strategy",
			Usage:       "unified allocator (vendor, caching, pool)",
			Destination: &unifiedStrategy,
		},
		&cli.Uint64Flag{
			Name:        "pool-size",
			Usage:       "initial arena of every pool in bytes",
			Destination: &poolSize,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
