package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/memspace/internal/backend"
	"github.com/samcharles93/memspace/internal/memory"
	"github.com/samcharles93/memspace/internal/space"
)

var logicals = []space.Logical{
	space.LogicalHost,
	space.LogicalHostPinned,
	space.LogicalDevice,
	space.LogicalUnified,
}

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the accelerator, space resolution and execution policies",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			h, err := openHandle(ctx)
			if err != nil {
				return err
			}
			defer h.Close()
			return writeInfo(os.Stdout, h)
		},
	}
}

func writeInfo(w io.Writer, h *memory.Handle) error {
	cfg := h.Config()
	accName := backend.None
	if acc := h.Accelerator(); acc != nil {
		accName = acc.Name()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "accelerator:\t%s\n", accName)
	fmt.Fprintf(tw, "available:\t%s\n", backend.Available())
	if info, ok := h.DeviceMemory(); ok {
		fmt.Fprintf(tw, "device memory:\t%s used of %s\n", humanize.IBytes(info.Used()), humanize.IBytes(info.Total))
	}
	fmt.Fprintf(tw, "unified memory:\t%t\n", cfg.UnifiedMemory)
	fmt.Fprintf(tw, "default policy:\t%s\n", cfg.DefaultPolicy)
	fmt.Fprintf(tw, "location checks:\t%t\n", cfg.CheckLocations)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "LOGICAL\tPHYSICAL\tSTRATEGY\tPOLICY")
	for _, l := range logicals {
		p := h.Resolve(l)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l, p, strategyOf(cfg, p), h.UnaryPolicy(l))
	}
	return tw.Flush()
}

func strategyOf(cfg memory.Config, p space.Physical) string {
	switch p {
	case space.Host:
		return cfg.Strategies.Host
	case space.HostPinned:
		return cfg.Strategies.HostPinned
	case space.Device:
		return cfg.Strategies.Device
	case space.Unified:
		return cfg.Strategies.Unified
	}
	return "-"
}
