package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/memory"
	"github.com/samcharles93/memspace/internal/space"
)

type benchOptions struct {
	Size    int
	Iters   int
	Workers int
}

type benchResult struct {
	Space     space.Logical
	Physical  space.Physical
	AllocRate float64
	// bytes per second into and out of the space from host memory
	UploadRate   float64
	DownloadRate float64
}

func benchCmd() *cli.Command {
	var (
		size    int64
		iters   int64
		workers int64
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Measure allocation and copy throughput per memory space",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "size",
				Usage:       "bytes per allocation and copy",
				Value:       1 << 20,
				Destination: &size,
			},
			&cli.Int64Flag{
				Name:        "iters",
				Aliases:     []string{"n"},
				Usage:       "iterations per worker",
				Value:       200,
				Destination: &iters,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Aliases:     []string{"j"},
				Usage:       "concurrent allocating goroutines",
				Value:       4,
				Destination: &workers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := benchOptions{Size: int(size), Iters: int(iters), Workers: int(workers)}
			if opts.Size <= 0 || opts.Iters <= 0 || opts.Workers <= 0 {
				return fmt.Errorf("size, iters and workers must be positive")
			}
			h, err := openHandle(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			log := logger.FromContext(ctx)
			results := make([]benchResult, 0, len(logicals))
			for _, l := range logicals {
				log.Debug("benchmarking", "space", l.String(), "size", opts.Size)
				r, err := runBench(ctx, h, l, opts)
				if err != nil {
					return err
				}
				results = append(results, r)
			}
			return writeBench(os.Stdout, opts, results)
		},
	}
}

func runBench(ctx context.Context, h *memory.Handle, l space.Logical, opts benchOptions) (benchResult, error) {
	r := benchResult{Space: l, Physical: h.Resolve(l)}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for range opts.Workers {
		g.Go(func() error {
			for range opts.Iters {
				if err := gctx.Err(); err != nil {
					return err
				}
				ptr := h.Allocate(opts.Size, l)
				h.Free(ptr, l)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r, err
	}
	r.AllocRate = float64(opts.Workers*opts.Iters) / time.Since(start).Seconds()

	buf := make([]byte, opts.Size)
	hostPtr := unsafe.Pointer(&buf[0])
	ptr := h.Allocate(opts.Size, l)
	defer h.Free(ptr, l)

	rate := func(copyOnce func()) (float64, error) {
		start := time.Now()
		for range opts.Iters {
			copyOnce()
		}
		if err := h.Synchronize(); err != nil {
			return 0, err
		}
		return float64(opts.Size*opts.Iters) / time.Since(start).Seconds(), nil
	}
	var err error
	if r.UploadRate, err = rate(func() { h.Copy(ptr, hostPtr, opts.Size, l, space.LogicalHost) }); err != nil {
		return r, err
	}
	if r.DownloadRate, err = rate(func() { h.Copy(hostPtr, ptr, opts.Size, space.LogicalHost, l) }); err != nil {
		return r, err
	}
	return r, h.Err()
}

func writeBench(w io.Writer, opts benchOptions, results []benchResult) error {
	fmt.Fprintf(w, "size %s, %d iterations x %d workers\n\n", humanize.IBytes(uint64(opts.Size)), opts.Iters, opts.Workers)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SPACE\tPHYSICAL\tALLOC+FREE/s\tUPLOAD/s\tDOWNLOAD/s\t")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			r.Space, r.Physical,
			humanize.CommafWithDigits(r.AllocRate, 0),
			humanize.IBytes(uint64(r.UploadRate)),
			humanize.IBytes(uint64(r.DownloadRate)),
		)
	}
	return tw.Flush()
}
