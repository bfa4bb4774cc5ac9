package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/memspace/internal/usage"
	"github.com/samcharles93/memspace/internal/usage/cluster"
)

func usageCmd() *cli.Command {
	var (
		level       int64
		where       string
		format      string
		coordinator string
		session     string
		rank        int64
		size        int64
	)

	return &cli.Command{
		Name:  "usage",
		Usage: "Report memory usage for this process or across a job",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "level",
				Usage:       "report bits: 1 per-rank lines, 2 min/max/avg/std table",
				Value:       usage.LevelRanks | usage.LevelTable,
				Destination: &level,
			},
			&cli.StringFlag{
				Name:        "where",
				Usage:       "label printed with the report",
				Value:       "memspace usage",
				Destination: &where,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (table, json); json prints this rank only",
				Value:       "table",
				Destination: &format,
			},
			&cli.StringFlag{
				Name:        "coordinator",
				Usage:       "base URL of a gather coordinator (memspace serve --ranks)",
				Sources:     cli.EnvVars("MEMSPACE_COORDINATOR"),
				Destination: &coordinator,
			},
			&cli.StringFlag{
				Name:        "session",
				Usage:       "gather session id shared by every rank",
				Sources:     cli.EnvVars("MEMSPACE_SESSION"),
				Destination: &session,
			},
			&cli.Int64Flag{
				Name:        "rank",
				Sources:     cli.EnvVars("MEMSPACE_RANK"),
				Destination: &rank,
			},
			&cli.Int64Flag{
				Name:        "size",
				Usage:       "number of ranks in the job",
				Value:       1,
				Sources:     cli.EnvVars("MEMSPACE_SIZE"),
				Destination: &size,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			h, err := openHandle(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			switch format {
			case "json":
				return writeSnapshotJSON(os.Stdout, h)
			case "table":
			default:
				return fmt.Errorf("unknown format %q (expected table or json)", format)
			}

			var g usage.Gatherer = usage.Local{}
			if coordinator != "" {
				if session == "" {
					return fmt.Errorf("--session is required with --coordinator")
				}
				g = &cluster.Client{BaseURL: coordinator, Session: session, Rank: int(rank), Size: int(size)}
			}
			return usage.Report(ctx, h, g, os.Stdout, int(level), where)
		},
	}
}

func writeSnapshotJSON(w io.Writer, src usage.Source) error {
	s, err := usage.Collect(src)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
