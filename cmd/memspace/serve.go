package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/usage"
	"github.com/samcharles93/memspace/internal/usage/cluster"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		ranks       int64
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve Prometheus metrics and, with --ranks, a usage gather coordinator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:9464",
				Destination: &addr,
			},
			&cli.Int64Flag{
				Name:        "ranks",
				Usage:       "job size for the gather coordinator (0 disables it)",
				Destination: &ranks,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cfg := configFrom(ctx); cfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = cfg.ServerAddress
			}

			h, err := openHandle(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			e, err := newServer(h, int(ranks), log)
			if err != nil {
				return err
			}
			log.Info("starting server", "address", addr, "ranks", ranks)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

// newServer wires /metrics for src and, when ranks > 0, the gather
// coordinator routes.
func newServer(src usage.Source, ranks int, log logger.Logger) (*echo.Echo, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		usage.NewCollector(src, log, nil),
	)

	e := echo.New()
	e.Use(middleware.Recover())
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	if ranks > 0 {
		coord, err := cluster.NewCoordinator(ranks, log)
		if err != nil {
			return nil, err
		}
		coord.Register(e)
		e.GET("/v1/session", func(c *echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{
				"session": cluster.NewSession(),
				"ranks":   strconv.Itoa(ranks),
			})
		})
	}
	return e, nil
}
