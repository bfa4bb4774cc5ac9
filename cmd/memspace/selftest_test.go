package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/memory"
	"github.com/samcharles93/memspace/internal/space"
	"github.com/samcharles93/memspace/internal/usage"
)

func emulatedHandle(t *testing.T, mutate func(*memory.Config)) *memory.Handle {
	t.Helper()
	cfg := memory.DefaultConfig()
	cfg.Accelerator = "emulated"
	cfg.EmulatedCapacity = 64 << 20
	cfg.CheckLocations = true
	for _, ps := range []*memory.PoolSetting{&cfg.Pools.Host, &cfg.Pools.HostPinned, &cfg.Pools.Device, &cfg.Pools.Unified} {
		ps.Size = 1 << 20
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := memory.New(cfg, memory.WithLogger(logger.JSON(&bytes.Buffer{}, slog.LevelDebug)))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, h.Close()) })
	return h
}

func TestSelftestPasses(t *testing.T) {
	for name, mutate := range map[string]func(*memory.Config){
		"vendor": nil,
		"pools": func(c *memory.Config) {
			c.Strategies = memory.Strategies{Host: "pool", HostPinned: "pool", Device: "pool", Unified: "pool"}
		},
		"caching": func(c *memory.Config) {
			c.Strategies.Device = "caching"
			c.Strategies.Unified = "caching"
		},
		"unified": func(c *memory.Config) { c.UnifiedMemory = true },
	} {
		t.Run(name, func(t *testing.T) {
			h := emulatedHandle(t, mutate)
			var out bytes.Buffer
			require.Zero(t, runSelftest(&out, h, 4096), out.String())
			require.NotContains(t, out.String(), "FAIL")
			require.Equal(t, 4+16+4+1+4, strings.Count(out.String(), "ok "))
		})
	}
}

func TestInfoAndBench(t *testing.T) {
	h := emulatedHandle(t, func(c *memory.Config) { c.Strategies.Device = "caching" })

	var info bytes.Buffer
	require.NoError(t, writeInfo(&info, h))
	require.Contains(t, info.String(), "emulated")
	require.Contains(t, info.String(), "device memory:")
	require.Contains(t, info.String(), "caching")

	opts := benchOptions{Size: 1 << 12, Iters: 5, Workers: 2}
	var results []benchResult
	for _, l := range logicals {
		r, err := runBench(context.Background(), h, l, opts)
		require.NoError(t, err)
		require.Positive(t, r.AllocRate)
		results = append(results, r)
	}
	var out bytes.Buffer
	require.NoError(t, writeBench(&out, opts, results))
	require.Contains(t, out.String(), "ALLOC+FREE/s")
}

func TestUsageJSONAndServer(t *testing.T) {
	h := emulatedHandle(t, func(c *memory.Config) { c.Strategies.Device = "pool" })
	ptr := h.Allocate(100, space.LogicalDevice)
	defer h.Free(ptr, space.LogicalDevice)

	var out bytes.Buffer
	require.NoError(t, writeSnapshotJSON(&out, h))
	var snap usage.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	require.Equal(t, float64(512), snap[usage.DevicePoolSize])

	e, err := newServer(h, 2, logger.Nop())
	require.NoError(t, err)

	rec := doGet(e, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "memspace_device_pool_peak_bytes 512")

	rec = doGet(e, "/v1/session")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ranks":"2"`)

	var buf bytes.Buffer
	require.NoError(t, usage.Report(context.Background(), h, usage.Local{}, &buf, usage.LevelTable, "test"))
	require.Contains(t, buf.String(), "PoolDPeak (GiB)")
}

func doGet(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}
