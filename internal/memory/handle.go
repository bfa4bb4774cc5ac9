// Package memory is the heterogeneous memory layer: it resolves logical
// memory spaces, dispatches allocation to the configured backends, and
// copies, fills and introspects memory across host and accelerator.
package memory

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/hashicorp/go-multierror"

	"github.com/samcharles93/memspace/internal/backend"
	"github.com/samcharles93/memspace/internal/backend/host"
	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/pool"
	"github.com/samcharles93/memspace/internal/space"
)

const numSpaces = int(space.Unified) + 1

// Handle is the process-wide configuration of the memory layer. It is
// created once, passed explicitly to everything that allocates, and closed
// at shutdown.
type Handle struct {
	log     logger.Logger
	acc     device.Accelerator
	ownsAcc bool
	abort   Aborter
	sys     *host.System

	mu       sync.Mutex
	cfg      Config
	vendor   [numSpaces]backend.MemoryBackend
	caching  [numSpaces]*pool.Caching
	pools    *pool.Manager
	poolRefs [numSpaces]*pool.Pool
	owned    [numSpaces]bool
	user     *backend.UserBackend

	errMu sync.Mutex
	err   error
}

type Option func(*Handle)

func WithLogger(log logger.Logger) Option {
	return func(h *Handle) {
		h.log = log
	}
}

// WithAborter replaces ExitAborter.
func WithAborter(a Aborter) Option {
	return func(h *Handle) {
		h.abort = a
	}
}

// WithAccelerator uses acc instead of opening Config.Accelerator. The
// caller keeps ownership; acc may be nil for a host-only handle.
func WithAccelerator(acc device.Accelerator) Option {
	return func(h *Handle) {
		h.acc = acc
		h.ownsAcc = false
	}
}

// WithPoolManager shares a pool registry. Pools already registered under
// the configured names are used but never released by this handle.
func WithPoolManager(m *pool.Manager) Option {
	return func(h *Handle) {
		h.pools = m
	}
}

func New(cfg Config, opts ...Option) (*Handle, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	h := &Handle{
		cfg:     cfg,
		abort:   ExitAborter,
		ownsAcc: true,
	}
	accSet := false
	for _, opt := range opts {
		opt(h)
		if !h.ownsAcc {
			accSet = true
		}
	}
	if h.log == nil {
		h.log = logger.Default()
	}
	h.log = h.log.With("component", "memory")
	if h.pools == nil {
		h.pools = pool.NewManager()
	}

	if !accSet {
		acc, err := backend.NewAccelerator(cfg.Accelerator, backend.AcceleratorOptions{
			EmulatedCapacity: cfg.EmulatedCapacity,
			Logger:           h.log,
		})
		if err != nil {
			return nil, fmt.Errorf("open accelerator %q: %w", cfg.Accelerator, err)
		}
		h.acc = acc
	}
	if h.acc == nil {
		h.ownsAcc = false
	}

	h.sys = host.NewSystem()
	if h.acc != nil {
		for _, p := range []space.Physical{space.HostPinned, space.Device, space.Unified} {
			v, err := backend.NewVendor(h.acc, p)
			if err != nil {
				return nil, err
			}
			h.vendor[p] = v
		}
	}

	accName := backend.None
	if h.acc != nil {
		accName = h.acc.Name()
	}
	h.log.Debug("memory layer ready",
		"accelerator", accName,
		"unified_memory", cfg.UnifiedMemory,
		"default_policy", cfg.DefaultPolicy.String(),
	)
	return h, nil
}

// Accelerator returns the runtime in use, or nil without one.
func (h *Handle) Accelerator() device.Accelerator {
	return h.acc
}

// Config returns a copy of the effective configuration.
func (h *Handle) Config() Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// Synchronize waits for outstanding accelerator work.
func (h *Handle) Synchronize() error {
	if h.acc == nil {
		return nil
	}
	return h.acc.Synchronize()
}

func (h *Handle) zeroFunc(p space.Physical) pool.ZeroFunc {
	return func(ptr unsafe.Pointer, n int) error {
		return backend.Zero(h.acc, ptr, n, p)
	}
}

// base returns the raw backend for p: the system allocator on the host,
// the accelerator runtime elsewhere.
func (h *Handle) base(p space.Physical) (backend.MemoryBackend, error) {
	if p == space.Host {
		return h.sys, nil
	}
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, p)
	}
	if h.vendor[p] == nil {
		return nil, fmt.Errorf("%w: %s memory without an accelerator", ErrUnknownLocation, p)
	}
	return h.vendor[p], nil
}

// backendFor returns the backend serving p, building caches and pools on
// first use.
func (h *Handle) backendFor(p space.Physical) (backend.MemoryBackend, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p == space.Device && h.user != nil {
		return h.user, nil
	}
	raw, err := h.base(p)
	if err != nil {
		return nil, err
	}
	switch h.cfg.Strategies.get(p) {
	case backend.Caching:
		if h.caching[p] == nil {
			c, err := pool.NewCaching(raw, h.cfg.Caching, h.zeroFunc(p))
			if err != nil {
				return nil, err
			}
			h.caching[p] = c
			h.log.Debug("caching allocator created", "space", p.String(),
				"bin_growth", h.cfg.Caching.BinGrowth, "min_bin", h.cfg.Caching.MinBin, "max_bin", h.cfg.Caching.MaxBin)
		}
		return h.caching[p], nil
	case backend.Pool:
		if h.poolRefs[p] == nil {
			if err := h.makePool(p, raw); err != nil {
				return nil, err
			}
		}
		return h.poolRefs[p], nil
	default:
		return raw, nil
	}
}

func (h *Handle) makePool(p space.Physical, raw backend.MemoryBackend) error {
	ps := h.cfg.Pools.get(p)
	if existing, ok := h.pools.Lookup(ps.Name); ok {
		if existing.Space() != p {
			return fmt.Errorf("%w: pool %s holds %s memory, not %s", ErrInvalidArgument, ps.Name, existing.Space(), p)
		}
		h.poolRefs[p] = existing
		h.owned[p] = false
		h.log.Debug("using existing pool", "space", p.String(), "name", ps.Name)
		return nil
	}
	created, err := h.pools.MakePool(ps.Name, raw, pool.PoolConfig{
		InitialSize: ps.Size,
		BlockSize:   h.cfg.Pools.BlockSize,
	}, h.zeroFunc(p))
	if err != nil {
		return err
	}
	h.poolRefs[p] = created
	h.owned[p] = true
	h.log.Debug("pool created", "space", p.String(), "name", ps.Name, "size", ps.Size)
	return nil
}

// OwnsPool reports whether the pool serving p was created by this handle.
func (h *Handle) OwnsPool(p space.Physical) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return p.IsValid() && h.owned[p]
}

// Close releases owned pools and caches, the host allocator and, when this
// handle opened it, the accelerator.
func (h *Handle) Close() error {
	var result *multierror.Error
	if h.acc != nil {
		if err := h.acc.Synchronize(); err != nil {
			result = multierror.Append(result, fmt.Errorf("synchronize: %w", err))
		}
	}

	h.mu.Lock()
	for _, p := range space.Physicals {
		if h.poolRefs[p] != nil && h.owned[p] {
			if err := h.pools.Release(h.poolRefs[p].Name()); err != nil {
				result = multierror.Append(result, fmt.Errorf("release %s pool: %w", p, err))
			}
		}
		h.poolRefs[p] = nil
		h.owned[p] = false
		if h.caching[p] != nil {
			if err := h.caching[p].FreeAll(); err != nil {
				result = multierror.Append(result, fmt.Errorf("release %s cache: %w", p, err))
			}
			h.caching[p] = nil
		}
	}
	h.mu.Unlock()

	if err := h.sys.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close host allocator: %w", err))
	}
	if h.acc != nil && h.ownsAcc {
		if err := h.acc.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close accelerator: %w", err))
		}
	}
	return result.ErrorOrNil()
}
