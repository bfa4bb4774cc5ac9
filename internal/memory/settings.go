package memory

import (
	"fmt"

	"github.com/samcharles93/memspace/internal/backend"
	"github.com/samcharles93/memspace/internal/pool"
	"github.com/samcharles93/memspace/internal/space"
)

// SetPoolSize sets the initial arena of the pool for p. It must be called
// before that pool serves its first allocation.
func (h *Handle) SetPoolSize(p space.Physical, size uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ps := h.cfg.Pools.get(p)
	if ps == nil {
		return h.report(fmt.Errorf("%w: no pool for %s", ErrInvalidArgument, p))
	}
	if h.poolRefs[p] != nil {
		return h.report(fmt.Errorf("%w: %s pool already created", ErrInvalidArgument, p))
	}
	ps.Size = size
	return nil
}

// SetPoolName renames the pool for p. Names longer than pool.MaxNameLen
// are rejected.
func (h *Handle) SetPoolName(p space.Physical, name string) error {
	if name == "" || len(name) > pool.MaxNameLen {
		return h.report(fmt.Errorf("%w: pool name must be 1 to %d bytes, got %d", ErrInvalidArgument, pool.MaxNameLen, len(name)))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ps := h.cfg.Pools.get(p)
	if ps == nil {
		return h.report(fmt.Errorf("%w: no pool for %s", ErrInvalidArgument, p))
	}
	if h.poolRefs[p] != nil {
		return h.report(fmt.Errorf("%w: %s pool already created", ErrInvalidArgument, p))
	}
	ps.Name = name
	return nil
}

// SetCachingParams retunes the caching allocators. Allocators that already
// exist keep their bins and only take the new cache cap.
func (h *Handle) SetCachingParams(growth, minBin, maxBin int, maxCached uint64) error {
	cfg := pool.CachingConfig{BinGrowth: growth, MinBin: minBin, MaxBin: maxBin, MaxCachedBytes: maxCached}
	if err := cfg.Validate(); err != nil {
		return h.report(fmt.Errorf("%w: %w", ErrInvalidArgument, err))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.Caching = cfg
	for _, c := range h.caching {
		if c != nil {
			c.SetMaxCachedBytes(maxCached)
		}
	}
	return nil
}

// SetDeviceAllocator routes device allocations through caller hooks. It
// takes precedence over every configured device strategy.
func (h *Handle) SetDeviceAllocator(alloc backend.AllocFunc, free backend.FreeFunc) error {
	u, err := backend.NewUser(h.acc, alloc, free)
	if err != nil {
		return h.report(fmt.Errorf("%w: %w", ErrInvalidArgument, err))
	}
	h.mu.Lock()
	h.user = u
	h.mu.Unlock()
	return nil
}

// SetDefaultPolicy sets the policy used for unified memory.
func (h *Handle) SetDefaultPolicy(p space.Policy) error {
	if p != space.PolicyHost && p != space.PolicyDevice {
		return h.report(fmt.Errorf("%w: default policy %s", ErrInvalidArgument, p))
	}
	h.mu.Lock()
	h.cfg.DefaultPolicy = p
	h.mu.Unlock()
	return nil
}
