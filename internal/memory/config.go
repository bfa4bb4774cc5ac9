package memory

import (
	"fmt"

	"github.com/samcharles93/memspace/internal/backend"
	"github.com/samcharles93/memspace/internal/pool"
	"github.com/samcharles93/memspace/internal/space"
)

// DefaultPoolSize is the initial arena of each named pool.
const DefaultPoolSize = 4 << 30

// Default pool names.
const (
	HostPoolName    = "MEMSPACE_HOST_POOL"
	DevicePoolName  = "MEMSPACE_DEVICE_POOL"
	UnifiedPoolName = "MEMSPACE_UM_POOL"
	PinnedPoolName  = "MEMSPACE_PINNED_POOL"
)

// Strategies picks the allocation strategy per physical space. Empty fields
// take the space's default (system for host, vendor otherwise).
type Strategies struct {
	Host       string `yaml:"host" json:"host"`
	HostPinned string `yaml:"host_pinned" json:"host_pinned"`
	Device     string `yaml:"device" json:"device"`
	Unified    string `yaml:"unified" json:"unified"`
}

func (s Strategies) get(p space.Physical) string {
	switch p {
	case space.Host:
		return s.Host
	case space.HostPinned:
		return s.HostPinned
	case space.Device:
		return s.Device
	case space.Unified:
		return s.Unified
	}
	return ""
}

func (s *Strategies) set(p space.Physical, v string) {
	switch p {
	case space.Host:
		s.Host = v
	case space.HostPinned:
		s.HostPinned = v
	case space.Device:
		s.Device = v
	case space.Unified:
		s.Unified = v
	}
}

type PoolSetting struct {
	Name string `yaml:"name" json:"name"`
	Size uint64 `yaml:"size" json:"size"`
}

type PoolSettings struct {
	Host       PoolSetting `yaml:"host" json:"host"`
	HostPinned PoolSetting `yaml:"host_pinned" json:"host_pinned"`
	Device     PoolSetting `yaml:"device" json:"device"`
	Unified    PoolSetting `yaml:"unified" json:"unified"`
	BlockSize  int         `yaml:"block_size" json:"block_size"`
}

func (s *PoolSettings) get(p space.Physical) *PoolSetting {
	switch p {
	case space.Host:
		return &s.Host
	case space.HostPinned:
		return &s.HostPinned
	case space.Device:
		return &s.Device
	case space.Unified:
		return &s.Unified
	}
	return nil
}

// Config is everything a Handle is built from. It is read once by New;
// later changes go through the Handle's setters.
type Config struct {
	// Accelerator is one of auto, none, emulated or cuda.
	Accelerator string `yaml:"accelerator" json:"accelerator"`
	// EmulatedCapacity sizes emulated device memory. Zero takes the
	// emulated runtime's default.
	EmulatedCapacity uint64 `yaml:"emulated_capacity" json:"emulated_capacity"`
	// UnifiedMemory serves device requests from unified memory.
	UnifiedMemory  bool         `yaml:"unified_memory" json:"unified_memory"`
	DefaultPolicy  space.Policy `yaml:"default_policy" json:"default_policy"`
	CheckLocations bool         `yaml:"check_locations" json:"check_locations"`

	Strategies Strategies         `yaml:"strategies" json:"strategies"`
	Pools      PoolSettings       `yaml:"pools" json:"pools"`
	Caching    pool.CachingConfig `yaml:"caching" json:"caching"`
}

func DefaultConfig() Config {
	return Config{
		Accelerator:   backend.Auto,
		DefaultPolicy: space.PolicyDevice,
		Pools: PoolSettings{
			Host:       PoolSetting{Name: HostPoolName, Size: DefaultPoolSize},
			HostPinned: PoolSetting{Name: PinnedPoolName, Size: DefaultPoolSize},
			Device:     PoolSetting{Name: DevicePoolName, Size: DefaultPoolSize},
			Unified:    PoolSetting{Name: UnifiedPoolName, Size: DefaultPoolSize},
			BlockSize:  pool.DefaultBlockSize,
		},
		Caching: pool.DefaultCachingConfig(),
	}
}

// normalize fills unset fields from DefaultConfig and validates the rest.
func (c *Config) normalize() error {
	def := DefaultConfig()

	accel, err := backend.Normalize(c.Accelerator)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	c.Accelerator = accel

	if c.DefaultPolicy == space.PolicyUndefined {
		c.DefaultPolicy = def.DefaultPolicy
	}

	for _, p := range space.Physicals {
		s, err := backend.NormalizeStrategy(p, c.Strategies.get(p))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		c.Strategies.set(p, s)

		ps := c.Pools.get(p)
		if ps.Name == "" {
			ps.Name = def.Pools.get(p).Name
		}
		if len(ps.Name) > pool.MaxNameLen {
			return fmt.Errorf("%w: %s pool name longer than %d bytes", ErrInvalidArgument, p, pool.MaxNameLen)
		}
	}
	if c.Pools.BlockSize == 0 {
		c.Pools.BlockSize = def.Pools.BlockSize
	}
	if c.Pools.BlockSize < 0 {
		return fmt.Errorf("%w: pool block size %d", ErrInvalidArgument, c.Pools.BlockSize)
	}

	if c.Caching == (pool.CachingConfig{}) {
		c.Caching = def.Caching
	}
	if err := c.Caching.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}
