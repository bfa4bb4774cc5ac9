package pool

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/samcharles93/memspace/internal/space"
)

const invalidBin = -1

// CachingConfig holds the bin geometry of a Caching allocator. Bin k holds
// blocks of BinGrowth^k bytes.
type CachingConfig struct {
	BinGrowth int `yaml:"bin_growth" json:"bin_growth"`
	MinBin    int `yaml:"min_bin" json:"min_bin"`
	MaxBin    int `yaml:"max_bin" json:"max_bin"`
	// MaxCachedBytes caps the bytes parked in bins. Zero means unlimited.
	MaxCachedBytes uint64 `yaml:"max_cached_bytes" json:"max_cached_bytes"`
}

func DefaultCachingConfig() CachingConfig {
	return CachingConfig{BinGrowth: 8, MinBin: 1, MaxBin: 12}
}

// Validate checks the geometry and that the largest bin fits in an int.
func (c CachingConfig) Validate() error {
	if c.BinGrowth < 2 {
		return fmt.Errorf("%w: bin growth %d < 2", ErrInvalidConfig, c.BinGrowth)
	}
	if c.MinBin < 0 || c.MaxBin < c.MinBin {
		return fmt.Errorf("%w: bins [%d, %d]", ErrInvalidConfig, c.MinBin, c.MaxBin)
	}
	if float64(c.MaxBin)*math.Log2(float64(c.BinGrowth)) >= 62 {
		return fmt.Errorf("%w: bin growth %d^%d overflows", ErrInvalidConfig, c.BinGrowth, c.MaxBin)
	}
	return nil
}

type cachedBlock struct {
	ptr   unsafe.Pointer
	bytes int
	bin   int
}

type CachingStats struct {
	LiveBytes   uint64
	CachedBytes uint64
	PeakBytes   uint64
	Hits        uint64
	Misses      uint64
}

// Caching keeps freed blocks in geometric bins and hands them back out for
// requests that round to the same bin. Requests above the largest bin are
// served exactly and never cached.
type Caching struct {
	mu   sync.Mutex
	src  Source
	zero ZeroFunc

	growth    int
	minBin    int
	maxBin    int
	binBytes  []int
	maxCached uint64

	cached map[int][]cachedBlock
	live   map[uintptr]cachedBlock
	stats  CachingStats
}

func NewCaching(src Source, cfg CachingConfig, zero ZeroFunc) (*Caching, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Caching{
		src:       src,
		zero:      zero,
		growth:    cfg.BinGrowth,
		minBin:    cfg.MinBin,
		maxBin:    cfg.MaxBin,
		maxCached: cfg.MaxCachedBytes,
		cached:    make(map[int][]cachedBlock),
		live:      make(map[uintptr]cachedBlock),
	}
	c.binBytes = make([]int, cfg.MaxBin+1)
	b := 1
	for k := 0; k <= cfg.MaxBin; k++ {
		c.binBytes[k] = b
		b *= cfg.BinGrowth
	}
	return c, nil
}

func (c *Caching) Name() string {
	return "caching"
}

func (c *Caching) Space() space.Physical {
	return c.src.Space()
}

// bin returns the bin and rounded size for a request.
func (c *Caching) bin(size int) (int, int) {
	if size > c.binBytes[c.maxBin] {
		return invalidBin, size
	}
	for k := c.minBin; k <= c.maxBin; k++ {
		if c.binBytes[k] >= size {
			return k, c.binBytes[k]
		}
	}
	return invalidBin, size
}

// BinSize reports the bytes reserved for a request of size bytes.
func (c *Caching) BinSize(size int) int {
	_, n := c.bin(size)
	return n
}

func (c *Caching) Allocate(size int, zero bool) (unsafe.Pointer, error) {
	bin, bytes := c.bin(size)

	c.mu.Lock()
	defer c.mu.Unlock()

	var blk cachedBlock
	if blocks := c.cached[bin]; bin != invalidBin && len(blocks) > 0 {
		blk = blocks[len(blocks)-1]
		c.cached[bin] = blocks[:len(blocks)-1]
		c.stats.CachedBytes -= uint64(blk.bytes)
		c.stats.Hits++
	} else {
		ptr, err := c.src.Allocate(bytes, false)
		if err != nil && c.stats.CachedBytes > 0 {
			// Give the cache back and try once more.
			if ferr := c.releaseCached(); ferr != nil {
				return nil, ferr
			}
			ptr, err = c.src.Allocate(bytes, false)
		}
		if err != nil {
			return nil, err
		}
		blk = cachedBlock{ptr: ptr, bytes: bytes, bin: bin}
		c.stats.Misses++
	}

	if zero && c.zero != nil {
		if err := c.zero(blk.ptr, size); err != nil {
			_ = c.src.Free(blk.ptr)
			return nil, err
		}
	}

	c.live[uintptr(blk.ptr)] = blk
	c.stats.LiveBytes += uint64(blk.bytes)
	if total := c.stats.LiveBytes + c.stats.CachedBytes; total > c.stats.PeakBytes {
		c.stats.PeakBytes = total
	}
	return blk.ptr, nil
}

func (c *Caching) Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	blk, ok := c.live[uintptr(ptr)]
	if !ok {
		return fmt.Errorf("%w: %p", ErrUnknownBlock, ptr)
	}
	delete(c.live, uintptr(ptr))
	c.stats.LiveBytes -= uint64(blk.bytes)

	if blk.bin != invalidBin && (c.maxCached == 0 || c.stats.CachedBytes+uint64(blk.bytes) <= c.maxCached) {
		c.cached[blk.bin] = append(c.cached[blk.bin], blk)
		c.stats.CachedBytes += uint64(blk.bytes)
		return nil
	}
	return c.src.Free(blk.ptr)
}

// SetMaxCachedBytes changes the cache cap. Bin boundaries stay as built.
func (c *Caching) SetMaxCachedBytes(n uint64) {
	c.mu.Lock()
	c.maxCached = n
	c.mu.Unlock()
}

// FreeAll releases every cached block to the source. Live blocks are kept.
func (c *Caching) FreeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseCached()
}

func (c *Caching) releaseCached() error {
	var first error
	for bin, blocks := range c.cached {
		for _, blk := range blocks {
			if err := c.src.Free(blk.ptr); err != nil && first == nil {
				first = err
			}
			c.stats.CachedBytes -= uint64(blk.bytes)
		}
		delete(c.cached, bin)
	}
	return first
}

func (c *Caching) Stats() CachingStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
