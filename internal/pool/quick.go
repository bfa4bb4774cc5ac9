package pool

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/samcharles93/memspace/internal/space"
)

// DefaultBlockSize is the allocation granularity of a Pool.
const DefaultBlockSize = 512

type PoolConfig struct {
	// InitialSize is the first arena, reserved on first use. Zero defers
	// every reservation to demand.
	InitialSize uint64
	BlockSize   int
}

type span struct {
	off  int
	size int
}

type arena struct {
	base unsafe.Pointer
	size int
	free []span // sorted by offset, never adjacent
}

func (a *arena) take(n int) (int, bool) {
	for i, s := range a.free {
		if s.size < n {
			continue
		}
		off := s.off
		if s.size == n {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{off: s.off + n, size: s.size - n}
		}
		return off, true
	}
	return 0, false
}

func (a *arena) give(off, n int) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off > off })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{off: off, size: n}
	if i+1 < len(a.free) && a.free[i].off+a.free[i].size == a.free[i+1].off {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].off+a.free[i-1].size == a.free[i].off {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

type liveBlock struct {
	arena *arena
	off   int
	size  int
	asked int
}

type PoolStats struct {
	// CurrentSize is the bytes handed out to callers.
	CurrentSize uint64
	// ActualSize is the bytes reserved from the source.
	ActualSize    uint64
	HighWatermark uint64
	Arenas        int
}

// Pool carves block-aligned allocations out of large arenas drawn from its
// source, growing by another arena when none has room.
type Pool struct {
	mu      sync.Mutex
	name    string
	src     Source
	zero    ZeroFunc
	block   int
	initial int

	arenas []*arena
	live   map[uintptr]liveBlock
	stats  PoolStats
}

func NewPool(name string, src Source, cfg PoolConfig, zero ZeroFunc) (*Pool, error) {
	if len(name) == 0 {
		return nil, fmt.Errorf("%w: empty pool name", ErrInvalidConfig)
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrNameTooLong, len(name), MaxNameLen)
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.BlockSize < 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrInvalidConfig, cfg.BlockSize)
	}
	return &Pool{
		name:    name,
		src:     src,
		zero:    zero,
		block:   cfg.BlockSize,
		initial: roundUp(int(cfg.InitialSize), cfg.BlockSize),
		live:    make(map[uintptr]liveBlock),
	}, nil
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) Space() space.Physical {
	return p.src.Space()
}

func (p *Pool) grow(n int) (*arena, error) {
	size := n
	if len(p.arenas) == 0 && p.initial > size {
		size = p.initial
	}
	base, err := p.src.Allocate(size, false)
	if err != nil && size > n {
		// The initial arena does not fit; fall back to just the request.
		size = n
		base, err = p.src.Allocate(size, false)
	}
	if err != nil {
		return nil, err
	}
	a := &arena{base: base, size: size, free: []span{{off: 0, size: size}}}
	p.arenas = append(p.arenas, a)
	p.stats.ActualSize += uint64(size)
	p.stats.Arenas++
	return a, nil
}

func (p *Pool) Allocate(size int, zero bool) (unsafe.Pointer, error) {
	n := roundUp(max(size, 1), p.block)

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		owner *arena
		off   int
	)
	for _, a := range p.arenas {
		if o, ok := a.take(n); ok {
			owner, off = a, o
			break
		}
	}
	if owner == nil {
		a, err := p.grow(n)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", p.name, err)
		}
		off, _ = a.take(n)
		owner = a
	}

	ptr := unsafe.Add(owner.base, off)
	if zero && p.zero != nil {
		if err := p.zero(ptr, size); err != nil {
			owner.give(off, n)
			return nil, err
		}
	}
	p.live[uintptr(ptr)] = liveBlock{arena: owner, off: off, size: n, asked: size}
	p.stats.CurrentSize += uint64(n)
	if p.stats.CurrentSize > p.stats.HighWatermark {
		p.stats.HighWatermark = p.stats.CurrentSize
	}
	return ptr, nil
}

func (p *Pool) Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.live[uintptr(ptr)]
	if !ok {
		return fmt.Errorf("pool %s: %w: %p", p.name, ErrUnknownBlock, ptr)
	}
	delete(p.live, uintptr(ptr))
	b.arena.give(b.off, b.size)
	p.stats.CurrentSize -= uint64(b.size)
	return nil
}

// SizeOf reports the size originally requested for ptr.
func (p *Pool) SizeOf(ptr unsafe.Pointer) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.live[uintptr(ptr)]
	return b.asked, ok
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Release returns every arena to the source. Pointers still handed out
// become invalid.
func (p *Pool) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, a := range p.arenas {
		if err := p.src.Free(a.base); err != nil && first == nil {
			first = err
		}
	}
	p.arenas = nil
	p.live = make(map[uintptr]liveBlock)
	p.stats.CurrentSize = 0
	p.stats.ActualSize = 0
	p.stats.Arenas = 0
	return first
}
