package pool

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/memspace/internal/space"
)

// fakeSource hands out Go memory and records what is outstanding.
type fakeSource struct {
	bufs   map[uintptr][]byte
	allocs int
	frees  int
	limit  int
	used   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{bufs: make(map[uintptr][]byte)}
}

var errFakeExhausted = errors.New("fake source exhausted")

func (f *fakeSource) Space() space.Physical { return space.Device }

func (f *fakeSource) Allocate(size int, zero bool) (unsafe.Pointer, error) {
	if f.limit > 0 && f.used+size > f.limit {
		return nil, errFakeExhausted
	}
	b := make([]byte, size)
	p := unsafe.Pointer(&b[0])
	f.bufs[uintptr(p)] = b
	f.allocs++
	f.used += size
	return p, nil
}

func (f *fakeSource) Free(ptr unsafe.Pointer) error {
	b, ok := f.bufs[uintptr(ptr)]
	if !ok {
		return errors.New("fake source: unknown pointer")
	}
	delete(f.bufs, uintptr(ptr))
	f.frees++
	f.used -= len(b)
	return nil
}

func zeroFill(ptr unsafe.Pointer, n int) error {
	clear(unsafe.Slice((*byte)(ptr), n))
	return nil
}

func TestCachingBins(t *testing.T) {
	t.Parallel()
	c, err := NewCaching(newFakeSource(), CachingConfig{BinGrowth: 8, MinBin: 1, MaxBin: 3}, nil)
	require.NoError(t, err)

	for _, tc := range []struct{ size, want int }{
		{1, 8},
		{8, 8},
		{9, 64},
		{64, 64},
		{500, 512},
		{513, 513}, // above the largest bin: exact
	} {
		require.Equal(t, tc.want, c.BinSize(tc.size), "size %d", tc.size)
	}
}

func TestCachingReuse(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	c, err := NewCaching(src, CachingConfig{BinGrowth: 8, MinBin: 1, MaxBin: 3}, zeroFill)
	require.NoError(t, err)
	require.Equal(t, space.Device, c.Space())

	p1, err := c.Allocate(40, false)
	require.NoError(t, err)
	*(*byte)(p1) = 7
	require.NoError(t, c.Free(p1))

	p2, err := c.Allocate(60, true)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Zero(t, *(*byte)(p2))
	require.Equal(t, 1, src.allocs)

	st := c.Stats()
	require.Equal(t, uint64(1), st.Hits)
	require.Equal(t, uint64(1), st.Misses)
	require.Equal(t, uint64(64), st.LiveBytes)
	require.Zero(t, st.CachedBytes)

	// a different bin misses
	p3, err := c.Allocate(5, false)
	require.NoError(t, err)
	require.NotEqual(t, p2, p3)
	require.Equal(t, 2, src.allocs)

	require.NoError(t, c.Free(p2))
	require.NoError(t, c.Free(p3))
	require.NoError(t, c.FreeAll())
	require.Empty(t, src.bufs)
}

func TestCachingOversizeNeverCached(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	c, err := NewCaching(src, CachingConfig{BinGrowth: 2, MinBin: 0, MaxBin: 4}, nil)
	require.NoError(t, err)

	p, err := c.Allocate(100, false)
	require.NoError(t, err)
	require.NoError(t, c.Free(p))
	require.Equal(t, 1, src.frees)
	require.Zero(t, c.Stats().CachedBytes)
}

func TestCachingMaxCachedBytes(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	c, err := NewCaching(src, CachingConfig{BinGrowth: 4, MinBin: 1, MaxBin: 4, MaxCachedBytes: 16}, nil)
	require.NoError(t, err)

	a, err := c.Allocate(16, false)
	require.NoError(t, err)
	b, err := c.Allocate(16, false)
	require.NoError(t, err)

	require.NoError(t, c.Free(a))
	require.NoError(t, c.Free(b)) // would exceed the cap
	require.Equal(t, uint64(16), c.Stats().CachedBytes)
	require.Equal(t, 1, src.frees)

	c.SetMaxCachedBytes(64)
	d, err := c.Allocate(16, false)
	require.NoError(t, err)
	e, err := c.Allocate(16, false)
	require.NoError(t, err)
	require.NoError(t, c.Free(d))
	require.NoError(t, c.Free(e))
	require.Equal(t, uint64(32), c.Stats().CachedBytes)
	require.Equal(t, 64, c.BinSize(64)) // bins unchanged
}

func TestCachingRetriesAfterReleasingCache(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.limit = 64
	c, err := NewCaching(src, CachingConfig{BinGrowth: 8, MinBin: 1, MaxBin: 3}, nil)
	require.NoError(t, err)

	p, err := c.Allocate(64, false)
	require.NoError(t, err)
	require.NoError(t, c.Free(p))

	q, err := c.Allocate(8, false)
	require.NoError(t, err)
	require.NotNil(t, q)
	require.Zero(t, c.Stats().CachedBytes)
}

func TestCachingUnknownPointer(t *testing.T) {
	t.Parallel()
	c, err := NewCaching(newFakeSource(), DefaultCachingConfig(), nil)
	require.NoError(t, err)
	var x int
	require.ErrorIs(t, c.Free(unsafe.Pointer(&x)), ErrUnknownBlock)
	require.NoError(t, c.Free(nil))
}

func TestCachingConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultCachingConfig().Validate())
	require.ErrorIs(t, CachingConfig{BinGrowth: 1, MaxBin: 2}.Validate(), ErrInvalidConfig)
	require.ErrorIs(t, CachingConfig{BinGrowth: 2, MinBin: 3, MaxBin: 2}.Validate(), ErrInvalidConfig)
	require.ErrorIs(t, CachingConfig{BinGrowth: 8, MaxBin: 30}.Validate(), ErrInvalidConfig)
}

func TestPoolCarvesAndCoalesces(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	p, err := NewPool("DEVICE_POOL", src, PoolConfig{InitialSize: 4096, BlockSize: 512}, nil)
	require.NoError(t, err)

	a, err := p.Allocate(1, false)
	require.NoError(t, err)
	b, err := p.Allocate(513, false)
	require.NoError(t, err)
	c, err := p.Allocate(512, false)
	require.NoError(t, err)
	require.Equal(t, 1, src.allocs)
	require.Equal(t, uintptr(a)+512, uintptr(b))
	require.Equal(t, uintptr(b)+1024, uintptr(c))

	st := p.Stats()
	require.Equal(t, uint64(2048), st.CurrentSize)
	require.Equal(t, uint64(4096), st.ActualSize)

	n, ok := p.SizeOf(b)
	require.True(t, ok)
	require.Equal(t, 513, n)

	require.NoError(t, p.Free(a))
	require.NoError(t, p.Free(b))
	// a and b coalesce into one 1536 byte hole
	d, err := p.Allocate(1536, false)
	require.NoError(t, err)
	require.Equal(t, a, d)

	require.NoError(t, p.Free(c))
	require.NoError(t, p.Free(d))
	st = p.Stats()
	require.Zero(t, st.CurrentSize)
	require.Equal(t, uint64(2048), st.HighWatermark)
}

func TestPoolGrowsOnDemand(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	p, err := NewPool("HOST_POOL", src, PoolConfig{InitialSize: 1024}, nil)
	require.NoError(t, err)

	a, err := p.Allocate(1024, false)
	require.NoError(t, err)
	b, err := p.Allocate(2000, false)
	require.NoError(t, err)
	require.Equal(t, 2, src.allocs)
	require.Equal(t, 2, p.Stats().Arenas)
	require.Equal(t, uint64(1024+2048), p.Stats().ActualSize)

	require.NoError(t, p.Free(a))
	require.NoError(t, p.Free(b))
	require.NoError(t, p.Release())
	require.Empty(t, src.bufs)
	require.Zero(t, p.Stats().ActualSize)
}

func TestPoolZeroInitialSize(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	p, err := NewPool("UM_POOL", src, PoolConfig{}, zeroFill)
	require.NoError(t, err)
	require.Zero(t, src.allocs)

	ptr, err := p.Allocate(1, true)
	require.NoError(t, err)
	require.NotNil(t, ptr)
	require.Equal(t, uint64(DefaultBlockSize), p.Stats().ActualSize)
	require.NoError(t, p.Free(ptr))
}

func TestPoolInitialArenaFallsBackToRequest(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.limit = 1024
	p, err := NewPool("DEVICE_POOL", src, PoolConfig{InitialSize: 1 << 20}, nil)
	require.NoError(t, err)

	a, err := p.Allocate(1, false)
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultBlockSize), p.Stats().ActualSize)
	b, err := p.Allocate(300, false)
	require.NoError(t, err)
	require.Equal(t, 2, p.Stats().Arenas)

	_, err = p.Allocate(1, false)
	require.ErrorIs(t, err, errFakeExhausted)

	require.NoError(t, p.Free(a))
	require.NoError(t, p.Free(b))
}

func TestPoolSourceExhausted(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.limit = 256
	p, err := NewPool("PINNED_POOL", src, PoolConfig{InitialSize: 4096}, nil)
	require.NoError(t, err)

	_, err = p.Allocate(8, false)
	require.ErrorIs(t, err, errFakeExhausted)
	require.Zero(t, src.allocs)
}

func TestPoolNameValidation(t *testing.T) {
	t.Parallel()
	_, err := NewPool("", newFakeSource(), PoolConfig{}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	long := make([]byte, MaxNameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = NewPool(string(long), newFakeSource(), PoolConfig{}, nil)
	require.ErrorIs(t, err, ErrNameTooLong)

	_, err = NewPool(string(long[:MaxNameLen]), newFakeSource(), PoolConfig{}, nil)
	require.NoError(t, err)
}

func TestManager(t *testing.T) {
	t.Parallel()
	m := NewManager()
	src := newFakeSource()

	p, err := m.MakePool("B", src, PoolConfig{InitialSize: 512}, nil)
	require.NoError(t, err)
	_, err = m.MakePool("B", src, PoolConfig{}, nil)
	require.ErrorIs(t, err, ErrExists)

	ext, err := NewPool("A", src, PoolConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Register(ext))
	require.Equal(t, []string{"A", "B"}, m.Names())

	got, ok := m.Lookup("B")
	require.True(t, ok)
	require.Same(t, p, got)

	ptr, err := p.Allocate(10, false)
	require.NoError(t, err)
	require.NotNil(t, ptr)
	require.NoError(t, m.Release("B"))
	require.Empty(t, src.bufs)
	_, ok = m.Lookup("B")
	require.False(t, ok)
	require.NoError(t, m.Release("missing"))
}
