package memory

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/memspace/internal/backend/emulated"
	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/space"
)

var logicals = []space.Logical{
	space.LogicalHost,
	space.LogicalHostPinned,
	space.LogicalDevice,
	space.LogicalUnified,
}

// aborts collects what the handle tried to abort on.
type aborts struct {
	mu   sync.Mutex
	errs []error
}

func (a *aborts) abort(err error) {
	a.mu.Lock()
	a.errs = append(a.errs, err)
	a.mu.Unlock()
}

func (a *aborts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs)
}

func (a *aborts) last() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.errs) == 0 {
		return nil
	}
	return a.errs[len(a.errs)-1]
}

type testHandle struct {
	*Handle
	acc    *emulated.Accelerator
	aborts *aborts
	logs   *bytes.Buffer
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CheckLocations = true
	for _, p := range space.Physicals {
		cfg.Pools.get(p).Size = 1 << 16
	}
	return cfg
}

// newTestHandle builds a handle on a fresh emulated accelerator. A nil
// mutate keeps testConfig as is.
func newTestHandle(t *testing.T, mutate func(*Config)) *testHandle {
	t.Helper()
	return newTestHandleWith(t, emulated.New(emulated.Options{Capacity: 64 << 20}), mutate)
}

func newHostOnlyHandle(t *testing.T, mutate func(*Config)) *testHandle {
	t.Helper()
	return newTestHandleWith(t, nil, mutate)
}

func newTestHandleWith(t *testing.T, acc *emulated.Accelerator, mutate func(*Config), opts ...Option) *testHandle {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ab := &aborts{}
	var buf bytes.Buffer
	var dev Option
	if acc != nil {
		dev = WithAccelerator(acc)
	} else {
		dev = WithAccelerator(nil)
	}
	opts = append([]Option{
		dev,
		WithAborter(ab.abort),
		WithLogger(logger.JSON(&buf, slog.LevelDebug)),
	}, opts...)
	h, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, h.Close())
		if acc != nil {
			require.NoError(t, acc.Close())
		}
	})
	return &testHandle{Handle: h, acc: acc, aborts: ab, logs: &buf}
}

// readBack copies n bytes out of ptr in l into Go memory.
func (th *testHandle) readBack(t *testing.T, ptr unsafe.Pointer, n int, l space.Logical) []byte {
	t.Helper()
	out := make([]byte, n)
	th.Copy(unsafe.Pointer(&out[0]), ptr, n, space.LogicalHost, l)
	require.NoError(t, th.Synchronize())
	return out
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*31 + seed
	}
	return b
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Accelerator = "opencl"
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrInvalidArgument)

	cfg = DefaultConfig()
	cfg.Strategies.Host = "caching"
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrInvalidArgument)

	cfg = DefaultConfig()
	cfg.Pools.Device.Name = string(make([]byte, 65))
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewOpensEmulatedAccelerator(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Accelerator = "emulated"
	cfg.EmulatedCapacity = 1 << 20
	h, err := New(cfg, WithLogger(logger.JSON(&bytes.Buffer{}, slog.LevelInfo)))
	require.NoError(t, err)
	require.NotNil(t, h.Accelerator())
	info, ok := h.DeviceMemory()
	require.True(t, ok)
	require.Equal(t, uint64(1<<20), info.Total)
	require.NoError(t, h.Close())
}

func TestConcurrentFirstUseCreatesOnePool(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, func(c *Config) { c.Strategies.Device = "pool" })

	var wg sync.WaitGroup
	ptrs := make([]unsafe.Pointer, 16)
	for i := range ptrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ptrs[i] = th.Allocate(100, space.LogicalDevice)
		}(i)
	}
	wg.Wait()

	require.Equal(t, []string{DevicePoolName}, th.pools.Names())
	for _, p := range ptrs {
		require.NotNil(t, p)
		th.Free(p, space.LogicalDevice)
	}
	require.NoError(t, th.Err())
}

func TestDefaultPoolSizeFallsBackOnSmallDevice(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Accelerator = "emulated"
	cfg.Strategies.Device = "pool"
	cfg.Strategies.Unified = "pool"
	ab := &aborts{}
	h, err := New(cfg, WithAborter(ab.abort), WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, h.Close()) })

	info, ok := h.DeviceMemory()
	require.True(t, ok)
	require.Less(t, info.Total, uint64(DefaultPoolSize))

	for _, l := range []space.Logical{space.LogicalDevice, space.LogicalUnified} {
		ptr := h.Allocate(1, l)
		require.NotNil(t, ptr, "%s", l)
		h.Free(ptr, l)
	}
	require.Zero(t, ab.count(), "%v", ab.last())
	require.NoError(t, h.Err())
}

func TestConcurrentUnifiedAllocateFree(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				ptr := th.Allocate(4096, space.LogicalUnified)
				if ptr == nil {
					return
				}
				th.Free(ptr, space.LogicalUnified)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, th.aborts.count(), "%v", th.aborts.last())
	require.NoError(t, th.Err())
	require.NoError(t, th.Synchronize())
	require.Equal(t, 8*250, th.acc.Stats().Prefetches)
	info, err := th.acc.MemInfo()
	require.NoError(t, err)
	require.Zero(t, info.Used())
}
