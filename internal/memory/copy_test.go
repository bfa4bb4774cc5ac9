package memory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/memspace/internal/device"
	"github.com/samcharles93/memspace/internal/space"
)

func TestClassifyCopy(t *testing.T) {
	t.Parallel()

	h2h := Transfer{Kind: device.HostToHost, Host: true}
	h2d := Transfer{Kind: device.HostToDevice}
	d2h := Transfer{Kind: device.DeviceToHost}
	d2d := Transfer{Kind: device.DeviceToDevice}
	d2dAsync := Transfer{Kind: device.DeviceToDevice, Async: true}

	for _, tc := range []struct {
		dst, src space.Physical
		want     Transfer
	}{
		{space.Host, space.Host, h2h},
		{space.Host, space.HostPinned, h2h},
		{space.HostPinned, space.HostPinned, h2h},
		{space.Unified, space.Device, d2d},
		{space.Device, space.Unified, d2d},
		{space.Unified, space.Unified, d2d},
		{space.Unified, space.Host, h2d},
		{space.Unified, space.HostPinned, h2d},
		{space.Host, space.Unified, d2h},
		{space.HostPinned, space.Unified, d2h},
		{space.Device, space.Host, h2d},
		{space.Device, space.HostPinned, h2d},
		{space.Host, space.Device, d2h},
		{space.HostPinned, space.Device, d2h},
		{space.Device, space.Device, d2dAsync},
	} {
		got, ok := ClassifyCopy(tc.dst, tc.src)
		require.True(t, ok, "%s <- %s", tc.dst, tc.src)
		require.Equal(t, tc.want, got, "%s <- %s", tc.dst, tc.src)
	}

	for _, p := range space.Physicals {
		_, ok := ClassifyCopy(space.Undefined, p)
		require.False(t, ok)
		_, ok = ClassifyCopy(p, space.Undefined)
		require.False(t, ok)
	}
}

func TestCopyMatrixRoundTrip(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, nil)

	const n = 1 << 12
	for _, dstL := range logicals {
		for _, srcL := range logicals {
			want := pattern(n, byte(dstL)*4+byte(srcL))

			src := th.Allocate(n, srcL)
			dst := th.Allocate(n, dstL)
			th.Copy(src, unsafe.Pointer(&want[0]), n, srcL, space.LogicalHost)
			th.Copy(dst, src, n, dstL, srcL)
			require.Equal(t, want, th.readBack(t, dst, n, dstL), "%s <- %s", dstL, srcL)

			th.Free(src, srcL)
			th.Free(dst, dstL)
		}
	}
	require.NoError(t, th.Err())

	st := th.acc.Stats()
	require.Positive(t, st.AsyncCopies, "device to device copies go through the stream")
}

func TestCopyDegenerate(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, nil)

	buf := pattern(16, 1)
	p := unsafe.Pointer(&buf[0])

	th.Copy(p, p, 16, space.LogicalHost, space.LogicalHost)
	th.Copy(nil, nil, 0, space.LogicalHost, space.LogicalHost)
	require.NoError(t, th.Err())

	th.Copy(nil, p, 16, space.LogicalHost, space.LogicalHost)
	require.ErrorIs(t, th.Err(), ErrNullPointer)
	th.ClearErr()

	th.Copy(p, nil, 16, space.LogicalDevice, space.LogicalHost)
	require.ErrorIs(t, th.Err(), ErrNullPointer)
	require.Equal(t, pattern(16, 1), buf)
	require.Zero(t, th.acc.Stats().SyncCopies)
}

func TestCopyUnknownLocation(t *testing.T) {
	t.Parallel()
	if assertBuild() {
		t.Skip("location checks are forced on under the assert tag")
	}
	th := newHostOnlyHandle(t, func(c *Config) { c.CheckLocations = false })

	a, b := make([]byte, 8), make([]byte, 8)
	th.CopyIn(unsafe.Pointer(&a[0]), space.Device, unsafe.Pointer(&b[0]), space.Host, 8)
	require.ErrorIs(t, th.Err(), ErrUnknownLocation)

	th.ClearErr()
	th.CopyIn(unsafe.Pointer(&a[0]), space.Host, unsafe.Pointer(&b[0]), space.Undefined, 8)
	require.ErrorIs(t, th.Err(), ErrUnknownLocation)
}

func TestSetReadBack(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, nil)

	for _, l := range logicals {
		ptr := th.Allocate(777, l)
		require.Equal(t, ptr, th.Set(ptr, 0xAB, 777, l))
		got := th.readBack(t, ptr, 777, l)
		for i, b := range got {
			require.Equal(t, byte(0xAB), b, "%s byte %d", l, i)
		}
		th.Free(ptr, l)
	}
	require.NoError(t, th.Err())
}

func TestSetDegenerate(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, nil)

	buf := []byte{1, 2, 3}
	p := unsafe.Pointer(&buf[0])
	require.Equal(t, p, th.Set(p, 9, 0, space.LogicalHost))
	require.Equal(t, []byte{1, 2, 3}, buf)

	require.Nil(t, th.Set(nil, 9, 3, space.LogicalHost))
	require.ErrorIs(t, th.Err(), ErrNullPointer)
}

func TestSetLocationMismatchSkips(t *testing.T) {
	t.Parallel()
	if assertBuild() {
		t.Skip("location mismatches panic under the assert tag")
	}
	th := newTestHandle(t, nil)

	buf := []byte{1, 2, 3}
	th.Set(unsafe.Pointer(&buf[0]), 0, 3, space.LogicalDevice)
	require.ErrorIs(t, th.Err(), ErrLocationMismatch)
	require.Equal(t, []byte{1, 2, 3}, buf)
}

func TestPrefetch(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, nil)

	um := th.Allocate(4096, space.LogicalUnified)
	require.NoError(t, th.Synchronize())
	require.Equal(t, space.Device, th.acc.Residency(um))

	th.PrefetchTo(um, 4096, space.LogicalHost)
	require.NoError(t, th.Synchronize())
	require.Equal(t, space.Host, th.acc.Residency(um))

	th.PrefetchTo(um, 4096, space.LogicalDevice)
	require.NoError(t, th.Synchronize())
	require.Equal(t, space.Device, th.acc.Residency(um))

	before := th.acc.Stats().Prefetches
	th.PrefetchTo(um, 0, space.LogicalHost)
	th.PrefetchTo(nil, 16, space.LogicalHost)
	require.Equal(t, before, th.acc.Stats().Prefetches)
	require.NoError(t, th.Err())

	th.Free(um, space.LogicalUnified)
}

func TestPrefetchOnlyTargetsDeviceOrHost(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, nil)

	um := th.Allocate(4096, space.LogicalUnified)
	th.PrefetchTo(um, 4096, space.LogicalHost)
	require.NoError(t, th.Synchronize())
	before := th.acc.Stats().Prefetches

	th.PrefetchTo(um, 4096, space.LogicalUnified)
	th.PrefetchTo(um, 4096, space.LogicalHostPinned)
	require.NoError(t, th.Synchronize())
	require.Equal(t, before, th.acc.Stats().Prefetches)
	require.Equal(t, space.Host, th.acc.Residency(um))
	require.NoError(t, th.Err())

	th.Free(um, space.LogicalUnified)
}

func TestPrefetchDeviceUnderUnifiedMemoryIsNoop(t *testing.T) {
	t.Parallel()
	th := newTestHandle(t, func(c *Config) { c.UnifiedMemory = true })

	um := th.Allocate(4096, space.LogicalUnified)
	th.PrefetchTo(um, 4096, space.LogicalHost)
	require.NoError(t, th.Synchronize())
	before := th.acc.Stats().Prefetches

	th.PrefetchTo(um, 4096, space.LogicalDevice)
	require.NoError(t, th.Synchronize())
	require.Equal(t, before, th.acc.Stats().Prefetches)
	require.Equal(t, space.Host, th.acc.Residency(um))

	th.Free(um, space.LogicalUnified)
}

func TestPrefetchHostOnlyIsNoop(t *testing.T) {
	t.Parallel()
	th := newHostOnlyHandle(t, nil)

	ptr := th.Allocate(64, space.LogicalUnified)
	th.PrefetchTo(ptr, 64, space.LogicalDevice)
	require.NoError(t, th.Err())
	th.Free(ptr, space.LogicalUnified)
}
