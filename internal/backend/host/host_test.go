package host

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/memspace/internal/space"
)

func TestSystemAllocate(t *testing.T) {
	t.Parallel()
	s := NewSystem()
	defer s.Close()

	require.Equal(t, space.Host, s.Space())

	p, err := s.Allocate(1000, true)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.GreaterOrEqual(t, s.UsableSize(p), 1000)
	for i, b := range unsafe.Slice((*byte)(p), 1000) {
		require.Zero(t, b, "byte %d", i)
	}

	Fill(p, 0x5A, 1000)
	require.Equal(t, byte(0x5A), *(*byte)(unsafe.Add(p, 999)))
	require.NoError(t, s.Free(p))
	require.NoError(t, s.Free(nil))
}

func TestSystemReallocatePreservesPrefix(t *testing.T) {
	t.Parallel()
	s := NewSystem()
	defer s.Close()

	p, err := s.Allocate(64, false)
	require.NoError(t, err)
	for i, b := 0, unsafe.Slice((*byte)(p), 64); i < len(b); i++ {
		b[i] = byte(i)
	}

	q, err := s.Reallocate(p, 1<<16)
	require.NoError(t, err)
	got := unsafe.Slice((*byte)(q), 64)
	for i := range got {
		require.Equal(t, byte(i), got[i])
	}
	require.NoError(t, s.Free(q))
}

func TestCopyOverlapping(t *testing.T) {
	t.Parallel()
	buf := []byte("abcdefgh")
	base := unsafe.Pointer(&buf[0])
	Copy(unsafe.Add(base, 2), base, 4)
	require.Equal(t, "ababcdgh", string(buf))
}
