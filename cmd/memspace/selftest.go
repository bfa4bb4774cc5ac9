package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/memspace/internal/memory"
	"github.com/samcharles93/memspace/internal/space"
)

func selftestCmd() *cli.Command {
	var size int64

	return &cli.Command{
		Name:  "selftest",
		Usage: "Exercise allocation, copies, set and reallocation in every space",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "size",
				Usage:       "bytes per test buffer",
				Value:       1 << 16,
				Destination: &size,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if size <= 0 {
				return fmt.Errorf("size must be positive, got %d", size)
			}
			h, err := openHandle(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			if failed := runSelftest(os.Stdout, h, int(size)); failed > 0 {
				return fmt.Errorf("%d selftest checks failed", failed)
			}
			return nil
		},
	}
}

type selftest struct {
	w      io.Writer
	h      *memory.Handle
	n      int
	failed int
}

// runSelftest prints one line per check and returns the number of failures.
func runSelftest(w io.Writer, h *memory.Handle, n int) int {
	st := &selftest{w: w, h: h, n: n}
	for _, l := range logicals {
		st.check("allocate "+l.String(), st.allocate(l))
	}
	for _, dst := range logicals {
		for _, src := range logicals {
			st.check(fmt.Sprintf("copy %s <- %s", dst, src), st.copy(dst, src))
		}
	}
	for _, l := range logicals {
		st.check("set "+l.String(), st.set(l))
	}
	st.check("reallocate host", st.reallocHost())
	for _, l := range logicals {
		st.check("reallocate sized "+l.String(), st.reallocSized(l))
	}
	return st.failed
}

func (st *selftest) check(name string, err error) {
	if err == nil {
		err = st.h.Err()
	}
	st.h.ClearErr()
	if err != nil {
		st.failed++
		fmt.Fprintf(st.w, "FAIL  %s: %v\n", name, err)
		return
	}
	fmt.Fprintf(st.w, "ok    %s\n", name)
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*7 + seed
	}
	return b
}

// upload stages want into a fresh buffer in l.
func (st *selftest) upload(want []byte, l space.Logical) unsafe.Pointer {
	ptr := st.h.Allocate(len(want), l)
	st.h.Copy(ptr, unsafe.Pointer(&want[0]), len(want), l, space.LogicalHost)
	return ptr
}

func (st *selftest) download(ptr unsafe.Pointer, n int, l space.Logical) ([]byte, error) {
	out := make([]byte, n)
	st.h.Copy(unsafe.Pointer(&out[0]), ptr, n, space.LogicalHost, l)
	return out, st.h.Synchronize()
}

func (st *selftest) verify(ptr unsafe.Pointer, want []byte, l space.Logical) error {
	got, err := st.download(ptr, len(want), l)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("content mismatch at byte %d", firstDiff(got, want))
	}
	return nil
}

func firstDiff(a, b []byte) int {
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return i
		}
	}
	return min(len(a), len(b))
}

func (st *selftest) allocate(l space.Logical) error {
	ptr := st.h.Allocate(st.n, l)
	if ptr == nil {
		return fmt.Errorf("allocation returned nil")
	}
	defer st.h.Free(ptr, l)
	if got, want := st.h.Locate(ptr), st.h.Resolve(l); got != want {
		return fmt.Errorf("pointer is in %s, expected %s", got, want)
	}
	return nil
}

func (st *selftest) copy(dstL, srcL space.Logical) error {
	want := pattern(st.n, byte(dstL)*4+byte(srcL))
	src := st.upload(want, srcL)
	defer st.h.Free(src, srcL)
	dst := st.h.Allocate(st.n, dstL)
	defer st.h.Free(dst, dstL)

	st.h.Copy(dst, src, st.n, dstL, srcL)
	return st.verify(dst, want, dstL)
}

func (st *selftest) set(l space.Logical) error {
	ptr := st.h.Allocate(st.n, l)
	defer st.h.Free(ptr, l)
	st.h.Set(ptr, 0x5A, st.n, l)
	return st.verify(ptr, bytes.Repeat([]byte{0x5A}, st.n), l)
}

func (st *selftest) reallocHost() error {
	want := pattern(st.n, 3)
	ptr := st.upload(want, space.LogicalHost)
	ptr = st.h.Reallocate(ptr, 2*st.n, space.LogicalHost)
	defer st.h.Free(ptr, space.LogicalHost)
	return st.verify(ptr, want, space.LogicalHost)
}

func (st *selftest) reallocSized(l space.Logical) error {
	want := pattern(st.n, 9)
	ptr := st.upload(want, l)
	ptr = st.h.ReallocateSized(ptr, st.n, 2*st.n, l)
	defer func() { st.h.Free(ptr, l) }()
	if err := st.verify(ptr, want, l); err != nil {
		return err
	}
	half := max(st.n/2, 1)
	ptr = st.h.ReallocateSized(ptr, 2*st.n, half, l)
	return st.verify(ptr, want[:half], l)
}
