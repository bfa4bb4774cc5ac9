package memory

import (
	"errors"
	"fmt"
	"os"

	"github.com/samcharles93/memspace/internal/debug"
)

var (
	ErrInvalidArgument  = errors.New("memory: invalid argument")
	ErrUnknownLocation  = errors.New("memory: unrecognized memory location")
	ErrOutOfMemory      = errors.New("memory: out of memory")
	ErrNullPointer      = errors.New("memory: null pointer")
	ErrLocationMismatch = errors.New("memory: pointer location mismatch")
	ErrNoPolicy         = errors.New("memory: no execution policy")
	ErrReallocSpace     = errors.New("memory: only host memory can be reallocated")
)

// Aborter ends the whole job after an unrecoverable error. It normally does
// not return; when it does, the failing call returns nil.
type Aborter func(err error)

// ExitAborter exits the process with status 1.
func ExitAborter(error) {
	os.Exit(1)
}

// Err returns the first error recorded since the last ClearErr.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

func (h *Handle) ClearErr() {
	h.errMu.Lock()
	h.err = nil
	h.errMu.Unlock()
}

func (h *Handle) record(err error) {
	h.errMu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.errMu.Unlock()
}

// report records a usage error and logs it.
func (h *Handle) report(err error) error {
	h.record(err)
	h.log.Error("memory usage error", "error", err)
	return err
}

// warn records a degenerate call that was skipped.
func (h *Handle) warn(err error) {
	h.record(err)
	h.log.Warn("memory call skipped", "error", err)
}

// violate reports a broken invariant and asserts in assert builds.
func (h *Handle) violate(err error) {
	h.report(err)
	debug.Assert(false, err.Error())
}

// outOfMemory logs the failed request and aborts the job.
func (h *Handle) outOfMemory(size int, cause error) {
	err := fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, cause)
	h.record(err)
	h.log.Error(fmt.Sprintf("Out of memory trying to allocate %d bytes", size), "error", cause)
	h.abort(err)
}

// fatal aborts after a usage error that leaves no sane result to return.
func (h *Handle) fatal(err error) {
	h.report(err)
	h.abort(err)
}
