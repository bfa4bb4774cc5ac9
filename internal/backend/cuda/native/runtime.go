//go:build cuda

package native

/*
#cgo LDFLAGS: -lcudart

// Minimal CUDA runtime forward declarations to avoid requiring headers at compile time.
// Linker will still require libcudart when building with the cuda tag.
typedef void* cudaStream_t;
typedef int cudaError_t;

struct memspaceCudaPointerAttributes {
	int type;
	int device;
	void* devicePointer;
	void* hostPointer;
};

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetLastError(void);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaGetDevice(int* device);
extern cudaError_t cudaStreamCreate(cudaStream_t* stream);
extern cudaError_t cudaStreamDestroy(cudaStream_t stream);
extern cudaError_t cudaStreamSynchronize(cudaStream_t stream);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaMallocManaged(void** ptr, unsigned long long size, unsigned int flags);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaMallocHost(void** ptr, unsigned long long size);
extern cudaError_t cudaFreeHost(void* ptr);
extern cudaError_t cudaMemset(void* ptr, int value, unsigned long long count);
extern cudaError_t cudaMemcpy(void* dst, const void* src, unsigned long long size, int kind);
extern cudaError_t cudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream);
extern cudaError_t cudaMemPrefetchAsync(const void* ptr, unsigned long long count, int dstDevice, cudaStream_t stream);
extern cudaError_t cudaPointerGetAttributes(struct memspaceCudaPointerAttributes* attrs, const void* ptr);
extern cudaError_t cudaMemGetInfo(unsigned long long* free, unsigned long long* total);

#define MEMSPACE_CUDA_MEM_ATTACH_GLOBAL 1
#define MEMSPACE_CUDA_CPU_DEVICE_ID (-1)

static const char* memspaceCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int memspaceCudaGetDeviceCount(int* out) {
	return (int)cudaGetDeviceCount(out);
}

static int memspaceCudaGetDevice(int* out) {
	return (int)cudaGetDevice(out);
}

static int memspaceCudaStreamCreate(cudaStream_t* out) {
	return (int)cudaStreamCreate(out);
}

static int memspaceCudaStreamDestroy(cudaStream_t stream) {
	return (int)cudaStreamDestroy(stream);
}

static int memspaceCudaStreamSynchronize(cudaStream_t stream) {
	return (int)cudaStreamSynchronize(stream);
}

static int memspaceCudaMalloc(void** ptr, unsigned long long size) {
	return (int)cudaMalloc(ptr, size);
}

static int memspaceCudaMallocManaged(void** ptr, unsigned long long size) {
	return (int)cudaMallocManaged(ptr, size, MEMSPACE_CUDA_MEM_ATTACH_GLOBAL);
}

static int memspaceCudaFree(void* ptr) {
	return (int)cudaFree(ptr);
}

static int memspaceCudaMallocHost(void** ptr, unsigned long long size) {
	return (int)cudaMallocHost(ptr, size);
}

static int memspaceCudaFreeHost(void* ptr) {
	return (int)cudaFreeHost(ptr);
}

static int memspaceCudaMemset(void* ptr, int value, unsigned long long count) {
	return (int)cudaMemset(ptr, value, count);
}

static int memspaceCudaMemcpy(void* dst, const void* src, unsigned long long size, int kind) {
	return (int)cudaMemcpy(dst, src, size, kind);
}

static int memspaceCudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream) {
	return (int)cudaMemcpyAsync(dst, src, size, kind, stream);
}

static int memspaceCudaMemPrefetchAsync(const void* ptr, unsigned long long count, int toDevice, int device, cudaStream_t stream) {
	return (int)cudaMemPrefetchAsync(ptr, count, toDevice ? device : MEMSPACE_CUDA_CPU_DEVICE_ID, stream);
}

static int memspaceCudaPointerType(const void* ptr, int* out) {
	struct memspaceCudaPointerAttributes attrs;
	cudaError_t err = cudaPointerGetAttributes(&attrs, ptr);
	if (err != 0) {
		cudaGetLastError();
		return (int)err;
	}
	*out = attrs.type;
	return 0;
}

static int memspaceCudaMemGetInfo(unsigned long long* free, unsigned long long* total) {
	return (int)cudaMemGetInfo(free, total);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Memcpy directions as cudaMemcpyKind.
const (
	MemcpyHostToHost     = 0
	MemcpyHostToDevice   = 1
	MemcpyDeviceToHost   = 2
	MemcpyDeviceToDevice = 3
)

// Pointer types as cudaMemoryType.
const (
	MemoryUnregistered = 0
	MemoryHost         = 1
	MemoryDevice       = 2
	MemoryManaged      = 3
)

// errMemoryAllocation is cudaErrorMemoryAllocation.
const errMemoryAllocation = 2

type Stream struct {
	ptr C.cudaStream_t
}

// Error is a non-zero cudaError_t.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cuda runtime error %d: %s", e.Code, e.Message)
}

// OutOfMemory reports whether the runtime failed an allocation.
func (e *Error) OutOfMemory() bool {
	return e.Code == errMemoryAllocation
}

func DeviceCount() (int, error) {
	var count C.int
	if err := cudaErr(C.memspaceCudaGetDeviceCount(&count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

func CurrentDevice() (int, error) {
	var dev C.int
	if err := cudaErr(C.memspaceCudaGetDevice(&dev)); err != nil {
		return 0, err
	}
	return int(dev), nil
}

func NewStream() (Stream, error) {
	var stream C.cudaStream_t
	if err := cudaErr(C.memspaceCudaStreamCreate(&stream)); err != nil {
		return Stream{}, err
	}
	return Stream{ptr: stream}, nil
}

func (s Stream) Destroy() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.memspaceCudaStreamDestroy(s.ptr))
}

func (s Stream) Synchronize() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.memspaceCudaStreamSynchronize(s.ptr))
}

func Malloc(bytes int) (unsafe.Pointer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("device alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.memspaceCudaMalloc(&ptr, C.ulonglong(bytes))); err != nil {
		return nil, err
	}
	return ptr, nil
}

func MallocManaged(bytes int) (unsafe.Pointer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("managed alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.memspaceCudaMallocManaged(&ptr, C.ulonglong(bytes))); err != nil {
		return nil, err
	}
	return ptr, nil
}

func Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	return cudaErr(C.memspaceCudaFree(ptr))
}

func MallocHost(bytes int) (unsafe.Pointer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("host alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.memspaceCudaMallocHost(&ptr, C.ulonglong(bytes))); err != nil {
		return nil, err
	}
	return ptr, nil
}

func FreeHost(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	return cudaErr(C.memspaceCudaFreeHost(ptr))
}

func Memset(ptr unsafe.Pointer, value byte, bytes int) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.memspaceCudaMemset(ptr, C.int(value), C.ulonglong(bytes)))
}

func Memcpy(dst, src unsafe.Pointer, bytes int, kind int) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.memspaceCudaMemcpy(dst, src, C.ulonglong(bytes), C.int(kind)))
}

func MemcpyAsync(dst, src unsafe.Pointer, bytes int, kind int, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.memspaceCudaMemcpyAsync(dst, src, C.ulonglong(bytes), C.int(kind), stream.ptr))
}

func PrefetchAsync(ptr unsafe.Pointer, bytes int, toDevice bool, device int, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	flag := C.int(0)
	if toDevice {
		flag = 1
	}
	return cudaErr(C.memspaceCudaMemPrefetchAsync(ptr, C.ulonglong(bytes), flag, C.int(device), stream.ptr))
}

// PointerType returns the cudaMemoryType of ptr.
func PointerType(ptr unsafe.Pointer) (int, error) {
	var typ C.int
	if err := cudaErr(C.memspaceCudaPointerType(ptr, &typ)); err != nil {
		return MemoryUnregistered, err
	}
	return int(typ), nil
}

func MemGetInfo() (free, total uint64, err error) {
	var f, t C.ulonglong
	if err := cudaErr(C.memspaceCudaMemGetInfo(&f, &t)); err != nil {
		return 0, 0, err
	}
	return uint64(f), uint64(t), nil
}

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.memspaceCudaGetErrorString(C.cudaError_t(code)))
	return &Error{Code: int(code), Message: msg}
}
