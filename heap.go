// Package heap is a drop-in replacement for the standard C-library heap
// interface -- alloc/zalloc/realloc/release -- built directly on top of OS
// virtual-memory primitives instead of the process's libc allocator.
//
// # Design
//
// A block allocator manages the process data segment (grown via
// program-break extension) as a doubly-linked, address-ordered list of
// blocks, reusing freed regions via best-fit placement with splitting and
// coalescing. Requests above a size threshold bypass the arena entirely
// and are served by a direct anonymous memory mapping instead.
//
// The unsafe pointer arithmetic and header bookkeeping this requires lives
// entirely in internal/heapcore; this package only ever holds opaque
// payload pointers.
//
// # Usage
//
//	h := heap.New()
//	p := h.Alloc(128)
//	h.Release(p)
//
// Package-level Alloc/Zalloc/Realloc/Release delegate to a single default
// Heap, mirroring the module-scope registry this design is built around
// while still letting tests construct an isolated instance.
package heap

import (
	"unsafe"

	"github.com/flier/goheap/internal/heapcore"
	"github.com/flier/goheap/internal/sysmem"
)

// Heap is an allocator context: an address-ordered block registry, its
// arena manager, and its configured thresholds. The zero value is not
// usable; construct one with [New].
type Heap struct {
	core *heapcore.Allocator
}

// Option configures a Heap constructed by [New].
type Option func(*heapcore.Config)

// WithOS injects a custom OS primitive implementation, overriding the
// platform default. Tests use this to substitute an in-memory double.
func WithOS(os sysmem.OS) Option {
	return func(c *heapcore.Config) { c.OS = os }
}

// WithMmapThresholdAlloc overrides the alloc mapping threshold, in bytes:
// a request of size >= bytes minus the block header size bypasses the
// arena and maps fresh memory directly.
func WithMmapThresholdAlloc(bytes uintptr) Option {
	return func(c *heapcore.Config) { c.MmapThresholdAlloc = bytes }
}

// WithMmapThresholdZalloc overrides the zalloc mapping threshold, in bytes:
// a request whose 8-byte-aligned n*size plus the block header size is
// >= bytes bypasses the arena (pages from a fresh mapping come zeroed from
// the OS).
func WithMmapThresholdZalloc(bytes uintptr) Option {
	return func(c *heapcore.Config) { c.MmapThresholdZalloc = bytes }
}

// WithPrealloc overrides the size, in bytes, of the one-shot initial arena
// reservation made on the first arena allocation.
func WithPrealloc(bytes uintptr) Option {
	return func(c *heapcore.Config) { c.Prealloc = bytes }
}

// New constructs a Heap with an empty registry and no program-break growth
// performed yet -- preallocation happens lazily, on the first request that
// the arena path must serve.
func New(opts ...Option) *Heap {
	var cfg heapcore.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Heap{core: heapcore.New(cfg)}
}

// Alloc returns a pointer to size uninitialized bytes, or nil if size == 0.
func (h *Heap) Alloc(size uintptr) unsafe.Pointer { return h.core.Alloc(size) }

// Zalloc returns a pointer to n*size zeroed bytes, or nil if the product is
// zero. Overflow of n*size is the caller's responsibility.
func (h *Heap) Zalloc(n, size uintptr) unsafe.Pointer { return h.core.Zalloc(n, size) }

// Realloc resizes the allocation at ptr to size bytes, preserving the
// shared prefix of old and new contents, and returns the (possibly new)
// pointer. size == 0 is equivalent to Release(ptr) followed by returning
// nil; ptr == nil is equivalent to Alloc(size).
//
// Reallocating a pointer that has already been released returns nil
// without releasing anything further.
func (h *Heap) Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	return h.core.Realloc(ptr, size)
}

// Release returns the allocation at ptr to the heap. ptr == nil is a
// no-op. Releasing an already-released pointer prints a diagnostic and
// returns without further action.
func (h *Heap) Release(ptr unsafe.Pointer) { h.core.Release(ptr) }

var def = New()

// Alloc delegates to the package's default Heap. See [Heap.Alloc].
func Alloc(size uintptr) unsafe.Pointer { return def.Alloc(size) }

// Zalloc delegates to the package's default Heap. See [Heap.Zalloc].
func Zalloc(n, size uintptr) unsafe.Pointer { return def.Zalloc(n, size) }

// Realloc delegates to the package's default Heap. See [Heap.Realloc].
func Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer { return def.Realloc(ptr, size) }

// Release delegates to the package's default Heap. See [Heap.Release].
func Release(ptr unsafe.Pointer) { def.Release(ptr) }
