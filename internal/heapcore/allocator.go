package heapcore

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/flier/goheap/internal/debug"
	"github.com/flier/goheap/internal/sysmem"
)

// Default thresholds and preallocation size, in bytes.
const (
	DefaultMmapThresholdAlloc  = 128 * 1024
	DefaultMmapThresholdZalloc = 4096
	DefaultPrealloc            = 128 * 1024
)

// Allocator is the explicit allocator context: it owns the registry, the
// arena manager, and the configured thresholds. There is no package-level
// global state here -- the root heap package holds the single default
// instance the public API delegates to, and tests construct their own
// against a mock [sysmem.OS].
type Allocator struct {
	os    sysmem.OS
	arena *Arena
	r     Registry

	mmapThresholdAlloc  uintptr
	mmapThresholdZalloc uintptr
}

// Config carries the tunables a caller may override via the root package's
// functional options; zero fields fall back to their Default* constant.
type Config struct {
	OS                  sysmem.OS
	MmapThresholdAlloc  uintptr
	MmapThresholdZalloc uintptr
	Prealloc            uintptr
}

// New builds an Allocator from cfg, filling in defaults for zero fields.
func New(cfg Config) *Allocator {
	if cfg.OS == nil {
		cfg.OS = sysmem.Default()
	}
	if cfg.MmapThresholdAlloc == 0 {
		cfg.MmapThresholdAlloc = DefaultMmapThresholdAlloc
	}
	if cfg.MmapThresholdZalloc == 0 {
		cfg.MmapThresholdZalloc = DefaultMmapThresholdZalloc
	}
	if cfg.Prealloc == 0 {
		cfg.Prealloc = DefaultPrealloc
	}

	return &Allocator{
		os:                  cfg.OS,
		arena:               NewArena(cfg.OS, cfg.Prealloc),
		mmapThresholdAlloc:  cfg.MmapThresholdAlloc,
		mmapThresholdZalloc: cfg.MmapThresholdZalloc,
	}
}

// arenaAlloc is the shared best-fit/preallocate/tail-extend path used by
// both Alloc (below threshold) and Zalloc (below its own threshold).
func (a *Allocator) arenaAlloc(request uintptr) *Header {
	a.r.Coalesce()

	if b := a.r.BestFit(request); b != nil {
		return a.r.Split(b, request)
	}
	if !a.arena.Preallocated() {
		return a.arena.Preallocate(&a.r, request)
	}
	return a.arena.TailExtend(&a.r, request)
}

// Alloc implements the alloc(size) entry point.
func (a *Allocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	if size < a.mmapThresholdAlloc-HeaderSize {
		return a.arenaAlloc(AlignUp(size)).PayloadPtr()
	}
	return NewMapped(a.os, size).PayloadPtr()
}

// Zalloc implements the zalloc(n, size) entry point: n*size overflow is
// the caller's responsibility, as it is out of scope for this allocator.
func (a *Allocator) Zalloc(n, size uintptr) unsafe.Pointer {
	request := n * size
	if request == 0 {
		return nil
	}

	if AlignUp(request)+HeaderSize >= a.mmapThresholdZalloc {
		// Pages from a fresh anonymous mapping come zeroed from the OS.
		return NewMapped(a.os, request).PayloadPtr()
	}

	h := a.arenaAlloc(AlignUp(request))
	zero(h.PayloadPtr(), h.Size)
	return h.PayloadPtr()
}

// Release implements the release(ptr) entry point.
func (a *Allocator) Release(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	h := FromPayload(ptr)
	switch h.Status {
	case Free:
		fmt.Fprintf(os.Stderr, "goheap: double free at %v\n", h.Addr())
	case Allocated:
		h.Status = Free
	case Mapped:
		ReleaseMapped(a.os, h)
	default:
		debug.Fatalf("release: invalid block status %v at %v", h.Status, h.Addr())
	}
}

// Realloc implements the realloc(ptr, size) entry point.
func (a *Allocator) Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	if size == 0 {
		a.Release(ptr)
		return nil
	}
	if ptr == nil {
		return a.Alloc(size)
	}

	h := FromPayload(ptr)
	if h.Status == Free {
		return nil
	}

	a.r.Coalesce()
	request := AlignUp(size)

	switch h.Status {
	case Mapped:
		return a.reallocMapped(h, size, request)
	case Allocated:
		return a.reallocArena(h, size, request)
	default:
		debug.Fatalf("realloc: invalid block status %v at %v", h.Status, h.Addr())
		return nil
	}
}

func (a *Allocator) reallocMapped(h *Header, size, request uintptr) unsafe.Pointer {
	if h.Size == request {
		return h.PayloadPtr()
	}

	newPtr := a.Alloc(size)
	copyBytes(newPtr, h.PayloadPtr(), min(h.Size, size))
	ReleaseMapped(a.os, h)
	return newPtr
}

func (a *Allocator) reallocArena(h *Header, size, request uintptr) unsafe.Pointer {
	switch {
	case h.Size == request:
		return h.PayloadPtr()

	case h.Size > request:
		return a.r.Split(h, request).PayloadPtr()

	case h.Next() == nil:
		delta := request - h.Size
		if _, err := a.os.GrowBreak(int(delta)); err != nil {
			debug.Fatalf("program-break realloc growth of %d bytes failed: %v", delta, err)
		}
		h.Size = request
		return h.PayloadPtr()

	case h.Next().Status == Free && h.Size+HeaderSize+h.Next().Size >= request:
		neighbor := h.Next()
		a.r.Unlink(neighbor)
		h.Size += HeaderSize + neighbor.Size
		return a.r.Split(h, request).PayloadPtr()

	default:
		oldSize := h.Size
		newPtr := a.Alloc(size)
		copyBytes(newPtr, h.PayloadPtr(), min(oldSize, size))
		h.Status = Free
		return newPtr
	}
}

func zero(p unsafe.Pointer, n uintptr) {
	b := unsafe.Slice((*byte)(p), int(n))
	for i := range b {
		b[i] = 0
	}
}

func copyBytes(dst, src unsafe.Pointer, n uintptr) {
	copy(unsafe.Slice((*byte)(dst), int(n)), unsafe.Slice((*byte)(src), int(n)))
}
