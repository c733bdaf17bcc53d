package heapcore

import (
	"github.com/flier/goheap/internal/debug"
	"github.com/flier/goheap/internal/sysmem"
	"github.com/flier/goheap/internal/xunsafe"
)

// Arena owns the program-break-grown region: the one-shot preallocation
// and all later tail extensions. It shares a [Registry] with the mapped
// path's caller, but only ever touches arena (never MAPPED) blocks.
type Arena struct {
	os          sysmem.OS
	prealloc    uintptr
	preallocked bool
}

// NewArena returns an Arena that grows the break through os, reserving
// preallocBytes (rounded up to Align) on its first allocation.
func NewArena(os sysmem.OS, preallocBytes uintptr) *Arena {
	return &Arena{os: os, prealloc: AlignUp(preallocBytes)}
}

// Preallocate performs the first-time, one-shot program-break growth:
// reserve a.prealloc bytes, wrap the whole region in a single FREE block,
// insert it into the registry, then split it to serve request.
//
// Only ever called once per Arena (gated by preallocked), mirroring the
// module-scope boolean in the design this package is grounded on.
func (a *Arena) Preallocate(r *Registry, request uintptr) *Header {
	debug.Assert(!a.preallocked, "preallocate called more than once")

	base, err := a.os.GrowBreak(int(a.prealloc))
	if err != nil {
		debug.Fatalf("program-break preallocation of %d bytes failed: %v", a.prealloc, err)
	}
	a.preallocked = true

	block := headerAt(xunsafe.Of(base))
	block.Size = a.prealloc - HeaderSize
	block.Status = Free
	r.InsertOrdered(block)

	debug.Log(nil, "arena.preallocate", "reserved %d bytes at %v", a.prealloc, block.Addr())

	return r.Split(block, request)
}

// Preallocated reports whether Preallocate has already run.
func (a *Arena) Preallocated() bool { return a.preallocked }

// TailExtend is reached when best-fit has failed and the arena is already
// preallocated. If the registry's last block is FREE, the break is grown
// just enough to bring it up to request and it is marked ALLOCATED in
// place (its payload address never moves); otherwise a brand new
// ALLOCATED block is appended.
func (a *Arena) TailExtend(r *Registry, request uintptr) *Header {
	tail := r.Tail()

	if tail != nil && tail.Status == Free {
		if request <= tail.Size {
			debug.Fatalf("tail extension delta must be positive, got %d", int64(request)-int64(tail.Size))
		}
		delta := request - tail.Size

		if _, err := a.os.GrowBreak(int(delta)); err != nil {
			debug.Fatalf("program-break tail extension of %d bytes failed: %v", delta, err)
		}
		tail.Size = request
		tail.Status = Allocated

		debug.Log(nil, "arena.tailExtend", "grew tail block at %v by %d bytes", tail.Addr(), delta)

		return tail
	}

	grow := HeaderSize + request
	base, err := a.os.GrowBreak(int(grow))
	if err != nil {
		debug.Fatalf("program-break tail append of %d bytes failed: %v", grow, err)
	}

	block := headerAt(xunsafe.Of(base))
	block.Size = request
	block.Status = Allocated
	r.InsertOrdered(block)

	debug.Log(nil, "arena.tailExtend", "appended new tail block at %v of %d bytes", block.Addr(), request)

	return block
}
