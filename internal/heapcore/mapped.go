package heapcore

import (
	"github.com/flier/goheap/internal/debug"
	"github.com/flier/goheap/internal/sysmem"
	"github.com/flier/goheap/internal/xunsafe"
)

// NewMapped obtains HeaderSize+align_up(size) bytes via a fresh anonymous
// mapping, initializes a MAPPED header over it, and returns the block.
// It is never inserted into any registry (invariant 4): a MAPPED block is
// self-describing and reached only through the user pointer.
func NewMapped(os sysmem.OS, size uintptr) *Header {
	payload := AlignUp(size)
	total := HeaderSize + payload

	base, err := os.MapAnon(int(total))
	if err != nil {
		debug.Fatalf("anonymous mapping of %d bytes failed: %v", total, err)
	}

	block := headerAt(xunsafe.Of(base))
	block.Size = payload
	block.Status = Mapped

	debug.Log(nil, "mapped.new", "mapped %d bytes at %v", total, block.Addr())

	return block
}

// ReleaseMapped unmaps exactly HeaderSize+h.Size bytes starting at h's own
// address -- the inverse of NewMapped.
func ReleaseMapped(os sysmem.OS, h *Header) {
	total := HeaderSize + h.Size
	if err := os.Unmap(h.Addr().Ptr(), int(total)); err != nil {
		debug.Fatalf("unmapping %d bytes at %v failed: %v", total, h.Addr(), err)
	}

	debug.Log(nil, "mapped.release", "unmapped %d bytes at %v", total, h.Addr())
}
