// Package heapcore is the allocator's unsafe boundary: the block header
// layout, the registry it is threaded through, the best-fit/split/coalesce
// placement engine, the arena and mapped storage paths, and the allocator
// that wires them into alloc/zalloc/realloc/release.
//
// Nothing outside this package ever sees a *Header or does pointer
// arithmetic; the root heap package only ever holds opaque payload
// pointers.
package heapcore

import (
	"unsafe"

	"github.com/flier/goheap/internal/xunsafe"
)

// Status is a block's place in its lifecycle.
type Status uint8

const (
	Free Status = iota
	Allocated
	Mapped
)

func (s Status) String() string {
	switch s {
	case Free:
		return "FREE"
	case Allocated:
		return "ALLOCATED"
	case Mapped:
		return "MAPPED"
	default:
		return "INVALID"
	}
}

// Header is the fixed-size metadata prefix of every block: an arena block
// carries prev/next registry links, a mapped block leaves both nil.
type Header struct {
	Size   uintptr
	Status Status
	prev   *Header
	next   *Header
}

const (
	// Align is the platform word boundary every payload address and every
	// block size is rounded up to.
	Align = 8

	// HeaderSize is sizeof(Header) rounded up to Align. unsafe.Sizeof is a
	// compile-time constant, so this is computed once here rather than at
	// every call site.
	HeaderSize = (unsafe.Sizeof(Header{}) + Align - 1) &^ (Align - 1)
)

// AlignUp rounds n up to the nearest multiple of Align.
func AlignUp(n uintptr) uintptr {
	return (n + Align - 1) &^ (Align - 1)
}

// headerAt interprets the bytes at addr as a *Header. It is the one place
// in the package that turns a raw address into a typed pointer.
func headerAt(addr xunsafe.Addr) *Header {
	return (*Header)(addr.Ptr())
}

// Addr returns the header's own address.
func (h *Header) Addr() xunsafe.Addr {
	return xunsafe.Of(unsafe.Pointer(h))
}

// Payload returns the address of the payload immediately following h.
func (h *Header) Payload() xunsafe.Addr {
	return h.Addr().Add(HeaderSize)
}

// PayloadPtr returns the payload as an unsafe.Pointer, the form that
// crosses the package boundary into the root heap package.
func (h *Header) PayloadPtr() unsafe.Pointer {
	return h.Payload().Ptr()
}

// FromPayload recovers the header of the block that owns payload, by
// subtracting HeaderSize -- the inverse of [Header.PayloadPtr].
func FromPayload(payload unsafe.Pointer) *Header {
	return headerAt(xunsafe.Of(payload).Before(HeaderSize))
}

// Next/Prev/setNext/setPrev give placement.go and registry.go controlled
// access to the neighbor links without exposing the fields themselves
// outside the package boundary they already share.
func (h *Header) Next() *Header { return h.next }
func (h *Header) Prev() *Header { return h.prev }

func (h *Header) setNext(n *Header) { h.next = n }
func (h *Header) setPrev(p *Header) { h.prev = p }

// End returns the address immediately after h's payload -- where a
// physically contiguous arena neighbor would begin (registry invariant 2).
func (h *Header) End() xunsafe.Addr {
	return h.Payload().Add(h.Size)
}
