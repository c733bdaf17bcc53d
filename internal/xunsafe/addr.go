//go:build go1.20

// Package xunsafe is the allocator's unsafe boundary: a small set of
// byte-address arithmetic helpers, isolated here so that pointer-cast and
// offset code does not need to be re-derived (or re-audited) at every call
// site in internal/heapcore.
package xunsafe

import (
	"fmt"
	"unsafe"
)

// Addr is a raw byte address, stored as a uintptr so it can point anywhere
// in the process's address space -- including memory obtained directly from
// mmap or program-break growth, which is not a Go-managed allocation and
// must never be held as an unsafe.Pointer field across a GC safepoint
// without care.
//
// Addr arithmetic is always in bytes; there is no element-type scaling,
// because header and payload addresses in this allocator are always
// computed from byte offsets (header size, alignment, block sizes).
type Addr uintptr

// Of returns the address of p.
func Of(p unsafe.Pointer) Addr { return Addr(uintptr(p)) }

// Ptr converts this address back to an unsafe.Pointer.
//
// The caller is responsible for the address being valid: this is the one
// place in the allocator where a raw integer is turned back into something
// the runtime will treat as a pointer.
func (a Addr) Ptr() unsafe.Pointer { return unsafe.Pointer(uintptr(a)) }

// Add returns a+n.
func (a Addr) Add(n uintptr) Addr { return a + Addr(n) }

// Before returns a-n, the address n bytes below a.
func (a Addr) Before(n uintptr) Addr { return a - Addr(n) }

// Sub returns a-b as a signed byte distance.
func (a Addr) Sub(b Addr) int64 { return int64(a) - int64(b) }

// IsZero reports whether a is the zero (null) address.
func (a Addr) IsZero() bool { return a == 0 }

// RoundUp rounds a up to the next multiple of align, which must be a power
// of two.
func (a Addr) RoundUp(align uintptr) Addr {
	return Addr((uintptr(a) + align - 1) &^ (align - 1))
}

func (a Addr) String() string { return fmt.Sprintf("%#x", uintptr(a)) }
