//go:build !linux

package sysmem

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// reservedSize bounds the portable program-break simulation used on
// platforms without a brk(2) syscall. It is a virtual reservation only:
// pages are committed (mprotect'd read/write) lazily as GrowBreak is called,
// so this does not cost real memory up front.
const reservedSize = 1 << 30 // 1 GiB of address space

// defaultOS simulates program-break growth on non-Linux hosts by reserving a
// single large PROT_NONE mapping once and committing pages of it read/write
// as GrowBreak is called. This preserves the real primitive's contract --
// one contiguous, monotonically growing region -- so internal/heapcore does
// not need to know which platform it is running on.
type defaultOS struct {
	mu   sync.Mutex
	base unsafe.Pointer

	used      uintptr // logical break offset from base
	committed uintptr // bytes from base already made read/write
}

func newDefault() *defaultOS { return &defaultOS{} }

func (o *defaultOS) reserve() error {
	if o.base != nil {
		return nil
	}

	b, err := unix.Mmap(-1, 0, reservedSize, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("sysmem: reserving program-break address space failed: %w", err)
	}
	o.base = unsafe.Pointer(&b[0])

	return nil
}

func (o *defaultOS) GrowBreak(delta int) (unsafe.Pointer, error) {
	if delta < 0 {
		panic("sysmem: negative break delta is out of scope")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.reserve(); err != nil {
		return nil, err
	}

	old := unsafe.Add(o.base, o.used)
	if delta == 0 {
		return old, nil
	}

	newUsed := o.used + uintptr(delta)
	if newUsed > reservedSize {
		return nil, fmt.Errorf("sysmem: simulated program break exhausted (%d byte budget)", reservedSize)
	}

	if newUsed > o.committed {
		pagesize := uintptr(os.Getpagesize())
		newCommitted := (newUsed + pagesize - 1) &^ (pagesize - 1)
		if newCommitted > reservedSize {
			newCommitted = reservedSize
		}

		region := unsafe.Slice((*byte)(unsafe.Add(o.base, o.committed)), int(newCommitted-o.committed))
		if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return nil, fmt.Errorf("sysmem: committing simulated break growth failed: %w", err)
		}
		o.committed = newCommitted
	}

	o.used = newUsed
	return old, nil
}

func (o *defaultOS) MapAnon(size int) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("sysmem: mmap failed: %w", err)
	}
	return unsafe.Pointer(&b[0]), nil
}

func (o *defaultOS) Unmap(addr unsafe.Pointer, size int) error {
	b := unsafe.Slice((*byte)(addr), size)
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("sysmem: munmap failed: %w", err)
	}
	return nil
}
