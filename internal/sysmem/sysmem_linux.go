//go:build linux

package sysmem

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// defaultOS is the real Linux implementation: program-break growth via the
// raw brk(2) syscall, and anonymous mapping via mmap(2)/munmap(2) through
// golang.org/x/sys/unix (the same package the retrieval pack's
// filewatcher_unix.go reaches for when it needs raw inotify/syscall access).
type defaultOS struct {
	mu sync.Mutex
}

func newDefault() *defaultOS { return &defaultOS{} }

// GrowBreak implements [OS.GrowBreak] using the raw SYS_BRK syscall.
//
// The kernel's brk(addr) sets the break to addr and returns the resulting
// break (not 0/-1 like the libc wrapper), so querying first with brk(0) and
// then requesting cur+delta is how growth is detected: on success the
// returned break is >= the requested address, on failure it is unchanged.
func (o *defaultOS) GrowBreak(delta int) (unsafe.Pointer, error) {
	if delta < 0 {
		panic("sysmem: negative break delta is out of scope")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	cur, _, errno := unix.RawSyscall(unix.SYS_BRK, 0, 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("sysmem: brk query failed: %w", errno)
	}
	if delta == 0 {
		return unsafe.Pointer(cur), nil
	}

	want := cur + uintptr(delta)
	got, _, errno := unix.RawSyscall(unix.SYS_BRK, want, 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("sysmem: brk growth to %#x failed: %w", want, errno)
	}
	if got < want {
		return nil, fmt.Errorf("sysmem: brk growth to %#x failed (kernel break is now %#x)", want, got)
	}

	return unsafe.Pointer(cur), nil
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
