package sysmem

import (
	"errors"
	"fmt"
	"unsafe"
)

// mockBudget bounds how much simulated program break a [Mock] can grow to.
// It exists only to catch runaway test cases; it is far above anything a
// unit test should need.
const mockBudget = 64 << 20 // 64 MiB

// Mock is an in-memory [OS] double for deterministic, platform-independent
// unit tests: it performs no real syscalls, so the allocator's invariants
// (registry ordering, split/coalesce behavior, threshold routing) can be
// exercised without touching actual process memory.
//
// Every internal/heapcore test constructs its own Mock rather than sharing
// one across tests.
type Mock struct {
	arena []byte
	maps  map[uintptr][]byte

	// Fault hooks let a test simulate a given primitive failing; they are
	// consulted before the operation they name, and a non-nil error short
	// circuits it.
	BreakFault func(delta int) error
	MapFault   func(size int) error
	UnmapFault func(addr unsafe.Pointer, size int) error
}

// NewMock returns a ready-to-use Mock with an empty simulated break and no
// live mappings.
func NewMock() *Mock {
	return &Mock{
		arena: make([]byte, 0, mockBudget),
		maps:  make(map[uintptr][]byte),
	}
}

// GrowBreak grows the mock's simulated break by delta bytes, returning the
// address the break used to be at. The backing array is preallocated to
// mockBudget capacity at construction time so that growth never reallocates
// (and so never invalidates a previously returned address), mirroring the
// real primitive's guarantee that the break region never moves.
func (m *Mock) GrowBreak(delta int) (unsafe.Pointer, error) {
	if delta < 0 {
		panic("sysmem: negative break delta is out of scope")
	}
	if m.BreakFault != nil {
		if err := m.BreakFault(delta); err != nil {
			return nil, err
		}
	}

	old := len(m.arena)
	if delta == 0 {
		return m.ptrAt(old), nil
	}
	if old+delta > cap(m.arena) {
		return nil, fmt.Errorf("sysmem: mock break exhausted (%d byte budget)", mockBudget)
	}

	m.arena = m.arena[:old+delta]
	return m.ptrAt(old), nil
}

func (m *Mock) ptrAt(offset int) unsafe.Pointer {
	return unsafe.Pointer(&m.arena[:cap(m.arena)][offset])
}

// MapAnon simulates an anonymous mapping with a freshly allocated Go slice.
// The returned address is tracked so Unmap can validate its size.
func (m *Mock) MapAnon(size int) (unsafe.Pointer, error) {
	if m.MapFault != nil {
		if err := m.MapFault(size); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, size)
	key := uintptr(unsafe.Pointer(&buf[0]))
	m.maps[key] = buf
	return unsafe.Pointer(&buf[0]), nil
}

// Unmap releases a mapping previously returned by MapAnon, validating that
// size matches exactly, as the real primitive's contract requires.
func (m *Mock) Unmap(addr unsafe.Pointer, size int) error {
	if m.UnmapFault != nil {
		if err := m.UnmapFault(addr, size); err != nil {
			return err
		}
	}

	key := uintptr(addr)
	buf, ok := m.maps[key]
	if !ok {
		return errors.New("sysmem: mock unmap of an untracked address")
	}
	if len(buf) != size {
		return fmt.Errorf("sysmem: mock unmap size mismatch: mapped %d bytes, got %d", len(buf), size)
	}

	delete(m.maps, key)
	return nil
}

// LiveMappings returns the number of mappings currently tracked as live.
// Tests use this to assert that release(ptr) actually unmapped a MAPPED
// block.
func (m *Mock) LiveMappings() int { return len(m.maps) }
