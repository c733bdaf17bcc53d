package heapcore

import (
	"testing"
	"unsafe"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"

	"github.com/flier/goheap/internal/sysmem"
)

func newTestAllocator() (*Allocator, *sysmem.Mock) {
	os := sysmem.NewMock()
	a := New(Config{OS: os, Prealloc: 4096, MmapThresholdAlloc: 1024, MmapThresholdZalloc: 512})
	return a, os
}

func TestAllocFirstRequestPreallocates(t *testing.T) {
	Convey("Given a virgin allocator", t, func() {
		a, _ := newTestAllocator()

		Convey("When alloc(100) is called", func() {
			p := a.Alloc(100)

			Convey("Then it returns an 8-byte-aligned, non-nil pointer", func() {
				So(p, ShouldNotBeNil)
				So(uintptr(p)%Align, ShouldEqual, uintptr(0))
			})

			Convey("Then the registry has an ALLOCATED head and a FREE remainder", func() {
				h := a.r.Head()
				So(h.Status, ShouldEqual, Allocated)
				So(h.Size, ShouldEqual, AlignUp(100))
				sib := h.Next()
				So(sib, ShouldNotBeNil)
				So(sib.Status, ShouldEqual, Free)
			})
		})
	})
}

func TestAllocZeroSizeReturnsNil(t *testing.T) {
	a, _ := newTestAllocator()
	if a.Alloc(0) != nil {
		t.Fatal("alloc(0) must return nil")
	}
}

func TestAllocExactReuseAfterRelease(t *testing.T) {
	Convey("Given a=alloc(200); b=alloc(200); release(a)", t, func() {
		a, _ := newTestAllocator()
		p1 := a.Alloc(200)
		_ = a.Alloc(200)
		a.Release(p1)

		Convey("When c = alloc(200)", func() {
			c := a.Alloc(200)

			Convey("Then c == a (best-fit, exact-size reuse, no split)", func() {
				So(c, ShouldEqual, p1)
			})
		})
	})
}

func TestReleaseThenCoalesceOnNextAlloc(t *testing.T) {
	a, _ := newTestAllocator()

	p1 := a.Alloc(100)
	p2 := a.Alloc(100)
	a.Release(p1)
	a.Release(p2)

	h1 := FromPayload(p1)
	require.Equal(t, Free, h1.Status)

	// Before the next alloc, the two FREE nodes are distinct (no eager
	// coalescing on release).
	countFreeBefore := countBlocks(&a.r, Free)

	_ = a.Alloc(150)

	countFreeAfter := countBlocks(&a.r, Free)
	require.LessOrEqual(t, countFreeAfter, countFreeBefore)
}

func countBlocks(r *Registry, status Status) int {
	n := 0
	for cur := r.Head(); cur != nil; cur = cur.Next() {
		if cur.Status == status {
			n++
		}
	}
	return n
}

func TestAllocLargeRequestGoesMapped(t *testing.T) {
	Convey("Given a request at or above the mmap threshold", t, func() {
		a, os := newTestAllocator()

		Convey("When alloc(2048) is called", func() {
			p := a.Alloc(2048)

			Convey("Then it is served from a mapping, not the registry", func() {
				So(p, ShouldNotBeNil)
				So(os.LiveMappings(), ShouldEqual, 1)
				So(a.r.Head(), ShouldBeNil)
			})

			Convey("Then release unmaps it", func() {
				a.Release(p)
				So(os.LiveMappings(), ShouldEqual, 0)
			})
		})
	})
}

func TestZallocZeroesPayload(t *testing.T) {
	a, _ := newTestAllocator()

	p := a.Zalloc(16, 4)
	require.NotNil(t, p)

	b := unsafe.Slice((*byte)(p), 64)
	for i, v := range b {
		require.Zerof(t, v, "byte %d not zeroed", i)
	}
}

func TestZallocZeroProductReturnsNil(t *testing.T) {
	a, _ := newTestAllocator()
	if a.Zalloc(0, 10) != nil {
		t.Fatal("zalloc with zero product must return nil")
	}
}

func TestZallocAboveThresholdGoesMapped(t *testing.T) {
	a, os := newTestAllocator()

	p := a.Zalloc(1, 1024)
	require.NotNil(t, p)
	require.Equal(t, 1, os.LiveMappings())
}

func TestReleaseNilIsNoop(t *testing.T) {
	a, _ := newTestAllocator()
	a.Release(nil) // must not panic
}

func TestReleaseDoubleFreeIsTolerant(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(64)
	a.Release(p)
	a.Release(p) // must not panic, prints a diagnostic only
}

func TestReallocZeroSizeReleasesAndReturnsNil(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(64)

	got := a.Realloc(p, 0)
	require.Nil(t, got)
	require.Equal(t, Free, FromPayload(p).Status)
}

func TestReallocNilPtrIsAlloc(t *testing.T) {
	a, _ := newTestAllocator()
	got := a.Realloc(nil, 64)
	require.NotNil(t, got)
	require.Equal(t, Allocated, FromPayload(got).Status)
}

func TestReallocOfReleasedPointerReturnsNil(t *testing.T) {
	Convey("Given p=alloc(100); release(p)", t, func() {
		a, _ := newTestAllocator()
		p := a.Alloc(100)
		a.Release(p)

		Convey("When q = realloc(p, 200)", func() {
			q := a.Realloc(p, 200)

			Convey("Then it returns nil and does not crash or double free", func() {
				So(q, ShouldBeNil)
			})
		})
	})
}

func TestReallocSameSizeIsNoop(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(64)

	q := a.Realloc(p, 64)
	if q != p {
		t.Fatalf("realloc to the same aligned size must return the same pointer")
	}
}

func TestReallocShrinkSplitsInPlace(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(100)

	q := a.Realloc(p, 50)
	require.Equal(t, p, q)
	require.Equal(t, AlignUp(50), FromPayload(q).Size)
}

func TestReallocGrowTailExtends(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(64) // split leaves a FREE remainder after p; it is unlinked below

	// Consume the FREE remainder entirely so p's block is the tail.
	h := FromPayload(p)
	for h.Next() != nil {
		sib := h.Next()
		a.r.Unlink(sib)
	}

	q := a.Realloc(p, 512)
	require.Equal(t, p, q)
	require.Equal(t, AlignUp(512), FromPayload(q).Size)
}

func TestReallocGrowAbsorbsFreeNeighbor(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(64)

	h := FromPayload(p)
	require.NotNil(t, h.Next(), "expected a FREE remainder sibling after split")
	require.Equal(t, Free, h.Next().Status)

	q := a.Realloc(p, 64+8) // small growth the neighbor can satisfy

	require.Equal(t, p, q)
	require.Equal(t, AlignUp(64+8), FromPayload(q).Size)
}

func TestReallocFallsBackToCopyWhenNothingElseFits(t *testing.T) {
	a, _ := newTestAllocator()
	p1 := a.Alloc(64)
	_ = a.Alloc(64) // blocks p1's right neighbor from being FREE

	b := unsafe.Slice((*byte)(p1), 64)
	for i := range b {
		b[i] = byte(i)
	}

	q := a.Realloc(p1, 900) // large growth, neighbor is ALLOCATED: must copy
	require.NotEqual(t, p1, q)
	require.Equal(t, Free, FromPayload(p1).Status)

	got := unsafe.Slice((*byte)(q), 64)
	for i := range got {
		require.Equal(t, byte(i), got[i])
	}
}

func TestReallocMappedSameSizeIsNoop(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(2048) // mapped

	q := a.Realloc(p, 2048)
	require.Equal(t, p, q)
}

func TestReallocMappedResizeCopies(t *testing.T) {
	a, os := newTestAllocator()
	p := a.Alloc(2048)

	b := unsafe.Slice((*byte)(p), 2048)
	for i := range b {
		b[i] = 0xAB
	}

	q := a.Realloc(p, 4096)
	require.NotEqual(t, p, q)
	require.Equal(t, 1, os.LiveMappings())

	got := unsafe.Slice((*byte)(q), 2048)
	for _, v := range got {
		require.Equal(t, byte(0xAB), v)
	}
}
