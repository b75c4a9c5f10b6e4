// Package heap implements the kernel's bump allocator and its
// aligned-allocation variant, used to place page tables and directories on
// 4KiB boundaries (spec.md §4.C). Grounded on biscuit's mem.Physmem-style
// "no free without tracking" simplicity, adapted to the single-region bump
// allocator original_source/src/filesystem.c's mem_alloc/mem_alloc_aligned
// describe: there is no general free(), only a high-water mark that
// paging's identity-map installer reads.
package heap

import (
	"fmt"

	"github.com/Kegnarok/MariobrOS/util"
)

// Heap_t is a bump allocator over a fixed kernel-only virtual region. It
// never reclaims memory: the only way an address becomes available again
// is if the caller stops referencing it, exactly like the C original,
// which has no free() of its own (user-visible malloc/free instead goes
// through proc's per-process heap state).
type Heap_t struct {
	base  uintptr
	limit uintptr
	next  uintptr
}

// NewHeap creates a heap spanning [base, base+size).
func NewHeap(base uintptr, size uintptr) *Heap_t {
	return &Heap_t{base: base, limit: base + size, next: base}
}

// HighWater returns the current high-water mark: the first byte not yet
// handed out. Paging's identity-map installer must map up to exactly this
// boundary at paging-enable time (spec.md §4.B).
func (h *Heap_t) HighWater() uintptr {
	return h.next
}

// Alloc hands out size bytes, unaligned, advancing the high-water mark.
// It panics if the heap region is exhausted: a kernel heap overflow is an
// invariant violation, not a recoverable condition (spec.md §7).
func (h *Heap_t) Alloc(size uintptr) uintptr {
	if size == 0 {
		return h.next
	}
	ret := h.next
	if ret+size > h.limit {
		panic(fmt.Sprintf("kernel heap exhausted: want %d bytes, %d remain", size, h.limit-h.next))
	}
	h.next = ret + size
	return ret
}

// AllocAligned hands out size bytes aligned to align (which must be a
// power of two), used to place page tables/directories on 4KiB boundaries.
func (h *Heap_t) AllocAligned(size, align uintptr) uintptr {
	start := uintptr(util.Roundup(int(h.next), int(align)))
	if start+size > h.limit {
		panic(fmt.Sprintf("kernel heap exhausted (aligned): want %d bytes, have %d", size, h.limit-start))
	}
	h.next = start
	ret := h.Alloc(size)
	return ret
}
