// Package vm implements the two-level x86 paging subsystem: translation,
// mapping, identity mapping of the kernel, and page-fault resolution
// policy (spec.md §4.B). Grounded on biscuit's vm/as.go, generalized from
// its 64-bit 4-level/COW/SMP design down to the 32-bit 2-level,
// single-CPU, no-COW machine spec.md describes; original_source's
// src/paging.c supplies the exact bit-splitting and identity-map-loop
// semantics where spec.md is terse.
package vm

import (
	"fmt"

	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/heap"
	"github.com/Kegnarok/MariobrOS/mem"
)

// Pagetable_t is the second level of the x86 translation structure: 1024
// 32-bit entries, each either absent or {present, writable, user, frame}.
type Pagetable_t struct {
	Entries [1024]mem.Pa_t
}

// Pagedir_t is a full two-level address space: 1024 directory entries
// plus the owning pointers to their page tables (spec.md §3). The
// directory owns its tables; this package has no operation that releases
// a directory or any of its tables.
type Pagedir_t struct {
	Entries [1024]mem.Pa_t
	Tables  [1024]*Pagetable_t
}

func dirIndex(va uint32) int    { return int(va >> 22) }
func pageIndex(va uint32) int   { return int((va >> 12) & 0x3ff) }
func pageOffset(va uint32) uint32 { return va & 0xfff }

// Translate splits va into (dir_index, page_index, page_offset) and
// returns the corresponding physical address, or false if the directory
// has no table for va or the page is not present (spec.md §4.B).
func Translate(dir *Pagedir_t, va uint32) (mem.Pa_t, bool) {
	di := dirIndex(va)
	pt := dir.Tables[di]
	if pt == nil {
		return 0, false
	}
	pte := pt.Entries[pageIndex(va)]
	if pte&mem.PTE_P == 0 {
		return 0, false
	}
	frame := pte & mem.PTE_ADDR
	return frame | mem.Pa_t(pageOffset(va)), true
}

// Map marks frame reserved in the bitset (idempotent) and overwrites the
// page entry with {present, writable, user, frame} (spec.md §4.B). It
// refuses frames at or beyond MaxFrame.
func Map(pte *mem.Pa_t, frame uint32, pm *mem.PhysMem_t, kernel, writable bool) defs.Err_t {
	if frame >= mem.MaxFrame {
		return -defs.EINVAL
	}
	pm.Frames.Set(frame, true)
	v := mem.Pa_t(frame)<<mem.PGSHIFT | mem.PTE_P
	if writable {
		v |= mem.PTE_W
	}
	if !kernel {
		v |= mem.PTE_U
	}
	*pte = v
	return 0
}

// ensureTable returns the page table entry for va in dir, creating the
// subordinate page table if necessary. Page tables are always kernel-only
// regardless of the permissions of the pages they will hold (spec.md
// §4.B), matching original_source's get_page, which hardcodes
// make_page_table(dir, table_index, TRUE, FALSE).
func ensureTable(dir *Pagedir_t, pm *mem.PhysMem_t, h *heap.Heap_t, va uint32) *mem.Pa_t {
	di := dirIndex(va)
	if dir.Tables[di] == nil {
		if dir.Entries[di]&mem.PTE_P != 0 {
			panic("page table already made")
		}
		h.AllocAligned(uintptr(mem.PGSIZE), uintptr(mem.PGSIZE))
		frame, ok := pm.Frames.Alloc()
		if !ok {
			panic("out of physical memory while making a page table")
		}
		dir.Tables[di] = &Pagetable_t{}
		dir.Entries[di] = mem.Pa_t(frame)<<mem.PGSHIFT | mem.PTE_P | mem.PTE_W
	}
	return &dir.Tables[di].Entries[pageIndex(va)]
}

// RequestVirtualSpace locates (creating if needed) the page entry for va,
// refuses if it is already present, allocates a frame, and maps it
// (spec.md §4.B). It returns 0 on success and a negative Err_t on failure.
func RequestVirtualSpace(dir *Pagedir_t, pm *mem.PhysMem_t, h *heap.Heap_t, va uint32, kernel, writable bool) defs.Err_t {
	pte := ensureTable(dir, pm, h, va)
	if *pte&mem.PTE_P != 0 {
		return -defs.EEXIST
	}
	frame, ok := pm.Frames.Alloc()
	if !ok {
		return -defs.ENOMEM
	}
	return Map(pte, frame, pm, kernel, writable)
}

// FreeVirtualSpace clears the present bit on va's entry. It does not free
// the backing frame by default: ownership transfer semantics mean frames
// may be shared, and reference counting is left an open refinement
// (spec.md §4.B, §9).
func FreeVirtualSpace(dir *Pagedir_t, va uint32) {
	di := dirIndex(va)
	pt := dir.Tables[di]
	if pt == nil {
		return
	}
	pt.Entries[pageIndex(va)] &^= mem.PTE_P
}

// IdentityMapKernel maps every frame from 0 up to the heap's current
// high-water mark 1:1 into dir, robust to the heap growing as it
// allocates its own page tables mid-loop (spec.md §4.B). This mirrors
// original_source's paging_install loop, which reads unallocated_mem
// fresh on every iteration rather than snapshotting it once.
func IdentityMapKernel(dir *Pagedir_t, pm *mem.PhysMem_t, h *heap.Heap_t) {
	for va := uint32(0); uintptr(va) < h.HighWater(); va += uint32(mem.PGSIZE) {
		pte := ensureTable(dir, pm, h, va)
		if *pte&mem.PTE_P != 0 {
			continue
		}
		frame := va >> mem.PGSHIFT
		if err := Map(pte, frame, pm, true, false); err != 0 {
			panic(fmt.Sprintf("identity map of frame %d failed: %d", frame, err))
		}
	}
}

// Vm_t is a process's address space: its page directory. The CR3/CR0
// switching state (spec.md §4.B Switching) is machine-wide, not
// per-address-space, and lives on Machine_t.
type Vm_t struct {
	Dir *Pagedir_t
}

// NewVm allocates an empty address space.
func NewVm() *Vm_t {
	return &Vm_t{Dir: &Pagedir_t{}}
}

// Machine_t tracks the machine-wide state paging switching needs: the
// currently installed page directory (CR3) and whether paging has ever
// been enabled, so the first install also flips CR0's paging-enable bit
// (spec.md §4.B).
type Machine_t struct {
	PagingEnabled bool
	Current       *Pagedir_t
}

// SwitchTo loads dir as the current page directory (a CR3 write), and on
// the very first call also enables paging (the CR0 write).
func (m *Machine_t) SwitchTo(dir *Pagedir_t) {
	m.Current = dir
	m.PagingEnabled = true
}

// CopyPagedir builds a new address space that is a frame-by-frame copy of
// src: every present user page is duplicated into a freshly allocated
// frame with the same permissions, rather than sharing src's frames
// (spec.md §9's open question on fork: original_source/src/syscall.c's
// syscall_fork leaves this a literal "/* TODO: copy context */"; this core
// resolves it as an eager copy, since there is no copy-on-write machinery
// here to make sharing safe).
func CopyPagedir(src *Pagedir_t, pm *mem.PhysMem_t, h *heap.Heap_t) *Pagedir_t {
	dst := &Pagedir_t{}
	for di, pt := range src.Tables {
		if pt == nil {
			continue
		}
		for pi, pte := range pt.Entries {
			if pte&mem.PTE_P == 0 {
				continue
			}
			va := uint32(di)<<22 | uint32(pi)<<12
			writable := pte&mem.PTE_W != 0
			kernel := pte&mem.PTE_U == 0
			newPte := ensureTable(dst, pm, h, va)
			frame, ok := pm.Frames.Alloc()
			if !ok {
				panic("out of physical memory while copying an address space")
			}
			*pm.Dmap(frame) = *pm.Dmap(uint32(pte >> mem.PGSHIFT))
			if err := Map(newPte, frame, pm, kernel, writable); err != 0 {
				panic(fmt.Sprintf("copy-page map failed for va %#x: %d", va, err))
			}
		}
	}
	return dst
}

// ErrorCode_t decodes the x86 page-fault error code pushed alongside CR2
// (spec.md §4.B).
type ErrorCode_t struct {
	Present   bool // 0 = fault was a not-present reference
	Write     bool // fault happened on a write
	User      bool // CPU was in user mode
	Reserved  bool // a reserved PTE bit was set
	InstrFetch bool // fault was an instruction fetch
}

// DecodeErrorCode unpacks the raw x86 page-fault error code bit layout
// (spec.md §4.B, original_source's page_fault_handler).
func DecodeErrorCode(raw uint32) ErrorCode_t {
	return ErrorCode_t{
		Present:    raw&0x1 != 0,
		Write:      raw&0x2 != 0,
		User:       raw&0x4 != 0,
		Reserved:   raw&0x8 != 0,
		InstrFetch: raw&0x10 != 0,
	}
}

// UserRegion_t describes the virtual-address range within which
// on-demand mapping is attempted for a not-present fault (spec.md §4.B:
// "within the allowed user-stack/heap range").
type UserRegion_t struct {
	Low, High uint32
}

// Contains reports whether va falls within the region, inclusive of Low,
// exclusive of High.
func (r UserRegion_t) Contains(va uint32) bool {
	return va >= r.Low && va < r.High
}

// PageFaultResult_t tells the caller what Resolve decided.
type PageFaultResult_t int

const (
	// FaultResumed means an on-demand mapping was installed and the
	// faulting instruction should be retried.
	FaultResumed PageFaultResult_t = iota
	// FaultFatal means the fault cannot be resolved: the caller must
	// print a diagnostic and halt (spec.md §4.B, §7).
	FaultFatal
)

// Resolve implements the page-fault policy of spec.md §4.B: a not-present
// fault in user mode, within the allowed region, becomes an on-demand
// writable-user mapping; every other fault (including any kernel-mode
// fault) is fatal.
func Resolve(dir *Pagedir_t, pm *mem.PhysMem_t, h *heap.Heap_t, fault uint32, ec ErrorCode_t, region UserRegion_t) PageFaultResult_t {
	if ec.Present {
		return FaultFatal
	}
	if !ec.User {
		return FaultFatal
	}
	if !region.Contains(fault) {
		return FaultFatal
	}
	va := fault & ^uint32(mem.PGSIZE-1)
	if err := RequestVirtualSpace(dir, pm, h, va, false, true); err != 0 {
		return FaultFatal
	}
	return FaultResumed
}
