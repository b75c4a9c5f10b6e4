// Package mem implements the physical frame allocator and the bit layout
// shared with paging: the page/page-directory entry flags and the
// physical-address type. Grounded on biscuit's mem package (Pa_t, PGSIZE,
// PTE_* constants), generalized from biscuit's 64-bit 4-level layout down
// to the 32-bit 2-level layout spec.md §3 describes.
package mem

import "fmt"

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page/frame in bytes.
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks the in-page offset of an address.
const PGOFFSET Pa_t = 0xfff

// PGMASK masks the page-aligned part of an address.
const PGMASK Pa_t = ^PGOFFSET

// Page table/directory entry flag bits (spec.md §3, hardware layout).
const (
	PTE_P Pa_t = 1 << 0 // present
	PTE_W Pa_t = 1 << 1 // writable
	PTE_U Pa_t = 1 << 2 // user-accessible
)

// PTE_ADDR extracts the frame field (bits 12-31) of an entry.
const PTE_ADDR Pa_t = PGMASK

// MaxFrame is one past the highest representable frame number: the frame
// field of a PTE is 20 bits wide (spec.md §3), so frames in [0, MaxFrame)
// address up to 4GB of physical memory.
const MaxFrame = 1 << 20

// Pa_t is a physical address or a value shaped like one (a shifted frame
// number ORed with flag bits, as stored in a PTE).
type Pa_t uint32

// Frame returns the frame number (address >> 12) for this address.
func (p Pa_t) Frame() uint32 {
	return uint32(p >> PGSHIFT)
}

// Pg_t is a page-sized byte buffer: the unit the frame allocator hands out
// and that paging maps into virtual address space.
type Pg_t [PGSIZE]byte

// Bitset_t is an ordered sequence of bits indexed by physical frame
// number. The invariant is: bit set iff frame reserved (spec.md §3).
type Bitset_t struct {
	words []uint64
	nbits int
}

// NewBitset returns a Bitset_t with nbits bits, all initially clear.
func NewBitset(nbits int) *Bitset_t {
	return &Bitset_t{
		words: make([]uint64, (nbits+63)/64),
		nbits: nbits,
	}
}

// Len returns the number of bits the set tracks.
func (b *Bitset_t) Len() int {
	return b.nbits
}

func (b *Bitset_t) checkRange(i int) {
	if i < 0 || i >= b.nbits {
		panic(fmt.Sprintf("bitset index %d out of range [0, %d)", i, b.nbits))
	}
}

// Get reports whether bit i is set.
func (b *Bitset_t) Get(i int) bool {
	b.checkRange(i)
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

// Set sets or clears bit i.
func (b *Bitset_t) Set(i int, v bool) {
	b.checkRange(i)
	mask := uint64(1) << uint(i%64)
	if v {
		b.words[i/64] |= mask
	} else {
		b.words[i/64] &^= mask
	}
}

// Alloc returns the lowest-indexed clear bit, sets it, and returns its
// index. It returns (0, false) if every bit is set. Tie-break is lowest
// index first (spec.md §4.A), which makes tests deterministic.
func (b *Bitset_t) Alloc() (int, bool) {
	for wi, w := range b.words {
		if w == ^uint64(0) {
			continue
		}
		for bi := 0; bi < 64; bi++ {
			idx := wi*64 + bi
			if idx >= b.nbits {
				return 0, false
			}
			if w&(1<<uint(bi)) == 0 {
				b.Set(idx, true)
				return idx, true
			}
		}
	}
	return 0, false
}

// Free clears bit i, making the frame available again.
func (b *Bitset_t) Free(i int) {
	b.Set(i, false)
}

// Popcount returns the number of set bits.
func (b *Bitset_t) Popcount() int {
	n := 0
	for i := 0; i < b.nbits; i++ {
		if b.Get(i) {
			n++
		}
	}
	return n
}

// Frames_t is the system-wide physical frame allocator (spec.md §4.A).
type Frames_t struct {
	bits *Bitset_t
}

// NewFrames creates a frame allocator tracking nframes physical frames,
// all initially free.
func NewFrames(nframes int) *Frames_t {
	return &Frames_t{bits: NewBitset(nframes)}
}

// Alloc returns the smallest free frame number, reserving it, or reports
// failure if none remain.
func (f *Frames_t) Alloc() (uint32, bool) {
	i, ok := f.bits.Alloc()
	if !ok {
		return 0, false
	}
	return uint32(i), true
}

// Free releases a frame back to the pool.
func (f *Frames_t) Free(frame uint32) {
	f.bits.Free(int(frame))
}

// Set is the primitive used by both paging and identity mapping to mark a
// frame reserved or free directly, idempotently (spec.md §4.B Map).
func (f *Frames_t) Set(frame uint32, reserved bool) {
	f.bits.Set(int(frame), reserved)
}

// IsReserved reports whether frame is currently reserved.
func (f *Frames_t) IsReserved(frame uint32) bool {
	return f.bits.Get(int(frame))
}

// PhysMem_t is the simulated physical memory of the machine: a frame
// allocator (Frames_t) paired with the actual backing bytes for every
// frame, playing the role a real direct-map (biscuit's mem.Physmem.Dmap)
// plays on real hardware. Test harnesses and the boot path both construct
// one of a size appropriate to the simulated machine.
type PhysMem_t struct {
	Frames *Frames_t
	store  []Pg_t
}

// NewPhysMem creates a simulated physical memory of nframes frames, all
// initially free and zeroed.
func NewPhysMem(nframes int) *PhysMem_t {
	return &PhysMem_t{
		Frames: NewFrames(nframes),
		store:  make([]Pg_t, nframes),
	}
}

// Nframes returns the number of frames this physical memory holds.
func (pm *PhysMem_t) Nframes() int {
	return len(pm.store)
}

// Dmap returns the backing page for a frame, analogous to biscuit's
// direct-map Dmap: the kernel can always reach any frame's bytes by
// physical address without a virtual mapping of its own.
func (pm *PhysMem_t) Dmap(frame uint32) *Pg_t {
	return &pm.store[frame]
}
