package syscall

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Kegnarok/MariobrOS/mem"
	"github.com/Kegnarok/MariobrOS/vm"
)

// readUserByte translates va through dir and returns the byte at the
// resulting physical address. It panics if va is not mapped: a kernel
// handler reading a caller-supplied pointer that does not resolve is an
// invariant violation, not a recoverable condition (spec.md §7).
func (d *Dispatcher_t) readUserByte(dir *vm.Pagedir_t, va uint32) byte {
	pa, ok := vm.Translate(dir, va)
	if !ok {
		panic(fmt.Sprintf("syscall: read from unmapped user address %#x", va))
	}
	return d.Phys.Dmap(pa.Frame())[pa&mem.PGOFFSET]
}

// ensureUserMapped installs an on-demand writable-user page at va's page
// if none is mapped yet. malloc/free's free-list headers live in pages
// the caller has not necessarily touched yet, so the kernel side of the
// allocator must be able to back them itself rather than wait for a page
// fault that will never come from a kernel-initiated write.
func (d *Dispatcher_t) ensureUserMapped(dir *vm.Pagedir_t, va uint32) {
	pageVA := va &^ uint32(mem.PGSIZE-1)
	if _, ok := vm.Translate(dir, pageVA); !ok {
		vm.RequestVirtualSpace(dir, d.Phys, d.Heap, pageVA, false, true)
	}
}

func (d *Dispatcher_t) writeUserByte(dir *vm.Pagedir_t, va uint32, b byte) {
	d.ensureUserMapped(dir, va)
	pa, _ := vm.Translate(dir, va)
	d.Phys.Dmap(pa.Frame())[pa&mem.PGOFFSET] = b
}

func (d *Dispatcher_t) readUserBytes(dir *vm.Pagedir_t, va, n uint32) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = d.readUserByte(dir, va+uint32(i))
	}
	return out
}

func (d *Dispatcher_t) writeUserBytes(dir *vm.Pagedir_t, va uint32, data []byte) {
	for i, b := range data {
		d.writeUserByte(dir, va+uint32(i), b)
	}
}

func (d *Dispatcher_t) readUserU32(dir *vm.Pagedir_t, va uint32) uint32 {
	return binary.LittleEndian.Uint32(d.readUserBytes(dir, va, 4))
}

func (d *Dispatcher_t) writeUserU32(dir *vm.Pagedir_t, va, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	d.writeUserBytes(dir, va, b[:])
}

// readUserString reads a NUL-terminated string out of the caller's
// address space, used for printf's %s directive and open's path
// argument.
func (d *Dispatcher_t) readUserString(dir *vm.Pagedir_t, va uint32) string {
	var sb strings.Builder
	for {
		c := d.readUserByte(dir, va)
		if c == 0 {
			break
		}
		sb.WriteByte(c)
		va++
	}
	return sb.String()
}

// errU32 turns a negative error constant into its two's-complement EAX
// encoding, matching the convention the fs and other subsystems already
// use for defs.Err_t.
func errU32(v int32) uint32 {
	return uint32(v)
}
