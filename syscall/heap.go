package syscall

import (
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/proc"
	"github.com/Kegnarok/MariobrOS/util"
)

// blockHeaderSize is the size, in bytes, of the header malloc prepends to
// every block it hands out: {size uint32, next uint32}. next only has
// meaning while the block sits on the free list.
const blockHeaderSize = 8

// sysMalloc implements the malloc syscall (EAX=4) against a process's own
// UserHeap_t (spec.md §3 Context: first_free_block/unallocated_mem). It
// is a classic first-fit free-list-over-bump allocator: the free list is
// searched first, and only on a miss does the bump pointer advance. Like
// the kernel's own heap, the pages a fresh bump allocation lands in are
// not pre-faulted here; userMalloc pokes the header directly because the
// allocator itself, not a later instruction fetch, is what first touches
// that memory.
func (d *Dispatcher_t) sysMalloc(pid defs.Pid_t, regs *proc.RegFrame_t) {
	size := regs.EBX
	addr, err := d.userMalloc(pid, size)
	if err != 0 {
		regs.EAX = 0
		return
	}
	regs.EAX = addr
}

// sysFree implements the free syscall (EAX=5): EBX holds the pointer
// malloc previously returned. A NULL free is a silent no-op.
func (d *Dispatcher_t) sysFree(pid defs.Pid_t, regs *proc.RegFrame_t) {
	d.userFree(pid, regs.EBX)
}

func (d *Dispatcher_t) userMalloc(pid defs.Pid_t, size uint32) (uint32, defs.Err_t) {
	p := &d.Sched.Processes[pid]
	dir := p.Ctx.Dir
	uh := &p.Ctx.Heap
	need := uint32(util.Roundup(int(size)+blockHeaderSize, 8))

	var prevAddr uint32
	cur := uh.FirstFreeBlock
	for cur != 0 {
		blkSize := d.readUserU32(dir, cur)
		next := d.readUserU32(dir, cur+4)
		if blkSize >= need {
			if prevAddr == 0 {
				uh.FirstFreeBlock = next
			} else {
				d.writeUserU32(dir, prevAddr+4, next)
			}
			return cur + blockHeaderSize, 0
		}
		prevAddr = cur
		cur = next
	}

	addr := uh.UnallocatedMem
	d.writeUserU32(dir, addr, need)
	uh.UnallocatedMem = addr + need
	return addr + blockHeaderSize, 0
}

func (d *Dispatcher_t) userFree(pid defs.Pid_t, ptr uint32) {
	if ptr == 0 {
		return
	}
	p := &d.Sched.Processes[pid]
	dir := p.Ctx.Dir
	uh := &p.Ctx.Heap

	hdrAddr := ptr - blockHeaderSize
	d.writeUserU32(dir, hdrAddr+4, uh.FirstFreeBlock)
	uh.FirstFreeBlock = hdrAddr
}
