// Package proc implements the process model of spec.md §4.F: the
// process record, its saved register frame, and its address-space/heap
// context. Grounded on original_source/src/process.c's new_process,
// carried into a typed record with exported fields, no mem_alloc of a
// single registers struct (Go gives every Proc_t its own RegFrame_t
// value directly).
package proc

import (
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/vm"
)

// RegFrame_t is the trap frame saved on entry to a syscall or interrupt
// and restored on IRET (spec.md §3 Context, GLOSSARY "Trap frame").
type RegFrame_t struct {
	// General-purpose registers.
	EAX, EBX, ECX, EDX uint32
	ESI, EDI           uint32
	EBP, ESP           uint32

	// Segment selectors.
	DS, ES, FS, GS uint16
	CS, SS         uint16

	// Trap bookkeeping, carried for fidelity with the original ISR
	// frame though this core never dispatches on int_no itself.
	IntNo, ErrCode uint32

	EIP     uint32
	EFlags  uint32
	Useresp uint32
}

// UserHeap_t is a process's per-process heap state: the first free
// block of its user malloc arena, and the unallocated high-water mark
// (spec.md §3 Context).
type UserHeap_t struct {
	FirstFreeBlock uint32
	UnallocatedMem uint32
}

// Context_t is a process's full saved machine state: registers, address
// space, and user-heap bookkeeping (spec.md §3). Dir is nil for kernel
// threads, which share the kernel's own page directory rather than
// owning one.
type Context_t struct {
	Regs RegFrame_t
	Dir  *vm.Pagedir_t
	Heap UserHeap_t
}

// Proc_t is one process-table slot (spec.md §3).
type Proc_t struct {
	State    defs.ProcState
	ParentID defs.Pid_t
	Priority defs.Prio_t
	Ctx      Context_t
}

// NewProcess builds a Runnable process with a cleared register frame,
// user segment selectors, interrupts enabled, EIP left at 0 for the
// program loader to fill in, and the stack pointer at the fixed user
// stack base (spec.md §4.F new_process). When createPageDir is false the
// process is a kernel thread and shares the kernel directory (Ctx.Dir is
// left nil); otherwise it gets a fresh, empty address space.
func NewProcess(parent defs.Pid_t, priority defs.Prio_t, createPageDir bool) *Proc_t {
	p := &Proc_t{
		State:    defs.Runnable,
		ParentID: parent,
		Priority: priority,
	}
	if createPageDir {
		p.Ctx.Dir = vm.NewVm().Dir
		p.Ctx.Heap.UnallocatedMem = defs.UserHeapBase
	}
	regs := &p.Ctx.Regs
	regs.DS, regs.ES, regs.FS, regs.GS = defs.UserDataSegment, defs.UserDataSegment, defs.UserDataSegment, defs.UserDataSegment
	regs.CS = defs.UserCodeSegment
	regs.SS = defs.UserStackSegment
	regs.EFlags = defs.UserEflagsIF
	regs.EIP = 0
	regs.Useresp = defs.StartOfUserStack
	return p
}
