// Package syscall implements the software-interrupt gateway of spec.md
// §4.H: a single dispatch point reading the syscall number and its
// arguments out of a process's saved register frame, and the handlers for
// exit, fork, wait, printf, malloc, free, hlt, and the file-descriptor
// calls. Grounded on original_source/src/syscall.c's syscall_fork,
// resolve_exit_wait, syscall_exit, syscall_wait, and syscall_printf,
// carried into a typed dispatcher value rather than a bare switch over a
// global scheduler_state_t.
package syscall

import (
	"fmt"

	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/fs"
	"github.com/Kegnarok/MariobrOS/heap"
	"github.com/Kegnarok/MariobrOS/mem"
	"github.com/Kegnarok/MariobrOS/proc"
	"github.com/Kegnarok/MariobrOS/sched"
	"github.com/Kegnarok/MariobrOS/vm"
)

// Dispatcher_t bundles every subsystem a syscall handler may need to
// touch: the scheduler (process table, run-queues), the paging machine
// (to read/write the caller's address space), the physical frame
// allocator and kernel heap (to back new mappings fork or malloc need),
// the filesystem, an output Formatter for printf, and the open-file
// table printf does not touch but open/close/read/write do.
type Dispatcher_t struct {
	Sched     *sched.Sched_t
	Machine   *vm.Machine_t
	Phys      *mem.PhysMem_t
	Heap      *heap.Heap_t
	Fs        *fs.Fs_t
	Formatter Formatter
	KernelDir *vm.Pagedir_t

	fds [defs.NumProcesses][defs.MaxOpenFiles]*OpenFile_t
}

// Dispatch reads the syscall number out of pid's saved EAX and routes it
// to the matching handler, which reads its other arguments out of the
// same frame and writes its results back into EAX/EBX/ECX (spec.md §6).
func (d *Dispatcher_t) Dispatch(pid defs.Pid_t) {
	regs := &d.Sched.Processes[pid].Ctx.Regs
	switch regs.EAX {
	case defs.SYS_EXIT:
		d.sysExit(pid, regs)
	case defs.SYS_FORK:
		d.sysFork(pid, regs)
	case defs.SYS_WAIT:
		d.sysWait(pid, regs)
	case defs.SYS_PRINTF:
		d.sysPrintf(pid, regs)
	case defs.SYS_MALLOC:
		d.sysMalloc(pid, regs)
	case defs.SYS_FREE:
		d.sysFree(pid, regs)
	case defs.SYS_HLT:
		d.sysHlt(pid, regs)
	case defs.SYS_OPEN:
		d.sysOpen(pid, regs)
	case defs.SYS_CLOSE:
		d.sysClose(pid, regs)
	case defs.SYS_READ:
		d.sysRead(pid, regs)
	case defs.SYS_WRITE:
		d.sysWrite(pid, regs)
	default:
		panic(fmt.Sprintf("invalid syscall number %d from pid %d", regs.EAX, pid))
	}
}

// sysFork implements original_source's syscall_fork: the requested child
// priority travels in EBX. Fork is refused, with the parent's EAX left 0,
// if the process table has no free slot or the requested child priority
// is numerically greater than the parent's, i.e. the child would run at a
// lower scheduling preference than its parent (spec.md §4.H,
// §7 "fork refused on priority violation"). On success the child is a
// deep, frame-by-frame copy of the parent's address space
// (vm.CopyPagedir), runs with EAX=2/EBX=parent's pid, and is enqueued;
// the parent resumes with EAX=1/EBX=child's pid.
func (d *Dispatcher_t) sysFork(pid defs.Pid_t, regs *proc.RegFrame_t) {
	parent := &d.Sched.Processes[pid]
	childPrio := defs.Prio_t(regs.EBX)

	childPid, ok := d.Sched.FindFreeSlot()
	if !ok || childPrio > parent.Priority {
		regs.EAX = 0
		return
	}

	child := &d.Sched.Processes[childPid]
	*child = proc.Proc_t{
		State:    defs.Runnable,
		ParentID: pid,
		Priority: childPrio,
	}
	child.Ctx.Regs = parent.Ctx.Regs
	child.Ctx.Heap = parent.Ctx.Heap
	if parent.Ctx.Dir != nil {
		child.Ctx.Dir = vm.CopyPagedir(parent.Ctx.Dir, d.Phys, d.Heap)
	}
	child.Ctx.Regs.EAX = 2
	child.Ctx.Regs.EBX = uint32(pid)
	d.Sched.Enqueue(childPid)

	regs.EAX = 1
	regs.EBX = uint32(childPid)
}

// sysExit implements original_source's syscall_exit: the exit code
// travels in EBX and is left untouched there (resolveExitWait reads it
// back out of the zombie's own frame). Every process parented on pid is
// reparented to PidInit (spec.md §7 "orphan reparenting"); if the
// (possibly just-reparented) parent is already Waiting, the exit resolves
// immediately rather than leaving a zombie for a later wait() to find.
func (d *Dispatcher_t) sysExit(pid defs.Pid_t, regs *proc.RegFrame_t) {
	self := &d.Sched.Processes[pid]
	self.State = defs.Zombie

	for i := range d.Sched.Processes {
		if d.Sched.Processes[i].ParentID == pid {
			d.Sched.Processes[i].ParentID = defs.PidInit
		}
	}

	parentID := self.ParentID
	if d.Sched.Processes[parentID].State == defs.Waiting {
		d.resolveExitWait(parentID, pid)
	}
}

// sysWait implements original_source's syscall_wait: the caller blocks
// (State = Waiting) while it is scanned for; if it already has a zombie
// child the wait resolves immediately; if it has no children at all it
// does not block, returning EAX=0 (spec.md §4.H, §7).
func (d *Dispatcher_t) sysWait(pid defs.Pid_t, regs *proc.RegFrame_t) {
	self := &d.Sched.Processes[pid]
	self.State = defs.Waiting

	hasChildren := false
	for i := range d.Sched.Processes {
		if defs.Pid_t(i) == pid || d.Sched.Processes[i].ParentID != pid {
			continue
		}
		hasChildren = true
		if d.Sched.Processes[i].State == defs.Zombie {
			d.resolveExitWait(pid, defs.Pid_t(i))
			return
		}
	}
	if !hasChildren {
		regs.EAX = 0
		self.State = defs.Runnable
	}
}

// resolveExitWait implements original_source's resolve_exit_wait: the
// child's exit code (left in its own EBX by sysExit) is read out before
// the slot is released, the child is freed back to the process table and
// dequeued, and the parent resumes Runnable with EAX=1, EBX=the child's
// pid, ECX=the child's exit code.
func (d *Dispatcher_t) resolveExitWait(parentPid, childPid defs.Pid_t) {
	child := &d.Sched.Processes[childPid]
	exitCode := child.Ctx.Regs.EBX

	d.Sched.Dequeue(childPid)
	*child = proc.Proc_t{State: defs.Free, ParentID: -1}

	parent := &d.Sched.Processes[parentPid]
	parent.State = defs.Runnable
	parent.Ctx.Regs.EAX = 1
	parent.Ctx.Regs.EBX = uint32(childPid)
	parent.Ctx.Regs.ECX = exitCode
}

// sysHlt parks the calling process forever: it is left Waiting and never
// re-enqueued, mirroring the real hlt instruction's single-CPU-parks-
// forever semantics for a process that has asked to stop running rather
// than the kernel itself halting.
func (d *Dispatcher_t) sysHlt(pid defs.Pid_t, regs *proc.RegFrame_t) {
	d.Sched.Processes[pid].State = defs.Waiting
}
