// Package kernel wires mem, vm, fs, proc, sched, and syscall into the
// single opaque context spec.md §9's design note calls for: "global
// kernel state... re-architected into one value" rather than package-
// level globals. Grounded on original_source's boot sequence
// (paging_install, scheduler_install, filesystem_install, each called in
// turn from the kernel's own entry point) and on the timer/IRQ dispatch
// original_source/src/irq.c shows: a single routing point that looks up
// what to do and does it, with the PIC/IDT programming itself left to
// the hardware bring-up this core does not model (spec.md §1 Non-goals).
package kernel

import (
	"github.com/Kegnarok/MariobrOS/ata"
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/fs"
	"github.com/Kegnarok/MariobrOS/heap"
	"github.com/Kegnarok/MariobrOS/mem"
	"github.com/Kegnarok/MariobrOS/proc"
	"github.com/Kegnarok/MariobrOS/sched"
	"github.com/Kegnarok/MariobrOS/syscall"
	"github.com/Kegnarok/MariobrOS/vm"
)

// kernelBootstrapPages is a stand-in for the kernel image's real size:
// the number of pages already in use by kernel code/data before Boot
// calls IdentityMapKernel, since there is no real linker here to report
// that boundary.
const kernelBootstrapPages = 256

// Kernel_t is the whole machine: physical memory, the kernel's own
// identity-mapped address space, the mounted filesystem, the process
// table and run-queues, and the syscall dispatcher that ties them
// together for a running process.
type Kernel_t struct {
	Phys    *mem.PhysMem_t
	Heap    *heap.Heap_t
	Machine *vm.Machine_t
	Fs      *fs.Fs_t
	Sched   *sched.Sched_t
	Syscall *syscall.Dispatcher_t

	region vm.UserRegion_t
}

// Config carries the machine-sizing knobs Boot needs: how much simulated
// physical memory and kernel heap to build, the disk to mount, the
// output collaborator for printf, and whether to start a shell process
// (spec.md §4.G Install).
type Config struct {
	PhysFrames int
	KernelHeap uintptr
	Disk       ata.Disk_i
	Formatter  syscall.Formatter
	ShellOn    bool
	UserLow    uint32
	UserHigh   uint32
}

// Boot builds a fresh machine: identity-maps the kernel's own memory up
// to the heap's high-water mark (spec.md §4.B IdentityMapKernel), mounts
// the filesystem, installs the idle process and (optionally) a shell,
// and wires the syscall dispatcher to all of it (original_source's
// paging_install -> scheduler_install -> filesystem_install sequence,
// reordered so the filesystem is mounted before any process runs against
// it).
func Boot(cfg Config) (*Kernel_t, defs.Err_t) {
	pm := mem.NewPhysMem(cfg.PhysFrames)
	h := heap.NewHeap(0, cfg.KernelHeap)

	// The kernel's own image and static data occupy some prefix of
	// physical memory before Boot ever runs; bumping the heap past it
	// here stands in for the linker-provided end-of-kernel symbol
	// original_source's paging_install reads to know how much to
	// identity-map (spec.md §4.B).
	h.Alloc(uintptr(kernelBootstrapPages * mem.PGSIZE))

	kernelDir := &vm.Pagedir_t{}
	vm.IdentityMapKernel(kernelDir, pm, h)

	machine := &vm.Machine_t{}
	machine.SwitchTo(kernelDir)

	fsys, err := fs.Mount(cfg.Disk)
	if err != 0 {
		return nil, err
	}

	s := sched.Install(cfg.ShellOn)

	d := &syscall.Dispatcher_t{
		Sched:     s,
		Machine:   machine,
		Phys:      pm,
		Heap:      h,
		Fs:        fsys,
		Formatter: cfg.Formatter,
		KernelDir: kernelDir,
	}

	return &Kernel_t{
		Phys:    pm,
		Heap:    h,
		Machine: machine,
		Fs:      fsys,
		Sched:   s,
		Syscall: d,
		region:  vm.UserRegion_t{Low: cfg.UserLow, High: cfg.UserHigh},
	}, 0
}

// Tick implements the timer-IRQ path: the current process's frame is
// saved, a new one is selected by the scheduler's round-robin policy,
// and its saved frame (and, if it owns one, its page directory) becomes
// current (spec.md §4.G select_new_process + switch_to_process).
func (k *Kernel_t) Tick(outgoing proc.RegFrame_t) proc.RegFrame_t {
	next := k.Sched.SelectNew()
	return k.Sched.SwitchTo(next, k.Machine, outgoing)
}

// HandleSyscall routes the currently-running process's pending syscall
// (its EAX/EBX/ECX/EDX/EDI already populated in its saved frame) to the
// matching handler (spec.md §4.H).
func (k *Kernel_t) HandleSyscall(pid defs.Pid_t) {
	k.Syscall.Dispatch(pid)
}

// HandlePageFault implements the page-fault policy of spec.md §4.B
// against the currently-installed address space: resolve with an
// on-demand mapping if the fault is a legitimate user-stack/heap growth,
// otherwise report that the fault is fatal and the caller must halt.
func (k *Kernel_t) HandlePageFault(fault uint32, rawErrorCode uint32) vm.PageFaultResult_t {
	ec := vm.DecodeErrorCode(rawErrorCode)
	return vm.Resolve(k.Machine.Current, k.Phys, k.Heap, fault, ec, k.region)
}
