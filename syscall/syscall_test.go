package syscall

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kegnarok/MariobrOS/ata"
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/fs"
	"github.com/Kegnarok/MariobrOS/heap"
	"github.com/Kegnarok/MariobrOS/mem"
	"github.com/Kegnarok/MariobrOS/proc"
	"github.com/Kegnarok/MariobrOS/sched"
	"github.com/Kegnarok/MariobrOS/vm"
)

// fakeFormatter records printf output for assertions without any real
// display collaborator.
type fakeFormatter struct {
	out        []byte
	foreground uint8
	background uint8
}

func (f *fakeFormatter) WriteChar(c byte)       { f.out = append(f.out, c) }
func (f *fakeFormatter) WriteString(s string)   { f.out = append(f.out, s...) }
func (f *fakeFormatter) SetForeground(c uint8)  { f.foreground = c }
func (f *fakeFormatter) SetBackground(c uint8)  { f.background = c }
func (f *fakeFormatter) WriteCP437(table int, index byte) {
	f.out = append(f.out, 0xf0+byte(table), index)
}

func newTestDispatcher(t *testing.T) (*Dispatcher_t, *sched.Sched_t) {
	t.Helper()
	s := sched.Install(false)
	kernelDir := &vm.Pagedir_t{}
	d := &Dispatcher_t{
		Sched:     s,
		Machine:   &vm.Machine_t{Current: kernelDir},
		Phys:      mem.NewPhysMem(4096),
		Heap:      heap.NewHeap(0, uintptr(1024*mem.PGSIZE)),
		Formatter: &fakeFormatter{},
		KernelDir: kernelDir,
	}
	return d, s
}

func TestForkRefusesWhenChildPriorityHigherThanParent(t *testing.T) {
	d, s := newTestDispatcher(t)
	parentPid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[parentPid] = *proc.NewProcess(defs.PidInit, 3, false)

	regs := &s.Processes[parentPid].Ctx.Regs
	regs.EAX = defs.SYS_FORK
	regs.EBX = 7 // worse (numerically higher) scheduling preference than the parent's 3

	d.Dispatch(parentPid)
	require.Zero(t, regs.EAX)
}

func TestForkWaitRoundTrip(t *testing.T) {
	d, s := newTestDispatcher(t)
	parentPid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[parentPid] = *proc.NewProcess(defs.PidInit, 3, false)

	regs := &s.Processes[parentPid].Ctx.Regs
	regs.EAX = defs.SYS_FORK
	regs.EBX = 3
	d.Dispatch(parentPid)
	require.EqualValues(t, 1, regs.EAX)
	childPid := defs.Pid_t(regs.EBX)
	require.NotEqual(t, parentPid, childPid)

	childRegs := &s.Processes[childPid].Ctx.Regs
	require.EqualValues(t, 2, childRegs.EAX)
	require.EqualValues(t, parentPid, childRegs.EBX)
	require.Equal(t, defs.Runnable, s.Processes[childPid].State)

	// Child exits with code 42 before the parent waits.
	childRegs.EAX = defs.SYS_EXIT
	childRegs.EBX = 42
	d.Dispatch(childPid)
	require.Equal(t, defs.Zombie, s.Processes[childPid].State)

	regs.EAX = defs.SYS_WAIT
	d.Dispatch(parentPid)
	require.EqualValues(t, 1, regs.EAX)
	require.EqualValues(t, childPid, regs.EBX)
	require.EqualValues(t, 42, regs.ECX)
	require.Equal(t, defs.Free, s.Processes[childPid].State)
}

func TestForkCopiesParentAddressSpaceIntoDistinctFrames(t *testing.T) {
	d, s := newTestDispatcher(t)
	parentPid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[parentPid] = *proc.NewProcess(defs.PidInit, 3, true)
	parent := &s.Processes[parentPid]

	const va = 0x08001000
	require.Zero(t, vm.RequestVirtualSpace(parent.Ctx.Dir, d.Phys, d.Heap, va, false, true))
	d.writeUserU32(parent.Ctx.Dir, va, 0x11111111)

	regs := &parent.Ctx.Regs
	regs.EAX = defs.SYS_FORK
	regs.EBX = 3
	d.Dispatch(parentPid)
	require.EqualValues(t, 1, regs.EAX)
	childPid := defs.Pid_t(regs.EBX)
	child := &s.Processes[childPid]
	require.NotNil(t, child.Ctx.Dir)

	parentPa, ok := vm.Translate(parent.Ctx.Dir, va)
	require.True(t, ok)
	childPa, ok := vm.Translate(child.Ctx.Dir, va)
	require.True(t, ok)
	require.NotEqual(t, parentPa.Frame(), childPa.Frame())
	require.Equal(t, uint32(0x11111111), d.readUserU32(child.Ctx.Dir, va))

	// Mutating the parent's page must not be visible through the
	// child's copy: they are backed by distinct frames, not aliased.
	d.writeUserU32(parent.Ctx.Dir, va, 0x22222222)
	require.Equal(t, uint32(0x11111111), d.readUserU32(child.Ctx.Dir, va))
}

func TestWaitWithNoChildrenReturnsImmediately(t *testing.T) {
	d, s := newTestDispatcher(t)
	pid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[pid] = *proc.NewProcess(defs.PidInit, 3, false)

	regs := &s.Processes[pid].Ctx.Regs
	regs.EAX = defs.SYS_WAIT
	d.Dispatch(pid)

	require.Zero(t, regs.EAX)
	require.Equal(t, defs.Runnable, s.Processes[pid].State)
}

func TestExitReparentsOrphansToInit(t *testing.T) {
	d, s := newTestDispatcher(t)
	const parentPid defs.Pid_t = 5
	s.Processes[parentPid] = *proc.NewProcess(defs.PidInit, 3, false)
	require.NotEqual(t, defs.PidInit, parentPid)

	childPid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[childPid] = *proc.NewProcess(parentPid, 3, false)

	regs := &s.Processes[parentPid].Ctx.Regs
	regs.EAX = defs.SYS_EXIT
	regs.EBX = 0
	d.Dispatch(parentPid)

	require.Equal(t, defs.PidInit, s.Processes[childPid].ParentID)
}

func TestMallocThenFreeReusesBlock(t *testing.T) {
	d, s := newTestDispatcher(t)
	pid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[pid] = *proc.NewProcess(defs.PidInit, 3, true)

	regs := &s.Processes[pid].Ctx.Regs
	regs.EAX = defs.SYS_MALLOC
	regs.EBX = 64
	d.Dispatch(pid)
	first := regs.EAX
	require.NotZero(t, first)

	regs.EAX = defs.SYS_FREE
	regs.EBX = first
	d.Dispatch(pid)

	regs.EAX = defs.SYS_MALLOC
	regs.EBX = 64
	d.Dispatch(pid)
	require.Equal(t, first, regs.EAX)
}

func TestMallocDistinctBlocksDoNotOverlap(t *testing.T) {
	d, s := newTestDispatcher(t)
	pid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[pid] = *proc.NewProcess(defs.PidInit, 3, true)

	regs := &s.Processes[pid].Ctx.Regs
	regs.EAX = defs.SYS_MALLOC
	regs.EBX = 16
	d.Dispatch(pid)
	a := regs.EAX

	regs.EAX = defs.SYS_MALLOC
	regs.EBX = 16
	d.Dispatch(pid)
	b := regs.EAX

	require.NotEqual(t, a, b)
	require.True(t, b >= a+16)
}

func TestPrintfFormatsDirectivesFromUserStack(t *testing.T) {
	d, s := newTestDispatcher(t)
	pid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[pid] = *proc.NewProcess(defs.PidInit, 3, true)
	p := &s.Processes[pid]

	const fmtVA = 0x08001000
	const stackVA = 0x08002000
	vm.RequestVirtualSpace(p.Ctx.Dir, d.Phys, d.Heap, fmtVA, false, true)
	vm.RequestVirtualSpace(p.Ctx.Dir, d.Phys, d.Heap, stackVA, false, true)

	format := "x=%d!"
	for i := 0; i < len(format); i++ {
		d.writeUserByte(p.Ctx.Dir, fmtVA+uint32(i), format[i])
	}
	d.writeUserByte(p.Ctx.Dir, fmtVA+uint32(len(format)), 0)
	d.writeUserU32(p.Ctx.Dir, stackVA, 0xfffffffe) // -2 as a 32-bit int

	regs := &p.Ctx.Regs
	regs.EAX = defs.SYS_PRINTF
	regs.EBX = fmtVA
	regs.Useresp = stackVA
	d.Dispatch(pid)

	ff := d.Formatter.(*fakeFormatter)
	require.Equal(t, "x=-2!", string(ff.out))
	require.Equal(t, d.KernelDir, d.Machine.Current)
}

func TestOpenReadWriteRoundTrip(t *testing.T) {
	disk := ata.NewMemDisk(2 + 128*2)
	f, ferr := fs.Format(disk, fs.FormatConfig{BlockCount: 128, InodeCount: 64, LogBlockSize: 1})
	require.Zero(t, ferr)
	_, ferr = f.CreateFile(2, "hello.txt", 0100644, []byte("hello, kernel"))
	require.Zero(t, ferr)

	d, s := newTestDispatcher(t)
	d.Fs = f
	pid, ok := s.FindFreeSlot()
	require.True(t, ok)
	s.Processes[pid] = *proc.NewProcess(defs.PidInit, 3, true)
	p := &s.Processes[pid]

	const pathVA = 0x08001000
	const bufVA = 0x08002000
	vm.RequestVirtualSpace(p.Ctx.Dir, d.Phys, d.Heap, pathVA, false, true)
	vm.RequestVirtualSpace(p.Ctx.Dir, d.Phys, d.Heap, bufVA, false, true)

	path := "/hello.txt"
	for i := 0; i < len(path); i++ {
		d.writeUserByte(p.Ctx.Dir, pathVA+uint32(i), path[i])
	}
	d.writeUserByte(p.Ctx.Dir, pathVA+uint32(len(path)), 0)

	regs := &p.Ctx.Regs
	regs.EAX = defs.SYS_OPEN
	regs.EBX = pathVA
	regs.ECX = 0
	d.Dispatch(pid)
	require.NotEqual(t, errU32(-1), regs.EAX)
	fdNum := regs.EAX

	regs.EAX = defs.SYS_READ
	regs.EBX = fdNum
	regs.ECX = bufVA
	regs.EDX = 0
	regs.EDI = 13
	d.Dispatch(pid)
	require.EqualValues(t, 13, regs.EAX)
	require.Equal(t, "hello, kernel", string(d.readUserBytes(p.Ctx.Dir, bufVA, 13)))

	regs.EAX = defs.SYS_CLOSE
	regs.EBX = fdNum
	d.Dispatch(pid)
	require.Nil(t, d.fd(pid, fdNum))
}
