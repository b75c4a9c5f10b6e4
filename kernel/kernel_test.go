package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kegnarok/MariobrOS/ata"
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/fs"
	"github.com/Kegnarok/MariobrOS/proc"
	"github.com/Kegnarok/MariobrOS/vm"
)

type nullFormatter struct{}

func (nullFormatter) WriteChar(byte)       {}
func (nullFormatter) WriteString(string)   {}
func (nullFormatter) SetForeground(uint8)  {}
func (nullFormatter) SetBackground(uint8)  {}
func (nullFormatter) WriteCP437(int, byte) {}

func bootTestKernel(t *testing.T) *Kernel_t {
	t.Helper()
	return bootTestKernelWithShell(t, false)
}

func bootTestKernelWithShell(t *testing.T, shellOn bool) *Kernel_t {
	t.Helper()
	disk := ata.NewMemDisk(2 + 64*2)
	_, ferr := fs.Format(disk, fs.FormatConfig{BlockCount: 64, InodeCount: 32, LogBlockSize: 1})
	require.Zero(t, ferr)

	k, err := Boot(Config{
		PhysFrames: 4096,
		KernelHeap: uintptr(4 * 1024 * 1024), // 4MiB of page-table/bootstrap space
		Disk:       disk,
		Formatter:  nullFormatter{},
		ShellOn:    shellOn,
		UserLow:    0x08000000,
		UserHigh:   0x0a000000,
	})
	require.Zero(t, err)
	return k
}

func TestBootWithShellOnGivesShellItsOwnAddressSpace(t *testing.T) {
	k := bootTestKernelWithShell(t, true)
	// Install hands the shell the lowest free non-idle slot of an
	// otherwise-empty table, which is always slot 1.
	shell := &k.Sched.Processes[1]
	require.Equal(t, defs.Runnable, shell.State)
	require.NotNil(t, shell.Ctx.Dir)
}

func TestBootMountsFsAndInstallsIdle(t *testing.T) {
	k := bootTestKernel(t)
	require.Equal(t, defs.Runnable, k.Sched.Processes[0].State)
	entries, err := k.Fs.ListDir(2)
	require.Zero(t, err)
	require.Empty(t, entries)
}

func TestTickSchedulesEnqueuedProcess(t *testing.T) {
	k := bootTestKernel(t)
	pid, ok := k.Sched.FindFreeSlot()
	require.True(t, ok)
	k.Sched.Processes[pid] = *proc.NewProcess(defs.PidInit, 3, false)
	k.Sched.Enqueue(pid)

	resumed := k.Tick(proc.RegFrame_t{})
	require.Equal(t, pid, k.Sched.CurrPid)
	require.Zero(t, resumed.EIP)
}

func TestHandleSyscallRoutesForkThroughKernel(t *testing.T) {
	k := bootTestKernel(t)
	pid, ok := k.Sched.FindFreeSlot()
	require.True(t, ok)
	k.Sched.Processes[pid] = *proc.NewProcess(defs.PidInit, 3, false)

	regs := &k.Sched.Processes[pid].Ctx.Regs
	regs.EAX = defs.SYS_FORK
	regs.EBX = 3
	k.HandleSyscall(pid)

	require.EqualValues(t, 1, regs.EAX)
}

func TestHandlePageFaultResumesWithinUserRegion(t *testing.T) {
	k := bootTestKernel(t)
	dir := &vm.Pagedir_t{}
	k.Machine.SwitchTo(dir)

	ec := uint32(0x04) // not-present, user-mode
	result := k.HandlePageFault(0x08001234, ec)
	require.Equal(t, vm.FaultResumed, result)

	_, ok := vm.Translate(dir, 0x08001000)
	require.True(t, ok)
}

func TestHandlePageFaultOutsideRegionIsFatal(t *testing.T) {
	k := bootTestKernel(t)
	dir := &vm.Pagedir_t{}
	k.Machine.SwitchTo(dir)

	ec := uint32(0x04)
	result := k.HandlePageFault(0x00001000, ec)
	require.Equal(t, vm.FaultFatal, result)
}
