package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kegnarok/MariobrOS/defs"
)

func TestNewProcessIsRunnableWithUserRegisters(t *testing.T) {
	p := NewProcess(defs.PidInit, 3, true)

	require.Equal(t, defs.Runnable, p.State)
	require.Equal(t, defs.PidInit, p.ParentID)
	require.EqualValues(t, 3, p.Priority)
	require.NotNil(t, p.Ctx.Dir)

	require.Equal(t, defs.UserCodeSegment, p.Ctx.Regs.CS)
	require.Equal(t, defs.UserDataSegment, p.Ctx.Regs.DS)
	require.Equal(t, defs.UserStackSegment, p.Ctx.Regs.SS)
	require.EqualValues(t, defs.UserEflagsIF, p.Ctx.Regs.EFlags)
	require.EqualValues(t, defs.StartOfUserStack, p.Ctx.Regs.Useresp)
	require.Zero(t, p.Ctx.Regs.EIP)
	require.Zero(t, p.Ctx.Regs.EAX)
}

func TestNewKernelThreadHasNoPageDir(t *testing.T) {
	p := NewProcess(defs.PidKernel, 0, false)
	require.Nil(t, p.Ctx.Dir)
}
