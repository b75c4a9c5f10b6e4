package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kegnarok/MariobrOS/heap"
	"github.com/Kegnarok/MariobrOS/mem"
)

func newTestMachine() (*Pagedir_t, *mem.PhysMem_t, *heap.Heap_t) {
	pm := mem.NewPhysMem(4096)
	h := heap.NewHeap(0, uintptr(256*mem.PGSIZE))
	dir := &Pagedir_t{}
	return dir, pm, h
}

func TestTranslateMissingIsNotOk(t *testing.T) {
	dir, _, _ := newTestMachine()
	_, ok := Translate(dir, 0x1000)
	require.False(t, ok)
}

func TestRequestVirtualSpaceThenTranslate(t *testing.T) {
	dir, pm, h := newTestMachine()
	va := uint32(0x400000)
	err := RequestVirtualSpace(dir, pm, h, va, false, true)
	require.Zero(t, err)

	pa, ok := Translate(dir, va+0x10)
	require.True(t, ok)
	require.EqualValues(t, 0x10, pa&mem.PGOFFSET)
}

func TestRequestVirtualSpaceRefusesDoubleMap(t *testing.T) {
	dir, pm, h := newTestMachine()
	va := uint32(0x400000)
	require.Zero(t, RequestVirtualSpace(dir, pm, h, va, false, true))
	err := RequestVirtualSpace(dir, pm, h, va, false, true)
	require.NotZero(t, err)
}

func TestFreeVirtualSpaceClearsPresence(t *testing.T) {
	dir, pm, h := newTestMachine()
	va := uint32(0x400000)
	require.Zero(t, RequestVirtualSpace(dir, pm, h, va, false, true))
	FreeVirtualSpace(dir, va)
	_, ok := Translate(dir, va)
	require.False(t, ok)
}

func TestIdentityMapKernelCoversHighWaterMark(t *testing.T) {
	dir, pm, h := newTestMachine()
	h.Alloc(uintptr(10 * mem.PGSIZE))

	IdentityMapKernel(dir, pm, h)

	pa, ok := Translate(dir, uint32(3*mem.PGSIZE)+0x42)
	require.True(t, ok)
	require.EqualValues(t, 3*mem.PGSIZE+0x42, pa)
}

func TestIdentityMapKernelRobustToGrowthDuringLoop(t *testing.T) {
	dir, pm, _ := newTestMachine()
	h := heap.NewHeap(0, uintptr(1024*mem.PGSIZE))
	h.Alloc(uintptr(300 * mem.PGSIZE))

	IdentityMapKernel(dir, pm, h)

	for va := uint32(0); uintptr(va) < h.HighWater(); va += uint32(mem.PGSIZE) {
		_, ok := Translate(dir, va)
		require.True(t, ok, "va %#x should be identity mapped", va)
	}
}

func TestResolveFaultOutsideRegionIsFatal(t *testing.T) {
	dir, pm, h := newTestMachine()
	ec := ErrorCode_t{Present: false, User: true}
	region := UserRegion_t{Low: 0x08000000, High: 0x08100000}
	res := Resolve(dir, pm, h, 0x01000000, ec, region)
	require.Equal(t, FaultFatal, res)
}

func TestResolveFaultInsideRegionResumes(t *testing.T) {
	dir, pm, h := newTestMachine()
	ec := ErrorCode_t{Present: false, User: true}
	region := UserRegion_t{Low: 0x08000000, High: 0x08100000}
	res := Resolve(dir, pm, h, 0x08000010, ec, region)
	require.Equal(t, FaultResumed, res)

	pa, ok := Translate(dir, 0x08000010)
	require.True(t, ok)
	require.EqualValues(t, 0x10, pa&mem.PGOFFSET)
}

func TestResolveKernelModeFaultIsAlwaysFatal(t *testing.T) {
	dir, pm, h := newTestMachine()
	ec := ErrorCode_t{Present: false, User: false}
	region := UserRegion_t{Low: 0, High: 0xffffffff}
	res := Resolve(dir, pm, h, 0x08000010, ec, region)
	require.Equal(t, FaultFatal, res)
}

func TestResolvePresentFaultIsFatal(t *testing.T) {
	dir, pm, h := newTestMachine()
	ec := ErrorCode_t{Present: true, User: true, Write: true}
	region := UserRegion_t{Low: 0, High: 0xffffffff}
	res := Resolve(dir, pm, h, 0x08000010, ec, region)
	require.Equal(t, FaultFatal, res)
}
