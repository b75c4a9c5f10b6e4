package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/proc"
)

func mkRunnable(s *Sched_t, prio defs.Prio_t) defs.Pid_t {
	pid, ok := s.FindFreeSlot()
	if !ok {
		panic("process table full")
	}
	p := proc.NewProcess(defs.PidInit, prio, false)
	s.Processes[pid] = *p
	s.Enqueue(pid)
	return pid
}

func TestRunQueueInvariant(t *testing.T) {
	s := Install(false)
	a := mkRunnable(s, 2)
	b := mkRunnable(s, 2)

	for prio, q := range s.RunQueues {
		for _, pid := range q {
			require.Equal(t, defs.Runnable, s.Processes[pid].State)
			require.EqualValues(t, prio, s.Processes[pid].Priority)
		}
	}

	seen := map[defs.Pid_t]int{}
	for _, q := range s.RunQueues {
		for _, pid := range q {
			seen[pid]++
		}
	}
	require.Equal(t, 1, seen[a])
	require.Equal(t, 1, seen[b])
}

func TestSelectNewRoundRobinsWithinPriority(t *testing.T) {
	s := Install(false)
	a := mkRunnable(s, 1)
	b := mkRunnable(s, 1)

	first := s.SelectNew()
	second := s.SelectNew()
	third := s.SelectNew()

	require.Equal(t, a, first)
	require.Equal(t, b, second)
	require.Equal(t, a, third)
}

func TestSelectNewPrefersLowerPriorityNumber(t *testing.T) {
	s := Install(false)
	low := mkRunnable(s, 5)
	high := mkRunnable(s, 0)

	require.Equal(t, high, s.SelectNew())
	_ = low
}

func TestSelectNewFallsBackToIdle(t *testing.T) {
	s := Install(false)
	require.Equal(t, IdlePid, s.SelectNew())
}

func TestSelectNewSkipsNoLongerRunnableHead(t *testing.T) {
	s := Install(false)
	a := mkRunnable(s, 3)
	b := mkRunnable(s, 3)

	s.Processes[a].State = defs.Waiting
	require.Equal(t, b, s.SelectNew())
}

func TestDequeueRemovesPid(t *testing.T) {
	s := Install(false)
	a := mkRunnable(s, 4)
	s.Dequeue(a)
	require.Empty(t, s.RunQueues[4])
}
