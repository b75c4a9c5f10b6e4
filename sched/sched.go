// Package sched implements the scheduler of spec.md §4.G: the process
// table, per-priority FIFO run-queues, and tick-driven round-robin
// selection. Grounded on original_source/src/scheduler.c's
// scheduler_install/select_new_process/switch_to_process, expressed in
// a typed-record idiom rather than a global C array plus a parallel
// queue_t* table.
package sched

import (
	"fmt"

	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/proc"
	"github.com/Kegnarok/MariobrOS/vm"
)

// Sched_t is the scheduler's entire state (spec.md §3 Scheduler state).
// The invariant it must uphold: a pid appears in at most one run-queue,
// and only if its own state is Runnable.
type Sched_t struct {
	CurrPid   defs.Pid_t
	Processes [defs.NumProcesses]proc.Proc_t
	RunQueues [defs.MaxPriority + 1][]defs.Pid_t
}

// IdlePid is the always-present kernel idle process, process-table slot
// 0 (spec.md §4.G Install: "create process 0, the kernel idle"). It is
// never enqueued in a run-queue; select falls back to it.
const IdlePid defs.Pid_t = 0

// Install prepares an empty process table, empty run-queues, and the
// kernel idle process; if shellOn, also creates and enqueues a shell
// process at the lowest scheduling preference (spec.md §4.G Install).
func Install(shellOn bool) *Sched_t {
	s := &Sched_t{}
	idle := proc.NewProcess(defs.PidKernel, defs.MaxPriority, false)
	s.Processes[IdlePid] = *idle
	s.CurrPid = IdlePid

	if shellOn {
		if pid, ok := s.FindFreeSlot(); ok {
			shell := proc.NewProcess(defs.PidInit, defs.MaxPriority, true)
			s.Processes[pid] = *shell
			s.Enqueue(pid)
		}
	}
	return s
}

// FindFreeSlot returns the lowest-indexed Free process-table slot other
// than the idle slot, or false if the table is full (spec.md §7: "no
// free pid" is a user-visible syscall/scheduler error).
func (s *Sched_t) FindFreeSlot() (defs.Pid_t, bool) {
	for i := 1; i < defs.NumProcesses; i++ {
		if s.Processes[i].State == defs.Free {
			return defs.Pid_t(i), true
		}
	}
	return 0, false
}

// Enqueue appends pid to its priority's run-queue. pid must already be
// Runnable; Enqueue does not change state.
func (s *Sched_t) Enqueue(pid defs.Pid_t) {
	prio := s.Processes[pid].Priority
	if prio < 0 || int(prio) > defs.MaxPriority {
		panic(fmt.Sprintf("process %d has out-of-range priority %d", pid, prio))
	}
	s.RunQueues[prio] = append(s.RunQueues[prio], pid)
}

// Dequeue removes every occurrence of pid from its priority's run-queue
// by filter-copy (spec.md §4.H resolve_exit_wait: "remove child's pid
// from its priority's run-queue").
func (s *Sched_t) Dequeue(pid defs.Pid_t) {
	prio := s.Processes[pid].Priority
	q := s.RunQueues[prio]
	out := q[:0]
	for _, p := range q {
		if p != pid {
			out = append(out, p)
		}
	}
	s.RunQueues[prio] = out
}

// SelectNew iterates priorities in order, picks the head of the first
// non-empty run-queue whose head process is still Runnable, and rotates
// it to the back to provide round-robin within that priority (spec.md
// §4.G select_new_process). Ties across priorities are broken by
// priority order; ties within one priority are FIFO. Falls back to
// IdlePid if no queue yields a runnable head.
func (s *Sched_t) SelectNew() defs.Pid_t {
	for prio := 0; prio <= defs.MaxPriority; prio++ {
		q := s.RunQueues[prio]
		for len(q) > 0 {
			head := q[0]
			q = q[1:]
			if s.Processes[head].State == defs.Runnable {
				s.RunQueues[prio] = append(q, head)
				return head
			}
			// head is no longer runnable (e.g. now Waiting/Zombie):
			// drop it from the queue and keep looking.
		}
		s.RunQueues[prio] = q
	}
	return IdlePid
}

// SwitchTo saves outgoing into the current process's context, makes pid
// the current process, installs its page directory on machine (if it
// has one of its own), and returns its saved register frame to resume
// (spec.md §4.G switch_to_process).
func (s *Sched_t) SwitchTo(pid defs.Pid_t, machine *vm.Machine_t, outgoing proc.RegFrame_t) proc.RegFrame_t {
	s.Processes[s.CurrPid].Ctx.Regs = outgoing
	s.CurrPid = pid
	incoming := &s.Processes[pid]
	if incoming.Ctx.Dir != nil {
		machine.SwitchTo(incoming.Ctx.Dir)
	}
	return incoming.Ctx.Regs
}
