package syscall

import (
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/proc"
	"github.com/Kegnarok/MariobrOS/ustr"
)

// OpenFile_t is one entry of a process's file-descriptor table: the
// inode it resolved to, the byte offset the next read/write continues
// from, and the flags it was opened with (spec.md §4.H open/read/write).
type OpenFile_t struct {
	Inode  uint32
	Offset uint32
	Flags  uint32
}

func (d *Dispatcher_t) fd(pid defs.Pid_t, fd uint32) *OpenFile_t {
	if fd >= defs.MaxOpenFiles {
		return nil
	}
	return d.fds[pid][fd]
}

func (d *Dispatcher_t) allocFd(pid defs.Pid_t) (uint32, bool) {
	for i := 0; i < defs.MaxOpenFiles; i++ {
		if d.fds[pid][i] == nil {
			return uint32(i), true
		}
	}
	return 0, false
}

// sysOpen implements the open syscall (EAX=15): EBX is the path's
// user-space address, ECX is flags (high 16 bits) and mode (low 16 bits).
// Path resolution only ever finds existing entries
// (original_source/src/filesystem.c's open_file walks the existing
// directory tree and returns 0 on a missing component); this core does
// not implement directory-entry creation, since spec.md never specifies
// one, so O_CREAT against a missing path still fails rather than making
// one up (spec.md §9 open questions).
func (d *Dispatcher_t) sysOpen(pid defs.Pid_t, regs *proc.RegFrame_t) {
	dir := d.Sched.Processes[pid].Ctx.Dir
	pathVA := regs.EBX
	flags := regs.ECX >> 16

	path := ustr.Ustr(d.readUserString(dir, pathVA))
	ino := d.Fs.OpenFile(path)
	if ino == 0 {
		regs.EAX = errU32(-1)
		return
	}

	fdNum, ok := d.allocFd(pid)
	if !ok {
		regs.EAX = errU32(-2)
		return
	}
	d.fds[pid][fdNum] = &OpenFile_t{Inode: ino, Flags: flags}
	regs.EAX = fdNum
}

// sysClose implements the close syscall (EAX=16): EBX is the fd. Closing
// an already-closed or out-of-range fd is a silent no-op.
func (d *Dispatcher_t) sysClose(pid defs.Pid_t, regs *proc.RegFrame_t) {
	fdNum := regs.EBX
	if fdNum >= defs.MaxOpenFiles {
		return
	}
	d.fds[pid][fdNum] = nil
}

// sysRead implements the read syscall (EAX=17): EBX=fd, ECX=user buffer
// address, EDX=offset, EDI=length. Reads repeatedly through
// fs.ReadInodeData, which only ever satisfies one block's worth per call,
// until length bytes have been copied into the caller's buffer or the
// filesystem runs out of data to give back.
func (d *Dispatcher_t) sysRead(pid defs.Pid_t, regs *proc.RegFrame_t) {
	of := d.fd(pid, regs.EBX)
	if of == nil {
		regs.EAX = errU32(-1)
		return
	}
	bufVA, off, length := regs.ECX, regs.EDX, regs.EDI
	dir := d.Sched.Processes[pid].Ctx.Dir

	total := uint32(0)
	for total < length {
		chunk := make([]byte, length-total)
		n, err := d.Fs.ReadInodeData(of.Inode, chunk, off+total)
		if err != 0 {
			if total == 0 {
				regs.EAX = errU32(-2)
				return
			}
			break
		}
		d.writeUserBytes(dir, bufVA+total, chunk[:n])
		total += n
		if n == 0 {
			break
		}
	}
	regs.EAX = total
}

// sysWrite implements the write syscall (EAX=18): EBX=fd, ECX=user buffer
// address, EDX=offset, EDI=length. The whole source range is read out of
// the caller's address space up front, then handed to fs.WriteInodeData
// in a loop for the same reason sysRead loops: one call only ever
// advances one block.
func (d *Dispatcher_t) sysWrite(pid defs.Pid_t, regs *proc.RegFrame_t) {
	of := d.fd(pid, regs.EBX)
	if of == nil {
		regs.EAX = errU32(-1)
		return
	}
	bufVA, off, length := regs.ECX, regs.EDX, regs.EDI
	dir := d.Sched.Processes[pid].Ctx.Dir
	data := d.readUserBytes(dir, bufVA, length)

	total := uint32(0)
	for total < length {
		n, err := d.Fs.WriteInodeData(of.Inode, data[total:], off+total)
		if err != 0 {
			if total == 0 {
				regs.EAX = errU32(-2)
				return
			}
			break
		}
		total += n
		if n == 0 {
			break
		}
	}
	regs.EAX = total
}
