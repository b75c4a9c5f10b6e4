package syscall

import (
	"strconv"

	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/proc"
)

// Formatter is the output collaborator printf hands already-decoded
// characters and directives to. The dispatcher owns the format-string
// scanning algorithm (original_source/src/syscall.c's syscall_printf, its
// POP macro, and the table selection for the raw 0xC2/0xC3-prefixed CP437
// byte sequences); rendering glyphs and colors onto a framebuffer is a
// display concern this core treats as an external seam, not reimplemented
// here (spec.md §4 supplemented features).
type Formatter interface {
	WriteChar(c byte)
	WriteString(s string)
	SetForeground(color uint8)
	SetBackground(color uint8)
	// WriteCP437 renders the glyph at index within the given raw UTF-8
	// lead-byte table (2 for a 0xC2 lead, 3 for a 0xC3 lead), matching
	// original_source's two fixed remap tables for characters outside
	// plain ASCII.
	WriteCP437(table int, index byte)
}

// sysPrintf implements original_source's syscall_printf: EBX is the
// format string's user-space address. Arguments are popped off the
// caller's own stack, one 32-bit word per directive, starting at
// useresp (spec.md §4.H, original_source's POP(type) macro reading
// *(type*)(ctx.regs->useresp + 4*nb_args)). The dispatcher switches to
// the caller's page directory to do all of this memory access and
// restores the kernel directory before returning, exactly as the
// original does around its own format-string walk.
func (d *Dispatcher_t) sysPrintf(pid defs.Pid_t, regs *proc.RegFrame_t) {
	dir := d.Sched.Processes[pid].Ctx.Dir
	d.Machine.SwitchTo(dir)
	defer d.Machine.SwitchTo(d.KernelDir)

	fmtVA := regs.EBX
	nargs := uint32(0)
	pop := func() uint32 {
		v := d.readUserU32(dir, regs.Useresp+4*nargs)
		nargs++
		return v
	}

	i := uint32(0)
	for {
		c := d.readUserByte(dir, fmtVA+i)
		if c == 0 {
			break
		}
		switch {
		case c == '%':
			i++
			directive := d.readUserByte(dir, fmtVA+i)
			d.printfDirective(directive, pop)
		case c == 0xc2:
			i++
			idx := d.readUserByte(dir, fmtVA+i)
			d.Formatter.WriteCP437(2, idx-0xa1)
		case c == 0xc3:
			i++
			idx := d.readUserByte(dir, fmtVA+i)
			d.Formatter.WriteCP437(3, idx-0x80)
		default:
			d.Formatter.WriteChar(c)
		}
		i++
	}
}

func (d *Dispatcher_t) printfDirective(directive byte, pop func() uint32) {
	switch directive {
	case 'd':
		d.Formatter.WriteString(strconv.FormatInt(int64(int32(pop())), 10))
	case 'u':
		d.Formatter.WriteString(strconv.FormatUint(uint64(pop()), 10))
	case 'x':
		d.Formatter.WriteString("0x" + strconv.FormatUint(uint64(pop()), 16))
	case 'h':
		d.Formatter.WriteString(strconv.FormatUint(uint64(pop()), 16))
	case 'c':
		d.Formatter.WriteChar(byte(pop()))
	case 's':
		strVA := pop()
		dir := d.Machine.Current
		d.Formatter.WriteString(d.readUserString(dir, strVA))
	case 'f':
		d.Formatter.SetForeground(uint8(pop()))
	case 'b':
		d.Formatter.SetBackground(uint8(pop()))
	case '%':
		d.Formatter.WriteChar('%')
	default:
		d.Formatter.WriteChar('%')
		d.Formatter.WriteChar(directive)
	}
}
