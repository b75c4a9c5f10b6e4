package fs

import (
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/stat"
)

// Stat fills a stat.Stat_t from an inode's on-disk record (spec.md §4
// supplemented features: a read-only fstat-style accessor, grounded on
// biscuit's stat package and the stats struct original_source's
// progs/src/lib.h hands a user program back from its own fstat call).
func (f *Fs_t) Stat(ino uint32) (stat.Stat_t, defs.Err_t) {
	in, err := f.FindInode(ino)
	if err != 0 {
		return stat.Stat_t{}, err
	}
	var st stat.Stat_t
	st.Wino(ino)
	st.Wmode(in.Mode)
	st.Wperm(uint16(in.Mode & 0xfff))
	st.Wnlink(uint16(in.LinkCount))
	st.Wsize(in.Size)
	return st, 0
}
