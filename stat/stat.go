// Package stat mirrors a file's stat information, grounded on biscuit's
// stat package and the stats struct in original_source/progs/src/lib.h.
package stat

// Stat_t is the information returned for an inode by fs.Stat.
type Stat_t struct {
	ino   uint32
	mode  uint32
	perm  uint16
	nlink uint16
	size  uint32
}

// Wino stores the inode number.
func (st *Stat_t) Wino(v uint32) { st.ino = v }

// Wmode stores the file mode (kind bits).
func (st *Stat_t) Wmode(v uint32) { st.mode = v }

// Wperm stores the permission bits.
func (st *Stat_t) Wperm(v uint16) { st.perm = v }

// Wnlink stores the hard-link count.
func (st *Stat_t) Wnlink(v uint16) { st.nlink = v }

// Wsize stores the file size in bytes.
func (st *Stat_t) Wsize(v uint32) { st.size = v }

// Ino returns the inode number.
func (st *Stat_t) Ino() uint32 { return st.ino }

// Mode returns the file mode.
func (st *Stat_t) Mode() uint32 { return st.mode }

// Perm returns the permission bits.
func (st *Stat_t) Perm() uint16 { return st.perm }

// Nlink returns the hard-link count.
func (st *Stat_t) Nlink() uint16 { return st.nlink }

// Size returns the file size in bytes.
func (st *Stat_t) Size() uint32 { return st.size }
