package fs

import (
	"encoding/binary"
)

// dirHeaderSize is the fixed portion of an on-disk directory entry
// preceding its name bytes: {inode uint32, record_size uint16,
// name_length uint8, pad uint8} (spec.md §3).
const dirHeaderSize = 8

// DirEntry_t is one parsed directory entry (spec.md §3, §4.E
// ls_dir/SUPPLEMENTED FEATURES). Name is exactly the on-disk name_length
// bytes and is NOT NUL-terminated on disk.
type DirEntry_t struct {
	Inode      uint32
	RecordSize uint16
	Name       string
}

// parseDirEntries walks one directory block, stopping at a zero inode or
// a record whose span would cross the end of the block (spec.md §3,
// §4.E path resolution).
func parseDirEntries(block []byte) []DirEntry_t {
	var entries []DirEntry_t
	pos := 0
	for pos+dirHeaderSize <= len(block) {
		ino := binary.LittleEndian.Uint32(block[pos:])
		if ino == 0 {
			break
		}
		recSize := binary.LittleEndian.Uint16(block[pos+4:])
		nameLen := block[pos+6]
		if recSize == 0 || pos+int(recSize) > len(block) {
			break
		}
		name := string(block[pos+dirHeaderSize : pos+dirHeaderSize+int(nameLen)])
		entries = append(entries, DirEntry_t{Inode: ino, RecordSize: recSize, Name: name})
		pos += int(recSize)
	}
	return entries
}

// encodeDirEntry renders one directory entry in the on-disk layout,
// padding the record to align with the next entry.
func encodeDirEntry(e DirEntry_t) []byte {
	buf := make([]byte, e.RecordSize)
	binary.LittleEndian.PutUint32(buf, e.Inode)
	binary.LittleEndian.PutUint16(buf[4:], e.RecordSize)
	buf[6] = byte(len(e.Name))
	copy(buf[dirHeaderSize:], e.Name)
	return buf
}
