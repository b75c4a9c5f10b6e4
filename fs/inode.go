package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// NumDirect is the number of direct block pointers an inode carries
// (spec.md §3, §4.E table).
const NumDirect = 12

// Inode_t is the on-disk inode record (spec.md §3): mode, size, direct
// pointers, the three indirect pointers, and a link count. Untouched
// bits must be preserved when writing back, so callers always read an
// inode before mutating and rewriting it.
type Inode_t struct {
	Mode      uint32
	Size      uint32
	Direct    [NumDirect]uint32
	Sibp      uint32 // single-indirect block pointer
	Dibp      uint32 // double-indirect block pointer
	Tibp      uint32 // triple-indirect block pointer
	LinkCount uint32
}

const inodeSize = 4 + 4 + NumDirect*4 + 4 + 4 + 4 + 4

func decodeInode(raw []byte) Inode_t {
	var in Inode_t
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &in); err != nil {
		panic(fmt.Sprintf("inode record truncated: %v", err))
	}
	return in
}

func encodeInode(in Inode_t) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &in); err != nil {
		panic(fmt.Sprintf("inode cannot be encoded: %v", err))
	}
	return buf.Bytes()
}
