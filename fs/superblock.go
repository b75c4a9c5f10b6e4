// Package fs implements the ext2-style filesystem subsystem of spec.md
// §4.E: on-disk superblock, block-group descriptor table, inode table,
// inode/block bitmaps, direct/indirect block chaining, and path
// resolution. Grounded on biscuit's fs package (super.go, blk.go) for
// structure and naming, normalized per spec.md §9's note to count every
// block-pointer offset in bytes rather than the original C kernel's mix
// of 16-bit words and bytes. original_source/src/filesystem.h did not
// survive the source-to-spec distillation, so the exact on-disk byte
// offsets of each struct are this package's own choice (recorded in
// DESIGN.md) rather than a literal translation of a C struct layout.
package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Kegnarok/MariobrOS/ata"
	"github.com/Kegnarok/MariobrOS/defs"
)

// SuperblockSignature is the magic value identifying an ext2 volume
// (spec.md §3, §6).
const SuperblockSignature = 0xEF53

// SuperblockLBA is the fixed sector at which the superblock lives,
// regardless of block size (spec.md §6: "superblock at LBA 2").
const SuperblockLBA = 2

// Superblock_t holds the fields spec.md §3 requires of an ext2
// superblock; fields ext2 defines but spec.md does not require are
// omitted.
type Superblock_t struct {
	InodeCount     uint32
	BlockCount     uint32
	BlocksPerGroup uint32
	InodesPerGroup uint32
	FirstFreeInode uint32
	FreeInodes     uint32
	FreeBlocks     uint32
	LogBlockSize   uint32
	Signature      uint16
	_              uint16 // pad to a 4-byte-aligned record size
}

// BlockSize returns the filesystem's block size in bytes: 512 shifted
// left by LogBlockSize (spec.md §3).
func (sb *Superblock_t) BlockSize() uint32 {
	return 512 << sb.LogBlockSize
}

// BlockFactor returns the number of 512-byte sectors per block.
func (sb *Superblock_t) BlockFactor() uint32 {
	return sb.BlockSize() / ata.SectorSize
}

func ceildiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// GroupCount returns the number of block groups implied by BlockCount
// and BlocksPerGroup.
func (sb *Superblock_t) GroupCount() uint32 {
	return ceildiv(sb.BlockCount, sb.BlocksPerGroup)
}

func readSuperblock(d ata.Disk_i) (Superblock_t, defs.Err_t) {
	sec, err := d.ReadSector(SuperblockLBA)
	if err != nil {
		return Superblock_t{}, -defs.EINVAL
	}
	var sb Superblock_t
	if err := binary.Read(bytes.NewReader(sec[:]), binary.LittleEndian, &sb); err != nil {
		return Superblock_t{}, -defs.EINVAL
	}
	if sb.Signature != SuperblockSignature {
		panic(fmt.Sprintf("wrong superblock signature %#x: is this ext2?", sb.Signature))
	}
	return sb, 0
}

func writeSuperblock(d ata.Disk_i, sb Superblock_t) defs.Err_t {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &sb); err != nil {
		panic(fmt.Sprintf("superblock does not fit a sector: %v", err))
	}
	var sec [ata.SectorSize]byte
	copy(sec[:], buf.Bytes())
	if err := d.WriteSector(SuperblockLBA, sec); err != nil {
		return -defs.EINVAL
	}
	return 0
}

// BlockGroupDesc_t describes one block group (spec.md §3).
type BlockGroupDesc_t struct {
	BlockBitmapAddr uint32
	InodeBitmapAddr uint32
	InodeTableAddr  uint32
	FreeBlocks      uint16
	FreeInodes      uint16
	DirCount        uint16
	_               uint16 // pad
}

const bgdSize = 20

func decodeGroups(raw []byte, n uint32) []BlockGroupDesc_t {
	groups := make([]BlockGroupDesc_t, n)
	r := bytes.NewReader(raw)
	for i := range groups {
		if err := binary.Read(r, binary.LittleEndian, &groups[i]); err != nil {
			panic(fmt.Sprintf("block-group descriptor table truncated at group %d: %v", i, err))
		}
	}
	return groups
}

func encodeGroups(groups []BlockGroupDesc_t) []byte {
	var buf bytes.Buffer
	for i := range groups {
		if err := binary.Write(&buf, binary.LittleEndian, &groups[i]); err != nil {
			panic(fmt.Sprintf("block-group descriptor %d cannot be encoded: %v", i, err))
		}
	}
	return buf.Bytes()
}
