package fs

import (
	"github.com/Kegnarok/MariobrOS/ata"
	"github.com/Kegnarok/MariobrOS/defs"
)

// FormatConfig sizes a fresh single-group volume: BlockCount/InodeCount
// name the group's capacity, LogBlockSize picks the block size
// (512<<LogBlockSize bytes, spec.md §4.E Superblock_t.BlockSize).
type FormatConfig struct {
	BlockCount   uint32
	InodeCount   uint32
	LogBlockSize uint32
}

// Format lays out a fresh, empty single-block-group volume on disk:
// superblock, block-group descriptor table, block/inode bitmaps, an
// inode table sized for cfg.InodeCount, and an empty root directory at
// the conventional inode 2 (spec.md §6 "root directory is inode 2").
// Block 0 is never handed out: it physically overlaps the superblock's
// own sector (spec.md §9, blockToLBA), so it is marked reserved along
// with every other metadata block. This is the same layout
// fs_test.go's fixture builder lays out by hand, generalized into a
// reusable entry point for cmd/mkfs and for tests outside this package.
func Format(disk ata.Disk_i, cfg FormatConfig) (*Fs_t, defs.Err_t) {
	blockSize := uint32(512) << cfg.LogBlockSize
	inodeTableBlocks := ceildiv(cfg.InodeCount*inodeSize, blockSize)
	rootDataBlock := 4 + inodeTableBlocks
	reservedBlocks := rootDataBlock + 1

	sb := Superblock_t{
		InodeCount:     cfg.InodeCount,
		BlockCount:     cfg.BlockCount,
		BlocksPerGroup: cfg.BlockCount,
		InodesPerGroup: cfg.InodeCount,
		FirstFreeInode: 3,
		FreeInodes:     cfg.InodeCount - 2, // inodes 1 (reserved), 2 (root) used
		FreeBlocks:     cfg.BlockCount - reservedBlocks,
		LogBlockSize:   cfg.LogBlockSize,
		Signature:      SuperblockSignature,
	}
	if err := writeSuperblock(disk, sb); err != 0 {
		return nil, err
	}

	f := &Fs_t{disk: disk, sb: sb}

	bgd := BlockGroupDesc_t{
		BlockBitmapAddr: 2,
		InodeBitmapAddr: 3,
		InodeTableAddr:  4,
		FreeBlocks:      uint16(sb.FreeBlocks),
		FreeInodes:      uint16(sb.FreeInodes),
		DirCount:        1,
	}
	if err := f.writeBytesAt(1, 0, encodeGroups([]BlockGroupDesc_t{bgd})); err != 0 {
		return nil, err
	}

	blockBitmap := make([]byte, sb.BlockSize())
	for i := uint32(0); i < reservedBlocks; i++ {
		setBit(blockBitmap, i, true)
	}
	if err := f.writeBlock(2, blockBitmap); err != 0 {
		return nil, err
	}

	inodeBitmap := make([]byte, sb.BlockSize())
	setBit(inodeBitmap, 0, true) // inode 1: reserved
	setBit(inodeBitmap, 1, true) // inode 2: root directory
	if err := f.writeBlock(3, inodeBitmap); err != 0 {
		return nil, err
	}

	inodeTable := make([]byte, inodeTableBlocks*sb.BlockSize())
	copy(inodeTable[0:], encodeInode(Inode_t{LinkCount: 1}))
	copy(inodeTable[inodeSize:], encodeInode(Inode_t{
		Mode:      0040755,
		Direct:    [NumDirect]uint32{rootDataBlock},
		LinkCount: 2,
	}))
	for i := uint32(0); i < inodeTableBlocks; i++ {
		if err := f.writeBlock(4+i, inodeTable[i*sb.BlockSize():(i+1)*sb.BlockSize()]); err != 0 {
			return nil, err
		}
	}

	if err := f.zeroBlock(rootDataBlock); err != 0 {
		return nil, err
	}

	return Mount(disk)
}

// CreateFile allocates a fresh inode, writes data as its content, and
// links name into parentIno's directory entries (spec.md §4 supplemented
// features: the read-only path resolution of open_file implies some way
// to have populated the tree in the first place, which this core
// provides as an explicit write-side operation rather than guessing at
// an unspecified on-disk directory-creation format).
func (f *Fs_t) CreateFile(parentIno uint32, name string, mode uint32, data []byte) (uint32, defs.Err_t) {
	ino, err := f.AllocateInode()
	if err != 0 {
		return 0, err
	}
	if ino == 0 {
		return 0, -defs.ENOSPC
	}
	if err := f.writeInode(ino, Inode_t{Mode: mode, LinkCount: 1}); err != 0 {
		return 0, err
	}
	for written := uint32(0); written < uint32(len(data)); {
		n, err := f.WriteInodeData(ino, data[written:], written)
		if err != 0 {
			return 0, err
		}
		if n == 0 {
			return 0, -defs.ENOSPC
		}
		written += n
	}
	if err := f.linkDirEntry(parentIno, name, ino); err != 0 {
		return 0, err
	}
	return ino, 0
}

func (f *Fs_t) linkDirEntry(dirIno uint32, name string, ino uint32) defs.Err_t {
	in, err := f.FindInode(dirIno)
	if err != 0 {
		return err
	}
	encoded := encodeDirEntry(DirEntry_t{
		Inode:      ino,
		RecordSize: uint16(dirHeaderSize + len(name)),
		Name:       name,
	})
	for written := uint32(0); written < uint32(len(encoded)); {
		n, err := f.WriteInodeData(dirIno, encoded[written:], in.Size+written)
		if err != 0 {
			return err
		}
		if n == 0 {
			return -defs.ENOSPC
		}
		written += n
	}
	return 0
}
