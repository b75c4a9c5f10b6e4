package fs

import (
	"encoding/binary"

	"github.com/Kegnarok/MariobrOS/ata"
	"github.com/Kegnarok/MariobrOS/defs"
	"github.com/Kegnarok/MariobrOS/ustr"
)

// Fs_t is the mounted filesystem: the disk collaborator plus the
// superblock and block-group table loaded once at mount and held for the
// kernel's uptime (spec.md §3, §5 Shared resources).
type Fs_t struct {
	disk   ata.Disk_i
	sb     Superblock_t
	groups []BlockGroupDesc_t
}

// Mount reads the superblock and block-group table off disk (spec.md
// §4.E Mount): check the signature, compute the block size, read the
// group table contiguously after the superblock, and verify the group
// count implied by blocks matches the one implied by inodes.
func Mount(disk ata.Disk_i) (*Fs_t, defs.Err_t) {
	sb, err := readSuperblock(disk)
	if err != 0 {
		return nil, err
	}
	byBlocks := sb.GroupCount()
	byInodes := ceildiv(sb.InodeCount, sb.InodesPerGroup)
	if byBlocks != byInodes {
		panic("incoherent number of block groups between blocks and inodes")
	}
	f := &Fs_t{disk: disk, sb: sb}
	raw := f.readBytes(1, byBlocks*bgdSize)
	f.groups = decodeGroups(raw, byBlocks)
	return f, 0
}

func (f *Fs_t) blockToLBA(b uint32) uint32 {
	return SuperblockLBA + b*f.sb.BlockFactor()
}

func (f *Fs_t) readBlock(b uint32) []byte {
	factor := f.sb.BlockFactor()
	buf := make([]byte, 0, f.sb.BlockSize())
	lba := f.blockToLBA(b)
	for i := uint32(0); i < factor; i++ {
		sec, err := f.disk.ReadSector(lba + i)
		if err != nil {
			panic("disk read failed: " + err.Error())
		}
		buf = append(buf, sec[:]...)
	}
	return buf
}

func (f *Fs_t) writeBlock(b uint32, data []byte) defs.Err_t {
	factor := f.sb.BlockFactor()
	lba := f.blockToLBA(b)
	for i := uint32(0); i < factor; i++ {
		var sec [ata.SectorSize]byte
		copy(sec[:], data[i*ata.SectorSize:(i+1)*ata.SectorSize])
		if err := f.disk.WriteSector(lba+i, sec); err != nil {
			return -defs.EINVAL
		}
	}
	return 0
}

func (f *Fs_t) zeroBlock(b uint32) defs.Err_t {
	return f.writeBlock(b, make([]byte, f.sb.BlockSize()))
}

// readBytes reads n bytes starting at the beginning of block startBlock,
// spanning as many whole blocks as needed.
func (f *Fs_t) readBytes(startBlock, n uint32) []byte {
	blockSize := f.sb.BlockSize()
	nblocks := ceildiv(n, blockSize)
	buf := make([]byte, 0, nblocks*blockSize)
	for i := uint32(0); i < nblocks; i++ {
		buf = append(buf, f.readBlock(startBlock+i)...)
	}
	return buf[:n]
}

// writeBytesAt read-modify-writes data into the region starting `offset`
// bytes into block startBlock, preserving the surrounding bytes of every
// block it touches (spec.md §4.E write_inode_data: "symmetric [to read];
// write goes through a read-modify-write... to preserve surrounding
// bytes").
func (f *Fs_t) writeBytesAt(startBlock, offset uint32, data []byte) defs.Err_t {
	blockSize := f.sb.BlockSize()
	nblocks := ceildiv(offset+uint32(len(data)), blockSize)
	buf := make([]byte, nblocks*blockSize)
	for i := uint32(0); i < nblocks; i++ {
		copy(buf[i*blockSize:], f.readBlock(startBlock+i))
	}
	copy(buf[offset:], data)
	for i := uint32(0); i < nblocks; i++ {
		if err := f.writeBlock(startBlock+i, buf[i*blockSize:(i+1)*blockSize]); err != 0 {
			return err
		}
	}
	return 0
}

func (f *Fs_t) flushMeta() defs.Err_t {
	if err := writeSuperblock(f.disk, f.sb); err != 0 {
		return err
	}
	return f.writeBytesAt(1, 0, encodeGroups(f.groups))
}

// FindInode reads inode n off disk (spec.md §4.E find_inode).
func (f *Fs_t) FindInode(ino uint32) (Inode_t, defs.Err_t) {
	if ino == 0 {
		return Inode_t{}, -defs.EINVAL
	}
	group := (ino - 1) / f.sb.InodesPerGroup
	if group >= uint32(len(f.groups)) {
		return Inode_t{}, -defs.EINVAL
	}
	byteOff := ((ino - 1) % f.sb.InodesPerGroup) * inodeSize
	blockSize := f.sb.BlockSize()
	startBlock := f.groups[group].InodeTableAddr + byteOff/blockSize
	off := byteOff % blockSize
	raw := f.readBytes(startBlock, off+inodeSize)
	return decodeInode(raw[off : off+inodeSize]), 0
}

func (f *Fs_t) writeInode(ino uint32, in Inode_t) defs.Err_t {
	group := (ino - 1) / f.sb.InodesPerGroup
	byteOff := ((ino - 1) % f.sb.InodesPerGroup) * inodeSize
	blockSize := f.sb.BlockSize()
	startBlock := f.groups[group].InodeTableAddr + byteOff/blockSize
	off := byteOff % blockSize
	return f.writeBytesAt(startBlock, off, encodeInode(in))
}

func getBit(block []byte, bit uint32) bool {
	return block[bit/8]&(1<<(bit%8)) != 0
}

func setBit(block []byte, bit uint32, v bool) {
	if v {
		block[bit/8] |= 1 << (bit % 8)
	} else {
		block[bit/8] &^= 1 << (bit % 8)
	}
}

// AllocateInode flips the first clear bit starting at
// superblock.first_free_inode, updates the running counters, and
// advances first_free_inode to the next clear bit, 0 if none (spec.md
// §4.E Allocation). Returns 0 if no inode is free.
func (f *Fs_t) AllocateInode() (uint32, defs.Err_t) {
	if f.sb.FreeInodes == 0 || f.sb.FirstFreeInode == 0 {
		return 0, 0
	}
	ino := f.sb.FirstFreeInode
	group := (ino - 1) / f.sb.InodesPerGroup
	bit := (ino - 1) % f.sb.InodesPerGroup
	bitmap := f.readBlock(f.groups[group].InodeBitmapAddr)
	if getBit(bitmap, bit) {
		panic("inode bitmap inconsistent with first_free_inode")
	}
	setBit(bitmap, bit, true)
	if err := f.writeBlock(f.groups[group].InodeBitmapAddr, bitmap); err != 0 {
		return 0, err
	}
	f.sb.FreeInodes--
	f.groups[group].FreeInodes--
	f.sb.FirstFreeInode = f.scanFreeInode(ino)
	if err := f.flushMeta(); err != 0 {
		return 0, err
	}
	return ino, 0
}

func (f *Fs_t) scanFreeInode(after uint32) uint32 {
	for ino := after + 1; ino <= f.sb.InodeCount; ino++ {
		group := (ino - 1) / f.sb.InodesPerGroup
		bit := (ino - 1) % f.sb.InodesPerGroup
		bitmap := f.readBlock(f.groups[group].InodeBitmapAddr)
		if !getBit(bitmap, bit) {
			return ino
		}
	}
	return 0
}

// UnallocateInode clears inode n's bitmap bit. Double-free is detected:
// if the bit is already clear, it returns an error and leaves counters
// untouched (spec.md §4.E Unallocation, §8).
func (f *Fs_t) UnallocateInode(ino uint32) defs.Err_t {
	group := (ino - 1) / f.sb.InodesPerGroup
	bit := (ino - 1) % f.sb.InodesPerGroup
	bitmap := f.readBlock(f.groups[group].InodeBitmapAddr)
	if !getBit(bitmap, bit) {
		return -defs.EINVAL
	}
	setBit(bitmap, bit, false)
	if err := f.writeBlock(f.groups[group].InodeBitmapAddr, bitmap); err != 0 {
		return err
	}
	f.sb.FreeInodes++
	f.groups[group].FreeInodes++
	if f.sb.FirstFreeInode == 0 || ino < f.sb.FirstFreeInode {
		f.sb.FirstFreeInode = ino
	}
	return f.flushMeta()
}

func (f *Fs_t) scanFreeBlock(start uint32) (uint32, bool) {
	for b := start; b < f.sb.BlockCount; b++ {
		group := b / f.sb.BlocksPerGroup
		bit := b % f.sb.BlocksPerGroup
		bitmap := f.readBlock(f.groups[group].BlockBitmapAddr)
		if !getBit(bitmap, bit) {
			return b, true
		}
	}
	return 0, false
}

func (f *Fs_t) markBlock(b uint32, reserved bool) defs.Err_t {
	group := b / f.sb.BlocksPerGroup
	bit := b % f.sb.BlocksPerGroup
	bitmap := f.readBlock(f.groups[group].BlockBitmapAddr)
	if getBit(bitmap, bit) == reserved {
		return -defs.EINVAL
	}
	setBit(bitmap, bit, reserved)
	if err := f.writeBlock(f.groups[group].BlockBitmapAddr, bitmap); err != 0 {
		return err
	}
	if reserved {
		f.sb.FreeBlocks--
		f.groups[group].FreeBlocks--
	} else {
		f.sb.FreeBlocks++
		f.groups[group].FreeBlocks++
	}
	return f.flushMeta()
}

// AllocateBlock scans the block bitmap starting at the hint prev (the
// last block allocated for the same file); on reaching the end it
// restarts from 0 exactly once, as a second straight-line scan rather
// than a recursive retry (spec.md §4.E Allocation). Returns 0 if the
// filesystem has no free block at all.
func (f *Fs_t) AllocateBlock(prev uint32) (uint32, defs.Err_t) {
	if f.sb.FreeBlocks == 0 {
		return 0, 0
	}
	b, ok := f.scanFreeBlock(prev)
	if !ok {
		if prev == 0 {
			panic("superblock corrupted: no free block found")
		}
		b, ok = f.scanFreeBlock(0)
		if !ok {
			panic("superblock corrupted: no free block found")
		}
	}
	if err := f.markBlock(b, true); err != 0 {
		return 0, err
	}
	return b, 0
}

// UnallocateBlock refuses to double-free: an already-clear bit is an
// error, counters untouched (spec.md §8).
func (f *Fs_t) UnallocateBlock(b uint32) defs.Err_t {
	return f.markBlock(b, false)
}

func readPtr(block []byte, idx uint32) uint32 {
	return binary.LittleEndian.Uint32(block[idx*4:])
}

func writePtr(block []byte, idx uint32, v uint32) {
	binary.LittleEndian.PutUint32(block[idx*4:], v)
}

func (f *Fs_t) allocWithHint(hint *uint32) (uint32, defs.Err_t) {
	nb, err := f.AllocateBlock(*hint)
	if err != 0 {
		return 0, err
	}
	if nb == 0 {
		return 0, -defs.ENOSPC
	}
	*hint = nb
	return nb, 0
}

func (f *Fs_t) resolveDirect(in *Inode_t, b uint32, alloc bool, hint *uint32) (uint32, defs.Err_t) {
	if in.Direct[b] != 0 {
		return in.Direct[b], 0
	}
	if !alloc {
		return 0, -defs.EINVAL
	}
	nb, err := f.allocWithHint(hint)
	if err != 0 {
		return 0, err
	}
	in.Direct[b] = nb
	return nb, 0
}

// resolveSingle resolves logical index idx within a single-indirect
// chain rooted at *root, allocating the indirect block and/or the leaf
// data block on demand when alloc is set (spec.md §4.E table, row
// "b < 12 + B/2").
func (f *Fs_t) resolveSingle(root *uint32, idx uint32, alloc bool, hint *uint32) (uint32, defs.Err_t) {
	if *root == 0 {
		if !alloc {
			return 0, -defs.EINVAL
		}
		nb, err := f.allocWithHint(hint)
		if err != 0 {
			return 0, err
		}
		if err := f.zeroBlock(nb); err != 0 {
			return 0, err
		}
		*root = nb
	}
	ptrBlock := f.readBlock(*root)
	leaf := readPtr(ptrBlock, idx)
	if leaf != 0 {
		return leaf, 0
	}
	if !alloc {
		return 0, -defs.EINVAL
	}
	nb, err := f.allocWithHint(hint)
	if err != 0 {
		return 0, err
	}
	writePtr(ptrBlock, idx, nb)
	if err := f.writeBlock(*root, ptrBlock); err != 0 {
		return 0, err
	}
	return nb, 0
}

func (f *Fs_t) resolveDouble(root *uint32, idx uint32, alloc bool, hint *uint32) (uint32, defs.Err_t) {
	P := f.sb.BlockSize() / 4
	outer, inner := idx/P, idx%P
	if *root == 0 {
		if !alloc {
			return 0, -defs.EINVAL
		}
		nb, err := f.allocWithHint(hint)
		if err != 0 {
			return 0, err
		}
		if err := f.zeroBlock(nb); err != 0 {
			return 0, err
		}
		*root = nb
	}
	outerBlock := f.readBlock(*root)
	mid := readPtr(outerBlock, outer)
	if mid == 0 {
		if !alloc {
			return 0, -defs.EINVAL
		}
		nb, err := f.allocWithHint(hint)
		if err != 0 {
			return 0, err
		}
		if err := f.zeroBlock(nb); err != 0 {
			return 0, err
		}
		writePtr(outerBlock, outer, nb)
		if err := f.writeBlock(*root, outerBlock); err != 0 {
			return 0, err
		}
		mid = nb
	}
	return f.resolveSingle(&mid, inner, alloc, hint)
}

func (f *Fs_t) resolveTriple(root *uint32, idx uint32, alloc bool, hint *uint32) (uint32, defs.Err_t) {
	P := f.sb.BlockSize() / 4
	outer, rem := idx/(P*P), idx%(P*P)
	if *root == 0 {
		if !alloc {
			return 0, -defs.EINVAL
		}
		nb, err := f.allocWithHint(hint)
		if err != 0 {
			return 0, err
		}
		if err := f.zeroBlock(nb); err != 0 {
			return 0, err
		}
		*root = nb
	}
	outerBlock := f.readBlock(*root)
	mid := readPtr(outerBlock, outer)
	if mid == 0 {
		if !alloc {
			return 0, -defs.EINVAL
		}
		nb, err := f.allocWithHint(hint)
		if err != 0 {
			return 0, err
		}
		if err := f.zeroBlock(nb); err != 0 {
			return 0, err
		}
		writePtr(outerBlock, outer, nb)
		if err := f.writeBlock(*root, outerBlock); err != 0 {
			return 0, err
		}
		mid = nb
	}
	return f.resolveDouble(&mid, rem, alloc, hint)
}

// blockFor resolves inode in's logical block b to an absolute block
// number, following spec.md §4.E's table of direct/single/double/triple
// indirect ranges, normalized to byte-counted pointers-per-block
// (spec.md §9 block-pointer addressing arithmetic).
func (f *Fs_t) blockFor(in *Inode_t, b uint32, alloc bool) (uint32, defs.Err_t) {
	P := f.sb.BlockSize() / 4
	hint := uint32(0)
	switch {
	case b < NumDirect:
		return f.resolveDirect(in, b, alloc, &hint)
	case b < NumDirect+P:
		return f.resolveSingle(&in.Sibp, b-NumDirect, alloc, &hint)
	case b < NumDirect+P+P*P:
		return f.resolveDouble(&in.Dibp, b-NumDirect-P, alloc, &hint)
	case b < NumDirect+P+P*P+P*P*P:
		return f.resolveTriple(&in.Tibp, b-NumDirect-P-P*P, alloc, &hint)
	default:
		return 0, -defs.EINVAL
	}
}

// ReadInodeData reads into out starting at byte offset, returning the
// width actually read: min(len(out), block_size - offset%block_size)
// (spec.md §4.E read_inode_data).
func (f *Fs_t) ReadInodeData(ino uint32, out []byte, offset uint32) (uint32, defs.Err_t) {
	in, err := f.FindInode(ino)
	if err != 0 {
		return 0, err
	}
	blockSize := f.sb.BlockSize()
	b := offset / blockSize
	ofs := offset % blockSize
	width := blockSize - ofs
	if uint32(len(out)) < width {
		width = uint32(len(out))
	}
	blk, err := f.blockFor(&in, b, false)
	if err != 0 {
		return 0, err
	}
	data := f.readBlock(blk)
	copy(out[:width], data[ofs:ofs+width])
	return width, 0
}

// WriteInodeData writes data at byte offset, allocating direct/indirect
// blocks on demand, read-modify-writing the destination block to
// preserve its surrounding bytes, and growing the inode's size if the
// write extends past it (spec.md §4.E write_inode_data).
func (f *Fs_t) WriteInodeData(ino uint32, data []byte, offset uint32) (uint32, defs.Err_t) {
	in, err := f.FindInode(ino)
	if err != 0 {
		return 0, err
	}
	blockSize := f.sb.BlockSize()
	b := offset / blockSize
	ofs := offset % blockSize
	width := blockSize - ofs
	if uint32(len(data)) < width {
		width = uint32(len(data))
	}
	blk, err := f.blockFor(&in, b, true)
	if err != 0 {
		return 0, err
	}
	blockBuf := f.readBlock(blk)
	copy(blockBuf[ofs:ofs+width], data[:width])
	if err := f.writeBlock(blk, blockBuf); err != 0 {
		return 0, err
	}
	if offset+width > in.Size {
		in.Size = offset + width
	}
	if err := f.writeInode(ino, in); err != 0 {
		return 0, err
	}
	return width, 0
}

func (f *Fs_t) dirEntries(ino uint32) []DirEntry_t {
	buf := make([]byte, f.sb.BlockSize())
	n, err := f.ReadInodeData(ino, buf, 0)
	if err != 0 {
		return nil
	}
	return parseDirEntries(buf[:n])
}

// ListDir returns the entries of the first block of directory ino
// (spec.md §4 SUPPLEMENTED FEATURES: ls_dir as a first-class operation,
// rather than only a raw read of directory bytes).
func (f *Fs_t) ListDir(ino uint32) ([]DirEntry_t, defs.Err_t) {
	return f.dirEntries(ino), 0
}

// rootInode is the filesystem root's fixed inode number (spec.md §4.E,
// §6: "root directory is inode 2").
const rootInode = 2

// OpenFile resolves path to an inode number, walking from the root by
// directory entry name, comparing entry.Name against each path
// component (spec.md §4.E Path resolution). Returns 0 if any component
// is absent.
func (f *Fs_t) OpenFile(path ustr.Ustr) uint32 {
	ino := uint32(rootInode)
	for _, comp := range path.Components() {
		name := comp.String()
		found := uint32(0)
		for _, e := range f.dirEntries(ino) {
			if e.Name == name {
				found = e.Inode
				break
			}
		}
		if found == 0 {
			return 0
		}
		ino = found
	}
	return ino
}
