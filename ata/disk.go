// Package ata stands in for the real ATA-PIO sector driver, which spec.md
// §1 places out of scope and specifies only through its contract: 512-byte
// sector reads and writes addressed by LBA. Grounded on biscuit's
// ufs.ahci_disk_t (ufs/driver.go), which plays the identical role — a
// disk simulated by seeking into a backing file with os.OpenFile/Seek.
package ata

import (
	"fmt"
	"os"
)

// SectorSize is the fixed size of one LBA sector (spec.md §6: "sector n is
// the address 512*n from the start of the volume").
const SectorSize = 512

// Disk_i is the contract the filesystem needs from a block device:
// sector-granular reads and writes by LBA. The real ATA-PIO driver and
// this package's simulated backends both satisfy it.
type Disk_i interface {
	ReadSector(lba uint32) ([SectorSize]byte, error)
	WriteSector(lba uint32, data [SectorSize]byte) error
}

// FileDisk_t is a disk image backed by a regular file, grounded on
// biscuit's ahci_disk_t: open with os.OpenFile, seek to lba*512, then
// Read/Write the sector.
type FileDisk_t struct {
	f *os.File
}

// OpenFileDisk opens path as a disk image, grounded on biscuit's
// openDisk. The file must already exist and be large enough for every
// sector this core will touch.
func OpenFileDisk(path string) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0755)
	if err != nil {
		return nil, err
	}
	return &FileDisk_t{f: f}, nil
}

// Close releases the underlying file.
func (d *FileDisk_t) Close() error {
	return d.f.Close()
}

// ReadSector reads sector lba into a freshly-sized buffer.
func (d *FileDisk_t) ReadSector(lba uint32) ([SectorSize]byte, error) {
	var buf [SectorSize]byte
	if _, err := d.f.Seek(int64(lba)*SectorSize, 0); err != nil {
		return buf, err
	}
	if _, err := d.f.Read(buf[:]); err != nil {
		return buf, err
	}
	return buf, nil
}

// WriteSector writes data to sector lba.
func (d *FileDisk_t) WriteSector(lba uint32, data [SectorSize]byte) error {
	if _, err := d.f.Seek(int64(lba)*SectorSize, 0); err != nil {
		return err
	}
	_, err := d.f.Write(data[:])
	return err
}

// MemDisk_t is an in-memory disk image of a fixed number of sectors, used
// by tests. It does not grow: reading or writing a sector past the last
// one returns an error.
type MemDisk_t struct {
	sectors [][SectorSize]byte
}

// NewMemDisk creates an in-memory disk of nsectors sectors, all zeroed.
func NewMemDisk(nsectors uint32) *MemDisk_t {
	return &MemDisk_t{sectors: make([][SectorSize]byte, nsectors)}
}

func (d *MemDisk_t) checkRange(lba uint32) error {
	if lba >= uint32(len(d.sectors)) {
		return fmt.Errorf("lba %d out of range [0, %d)", lba, len(d.sectors))
	}
	return nil
}

// ReadSector returns a copy of sector lba.
func (d *MemDisk_t) ReadSector(lba uint32) ([SectorSize]byte, error) {
	if err := d.checkRange(lba); err != nil {
		return [SectorSize]byte{}, err
	}
	return d.sectors[lba], nil
}

// WriteSector overwrites sector lba with data.
func (d *MemDisk_t) WriteSector(lba uint32, data [SectorSize]byte) error {
	if err := d.checkRange(lba); err != nil {
		return err
	}
	d.sectors[lba] = data
	return nil
}
