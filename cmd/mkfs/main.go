// Command mkfs builds a fresh disk image in this kernel's on-disk format:
// an empty single-block-group filesystem, with every regular file under a
// host skeleton directory copied in at the root (spec.md §4.E, grounded
// on biscuit's mkfs command, which walks a skeleton directory and adds
// each entry to a freshly built filesystem via ufs.MkDir/MkFile/Append).
// This core has no directories below root yet, so only flat skeleton
// trees are supported; a subdirectory in skeldir is reported and skipped
// rather than silently flattened.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Kegnarok/MariobrOS/ata"
	"github.com/Kegnarok/MariobrOS/fs"
)

const (
	blockCount   = 8192
	inodeCount   = 1024
	logBlockSize = 1 // 1024-byte blocks
)

func addFiles(f *fs.Fs_t, skeldir string) error {
	entries, err := os.ReadDir(skeldir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Printf("mkfs: skipping subdirectory %q: this core has no nested directories yet\n", e.Name())
			continue
		}
		data, err := os.ReadFile(filepath.Join(skeldir, e.Name()))
		if err != nil {
			return err
		}
		ino, ferr := f.CreateFile(2, e.Name(), 0100755, data)
		if ferr != 0 {
			return fmt.Errorf("mkfs: create %q: error %d", e.Name(), ferr)
		}
		st, ferr := f.Stat(ino)
		if ferr != 0 {
			return fmt.Errorf("mkfs: stat %q: error %d", e.Name(), ferr)
		}
		fmt.Printf("mkfs: added %s (inode %d, %d bytes)\n", e.Name(), st.Ino(), st.Size())
	}
	return nil
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: mkfs <output image> <skel dir>")
		os.Exit(1)
	}
	image, skeldir := os.Args[1], os.Args[2]

	imageBytes := int64(fs.SuperblockLBA)*ata.SectorSize + int64(blockCount)<<(9+logBlockSize)
	raw, err := os.Create(image)
	if err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
	if err := raw.Truncate(imageBytes); err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
	raw.Close()

	disk, err := ata.OpenFileDisk(image)
	if err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
	defer disk.Close()

	f, ferr := fs.Format(disk, fs.FormatConfig{
		BlockCount:   blockCount,
		InodeCount:   inodeCount,
		LogBlockSize: logBlockSize,
	})
	if ferr != 0 {
		fmt.Printf("mkfs: format failed: error %d\n", ferr)
		os.Exit(1)
	}

	if err := addFiles(f, skeldir); err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
}
