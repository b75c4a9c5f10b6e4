package fs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kegnarok/MariobrOS/ata"
)

func TestFormatProducesMountableEmptyRoot(t *testing.T) {
	disk := ata.NewMemDisk(2 + 32*2)
	f, err := Format(disk, FormatConfig{BlockCount: 32, InodeCount: 16, LogBlockSize: 1})
	require.Zero(t, err)

	entries, err := f.ListDir(2)
	require.Zero(t, err)
	require.Empty(t, entries)
}

func TestCreateFileIsVisibleInParentDir(t *testing.T) {
	disk := ata.NewMemDisk(2 + 32*2)
	f, err := Format(disk, FormatConfig{BlockCount: 32, InodeCount: 16, LogBlockSize: 1})
	require.Zero(t, err)

	ino, err := f.CreateFile(2, "greeting.txt", 0100644, []byte("hi"))
	require.Zero(t, err)
	require.NotZero(t, ino)

	entries, err := f.ListDir(2)
	require.Zero(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "greeting.txt", entries[0].Name)
	require.Equal(t, ino, entries[0].Inode)
}

func TestStatReflectsCreatedFile(t *testing.T) {
	disk := ata.NewMemDisk(2 + 32*2)
	f, err := Format(disk, FormatConfig{BlockCount: 32, InodeCount: 16, LogBlockSize: 1})
	require.Zero(t, err)

	ino, err := f.CreateFile(2, "greeting.txt", 0100644, []byte("hi"))
	require.Zero(t, err)

	st, err := f.Stat(ino)
	require.Zero(t, err)
	require.Equal(t, ino, st.Ino())
	require.EqualValues(t, 2, st.Size())
	require.EqualValues(t, 1, st.Nlink())
}
