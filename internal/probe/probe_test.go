package probe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const partOffset = 1 << 20

// image returns a 4 MiB image with a partition at 1 MiB and fn applied to
// the partition's bytes.
func image(fn func(part []byte)) *bytes.Reader {
	buf := make([]byte, 4<<20)
	fn(buf[partOffset:])
	return bytes.NewReader(buf)
}

func extSuperblockImage(compat, incompat uint32) *bytes.Reader {
	return image(func(p []byte) {
		sb := p[extSuperblock:]
		binary.LittleEndian.PutUint16(sb[0x38:], extMagic)
		binary.LittleEndian.PutUint32(sb[0x5c:], compat)
		binary.LittleEndian.PutUint32(sb[0x60:], incompat)
	})
}

func TestFilesystem(t *testing.T) {
	tests := []struct {
		name string
		img  *bytes.Reader
		want string
	}{
		{"empty", image(func([]byte) {}), ""},
		{"ext2", extSuperblockImage(0, 0), "ext2"},
		{"ext3", extSuperblockImage(extCompatJournal, 0), "ext3"},
		{"ext4", extSuperblockImage(extCompatJournal, extIncompatExtents), "ext4"},
		{"xfs", image(func(p []byte) { copy(p, "XFSB") }), "xfs"},
		{"fat32", image(func(p []byte) { copy(p[0x52:], "FAT32   ") }), "vfat"},
		{"ntfs", image(func(p []byte) { copy(p[3:], "NTFS    ") }), "ntfs"},
		{"swap", image(func(p []byte) { copy(p[0xff6:], "SWAPSPACE2") }), "swap"},
		{"btrfs", image(func(p []byte) { copy(p[0x10040:], "_BHRfS_M") }), "btrfs"},
		{"iso9660", image(func(p []byte) { copy(p[0x8001:], "CD001") }), "iso9660"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filesystem(tt.img, partOffset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilesystemNearEnd(t *testing.T) {
	// fewer bytes left than the probe window
	buf := make([]byte, partOffset+4096)
	copy(buf[partOffset:], "XFSB")
	got, err := Filesystem(bytes.NewReader(buf), partOffset)
	require.NoError(t, err)
	assert.Equal(t, "xfs", got)

	_, err = Filesystem(bytes.NewReader(buf), int64(len(buf)))
	assert.Error(t, err)
}

func TestContainers(t *testing.T) {
	luks := image(func(p []byte) {
		copy(p, luksMagic)
		binary.BigEndian.PutUint16(p[6:], 2)
	})
	got := Containers(luks, partOffset, 1<<20, 512)
	require.Len(t, got, 1)
	assert.Equal(t, ContainerLUKS, got[0].Type)
	assert.Equal(t, High, got[0].Confidence)
	assert.Equal(t, "version 2", got[0].Notes)

	oddLUKS := image(func(p []byte) {
		copy(p, luksMagic)
		binary.BigEndian.PutUint16(p[6:], 7)
	})
	got = Containers(oddLUKS, partOffset, 1<<20, 512)
	require.Len(t, got, 1)
	assert.Equal(t, Medium, got[0].Confidence)

	lvm := image(func(p []byte) {
		copy(p[512:], "LABELONE")
		copy(p[512+0x18:], "LVM2 001")
	})
	got = Containers(lvm, partOffset, 1<<20, 512)
	require.Len(t, got, 1)
	assert.Equal(t, ContainerLVM2PV, got[0].Type)
	assert.Equal(t, int64(partOffset+512), got[0].Offset)
	assert.Equal(t, High, got[0].Confidence)

	md := image(func(p []byte) {
		binary.LittleEndian.PutUint32(p[4096:], mdMagic)
		binary.LittleEndian.PutUint32(p[4100:], 1)
	})
	got = Containers(md, partOffset, 1<<20, 512)
	require.Len(t, got, 1)
	assert.Equal(t, ContainerMDRAID, got[0].Type)
	assert.Equal(t, "version 1.2 superblock", got[0].Notes)

	// 0.90 superblocks sit 64 KiB before the 64 KiB aligned end
	md090 := image(func(p []byte) {
		binary.LittleEndian.PutUint32(p[1<<20-64*1024:], mdMagic)
	})
	got = Containers(md090, partOffset, 1<<20, 512)
	require.Len(t, got, 1)
	assert.Equal(t, "version 0.90 superblock", got[0].Notes)

	assert.Empty(t, Containers(image(func([]byte) {}), partOffset, 1<<20, 512))
}

func TestProbe(t *testing.T) {
	img := image(func(p []byte) {
		copy(p, luksMagic)
		binary.BigEndian.PutUint16(p[6:], 1)
	})
	res, err := Probe(img, partOffset, 1<<20, 512)
	require.NoError(t, err)
	assert.False(t, res.Empty())
	assert.Equal(t, "LUKS", res.String())

	res, err = Probe(extSuperblockImage(0, extIncompat64Bit), partOffset, 1<<20, 512)
	require.NoError(t, err)
	assert.Equal(t, "ext4", res.String())

	res, err = Probe(image(func([]byte) {}), partOffset, 1<<20, 512)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}
