// Package probe recognises filesystems and volume containers from the
// signatures at the start of a partition.
package probe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

type signature struct {
	Name   string
	Magic  []byte
	Offset int64
}

// filesystems is checked in order, first match wins.
var filesystems = []signature{
	{Name: "APFS", Magic: []byte("NXSB"), Offset: 0x20},
	{Name: "btrfs", Magic: []byte("_BHRfS_M"), Offset: 0x10040},
	{Name: "cramfs", Magic: []byte{0x45, 0x3d, 0xcd, 0x28}, Offset: 0},
	{Name: "cramfs", Magic: []byte{0x28, 0xcd, 0x3d, 0x45}, Offset: 0},
	{Name: "exfat", Magic: []byte("EXFAT   "), Offset: 3},
	{Name: "ntfs", Magic: []byte("NTFS    "), Offset: 3},
	{Name: "vfat", Magic: []byte("FAT32   "), Offset: 0x52},
	{Name: "vfat", Magic: []byte("FAT16   "), Offset: 0x36},
	{Name: "vfat", Magic: []byte("FAT12   "), Offset: 0x36},
	{Name: "f2fs", Magic: []byte{0x10, 0x20, 0xf5, 0xf2}, Offset: 0x400},
	{Name: "hfsplus", Magic: []byte("H+"), Offset: 0x400},
	{Name: "hfsplus", Magic: []byte("HX"), Offset: 0x400},
	{Name: "hfs", Magic: []byte("BD"), Offset: 0x400},
	{Name: "iso9660", Magic: []byte("CD001"), Offset: 0x8001},
	{Name: "jfs", Magic: []byte("JFS1"), Offset: 0x8000},
	{Name: "swap", Magic: []byte("SWAPSPACE2"), Offset: 0xff6},
	{Name: "swap", Magic: []byte("SWAP-SPACE"), Offset: 0xff6},
	{Name: "minix", Magic: []byte{0x7f, 0x13}, Offset: 0x410},
	{Name: "minix", Magic: []byte{0x8f, 0x13}, Offset: 0x410},
	{Name: "nilfs2", Magic: []byte{0x34, 0x34}, Offset: 0x406},
	{Name: "ocfs2", Magic: []byte("OCFSV2"), Offset: 0x2000},
	{Name: "reiserfs", Magic: []byte("ReIsEr2Fs"), Offset: 0x10034},
	{Name: "reiserfs", Magic: []byte("ReIsEr3Fs"), Offset: 0x10034},
	{Name: "reiser4", Magic: []byte("ReIsEr4"), Offset: 0x10000},
	{Name: "romfs", Magic: []byte("-rom1fs-"), Offset: 0},
	{Name: "squashfs", Magic: []byte("hsqs"), Offset: 0},
	{Name: "squashfs", Magic: []byte("sqsh"), Offset: 0},
	{Name: "udf", Magic: []byte("NSR0"), Offset: 0x8001},
	{Name: "ufs", Magic: []byte{0x19, 0x01, 0x54, 0x19}, Offset: 0x255c},
	{Name: "ufs2", Magic: []byte{0x19, 0x01, 0x54, 0x19}, Offset: 0x1055c},
	{Name: "xfs", Magic: []byte("XFSB"), Offset: 0},
	{Name: "erofs", Magic: []byte{0xe2, 0xe1, 0xf5, 0xe0}, Offset: 0x400},
	{Name: "zfs_member", Magic: []byte{0x0c, 0xb1, 0xba, 0x00}, Offset: 0x20000},
}

// window is how far into a partition the signatures reach.
var window = func() int64 {
	var n int64 = extSuperblock + extSuperblockSize
	for _, s := range filesystems {
		n = max(n, s.Offset+int64(len(s.Magic)))
	}
	return n
}()

// readWindow reads up to n bytes at off. A short read at the end of the
// device leaves the rest of the buffer zeroed.
func readWindow(r io.ReaderAt, off, n int64) ([]byte, error) {
	buf := make([]byte, n)
	got, err := r.ReadAt(buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && got > 0) {
		return nil, err
	}
	return buf, nil
}

// Filesystem returns the name of the filesystem starting at byte offset
// off, or "" when nothing is recognised.
func Filesystem(r io.ReaderAt, off int64) (string, error) {
	buf, err := readWindow(r, off, window)
	if err != nil {
		return "", err
	}
	return match(buf), nil
}

func match(buf []byte) string {
	for _, fs := range filesystems {
		end := fs.Offset + int64(len(fs.Magic))
		if end <= int64(len(buf)) && bytes.Equal(buf[fs.Offset:end], fs.Magic) {
			return fs.Name
		}
	}
	return extFilesystem(buf)
}

const (
	extSuperblock     = 0x400
	extSuperblockSize = 0x70
	extMagic          = 0xef53

	extCompatJournal   = 0x4
	extIncompatExtents = 0x40
	extIncompat64Bit   = 0x80
)

// extFilesystem tells ext2, ext3 and ext4 apart by their feature flags.
func extFilesystem(buf []byte) string {
	if int64(len(buf)) < extSuperblock+extSuperblockSize {
		return ""
	}
	sb := buf[extSuperblock:]
	if binary.LittleEndian.Uint16(sb[0x38:]) != extMagic {
		return ""
	}
	compat := binary.LittleEndian.Uint32(sb[0x5c:])
	incompat := binary.LittleEndian.Uint32(sb[0x60:])
	switch {
	case incompat&(extIncompatExtents|extIncompat64Bit) != 0:
		return "ext4"
	case compat&extCompatJournal != 0:
		return "ext3"
	default:
		return "ext2"
	}
}
