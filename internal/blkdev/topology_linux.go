//go:build linux

package blkdev

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"doslabel/internal/geom"
)

// ioctl numbers from linux/fs.h and linux/hdreg.h
const (
	blkrrpart   = 0x125f
	blkiomin    = 0x1278
	blkioopt    = 0x1279
	blkalignoff = 0x127a
	hdioGetgeo  = 0x0301
)

type hdGeometry struct {
	Heads     uint8
	Sectors   uint8
	Cylinders uint16
	Start     uint64
}

func blockTopology(f *os.File) (geom.Topology, error) {
	fd := int(f.Fd())
	var topo geom.Topology

	size, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
	if err != nil {
		return topo, fmt.Errorf("ioctl BLKGETSIZE64 failed: %v", err)
	}
	topo.LogicalSectorSize = logicalSectorSize(f)
	topo.TotalSectors = uint64(size) / uint64(topo.LogicalSectorSize)

	if v, err := unix.IoctlGetUint32(fd, unix.BLKPBSZGET); err == nil {
		topo.PhysicalSectorSize = v
	}
	if v, err := unix.IoctlGetUint32(fd, blkiomin); err == nil {
		topo.MinIO = v
	}
	if v, err := unix.IoctlGetUint32(fd, blkioopt); err == nil {
		topo.OptimalIO = v
	}
	if v, err := unix.IoctlGetInt(fd, blkalignoff); err == nil && v > 0 {
		topo.AlignmentOffset = uint32(v)
	}

	var hd hdGeometry
	if _, _, e := unix.Syscall(unix.SYS_IOCTL, f.Fd(), hdioGetgeo, uintptr(unsafe.Pointer(&hd))); e == 0 {
		topo.Heads = uint32(hd.Heads)
		topo.Sectors = uint32(hd.Sectors)
		topo.Cylinders = uint32(hd.Cylinders)
	}
	return topo, nil
}

// logicalSectorSize asks the kernel and falls back to sysfs, then 512.
func logicalSectorSize(f *os.File) uint32 {
	if ss, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET); err == nil && ss > 0 {
		return uint32(ss)
	}
	path := "/sys/class/block/" + filepath.Base(f.Name()) + "/queue/hw_sector_size"
	if data, err := os.ReadFile(path); err == nil {
		if ss, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && ss > 0 {
			return uint32(ss)
		}
	}
	return geom.DefaultSectorSize
}

func rereadPartitions(f *os.File) error {
	if _, err := unix.IoctlGetInt(int(f.Fd()), blkrrpart); err != nil {
		return fmt.Errorf("unable to re-read partition table: %w", err)
	}
	return nil
}

// exclusivelyHeld tries an exclusive open, which the kernel refuses with
// EBUSY while a partition of the disk is mounted or claimed.
func exclusivelyHeld(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_EXCL, 0)
	if err == nil {
		f.Close()
		return false, nil
	}
	if pe, ok := err.(*os.PathError); ok && pe.Err == unix.EBUSY {
		return true, nil
	}
	return false, err
}

func mountedPartitions(dev string) ([]string, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMountInfo(f, dev)
}
