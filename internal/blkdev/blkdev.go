// Package blkdev gives sector access to block devices and disk image files.
package blkdev

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"doslabel/internal/geom"
)

var ErrShortSector = errors.New("buffer is not one sector long")

// Options control Open.
type Options struct {
	Writable bool
	// SectorSize is the logical sector size used for image files. Block
	// devices report their own.
	SectorSize uint32
	Log        logrus.FieldLogger
}

// Disk is an open block device or image file.
type Disk struct {
	f     *os.File
	path  string
	block bool
	topo  geom.Topology
	log   logrus.FieldLogger
}

// Open opens path for sector access and collects its topology.
func Open(path string, opts Options) (*Disk, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	flag := os.O_RDONLY
	if opts.Writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	d := &Disk{f: f, path: path, log: log.WithField("device", path)}
	if fi.Mode()&os.ModeDevice != 0 {
		d.block = true
		d.topo, err = blockTopology(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else {
		ss := opts.SectorSize
		if ss == 0 {
			ss = geom.DefaultSectorSize
		}
		if !geom.ValidSectorSize(ss) {
			f.Close()
			return nil, fmt.Errorf("%s: unsupported sector size %d", path, ss)
		}
		d.topo = geom.Topology{
			TotalSectors:       uint64(fi.Size()) / uint64(ss),
			LogicalSectorSize:  ss,
			PhysicalSectorSize: ss,
		}
	}
	d.log.WithFields(logrus.Fields{
		"sectors":  d.topo.TotalSectors,
		"logical":  d.topo.LogicalSectorSize,
		"physical": d.topo.PhysicalSectorSize,
		"min_io":   d.topo.MinIO,
		"opt_io":   d.topo.OptimalIO,
	}).Debug("opened device")
	return d, nil
}

func (d *Disk) Path() string { return d.path }
func (d *Disk) IsBlockDevice() bool { return d.block }
func (d *Disk) Topology() geom.Topology { return d.topo }
func (d *Disk) Close() error { return d.f.Close() }
func (d *Disk) Sync() error { return d.f.Sync() }
func (d *Disk) ReadAt(p []byte, off int64) (int, error) { return d.f.ReadAt(p, off) }

// Size returns the device size in bytes.
func (d *Disk) Size() uint64 {
	return d.topo.TotalSectors * uint64(d.topo.LogicalSectorSize)
}

func (d *Disk) sectorSize() int64 {
	return int64(d.topo.LogicalSectorSize)
}

// ReadSector reads one logical sector.
func (d *Disk) ReadSector(lba uint64) ([]byte, error) {
	b := make([]byte, d.sectorSize())
	if _, err := d.f.ReadAt(b, int64(lba)*d.sectorSize()); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("sector %d is beyond the end of %s: %w", lba, d.path, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return b, nil
}

// WriteSector writes one logical sector.
func (d *Disk) WriteSector(lba uint64, b []byte) error {
	if int64(len(b)) != d.sectorSize() {
		return ErrShortSector
	}
	_, err := d.f.WriteAt(b, int64(lba)*d.sectorSize())
	return err
}

// NotifyTableChanged asks the kernel to re-read the partition table of a
// block device. It does nothing for image files.
func (d *Disk) NotifyTableChanged() error {
	if !d.block {
		return nil
	}
	return rereadPartitions(d.f)
}

// InUse reports whether the device or one of its partitions is mounted or
// held open exclusively by someone else.
func (d *Disk) InUse() (bool, error) {
	if !d.block {
		return false, nil
	}
	mounted, err := mountedPartitions(d.path)
	if err != nil {
		return false, err
	}
	if len(mounted) > 0 {
		d.log.WithField("mounts", mounted).Debug("device is mounted")
		return true, nil
	}
	return exclusivelyHeld(d.path)
}
