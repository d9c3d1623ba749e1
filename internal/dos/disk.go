package dos

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"doslabel/internal/geom"
)

// Device is the sector store a table is read from and written to.
type Device interface {
	SectorReader
	WriteSector(lba uint64, b []byte) error
	Topology() geom.Topology
	Sync() error

	// NotifyTableChanged asks the kernel to re-read the partition table.
	NotifyTableChanged() error

	// InUse reports whether the device or one of its partitions is open
	// or mounted elsewhere.
	InUse() (bool, error)
}

func randomDiskID() uint32 {
	id := uuid.New()
	return binary.LittleEndian.Uint32(id[:4])
}

// Open resolves the geometry of dev and reads its partition table. A device
// without a DOS signature yields an empty table for which IsNew is true.
// A GPT disk is refused with ErrGPT.
func Open(dev Device, opts Options) (*Table, error) {
	log := opts.logger()
	mbr, err := dev.ReadSector(0)
	if err != nil {
		return nil, &IOError{Op: "read", LBA: 0, Err: err}
	}

	var hint geom.Hint
	if hasSignature(mbr) {
		if err := DetectGPT(dev, mbr); err != nil {
			return nil, err
		}
		if h, ok := geom.GuessFromEnds(ends(mbr)); ok {
			hint = h
		}
	}
	g, warnings := geom.Resolve(opts.Geometry, hint, dev.Topology())
	for _, w := range warnings {
		log.Warn(w)
	}

	t, err := load(dev, g, log)
	if errors.Is(err, ErrNoTable) {
		log.Info("device does not contain a recognized partition table")
		t = New(g, opts)
		log.Infof("created a new DOS disklabel with disk identifier 0x%08x", t.DiskID())
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CommitOptions control Commit.
type CommitOptions struct {
	// Force writes despite check errors and a busy device.
	Force bool
	// Strict refuses to write when Check reports warnings.
	Strict bool
	// Backup, when set, receives the current content of every sector
	// about to be overwritten. An error aborts the commit.
	Backup func(old map[uint64][]byte) error
}

// CommitResult describes a finished Commit.
type CommitResult struct {
	Findings []Finding
	Written  []uint64
	// Reread is the error from NotifyTableChanged. The table is on disk
	// even when it is set.
	Reread error
}

// Commit checks the table and writes it to dev, then reads every written
// sector back and asks the kernel to re-read the table.
func (t *Table) Commit(dev Device, opts CommitOptions) (*CommitResult, error) {
	res := &CommitResult{Findings: Check(t)}
	for _, f := range res.Findings {
		blocking := f.Severity == SeverityError && !opts.Force ||
			f.Severity == SeverityWarning && opts.Strict
		if blocking {
			return res, fmt.Errorf("%w: %s", ErrCheckFailed, f.Msg)
		}
	}

	busy, err := dev.InUse()
	if err != nil {
		t.log.WithError(err).Warn("cannot tell whether the device is in use")
	}
	if busy && !opts.Force {
		return res, ErrDeviceBusy
	}

	sectors := t.ToSectors()
	lbas := make([]uint64, 0, len(sectors))
	for lba := range sectors {
		lbas = append(lbas, lba)
	}
	sort.Slice(lbas, func(i, j int) bool { return lbas[i] < lbas[j] })

	if opts.Backup != nil {
		old := make(map[uint64][]byte, len(lbas))
		for _, lba := range lbas {
			b, err := dev.ReadSector(lba)
			if err != nil {
				return res, &IOError{Op: "read", LBA: lba, Err: err}
			}
			old[lba] = b
		}
		if err := opts.Backup(old); err != nil {
			return res, fmt.Errorf("backup: %w", err)
		}
	}

	for _, lba := range lbas {
		if err := dev.WriteSector(lba, sectors[lba]); err != nil {
			return res, &IOError{Op: "write", LBA: lba, Err: err}
		}
		res.Written = append(res.Written, lba)
		t.log.WithField("lba", lba).Debug("wrote sector")
	}
	if err := dev.Sync(); err != nil {
		return res, &IOError{Op: "sync", Err: err}
	}
	for _, lba := range lbas {
		b, err := dev.ReadSector(lba)
		if err != nil {
			return res, &IOError{Op: "read", LBA: lba, Err: err}
		}
		if len(b) < len(sectors[lba]) || !bytes.Equal(b[:len(sectors[lba])], sectors[lba]) {
			return res, &IOError{Op: "verify", LBA: lba, Err: ErrVerify}
		}
	}
	t.fresh = false

	if err := dev.NotifyTableChanged(); err != nil {
		res.Reread = err
		t.log.WithError(err).Warn("re-reading the partition table failed, the kernel still uses the old table")
	}
	return res, nil
}
