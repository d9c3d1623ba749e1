package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode"

	"github.com/sirupsen/logrus"

	"doslabel/internal/backup"
	"doslabel/internal/blkdev"
	"doslabel/internal/dos"
	"doslabel/internal/probe"
)

// device is what the front-ends edit: a partition table store that can
// also be probed for signatures.
type device interface {
	dos.Device
	io.ReaderAt
}

// session is an open device with its partition table.
type session struct {
	path  string
	dev   device
	close func() error
	table *dos.Table
	log   logrus.FieldLogger
}

func (o *globalOptions) open(path string, writable bool) (*session, error) {
	ov, err := o.override()
	if err != nil {
		return nil, err
	}
	log := o.log.WithField("device", path)
	disk, err := blkdev.Open(path, blkdev.Options{
		Writable:   writable,
		SectorSize: o.sectorSize,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	t, err := dos.Open(disk, dos.Options{Log: log, Geometry: ov})
	if err != nil {
		_ = disk.Close()
		return nil, err
	}
	return &session{path: path, dev: disk, close: disk.Close, table: t, log: log}, nil
}

func (s *session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// partitionName returns the device node of partition n, following the
// kernel's rule of inserting "p" after names ending in a digit.
func partitionName(disk string, n int) string {
	if disk != "" && unicode.IsDigit(rune(disk[len(disk)-1])) {
		return disk + "p" + strconv.Itoa(n)
	}
	return disk + strconv.Itoa(n)
}

// signatureAt probes the first bytes of a partition starting at lba.
func (s *session) signatureAt(lba, sectors uint64) probe.Result {
	g := s.table.Geometry()
	ss := int64(g.SectorSize())
	res, err := probe.Probe(s.dev, int64(lba)*ss, int64(sectors)*ss, ss)
	if err != nil {
		s.log.WithError(err).WithField("lba", lba).Debug("cannot probe partition")
	}
	return res
}

// warnSignature prints the overwrite warning for a partition just created
// over old data.
func (s *session) warnSignature(w io.Writer, id dos.SlotID) {
	sl, err := s.table.Slot(id)
	if err != nil {
		return
	}
	if res := s.signatureAt(sl.Start, sl.Size); !res.Empty() {
		fmt.Fprintf(w, "Partition #%d contains a %s signature.\n", id.Number(), res)
	}
}

// writeOptions are the commit flags shared by the front-ends.
type writeOptions struct {
	force      bool
	strict     bool
	backupFile string
	compress   string
}

func (s *session) commit(w io.Writer, wo writeOptions) error {
	copts := dos.CommitOptions{Force: wo.force, Strict: wo.strict}
	if wo.backupFile != "" {
		ss := int(s.table.Geometry().SectorSize())
		copts.Backup = func(old map[uint64][]byte) error {
			a := backup.New(ss)
			for lba, b := range old {
				if err := a.Add(lba, b); err != nil {
					return err
				}
			}
			path, err := backup.Save(wo.backupFile, wo.compress, a, s.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Backup of %d sectors saved to %s.\n", len(old), path)
			return nil
		}
	}

	res, err := s.table.Commit(s.dev, copts)
	if res != nil {
		printFindings(w, res.Findings)
	}
	if err != nil {
		if errors.Is(err, dos.ErrDeviceBusy) {
			return fmt.Errorf("%s: %w (use --force to write anyway)", s.path, err)
		}
		return err
	}
	fmt.Fprintln(w, "The partition table has been altered.")
	if res.Reread != nil {
		fmt.Fprintf(w, "Re-reading the partition table failed: %v\n", res.Reread)
		fmt.Fprintln(w, "The kernel still uses the old table. The new table will be used at the next reboot.")
	} else {
		fmt.Fprintln(w, "Calling ioctl() to re-read partition table.")
	}
	return nil
}

func printFindings(w io.Writer, fs []dos.Finding) {
	for _, f := range fs {
		fmt.Fprintln(w, f)
	}
}
