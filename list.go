package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"doslabel/internal/blkdev"
	"doslabel/internal/dos"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list [DEVICE...]",
		Aliases: []string{"l", "p"},
		Short:   "List the partition tables of the given disks, or of all disks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				for i, path := range args {
					if i > 0 {
						fmt.Println()
					}
					if err := opts.listDevice(os.Stdout, path); err != nil {
						return err
					}
				}
				return nil
			}
			disks, err := blkdev.List(blkdev.SysBlock)
			if err != nil {
				return fmt.Errorf("cannot enumerate disks: %w", err)
			}
			first := true
			for _, d := range disks {
				var buf bytes.Buffer
				if err := opts.listDevice(&buf, d.Path); err != nil {
					opts.log.WithError(err).WithField("device", d.Path).Warn("skipping disk")
					continue
				}
				if !first {
					fmt.Println()
				}
				first = false
				_, _ = os.Stdout.Write(buf.Bytes())
			}
			return nil
		},
	}
}

func (o *globalOptions) listDevice(w io.Writer, path string) error {
	s, err := o.open(path, false)
	if err != nil {
		return err
	}
	defer s.Close()
	s.printDisk(w)
	if s.table.IsNew() {
		return nil
	}
	fmt.Fprintln(w)
	s.printPartitions(w)
	printFindings(w, dos.Check(s.table))
	return nil
}

func (s *session) printDisk(w io.Writer) {
	g := s.table.Geometry()
	size := g.Bytes(g.TotalSectors)
	fmt.Fprintf(w, "Disk %s: %s, %d bytes, %d sectors\n", s.path, formatBytes(size), size, g.TotalSectors)
	fmt.Fprintf(w, "Geometry: %s\n", g)
	fmt.Fprintf(w, "Units: sectors of 1 * %d = %d bytes\n", g.SectorSize(), g.SectorSize())
	fmt.Fprintf(w, "Sector size (logical/physical): %d bytes / %d bytes\n", g.LogicalSectorSize, g.PhysicalSectorSize)
	fmt.Fprintf(w, "I/O size (minimum/optimal): %d bytes / %d bytes\n", g.MinIO, max(g.OptimalIO, g.MinIO))
	if g.AlignmentOffset != 0 {
		fmt.Fprintf(w, "Alignment offset: %d bytes\n", g.AlignmentOffset)
	}
	fmt.Fprintln(w, "Disklabel type: dos")
	fmt.Fprintf(w, "Disk identifier: 0x%08x\n", s.table.DiskID())
}

// printPartitions writes one row per partition, with the signature found
// at its start.
func (s *session) printPartitions(w io.Writer) {
	parts := s.table.Partitions()
	if len(parts) == 0 {
		return
	}
	g := s.table.Geometry()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Device\tBoot\tStart\tEnd\tSectors\tSize\tId\tType\tSignature")
	for _, p := range parts {
		boot := ""
		if p.Boot {
			boot = "*"
		}
		sig := ""
		if !p.Type.IsExtended() {
			sig = s.signatureAt(p.Start, p.Size).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			partitionName(s.path, p.ID.Number()), boot, p.Start, p.Last(), p.Size,
			formatShort(g.Bytes(p.Size)), p.Type, p.Type.Name(), sig)
	}
	_ = tw.Flush()
}
