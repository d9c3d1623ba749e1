package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"doslabel/internal/backup"
	"doslabel/internal/blkdev"
)

func addCompressFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "compress", backup.Gzip,
		"backup compression: "+strings.Join(backup.Algorithms(), ", "))
}

func checkCompress(alg string) error {
	if !slices.Contains(backup.Algorithms(), alg) {
		return fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
	return nil
}

func newBackupCmd(opts *globalOptions) *cobra.Command {
	var compress string
	cmd := &cobra.Command{
		Use:   "backup DEVICE FILE",
		Short: "Save the MBR and every EBR of a disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkCompress(compress); err != nil {
				return err
			}
			s, err := opts.open(args[0], false)
			if err != nil {
				return err
			}
			defer s.Close()

			var lbas []uint64
			for lba := range s.table.ToSectors() {
				lbas = append(lbas, lba)
			}
			slices.Sort(lbas)
			a, err := backup.Collect(s.dev, int(s.table.Geometry().SectorSize()), lbas, progressOut())
			if err != nil {
				return err
			}
			path, err := backup.Save(args[1], compress, a, s.log)
			if err != nil {
				return err
			}
			fmt.Printf("Saved %d sectors of %s to %s.\n", len(lbas), args[0], path)
			return nil
		},
	}
	addCompressFlag(cmd, &compress)
	return cmd
}

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	var compress string
	var force bool
	cmd := &cobra.Command{
		Use:   "restore FILE DEVICE",
		Short: "Write the sectors saved in a backup back to a disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := backup.Load(args[0], compress)
			if err != nil {
				return err
			}
			disk, err := blkdev.Open(args[1], blkdev.Options{
				Writable:   true,
				SectorSize: opts.sectorSize,
				Log:        opts.log,
			})
			if err != nil {
				return err
			}
			defer disk.Close()

			busy, err := disk.InUse()
			if err != nil {
				opts.log.WithError(err).Warn("cannot tell whether the device is in use")
			}
			if busy && !force {
				return fmt.Errorf("%s is in use (use --force to write anyway)", args[1])
			}
			if err := backup.Restore(disk, int(disk.Topology().LogicalSectorSize), a, progressOut()); err != nil {
				return err
			}
			fmt.Printf("Restored %d sectors to %s.\n", len(a.Sectors), args[1])
			if err := disk.NotifyTableChanged(); err != nil {
				fmt.Fprintf(os.Stderr, "Re-reading the partition table failed: %v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&compress, "compress", "", "backup compression, guessed from the file name when empty")
	cmd.Flags().BoolVar(&force, "force", false, "write even when the device is in use")
	return cmd
}
