package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"doslabel/internal/blkdev"
)

func newDumpCmd(opts *globalOptions) *cobra.Command {
	var lba, count uint64
	cmd := &cobra.Command{
		Use:   "dump DEVICE",
		Short: "Hex dump sectors of a disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, err := blkdev.Open(args[0], blkdev.Options{SectorSize: opts.sectorSize, Log: opts.log})
			if err != nil {
				return err
			}
			defer disk.Close()
			for i := uint64(0); i < count; i++ {
				buf, err := disk.ReadSector(lba + i)
				if err != nil {
					return fmt.Errorf("read sector %d: %w", lba+i, err)
				}
				fmt.Printf("Sector %d:\n", lba+i)
				hexDump(os.Stdout, buf, int64(lba+i)*int64(len(buf)))
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&lba, "lba", 0, "first sector to dump")
	cmd.Flags().Uint64Var(&count, "count", 1, "number of sectors to dump")
	return cmd
}

func isPrintable(b byte) bool {
	return b >= 32 && b <= 126
}

// hexDump writes buf sixteen bytes per line, prefixed with the byte offset
// base+i.
func hexDump(w io.Writer, buf []byte, base int64) {
	for i := 0; i < len(buf); i += 16 {
		var hexStr, charStr strings.Builder
		for j := 0; j < 16 && i+j < len(buf); j++ {
			b := buf[i+j]
			fmt.Fprintf(&hexStr, "%02X ", b)
			if j == 7 {
				hexStr.WriteByte(' ')
			}
			if isPrintable(b) {
				charStr.WriteByte(b)
			} else {
				charStr.WriteByte('.')
			}
		}
		fmt.Fprintf(w, "%08X  %-49s  |%s|\n", base+int64(i), hexStr.String(), charStr.String())
	}
}
