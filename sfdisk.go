package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"doslabel/internal/dos"
)

type sfdiskOptions struct {
	dump     bool
	noAct    bool
	reorder  bool
	delete   bool
	activate bool
	partType bool
	script   string

	write writeOptions
}

func newSfdiskCmd(opts *globalOptions) *cobra.Command {
	var so sfdiskOptions
	cmd := &cobra.Command{
		Use:   "sfdisk DEVICE [PARTNO...] [TYPE]",
		Short: "Script-oriented partition table editor",
		Long: `Without an edit flag the partition table is replaced by the script read from
standard input (or --script). The script format is the one --dump prints:

  label: dos
  label-id: 0x1a2b3c4d
  unit: sectors

  /dev/sda1 : start=2048, size=204800, type=83, bootable
  ,1G,S
  ,,E
  ,,L

Lines 1 to 4 are primary partitions, later lines are logical partitions.
Short lines are "start,size,type,bootable"; empty fields take defaults.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkCompress(so.write.compress); err != nil {
				return err
			}
			readOnly := so.dump || so.noAct
			s, err := opts.open(args[0], !readOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			in := io.Reader(os.Stdin)
			if so.script != "" {
				f, err := os.Open(so.script)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return s.runSfdisk(in, os.Stdout, so, args[1:])
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&so.dump, "dump", "d", false, "print the partition table as a script")
	f.BoolVarP(&so.noAct, "no-act", "n", false, "do everything except writing to the device")
	f.BoolVarP(&so.reorder, "reorder", "r", false, "put the partitions in disk order")
	f.BoolVar(&so.delete, "delete", false, "delete the partitions PARTNO... (all when none given)")
	f.BoolVarP(&so.activate, "activate", "A", false, "toggle the bootable flag of PARTNO...")
	f.BoolVar(&so.partType, "part-type", false, "print the type of PARTNO, or set it to TYPE")
	f.StringVar(&so.script, "script", "", "read the script from a file")
	f.BoolVarP(&so.write.force, "force", "f", false, "write despite check errors or a busy device")
	f.BoolVar(&so.write.strict, "strict", false, "refuse to write when the check reports warnings")
	f.StringVar(&so.write.backupFile, "backup-file", "", "save the sectors about to be overwritten")
	addCompressFlag(cmd, &so.write.compress)
	cmd.MarkFlagsMutuallyExclusive("dump", "reorder", "delete", "activate", "part-type")
	return cmd
}

// runSfdisk performs one sfdisk operation on the session. args are the
// positional arguments after the device.
func (s *session) runSfdisk(in io.Reader, out io.Writer, so sfdiskOptions, args []string) error {
	t := s.table
	if so.dump {
		if t.IsNew() {
			return fmt.Errorf("%s: %w", s.path, dos.ErrNoTable)
		}
		dumpScript(out, s.path, t)
		return nil
	}

	nums, err := partitionNumbers(args, so.partType)
	if err != nil {
		return err
	}

	switch {
	case so.reorder:
		sorted := t.SortPrimaries()
		fixed := t.FixOrder()
		if !sorted && !fixed {
			fmt.Fprintln(out, "Nothing to do. Ordering is correct already.")
			return nil
		}
	case so.delete:
		if len(nums) == 0 {
			t.Reset()
			break
		}
		// highest first so logical numbers stay valid
		slices.Sort(nums)
		nums = slices.Compact(nums)
		for i := len(nums) - 1; i >= 0; i-- {
			if err := t.Delete(dos.SlotFromNumber(nums[i])); err != nil {
				return fmt.Errorf("partition %d: %w", nums[i], err)
			}
		}
	case so.activate:
		for _, n := range nums {
			if _, err := t.ToggleBoot(dos.SlotFromNumber(n)); err != nil {
				return fmt.Errorf("partition %d: %w", n, err)
			}
		}
	case so.partType:
		if len(nums) == 0 {
			return fmt.Errorf("--part-type needs a partition number")
		}
		sl, err := t.Slot(dos.SlotFromNumber(nums[0]))
		if err != nil {
			return fmt.Errorf("partition %d: %w", nums[0], err)
		}
		if len(args) == 1 {
			fmt.Fprintln(out, sl.Type)
			return nil
		}
		typ, err := dos.ParseType(args[1])
		if err != nil {
			return err
		}
		if err := t.ChangeType(sl.ID, typ); err != nil {
			return err
		}
	default:
		sc, err := parseScript(in, t.Geometry().SectorSize())
		if err != nil {
			return err
		}
		if err := sc.apply(t); err != nil {
			return err
		}
		for _, p := range t.Partitions() {
			if !p.Type.IsExtended() {
				s.warnSignature(out, p.ID)
			}
		}
	}

	fmt.Fprintln(out, "New situation:")
	s.printDisk(out)
	fmt.Fprintln(out)
	s.printPartitions(out)
	if so.noAct {
		printFindings(out, dos.Check(t))
		fmt.Fprintln(out, "The partition table is unchanged (--no-act).")
		return nil
	}
	return s.commit(out, so.write)
}

// partitionNumbers parses the PARTNO arguments. With partType only the
// first argument is a number, the second is the type.
func partitionNumbers(args []string, partType bool) ([]int, error) {
	if partType && len(args) > 2 {
		return nil, fmt.Errorf("--part-type takes PARTNO and an optional TYPE")
	}
	if partType {
		args = args[:min(len(args), 1)]
	}
	nums := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 || n > dos.MaxPartitions {
			return nil, fmt.Errorf("invalid partition number %q", a)
		}
		nums = append(nums, n)
	}
	return nums, nil
}
