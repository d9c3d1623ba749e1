package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"doslabel/internal/geom"
)

var appversion = "0.5.0"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	sectorSize    uint32
	heads         uint32
	sectors       uint32
	cylinders     uint32
	compatibility string
	verbose       bool
	debug         bool

	log *logrus.Logger
}

func (o *globalOptions) override() (geom.Override, error) {
	ov := geom.Override{
		Heads:      o.heads,
		Sectors:    o.sectors,
		Cylinders:  o.cylinders,
		SectorSize: o.sectorSize,
	}
	switch o.compatibility {
	case "dos":
		ov.DOSCompat = true
	case "nondos", "":
	default:
		return ov, fmt.Errorf("unsupported compatibility mode %q (use dos or nondos)", o.compatibility)
	}
	return ov, nil
}

func (o *globalOptions) setupLogging() {
	o.log.SetOutput(os.Stderr)
	o.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case o.debug:
		o.log.SetLevel(logrus.DebugLevel)
	case o.verbose:
		o.log.SetLevel(logrus.InfoLevel)
	default:
		o.log.SetLevel(logrus.WarnLevel)
	}
}

// progressOut is where live progress goes: stdout when it is a terminal.
func progressOut() io.Writer {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return os.Stdout
	}
	return io.Discard
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{log: logrus.New()}

	root := &cobra.Command{
		Use:           "doslabel",
		Short:         "Read, edit and write DOS (MBR) partition tables",
		Version:       appversion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			opts.setupLogging()
		},
	}

	pf := root.PersistentFlags()
	pf.Uint32VarP(&opts.sectorSize, "sector-size", "b", 0, "logical sector size (512, 1024, 2048 or 4096)")
	pf.Uint32VarP(&opts.heads, "heads", "H", 0, "number of heads")
	pf.Uint32VarP(&opts.sectors, "sectors", "S", 0, "number of sectors per track")
	pf.Uint32VarP(&opts.cylinders, "cylinders", "C", 0, "number of cylinders")
	pf.StringVarP(&opts.compatibility, "compatibility", "c", "nondos", "dos or nondos partition placement")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress")
	pf.BoolVar(&opts.debug, "debug", false, "log every sector read and written")

	root.AddCommand(
		newListCmd(opts),
		newDumpCmd(opts),
		newSfdiskCmd(opts),
		newFdiskCmd(opts),
		newCfdiskCmd(opts),
		newBackupCmd(opts),
		newRestoreCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
