package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	tui "github.com/network-plane/planetui"
	"github.com/spf13/cobra"

	"doslabel/internal/dos"
)

// lineReader is the part of readline the menu uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

var (
	// errQuit ends the menu without writing.
	errQuit         = errors.New("quit")
	errNoPartitions = errors.New("no partition is defined yet")
)

type fdisk struct {
	s     *session
	in    lineReader
	out   io.Writer
	write writeOptions
	stop  func()
}

func newFdiskCmd(opts *globalOptions) *cobra.Command {
	var wo writeOptions
	cmd := &cobra.Command{
		Use:   "fdisk DEVICE",
		Short: "Menu-driven partition table editor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkCompress(wo.compress); err != nil {
				return err
			}
			s, err := opts.open(args[0], true)
			if err != nil {
				return err
			}
			defer s.Close()

			rl, err := readline.NewEx(&readline.Config{
				HistoryLimit:    200,
				InterruptPrompt: "^C",
				EOFPrompt:       "q",
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			fmt.Printf("Welcome to doslabel fdisk %s.\n", appversion)
			fmt.Println("Changes will remain in memory only, until you decide to write them.")
			fmt.Println("Be careful before using the write command.")
			fmt.Println()
			if s.table.IsNew() {
				fmt.Println("Device does not contain a recognized partition table.")
				fmt.Printf("Created a new DOS disklabel with disk identifier 0x%08x.\n", s.table.DiskID())
				fmt.Println()
			}
			f := &fdisk{s: s, out: os.Stdout, write: wo}
			return f.serve(rl)
		},
	}
	cmd.Flags().BoolVarP(&wo.force, "force", "f", false, "write despite check errors or a busy device")
	cmd.Flags().StringVar(&wo.backupFile, "backup-file", "", "save the sectors about to be overwritten")
	addCompressFlag(cmd, &wo.compress)
	return cmd
}

const fdiskHelp = `Help:

  DOS (MBR)
   a   toggle a bootable flag

  Generic
   d   delete a partition
   F   list free unpartitioned space
   l   list known partition types
   n   add a new partition
   p   print the partition table
   t   change a partition type
   v   verify the partition table

  Misc
   m   print this menu
   x   extra functionality (experts only)

  Create a new label
   o   create a new empty DOS partition table

  Save & Exit
   w   write table to disk and exit
   q   quit without saving changes

  Typing help lists the commands by name.
`

const expertHelp = `Help (expert commands):

   f       fix partitions order
   i       change the disk identifier
   heads   change number of heads
   s       change number of sectors/track
   c       change number of cylinders
   p       print the partition table
   r       return to main menu
   m       print this menu
   q       quit without saving changes
`

// ask prompts for a line. An empty answer yields def.
func (f *fdisk) ask(prompt, def string) (string, error) {
	f.in.SetPrompt(prompt)
	line, err := f.in.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", errQuit
		}
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// askNumber asks until it gets a number in [lo, hi].
func (f *fdisk) askNumber(prompt string, lo, hi, def uint64) (uint64, error) {
	for {
		ans, err := f.ask(fmt.Sprintf("%s (%d-%d, default %d): ", prompt, lo, hi, def), strconv.FormatUint(def, 10))
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseUint(ans, 10, 64)
		if err == nil && n >= lo && n <= hi {
			return n, nil
		}
		fmt.Fprintln(f.out, "Value out of range.")
	}
}

// menuCommand is one fdisk menu entry. It serves as its own planetui
// factory since it carries no per-invocation state.
type menuCommand struct {
	f    *fdisk
	spec tui.CommandSpec
	run  func(rt tui.CommandRuntime) error
}

func (c *menuCommand) Spec() tui.CommandSpec { return c.spec }

func (c *menuCommand) New(rt tui.CommandRuntime) (tui.Command, error) { return c, nil }

func (c *menuCommand) Execute(rt tui.CommandRuntime, input tui.CommandInput) tui.CommandResult {
	err := c.run(rt)
	if errors.Is(err, errQuit) {
		c.f.finish(rt)
		return tui.CommandResult{Status: tui.StatusSuccess}
	}
	if err != nil {
		return tui.CommandResult{
			Status: tui.StatusFailed,
			Error:  &tui.CommandError{Err: err, Message: err.Error()},
		}
	}
	return tui.CommandResult{Status: tui.StatusSuccess}
}

const (
	mainMenu   = "fdisk"
	expertMenu = "expert"
)

// serve hosts the main and expert menus on planetui and reads commands
// from rl until the table is written or the user quits. planetui keeps
// q, h and help for itself: q quits without writing and h prints help,
// so the expert command for heads is spelled out.
func (f *fdisk) serve(rl *readline.Instance) error {
	f.in = rl
	f.stop = func() { _ = rl.Close() }

	tui.ResetEngine(tui.WithPrompt(""), tui.WithOutputWriter(f.out), tui.WithHelpHeader("Help:"))
	tui.RegisterContext(mainMenu, "partition table menu", tui.WithContextPrompt("Command (m for help): "))
	tui.RegisterContext(expertMenu, "extra functionality", tui.WithContextPrompt("Expert command (m for help): "))
	for _, c := range f.commands() {
		tui.RegisterCommand(c)
	}
	if err := tui.DefaultEngine().Contexts().Navigate(mainMenu, nil); err != nil {
		return err
	}
	return tui.Run(rl)
}

// finish leaves the menus. The prompt goes blank and readline reports EOF
// to the engine on its next read.
func (f *fdisk) finish(rt tui.CommandRuntime) {
	_ = rt.ContextManager().PopToRoot()
	if f.stop != nil {
		f.stop()
	}
}

func (f *fdisk) command(ctx, name, alias, summary string, run func(rt tui.CommandRuntime) error) *menuCommand {
	spec := tui.CommandSpec{Name: name, Summary: summary, Context: ctx}
	if alias != "" {
		spec.Aliases = []string{alias}
	}
	return &menuCommand{f: f, spec: spec, run: run}
}

// plain adapts a command that needs no runtime.
func plain(fn func() error) func(tui.CommandRuntime) error {
	return func(tui.CommandRuntime) error { return fn() }
}

// say adapts a command that only prints.
func say(fn func()) func(tui.CommandRuntime) error {
	return func(tui.CommandRuntime) error {
		fn()
		return nil
	}
}

func (f *fdisk) commands() []*menuCommand {
	t := f.s.table
	return []*menuCommand{
		f.command(mainMenu, "menu", "m", "print this menu", say(func() { fmt.Fprint(f.out, fdiskHelp) })),
		f.command(mainMenu, "print", "p", "print the partition table", say(f.print)),
		f.command(mainMenu, "new", "n", "add a new partition", plain(f.add)),
		f.command(mainMenu, "delete", "d", "delete a partition", plain(f.delete)),
		f.command(mainMenu, "type", "t", "change a partition type", plain(f.changeType)),
		f.command(mainMenu, "boot", "a", "toggle a bootable flag", plain(f.toggleBoot)),
		f.command(mainMenu, "types", "l", "list known partition types", say(func() { printTypes(f.out) })),
		f.command(mainMenu, "verify", "v", "verify the partition table", say(f.verify)),
		f.command(mainMenu, "free", "F", "list free unpartitioned space", say(f.printFree)),
		f.command(mainMenu, "label", "o", "create a new empty DOS partition table", say(func() {
			t.Reset()
			fmt.Fprintf(f.out, "Created a new DOS disklabel with disk identifier 0x%08x.\n", t.DiskID())
		})),
		f.command(mainMenu, "extra", "x", "extra functionality (experts only)", func(rt tui.CommandRuntime) error {
			return rt.NavigateTo(expertMenu, nil)
		}),
		f.command(mainMenu, "write", "w", "write table to disk and exit", func(rt tui.CommandRuntime) error {
			err := f.s.commit(f.out, f.write)
			f.finish(rt)
			return err
		}),

		f.command(expertMenu, "menu", "m", "print this menu", say(func() { fmt.Fprint(f.out, expertHelp) })),
		f.command(expertMenu, "print", "p", "print the partition table", say(f.print)),
		f.command(expertMenu, "return", "r", "return to main menu", func(rt tui.CommandRuntime) error {
			return rt.NavigateTo(mainMenu, nil)
		}),
		f.command(expertMenu, "fix", "f", "fix partitions order", say(func() {
			if t.FixOrder() {
				fmt.Fprintln(f.out, "Done.")
			} else {
				fmt.Fprintln(f.out, "Nothing to do. Ordering is correct already.")
			}
		})),
		f.command(expertMenu, "id", "i", "change the disk identifier", plain(f.changeID)),
		f.command(expertMenu, "heads", "", "change number of heads", plain(func() error { return f.geometry("h") })),
		f.command(expertMenu, "sectors", "s", "change number of sectors/track", plain(func() error { return f.geometry("s") })),
		f.command(expertMenu, "cylinders", "c", "change number of cylinders", plain(func() error { return f.geometry("c") })),
	}
}

func (f *fdisk) toggleBoot() error {
	id, err := f.askPartition()
	if err != nil {
		return err
	}
	on, err := f.s.table.ToggleBoot(id)
	if err != nil {
		return err
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	fmt.Fprintf(f.out, "The bootable flag on partition %d is %s now.\n", id.Number(), state)
	return nil
}

func (f *fdisk) print() {
	f.s.printDisk(f.out)
	fmt.Fprintln(f.out)
	f.s.printPartitions(f.out)
	for _, fd := range dos.Check(f.s.table) {
		if strings.Contains(fd.Msg, "not in disk order") {
			fmt.Fprintln(f.out)
			fmt.Fprintln(f.out, "Partition table entries are not in disk order.")
			break
		}
	}
}

func (f *fdisk) verify() {
	t := f.s.table
	fs := dos.Check(t)
	printFindings(f.out, fs)
	if len(fs) == 0 {
		fmt.Fprintln(f.out, "No errors detected.")
	}
	g := t.Geometry()
	fmt.Fprintf(f.out, "Remaining %d unallocated %d-byte sectors.\n", t.Unallocated(), g.SectorSize())
}

func (f *fdisk) printFree() {
	t := f.s.table
	g := t.Geometry()
	regions := t.FreeRegions()
	var total uint64
	for _, r := range regions {
		total += r.Size()
	}
	fmt.Fprintf(f.out, "Unpartitioned space %s: %s, %d bytes, %d sectors\n",
		f.s.path, formatBytes(g.Bytes(total)), g.Bytes(total), total)
	if len(regions) == 0 {
		return
	}
	tw := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Start\tEnd\tSectors\tSize")
	for _, r := range regions {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", r.Start, r.End, r.Size(), formatShort(g.Bytes(r.Size())))
	}
	_ = tw.Flush()
}

func printTypes(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	types := dos.KnownTypes()
	rows := (len(types) + 3) / 4
	for i := 0; i < rows; i++ {
		var cells []string
		for j := i; j < len(types); j += rows {
			cells = append(cells, fmt.Sprintf("%2s %s", types[j], dos.TypeName(types[j])))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

// askPartition asks for the number of a used partition, defaulting to the
// last one.
func (f *fdisk) askPartition() (dos.SlotID, error) {
	parts := f.s.table.Partitions()
	if len(parts) == 0 {
		return dos.NoSlot, errNoPartitions
	}
	if len(parts) == 1 {
		fmt.Fprintf(f.out, "Selected partition %d\n", parts[0].ID.Number())
		return parts[0].ID, nil
	}
	nums := make([]string, len(parts))
	for i, p := range parts {
		nums[i] = strconv.Itoa(p.ID.Number())
	}
	def := nums[len(nums)-1]
	for {
		ans, err := f.ask(fmt.Sprintf("Partition number (%s, default %s): ", strings.Join(nums, ","), def), def)
		if err != nil {
			return dos.NoSlot, err
		}
		n, err := strconv.Atoi(ans)
		if err == nil {
			id := dos.SlotFromNumber(n)
			if _, err := f.s.table.Slot(id); err == nil {
				return id, nil
			}
		}
		fmt.Fprintln(f.out, "Value out of range.")
	}
}

func (f *fdisk) delete() error {
	id, err := f.askPartition()
	if err != nil {
		return err
	}
	if err := f.s.table.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(f.out, "Partition %d has been deleted.\n", id.Number())
	return nil
}

func (f *fdisk) changeType() error {
	t := f.s.table
	id, err := f.askPartition()
	if err != nil {
		return err
	}
	sl, err := t.Slot(id)
	if err != nil {
		return err
	}
	for {
		ans, err := f.ask("Hex code or alias (type L to list all): ", "")
		if err != nil {
			return err
		}
		switch ans {
		case "":
			continue
		case "L":
			printTypes(f.out)
			continue
		}
		typ, err := dos.ParseType(ans)
		if err != nil {
			fmt.Fprintln(f.out, "Type is invalid.")
			continue
		}
		if err := t.ChangeType(id, typ); err != nil {
			return err
		}
		fmt.Fprintf(f.out, "Changed type of partition '%s' to '%s'.\n", sl.Type.Name(), typ.Name())
		return nil
	}
}

// add runs the dialogue for a new partition.
func (f *fdisk) add() error {
	t := f.s.table
	g := t.Geometry()
	used, free := 0, 0
	for i := 0; i < 4; i++ {
		if t.Primary(i).IsUsed() {
			used++
		} else {
			free++
		}
	}
	_, hasExt := t.Extended()
	if free == 0 && !hasExt {
		fmt.Fprintln(f.out, "To create more partitions, first replace a primary with an extended partition.")
		return nil
	}

	kind, typ := dos.Primary, dos.TypeLinux
	switch {
	case free == 0:
		fmt.Fprintln(f.out, "All primary partitions are in use.")
		kind = dos.Logical
	default:
		ext := 0
		if hasExt {
			ext = 1
		}
		fmt.Fprintln(f.out, "Partition type")
		fmt.Fprintf(f.out, "   p   primary (%d primary, %d extended, %d free)\n", used-ext, ext, free)
		if hasExt {
			fmt.Fprintln(f.out, "   l   logical (numbered from 5)")
		} else {
			fmt.Fprintln(f.out, "   e   extended (container for logical partitions)")
		}
		ans, err := f.ask("Select (default p): ", "p")
		if err != nil {
			return err
		}
		switch {
		case ans == "p":
		case ans == "e" && !hasExt:
			typ = dos.TypeExtended
		case ans == "l" && hasExt:
			kind = dos.Logical
		default:
			fmt.Fprintf(f.out, "Invalid partition type `%s'.\n", ans)
			return nil
		}
	}

	var regions []dos.Region
	for _, r := range t.FreeRegions() {
		if r.Logical == (kind == dos.Logical) {
			regions = append(regions, r)
		}
	}
	if len(regions) == 0 {
		fmt.Fprintln(f.out, "No free sectors available.")
		return nil
	}

	lo, hi := regions[0].Start, regions[len(regions)-1].End
	start, err := f.askNumber("First sector", lo, hi, t.SuggestStart(regions[0]))
	if err != nil {
		return err
	}
	r, ok := t.RegionAt(start)
	if !ok || r.Logical != (kind == dos.Logical) {
		fmt.Fprintf(f.out, "Sector %d is already allocated.\n", start)
		return nil
	}

	last, err := f.askLast(start, r.End, g.SectorSize())
	if err != nil {
		return err
	}
	id, err := t.Add(kind, typ, start, last-start+1)
	if err != nil {
		return err
	}
	fmt.Fprintf(f.out, "Created a new partition %d of type '%s' and of size %s.\n",
		id.Number(), typ.Name(), formatBytes(g.Bytes(last-start+1)))
	if typ != dos.TypeExtended {
		f.s.warnSignature(f.out, id)
	}
	return nil
}

// askLast asks for the last sector, either absolute or as +sectors or
// +size{K,M,G,T,P} from start.
func (f *fdisk) askLast(start, end, sectorSize uint64) (uint64, error) {
	prompt := fmt.Sprintf("Last sector, +/-sectors or +/-size{K,M,G,T,P} (%d-%d, default %d): ", start, end, end)
	for {
		ans, err := f.ask(prompt, strconv.FormatUint(end, 10))
		if err != nil {
			return 0, err
		}
		last, ok := lastSector(ans, start, end, sectorSize)
		if ok {
			return last, nil
		}
		fmt.Fprintln(f.out, "Value out of range.")
	}
}

// lastSector interprets an answer to the last sector prompt. "+N" is a
// length from start, "-N" a length back from end.
func lastSector(ans string, start, end, sectorSize uint64) (uint64, bool) {
	var last uint64
	switch {
	case strings.HasPrefix(ans, "+"):
		n, err := parseSize(ans[1:], sectorSize)
		if err != nil || n == 0 {
			return 0, false
		}
		last = start + n - 1
	case strings.HasPrefix(ans, "-"):
		n, err := parseSize(ans[1:], sectorSize)
		if err != nil || n > end {
			return 0, false
		}
		last = end - n
	default:
		n, err := strconv.ParseUint(ans, 10, 64)
		if err != nil {
			return 0, false
		}
		last = n
	}
	return last, last >= start && last <= end
}

func (f *fdisk) changeID() error {
	t := f.s.table
	ans, err := f.ask(fmt.Sprintf("Enter the new disk identifier (default 0x%08x): ", t.DiskID()), "")
	if err != nil || ans == "" {
		return err
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(ans), "0x"), 16, 32)
	if err != nil {
		fmt.Fprintln(f.out, "Incorrect value.")
		return nil
	}
	old := t.DiskID()
	t.SetDiskID(uint32(id))
	fmt.Fprintf(f.out, "Disk identifier changed from 0x%08x to 0x%08x.\n", old, uint32(id))
	return nil
}

func (f *fdisk) geometry(cmd string) error {
	t := f.s.table
	g := t.Geometry()
	h, s, c := g.Heads, g.Sectors, g.Cylinders
	var err error
	var n uint64
	switch cmd {
	case "h":
		n, err = f.askNumber("Number of heads", 1, 255, uint64(h))
		h = uint32(n)
		c = 0
	case "s":
		n, err = f.askNumber("Number of sectors", 1, 63, uint64(s))
		s = uint32(n)
		c = 0
	case "c":
		n, err = f.askNumber("Number of cylinders", 1, 1048576, uint64(c))
		c = uint32(n)
	}
	if err != nil {
		return err
	}
	t.SetGeometry(h, s, c)
	return nil
}
