package main

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	tcell "github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"doslabel/internal/dos"
)

// cfdiskRow is one line of the cfdisk list: a partition or a free region.
type cfdiskRow struct {
	part *dos.Slot
	free *dos.Region
}

func (r cfdiskRow) start() uint64 {
	if r.part != nil {
		return r.part.Start
	}
	return r.free.Start
}

// cfdiskRows lists the partitions and free regions in disk order. A
// logical partition or logical free region sorts after the extended
// partition that starts at the same sector.
func cfdiskRows(t *dos.Table) []cfdiskRow {
	var rows []cfdiskRow
	for _, p := range t.Partitions() {
		rows = append(rows, cfdiskRow{part: &p})
	}
	for _, r := range t.FreeRegions() {
		rows = append(rows, cfdiskRow{free: &r})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.start() != b.start() {
			return a.start() < b.start()
		}
		return a.part != nil && a.part.Type.IsExtended()
	})
	return rows
}

type cfdiskMode int

const (
	modeList cfdiskMode = iota
	modeInput
	modePicker
)

// cfdiskInput is a one-line text prompt.
type cfdiskInput struct {
	label string
	text  []rune
	done  func(string)
}

// cfdiskPicker is the partition type popup.
type cfdiskPicker struct {
	types []dos.Type
	sel   int
	done  func(dos.Type)
}

type cfdisk struct {
	s      *session
	write  writeOptions
	rows   []cfdiskRow
	sel    int
	status string
	mode   cfdiskMode
	input  cfdiskInput
	picker cfdiskPicker
	quit   bool
}

func newCfdiskCmd(opts *globalOptions) *cobra.Command {
	var wo writeOptions
	cmd := &cobra.Command{
		Use:   "cfdisk DEVICE",
		Short: "Full-screen partition table editor",
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

			screen, err := tcell.NewScreen()
			if err != nil {
				return fmt.Errorf("failed to create screen: %w", err)
			}
			if err := screen.Init(); err != nil {
				return fmt.Errorf("failed to initialize screen: %w", err)
			}
			defer screen.Fini()

			c := newCfdisk(s, wo)
			c.run(screen)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wo.force, "force", "f", false, "write despite check errors or a busy device")
	cmd.Flags().StringVar(&wo.backupFile, "backup-file", "", "save the sectors about to be overwritten")
	addCompressFlag(cmd, &wo.compress)
	return cmd
}

func newCfdisk(s *session, wo writeOptions) *cfdisk {
	c := &cfdisk{s: s, write: wo}
	if s.table.IsNew() {
		c.status = "Device does not contain a recognized partition table."
	}
	c.refresh()
	return c
}

func (c *cfdisk) run(screen tcell.Screen) {
	screen.SetStyle(tcell.StyleDefault)
	for !c.quit {
		c.render(screen)
		screen.Show()
		switch ev := screen.PollEvent().(type) {
		case *tcell.EventKey:
			c.handleKey(ev)
		case *tcell.EventResize:
			screen.Sync()
		}
	}
}

// refresh rebuilds the rows after an edit and keeps the selection in range.
func (c *cfdisk) refresh() {
	c.rows = cfdiskRows(c.s.table)
	c.sel = max(0, min(c.sel, len(c.rows)-1))
}

func (c *cfdisk) selected() (cfdiskRow, bool) {
	if c.sel < 0 || c.sel >= len(c.rows) {
		return cfdiskRow{}, false
	}
	return c.rows[c.sel], true
}

func (c *cfdisk) handleKey(ev *tcell.EventKey) {
	switch c.mode {
	case modeInput:
		c.inputKey(ev)
		return
	case modePicker:
		c.pickerKey(ev)
		return
	}

	switch ev.Key() {
	case tcell.KeyUp:
		c.sel = max(c.sel-1, 0)
		return
	case tcell.KeyDown:
		c.sel = min(c.sel+1, len(c.rows)-1)
		return
	case tcell.KeyCtrlC, tcell.KeyEscape:
		c.quit = true
		return
	case tcell.KeyRune:
	default:
		return
	}

	c.status = ""
	switch ev.Rune() {
	case 'k':
		c.sel = max(c.sel-1, 0)
	case 'j':
		c.sel = min(c.sel+1, len(c.rows)-1)
	case 'n':
		c.add()
	case 'd':
		c.delete()
	case 'b':
		c.toggleBoot()
	case 't':
		c.changeType()
	case 's':
		c.sort()
	case 'W':
		c.ask(`Are you sure you want to write the partition table to disk? (type "yes" or "no")`, "", func(ans string) {
			if ans != "yes" {
				c.status = "Did not write partition table to disk."
				return
			}
			c.commit()
		})
	case 'q':
		c.quit = true
	}
}

func (c *cfdisk) ask(label, def string, done func(string)) {
	c.mode = modeInput
	c.input = cfdiskInput{label: label, text: []rune(def), done: done}
}

func (c *cfdisk) inputKey(ev *tcell.EventKey) {
	in := &c.input
	switch ev.Key() {
	case tcell.KeyEnter:
		c.mode = modeList
		in.done(strings.TrimSpace(string(in.text)))
	case tcell.KeyEscape, tcell.KeyCtrlC:
		c.mode = modeList
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(in.text) > 0 {
			in.text = in.text[:len(in.text)-1]
		}
	case tcell.KeyRune:
		in.text = append(in.text, ev.Rune())
	}
}

func (c *cfdisk) pickerKey(ev *tcell.EventKey) {
	p := &c.picker
	switch ev.Key() {
	case tcell.KeyUp:
		p.sel = max(p.sel-1, 0)
	case tcell.KeyDown:
		p.sel = min(p.sel+1, len(p.types)-1)
	case tcell.KeyEnter:
		c.mode = modeList
		p.done(p.types[p.sel])
	case tcell.KeyEscape, tcell.KeyCtrlC:
		c.mode = modeList
	}
}

func (c *cfdisk) fail(err error) {
	c.status = err.Error()
}

func (c *cfdisk) add() {
	row, ok := c.selected()
	if !ok || row.free == nil {
		c.status = "Select free space to create a partition."
		return
	}
	t := c.s.table
	r := *row.free
	start := t.SuggestStart(r)
	if start > r.End {
		c.status = "Free space is too small."
		return
	}
	avail := r.End - start + 1
	c.ask("Partition size", fmt.Sprint(avail), func(ans string) {
		size, err := parseSize(ans, t.Geometry().SectorSize())
		if err != nil {
			c.fail(err)
			return
		}
		if size == 0 || size > avail {
			c.status = fmt.Sprintf("Value out of range (1-%d sectors).", avail)
			return
		}
		if r.Logical {
			c.create(dos.Logical, dos.TypeLinux, start, size)
			return
		}
		c.ask("Partition type: (p)rimary, (e)xtended or (l)ogical", "p", func(ans string) {
			switch ans {
			case "p":
				c.create(dos.Primary, dos.TypeLinux, start, size)
			case "e":
				c.create(dos.Primary, dos.TypeExtended, start, size)
			case "l":
				c.create(dos.Logical, dos.TypeLinux, start, size)
			default:
				c.status = fmt.Sprintf("Invalid partition type %q.", ans)
			}
		})
	})
}

func (c *cfdisk) create(kind dos.Kind, typ dos.Type, start, size uint64) {
	id, err := c.s.table.Add(kind, typ, start, size)
	if err != nil {
		c.fail(err)
		return
	}
	c.refresh()
	c.selectSlot(id)
	g := c.s.table.Geometry()
	c.status = fmt.Sprintf("Created a new partition %d of type '%s' and of size %s.",
		id.Number(), typ.Name(), formatShort(g.Bytes(size)))
	if !typ.IsExtended() {
		var buf bytes.Buffer
		c.s.warnSignature(&buf, id)
		if buf.Len() > 0 {
			c.status = strings.TrimSpace(buf.String())
		}
	}
}

func (c *cfdisk) selectSlot(id dos.SlotID) {
	for i, r := range c.rows {
		if r.part != nil && r.part.ID == id {
			c.sel = i
			return
		}
	}
}

func (c *cfdisk) delete() {
	row, ok := c.selected()
	if !ok || row.part == nil {
		return
	}
	if err := c.s.table.Delete(row.part.ID); err != nil {
		c.fail(err)
		return
	}
	c.status = fmt.Sprintf("Partition %d has been deleted.", row.part.ID.Number())
	c.refresh()
}

func (c *cfdisk) toggleBoot() {
	row, ok := c.selected()
	if !ok || row.part == nil {
		return
	}
	if _, err := c.s.table.ToggleBoot(row.part.ID); err != nil {
		c.fail(err)
	}
	c.refresh()
}

func (c *cfdisk) changeType() {
	row, ok := c.selected()
	if !ok || row.part == nil {
		return
	}
	id, old := row.part.ID, row.part.Type
	types := dos.KnownTypes()
	sel := sort.Search(len(types), func(i int) bool { return types[i] >= old })
	if sel == len(types) {
		sel = 0
	}
	c.mode = modePicker
	c.picker = cfdiskPicker{types: types, sel: sel, done: func(typ dos.Type) {
		if err := c.s.table.ChangeType(id, typ); err != nil {
			c.fail(err)
			return
		}
		c.status = fmt.Sprintf("Changed type of partition '%s' to '%s'.", old.Name(), typ.Name())
		c.refresh()
	}}
}

func (c *cfdisk) sort() {
	t := c.s.table
	sorted := t.SortPrimaries()
	fixed := t.FixOrder()
	if !sorted && !fixed {
		c.status = "Nothing to do. Ordering is correct already."
		return
	}
	c.status = "Partitions are now in disk order."
	c.refresh()
}

func (c *cfdisk) commit() {
	var buf bytes.Buffer
	err := c.s.commit(&buf, c.write)
	c.refresh()
	if err != nil {
		c.fail(err)
		return
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	c.status = lines[len(lines)-1]
}
