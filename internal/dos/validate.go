package dos

import (
	"fmt"
	"sort"

	"doslabel/internal/geom"
)

// Severity grades a Finding.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is a problem Check found in a table. Errors block a write unless
// forced, warnings are advisory.
type Finding struct {
	Severity Severity
	Slot     SlotID
	Msg      string
}

func (f Finding) String() string {
	return f.Severity.String() + ": " + f.Msg
}

// HasErrors reports whether any finding is an error.
func HasErrors(fs []Finding) bool {
	for _, f := range fs {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

type findings []Finding

func (fs *findings) warnf(slot SlotID, format string, args ...any) {
	*fs = append(*fs, Finding{Severity: SeverityWarning, Slot: slot, Msg: fmt.Sprintf(format, args...)})
}

func (fs *findings) errorf(slot SlotID, format string, args ...any) {
	*fs = append(*fs, Finding{Severity: SeverityError, Slot: slot, Msg: fmt.Sprintf(format, args...)})
}

// Check inspects the table for overlaps, bounds violations and CHS or
// ordering inconsistencies. It does not modify t.
func Check(t *Table) []Finding {
	var fs findings
	g := t.geo
	parts := t.Partitions()

	for _, s := range parts {
		checkBounds(&fs, g, s)
		checkCHS(&fs, g, s)
		if s.badFlag {
			fs.warnf(s.ID, "partition %d: invalid boot flag, it will be cleared", s.ID.Number())
		}
	}
	for i, p := range t.primary {
		if i != t.ext && p.IsUsed() && p.Type.IsExtended() {
			fs.errorf(SlotID(i), "partition %d: only one extended partition is allowed", i+1)
		}
	}
	checkBoot(&fs, t)
	checkOverlap(&fs, t)
	checkOrder(&fs, t, parts)

	var total uint64
	for _, s := range parts {
		if !s.Type.IsExtended() {
			total += s.Size
		}
	}
	if g.TotalSectors != 0 && total > g.TotalSectors {
		fs.errorf(NoSlot, "total allocated sectors %d greater than the maximum %d", total, g.TotalSectors)
	}
	return fs
}

func checkBounds(fs *findings, g geom.Geometry, s Slot) {
	n := s.ID.Number()
	if g.TotalSectors != 0 && s.Last() > g.LastLBA() {
		fs.errorf(s.ID, "partition %d: last sector %d is beyond the end of the disk (%d)", n, s.Last(), g.LastLBA())
	} else if s.Last() > maxLBA {
		fs.errorf(s.ID, "partition %d: last sector %d cannot be addressed by a DOS label", n, s.Last())
	}
	// aligned layouts never fall on cylinders, only DOS-compatible tables are held to them
	if !g.DOSCompat || g.CylinderSize() == 0 {
		return
	}
	cs := g.CylinderSize()
	if r := s.Start % cs; r != 0 && r != uint64(g.Sectors) {
		fs.warnf(s.ID, "partition %d: does not start on cylinder boundary", n)
	}
	if (s.Last()+1)%cs != 0 {
		fs.warnf(s.ID, "partition %d: does not end on cylinder boundary", n)
	}
}

func checkCHS(fs *findings, g geom.Geometry, s Slot) {
	if g.CylinderSize() == 0 {
		return
	}
	n := s.ID.Number()
	if want, exact := g.EncodeCHS(s.Start); exact && want != s.BeginCHS {
		fs.warnf(s.ID, "partition %d: different physical/logical beginnings (non-Linux?): phys=%s, logical=%s",
			n, s.BeginCHS.Unpack(), want.Unpack())
	}
	if want, exact := g.EncodeCHS(s.Last()); exact && want != s.EndCHS {
		fs.warnf(s.ID, "partition %d: different physical/logical endings: phys=%s, logical=%s",
			n, s.EndCHS.Unpack(), want.Unpack())
	}
}

func checkBoot(fs *findings, t *Table) {
	var boot, data int
	for i, p := range t.primary {
		if !p.IsUsed() || i == t.ext {
			continue
		}
		data++
		if p.Boot {
			boot++
		}
	}
	switch {
	case boot > 1:
		fs.warnf(NoSlot, "%d primary partitions are marked bootable", boot)
	case boot == 0 && data > 0:
		fs.warnf(NoSlot, "no primary partition is marked bootable")
	}
}

type extent struct {
	span
	slot SlotID
	what string
}

func checkOverlap(fs *findings, t *Table) {
	var ext *Partition
	if t.ext >= 0 {
		ext = &t.primary[t.ext]
	}

	var exts []extent
	for i, p := range t.primary {
		if i == t.ext || !p.IsUsed() {
			continue
		}
		exts = append(exts, extent{span{p.Start, p.Last()}, SlotID(i), "partition"})
		if ext != nil && overlaps(p.Start, p.Last(), ext.Start, ext.Last()) {
			fs.errorf(SlotID(i), "partition %d: overlaps the extended partition %d", i+1, t.ext+1)
		}
	}
	for i, id := range t.chain.Order() {
		l := t.chain.links[id]
		slot := SlotID(entryCount + i)
		exts = append(exts,
			extent{span{l.EBR, l.EBR}, slot, "EBR of partition"},
			extent{span{l.Data.Start, l.Data.Last()}, slot, "partition"})
		if l.Data.Start <= l.EBR {
			fs.errorf(slot, "logical partition %d: starts at %d, not after its EBR at %d", slot.Number(), l.Data.Start, l.EBR)
		}
		if ext != nil && (l.EBR < ext.Start || l.Data.Start < ext.Start || l.Data.Last() > ext.Last() || l.EBR > ext.Last()) {
			fs.errorf(slot, "logical partition %d: not entirely in the extended partition", slot.Number())
		}
	}

	for i := range exts {
		for j := i + 1; j < len(exts); j++ {
			a, b := exts[i], exts[j]
			if a.slot == b.slot || !overlaps(a.start, a.last, b.start, b.last) {
				continue
			}
			fs.errorf(a.slot, "%s %d overlaps %s %d", a.what, a.slot.Number(), b.what, b.slot.Number())
		}
	}
}

func checkOrder(fs *findings, t *Table, parts []Slot) {
	var prim []uint64
	for _, s := range parts {
		if !s.ID.IsLogical() {
			prim = append(prim, s.Start)
		}
	}
	if !sort.SliceIsSorted(prim, func(i, j int) bool { return prim[i] < prim[j] }) {
		fs.warnf(NoSlot, "partition table entries are not in disk order")
	}

	links := t.chain.Links()
	for i := 1; i < len(links); i++ {
		if links[i].Data.Start < links[i-1].Data.Start || links[i].EBR < links[i-1].EBR {
			fs.warnf(NoSlot, "logical partitions are not in disk order")
			break
		}
	}
}
