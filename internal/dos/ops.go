package dos

import (
	"sort"

	"github.com/sirupsen/logrus"
)

func overlaps(a0, a1, b0, b1 uint64) bool {
	return a0 <= b1 && b0 <= a1
}

func sub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// gap is the distance between a new EBR and the logical partition it
// describes.
func (t *Table) gap() uint64 {
	return t.geo.FirstLBA()
}

func (t *Table) checkRange(op string, start, size uint64) error {
	last := t.LastUsable()
	if size == 0 || start == 0 || start > last || size > last-start+1 {
		e := newError(op, ErrOutOfRange)
		e.Start = start
		if size != 0 {
			e.End = start + size - 1
		}
		e.Lo, e.Hi = 1, last
		return e
	}
	return nil
}

// conflictPrimary returns the used primary overlapping [start, last],
// ignoring slot skip.
func (t *Table) conflictPrimary(start, last uint64, skip int) (SlotID, bool) {
	for i, p := range t.primary {
		if i == skip || !p.IsUsed() {
			continue
		}
		if overlaps(start, last, p.Start, p.Last()) {
			return SlotID(i), true
		}
	}
	return NoSlot, false
}

// conflictLogical returns the logical partition whose EBR or data collides
// with an EBR at ebr (0 for none) and data in [start, last].
func (t *Table) conflictLogical(ebr, start, last uint64, skip LinkID) (SlotID, bool) {
	for i, id := range t.chain.Order() {
		if id == skip {
			continue
		}
		l := t.chain.links[id]
		hit := overlaps(start, last, l.Data.Start, l.Data.Last()) ||
			(l.EBR >= start && l.EBR <= last)
		if ebr != 0 {
			hit = hit || ebr == l.EBR || (ebr >= l.Data.Start && ebr <= l.Data.Last())
		}
		if hit {
			return SlotID(entryCount + i), true
		}
	}
	return NoSlot, false
}

func (t *Table) overlapError(op string, with SlotID, start, last uint64) error {
	e := newError(op, ErrOverlap)
	e.Slot = with
	e.Start, e.End = start, last
	if r, ok := t.RegionAt(start); ok {
		e.Lo, e.Hi = r.Start, r.End
	}
	return e
}

func (t *Table) freePrimary() int {
	for i, p := range t.primary {
		if !p.IsUsed() {
			return i
		}
	}
	return -1
}

// Add creates a partition of the given type covering size sectors from
// start. A primary request with an extended type creates the extended
// partition. A logical request without an extended partition creates one
// around the free region holding start. The table is unchanged on error.
func (t *Table) Add(kind Kind, typ Type, start, size uint64) (SlotID, error) {
	const op = "add partition"
	if typ == TypeEmpty {
		return NoSlot, newError(op, ErrIllegalTypeTransition)
	}
	if err := t.checkRange(op, start, size); err != nil {
		return NoSlot, err
	}

	var id SlotID
	err := t.mutate(func(c *Table) (err error) {
		if kind == Logical {
			id, err = c.addLogical(op, typ, start, size)
		} else {
			id, err = c.addPrimary(op, typ, start, size)
		}
		return err
	})
	if err != nil {
		return NoSlot, err
	}
	t.log.WithFields(logrus.Fields{
		"partition": id.Number(),
		"start":     start,
		"size":      size,
		"type":      typ.String(),
	}).Debug("added partition")
	return id, nil
}

func (t *Table) addPrimary(op string, typ Type, start, size uint64) (SlotID, error) {
	last := start + size - 1
	if typ.IsExtended() && t.ext >= 0 {
		e := newError(op, ErrSecondExtended)
		e.Slot = SlotID(t.ext)
		return NoSlot, e
	}
	i := t.freePrimary()
	if i < 0 {
		return NoSlot, newError(op, ErrTooManyPartitions)
	}
	if s, ok := t.conflictPrimary(start, last, -1); ok {
		return NoSlot, t.overlapError(op, s, start, last)
	}
	if s, ok := t.conflictLogical(0, start, last, NoLink); ok {
		return NoSlot, t.overlapError(op, s, start, last)
	}

	t.set(Slot{ID: SlotID(i)}, Partition{Start: start, Size: size, Type: typ})
	if typ.IsExtended() {
		t.ext = i
		t.chain = newChain()
	}
	return SlotID(i), nil
}

func (t *Table) addLogical(op string, typ Type, start, size uint64) (SlotID, error) {
	if typ.IsExtended() {
		e := newError(op, ErrSecondExtended)
		e.Slot = SlotID(t.ext)
		return NoSlot, e
	}
	if t.chain.Len() >= maxLogical {
		return NoSlot, newError(op, ErrTooManyPartitions)
	}
	if t.ext < 0 {
		if err := t.createExtended(op, start, start+size-1); err != nil {
			return NoSlot, err
		}
	}
	id := t.chain.append(Link{})
	if err := t.place(op, id, Partition{Start: start, Size: size, Type: typ}); err != nil {
		return NoSlot, err
	}
	return SlotID(entryCount + t.chain.index(id)), nil
}

// floor returns the first sector above every data primary that ends
// before lba.
func (t *Table) floor(lba uint64) uint64 {
	f := uint64(1)
	for i, p := range t.primary {
		if i == t.ext || !p.IsUsed() {
			continue
		}
		if p.Last() < lba && p.Last()+1 > f {
			f = p.Last() + 1
		}
	}
	return f
}

// createExtended adds an extended partition spanning the free region
// around [start, last].
func (t *Table) createExtended(op string, start, last uint64) error {
	i := t.freePrimary()
	if i < 0 {
		return newError(op, ErrTooManyPartitions)
	}
	if s, ok := t.conflictPrimary(start, last, -1); ok {
		return t.overlapError(op, s, start, last)
	}

	lo := t.floor(start)
	hi := t.LastUsable()
	for _, p := range t.primary {
		if p.IsUsed() && p.Start > last && p.Start-1 < hi {
			hi = p.Start - 1
		}
	}
	extStart := max(sub(start, t.gap()), lo)
	if extStart >= start {
		e := newError(op, ErrOutOfRange)
		e.Start, e.End = start, last
		e.Lo, e.Hi = extStart+1, hi
		return e
	}

	t.set(Slot{ID: SlotID(i)}, Partition{Start: extStart, Size: hi - extStart + 1, Type: TypeExtended})
	t.ext = i
	t.chain = newChain()
	t.log.WithFields(logrus.Fields{"start": extStart, "end": hi}).Info("created extended partition")
	return nil
}

// ebrFloor returns the first sector above every EBR and logical partition
// that lies before lba, ignoring link skip.
func (t *Table) ebrFloor(lba, lo uint64, skip LinkID) uint64 {
	f := lo
	for _, id := range t.chain.Order() {
		if id == skip {
			continue
		}
		l := t.chain.links[id]
		if l.EBR < lba && l.EBR+1 > f {
			f = l.EBR + 1
		}
		if l.Data.Last() < lba && l.Data.Last()+1 > f {
			f = l.Data.Last() + 1
		}
	}
	return f
}

// place positions link id so that it describes p, choosing its EBR sector
// and growing the extended partition when p lies outside it.
func (t *Table) place(op string, id LinkID, p Partition) error {
	start, last := p.Start, p.Last()
	ext := t.primary[t.ext]
	head := t.chain.head == id

	if s, ok := t.conflictPrimary(start, last, t.ext); ok {
		return t.overlapError(op, s, start, last)
	}

	newStart, newLast := ext.Start, max(ext.Last(), last)
	var ebr uint64
	switch {
	case start > ext.Start && head:
		ebr = ext.Start
	case start > ext.Start:
		ebr = max(sub(start, t.gap()), t.ebrFloor(start, ext.Start+1, id))
	case head:
		ebr = max(sub(start, t.gap()), t.floor(start))
		newStart = ebr
	default:
		ebr = max(sub(start, t.gap()), t.floor(start)+1)
		newStart = ebr - 1
	}
	if ebr >= start {
		e := newError(op, ErrOutOfRange)
		e.Start, e.End = start, last
		e.Lo, e.Hi = ebr+1, t.LastUsable()
		return e
	}

	if newStart != ext.Start || newLast != ext.Last() {
		if s, ok := t.conflictPrimary(newStart, newLast, t.ext); ok {
			e := newError(op, ErrWouldCreateSecondExtended)
			e.Slot = s
			e.Start, e.End = start, last
			e.Lo, e.Hi = ext.Start, ext.Last()
			return e
		}
	}
	if s, ok := t.conflictLogical(ebr, start, last, id); ok {
		return t.overlapError(op, s, start, last)
	}

	if newStart != ext.Start || newLast != ext.Last() {
		t.log.WithFields(logrus.Fields{
			"start": newStart,
			"end":   newLast,
		}).Info("growing extended partition")
		ext.Start, ext.Size = newStart, newLast-newStart+1
		t.set(Slot{ID: SlotID(t.ext)}, ext)
		t.chain.links[t.chain.head].EBR = newStart
	}
	t.chain.links[id].EBR = ebr
	t.set(Slot{ID: SlotID(entryCount + t.chain.index(id)), Link: id}, p)
	return nil
}

// Delete removes a partition. Deleting the extended partition removes all
// logical partitions with it. Later logical partitions are renumbered.
func (t *Table) Delete(id SlotID) error {
	s, err := t.Slot(id)
	if err != nil {
		return err
	}
	switch {
	case id.IsLogical():
		t.chain.remove(s.Link)
		if h := t.chain.head; h != NoLink {
			t.chain.links[h].EBR = t.primary[t.ext].Start
		}
	case int(id) == t.ext:
		t.primary[id] = Partition{}
		t.ext = -1
		t.chain = newChain()
	default:
		t.primary[id] = Partition{}
	}
	t.log.WithField("partition", id.Number()).Debug("deleted partition")
	return nil
}

// Resize moves partition id to cover size sectors from start. It is
// checked like Add, the partition itself excluded.
func (t *Table) Resize(id SlotID, start, size uint64) error {
	const op = "resize partition"
	s, err := t.Slot(id)
	if err != nil {
		return err
	}
	if err := t.checkRange(op, start, size); err != nil {
		return err
	}
	p := s.Partition
	p.Start, p.Size = start, size

	return t.mutate(func(c *Table) error {
		switch {
		case id.IsLogical():
			return c.place(op, s.Link, p)
		case int(id) == c.ext:
			return c.resizeExtended(op, p)
		}
		if o, ok := c.conflictPrimary(start, p.Last(), int(id)); ok {
			return c.overlapError(op, o, start, p.Last())
		}
		if o, ok := c.conflictLogical(0, start, p.Last(), NoLink); ok {
			return c.overlapError(op, o, start, p.Last())
		}
		c.set(s, p)
		return nil
	})
}

func (t *Table) resizeExtended(op string, p Partition) error {
	if o, ok := t.conflictPrimary(p.Start, p.Last(), t.ext); ok {
		return t.overlapError(op, o, p.Start, p.Last())
	}
	for i, id := range t.chain.Order() {
		l := t.chain.links[id]
		below := p.Start >= l.Data.Start || (id != t.chain.head && p.Start >= l.EBR)
		if below || l.Data.Last() > p.Last() || l.EBR > p.Last() {
			e := newError(op, ErrOutOfRange)
			e.Slot = SlotID(entryCount + i)
			e.Start, e.End = p.Start, p.Last()
			return e
		}
	}
	t.set(Slot{ID: SlotID(t.ext)}, p)
	if h := t.chain.head; h != NoLink {
		t.chain.links[h].EBR = p.Start
	}
	return nil
}

// ChangeType sets the type byte of a partition. A partition cannot become
// or stop being extended, and type 0 is reserved for unused entries.
func (t *Table) ChangeType(id SlotID, typ Type) error {
	s, err := t.Slot(id)
	if err != nil {
		return err
	}
	if typ == TypeEmpty || typ.IsExtended() != s.Type.IsExtended() {
		e := newError("change type", ErrIllegalTypeTransition)
		e.Slot = id
		return e
	}
	p := s.Partition
	p.Type = typ
	t.store(s, p)
	return nil
}

// ToggleBoot flips the bootable flag and returns the new state.
func (t *Table) ToggleBoot(id SlotID) (bool, error) {
	s, err := t.Slot(id)
	if err != nil {
		return false, err
	}
	p := s.Partition
	p.Boot = !p.Boot
	p.badFlag = false
	t.store(s, p)
	return p.Boot, nil
}

// SortPrimaries orders the primary entries by start sector, unused entries
// last. Reports whether anything moved.
func (t *Table) SortPrimaries() bool {
	sorted := t.primary
	sort.SliceStable(sorted[:], func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.IsUsed() != b.IsUsed() {
			return a.IsUsed()
		}
		return a.IsUsed() && a.Start < b.Start
	})
	if sorted == t.primary {
		return false
	}
	if t.ext >= 0 {
		ext := t.primary[t.ext]
		for i, p := range sorted {
			if p == ext {
				t.ext = i
				break
			}
		}
	}
	t.primary = sorted
	return true
}

// FixOrder puts the logical partitions into disk order.
func (t *Table) FixOrder() bool {
	return t.chain.FixOrder()
}
