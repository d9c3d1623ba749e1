package dos

import (
	"encoding/binary"
	"strconv"

	"github.com/sirupsen/logrus"

	"doslabel/internal/geom"
)

// MaxPartitions bounds the number of partitions on a disk, the four
// primary slots included.
const MaxPartitions = 60

const maxLogical = MaxPartitions - entryCount

// maxLBA is the largest sector a 32 bit entry can address.
const maxLBA = 1<<32 - 1

// SlotID numbers partitions from 0. Slots 0-3 are the primary entries,
// logical partitions follow in chain order from 4.
type SlotID int

const NoSlot SlotID = -1

// Number returns the user facing partition number (1 based).
func (id SlotID) Number() int { return int(id) + 1 }

func (id SlotID) IsLogical() bool { return id >= entryCount }

func (id SlotID) String() string { return strconv.Itoa(id.Number()) }

// SlotFromNumber converts a 1 based partition number.
func SlotFromNumber(n int) SlotID { return SlotID(n - 1) }

// Kind selects where Add places a partition.
type Kind int

const (
	Primary Kind = iota
	Logical
)

func (k Kind) String() string {
	if k == Logical {
		return "logical"
	}
	return "primary"
}

// Partition is an entry in absolute sector coordinates.
type Partition struct {
	Start uint64
	Size  uint64
	Type  Type
	Boot  bool

	// BeginCHS and EndCHS are the packed addresses as stored on disk, or
	// as computed when the entry was last changed.
	BeginCHS geom.PackedCHS
	EndCHS   geom.PackedCHS

	badFlag bool
}

// Last returns the last sector of the partition.
func (p Partition) Last() uint64 {
	if p.Size == 0 {
		return p.Start
	}
	return p.Start + p.Size - 1
}

// IsUsed reports whether the entry describes a partition. A type 0 entry
// is a placeholder even when it has extents.
func (p Partition) IsUsed() bool {
	return p.Size != 0 && p.Type != TypeEmpty
}

func (p Partition) isZero() bool {
	return p == Partition{}
}

// Slot is a partition together with where its entry is stored.
type Slot struct {
	Partition
	ID SlotID

	// Sector is the LBA of the MBR or EBR holding the entry, Offset the
	// byte offset of the entry within it.
	Sector uint64
	Offset int

	// Link is the chain link of a logical partition, NoLink otherwise.
	Link LinkID
}

// Options configure how a table is read.
type Options struct {
	Log      logrus.FieldLogger
	Geometry geom.Override
}

func (o Options) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// Table is the in-memory DOS partition table of one disk.
type Table struct {
	geo geom.Geometry
	log logrus.FieldLogger

	// mbr holds the boot code, the disk identifier and the reserved bytes
	// that precede the entries in sector 0.
	mbr     [entriesOffset]byte
	primary [entryCount]Partition
	ext     int
	chain   Chain
	fresh   bool
}

// New returns an empty table with a random disk identifier.
func New(g geom.Geometry, opts Options) *Table {
	t := &Table{geo: g, log: opts.logger(), ext: -1, chain: newChain(), fresh: true}
	t.SetDiskID(randomDiskID())
	return t
}

func (t *Table) clone() *Table {
	c := *t
	c.chain = t.chain.clone()
	return &c
}

// mutate runs fn on a copy of the table and keeps the result only when fn
// succeeds.
func (t *Table) mutate(fn func(c *Table) error) error {
	c := t.clone()
	if err := fn(c); err != nil {
		return err
	}
	*t = *c
	return nil
}

func (t *Table) Geometry() geom.Geometry { return t.geo }

// IsNew reports whether the table was created rather than read from disk.
func (t *Table) IsNew() bool { return t.fresh }

func (t *Table) DiskID() uint32 {
	return binary.LittleEndian.Uint32(t.mbr[diskIDOffset:])
}

func (t *Table) SetDiskID(id uint32) {
	binary.LittleEndian.PutUint32(t.mbr[diskIDOffset:], id)
}

// Reset discards every partition and the boot code, and picks a new disk
// identifier.
func (t *Table) Reset() {
	*t = *New(t.geo, Options{Log: t.log})
}

// Primary returns the raw primary entry i (0-3).
func (t *Table) Primary(i int) Partition {
	return t.primary[i]
}

// Extended returns the slot of the extended partition.
func (t *Table) Extended() (SlotID, bool) {
	return SlotID(t.ext), t.ext >= 0
}

// Chain returns the logical partition chain. It is empty without an
// extended partition.
func (t *Table) Chain() *Chain {
	return &t.chain
}

// Partitions lists the used primary entries followed by the logical
// partitions in chain order.
func (t *Table) Partitions() []Slot {
	var out []Slot
	for i, p := range t.primary {
		if !p.IsUsed() {
			continue
		}
		out = append(out, Slot{
			Partition: p,
			ID:        SlotID(i),
			Offset:    entryOffset(i),
			Link:      NoLink,
		})
	}
	for i, id := range t.chain.Order() {
		l := t.chain.links[id]
		out = append(out, Slot{
			Partition: l.Data,
			ID:        SlotID(entryCount + i),
			Sector:    l.EBR,
			Offset:    entryOffset(0),
			Link:      id,
		})
	}
	return out
}

// Slot returns a single used partition.
func (t *Table) Slot(id SlotID) (Slot, error) {
	if id >= 0 && !id.IsLogical() && t.primary[id].IsUsed() {
		return Slot{Partition: t.primary[id], ID: id, Offset: entryOffset(int(id)), Link: NoLink}, nil
	}
	if id.IsLogical() {
		order := t.chain.Order()
		if n := int(id) - entryCount; n < len(order) {
			l := t.chain.links[order[n]]
			return Slot{Partition: l.Data, ID: id, Sector: l.EBR, Offset: entryOffset(0), Link: order[n]}, nil
		}
	}
	e := newError("lookup", ErrNoSuchPartition)
	e.Slot = id
	return Slot{}, e
}

// set stores p in the slot, recomputing its CHS addresses.
func (t *Table) set(s Slot, p Partition) {
	p.BeginCHS, _ = t.geo.EncodeCHS(p.Start)
	p.EndCHS, _ = t.geo.EncodeCHS(p.Last())
	t.store(s, p)
}

func (t *Table) store(s Slot, p Partition) {
	if s.ID.IsLogical() {
		t.chain.links[s.Link].Data = p
		return
	}
	t.primary[s.ID] = p
}

// SetGeometry changes the CHS geometry and re-encodes every CHS address.
func (t *Table) SetGeometry(heads, sectors, cylinders uint32) {
	if heads != 0 {
		t.geo.Heads = heads
	}
	if sectors != 0 {
		t.geo.Sectors = sectors
	}
	if cylinders != 0 {
		t.geo.Cylinders = cylinders
	} else if cs := t.geo.CylinderSize(); cs != 0 {
		t.geo.Cylinders = uint32(min(t.geo.TotalSectors/cs, 1<<32-1))
	}
	for _, s := range t.Partitions() {
		t.set(s, s.Partition)
	}
}

// LastUsable returns the last sector a partition may cover.
func (t *Table) LastUsable() uint64 {
	return min(t.geo.LastLBA(), maxLBA)
}
