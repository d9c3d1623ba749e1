package dos

import (
	"github.com/sirupsen/logrus"
)

// LinkID addresses a link in a Chain's arena. IDs are only stable until
// the next Delete.
type LinkID int

const NoLink LinkID = -1

// Link is one extended boot record: the sector it lives in, the logical
// partition it describes and the link that follows it.
type Link struct {
	EBR  uint64
	Data Partition
	Next LinkID

	// PointerType is the type written into the entry that points at the
	// following link. Usually 0x05.
	PointerType Type
}

// Last returns the last sector covered by the link, its data included.
func (l Link) Last() uint64 {
	return l.Data.Last()
}

// Chain holds the logical partitions of an extended partition as an arena
// of links. The head link's EBR is always the first sector of the
// extended partition.
type Chain struct {
	links []Link
	head  LinkID
}

func newChain() Chain {
	return Chain{head: NoLink}
}

// Len returns the number of links.
func (c *Chain) Len() int {
	return len(c.links)
}

// Order returns the link IDs from head to tail.
func (c *Chain) Order() []LinkID {
	ids := make([]LinkID, 0, len(c.links))
	for id := c.head; id != NoLink && len(ids) < len(c.links); id = c.links[id].Next {
		ids = append(ids, id)
	}
	return ids
}

// Links returns a copy of the links in chain order.
func (c *Chain) Links() []Link {
	order := c.Order()
	out := make([]Link, len(order))
	for i, id := range order {
		out[i] = c.links[id]
	}
	return out
}

// Link returns the link with the given ID.
func (c *Chain) Link(id LinkID) Link {
	return c.links[id]
}

func (c *Chain) tail() LinkID {
	order := c.Order()
	if len(order) == 0 {
		return NoLink
	}
	return order[len(order)-1]
}

func (c *Chain) append(l Link) LinkID {
	l.Next = NoLink
	if l.PointerType == TypeEmpty {
		l.PointerType = TypeExtended
	}
	id := LinkID(len(c.links))
	tail := c.tail()
	c.links = append(c.links, l)
	if tail == NoLink {
		c.head = id
	} else {
		c.links[tail].Next = id
	}
	return id
}

// remove unlinks id and compacts the arena so IDs follow chain order again.
func (c *Chain) remove(id LinkID) {
	if c.head == id {
		c.head = c.links[id].Next
	} else {
		for _, prev := range c.Order() {
			if c.links[prev].Next == id {
				c.links[prev].Next = c.links[id].Next
				break
			}
		}
	}
	c.compact(id)
}

func (c *Chain) compact(drop LinkID) {
	order := c.Order()
	links := make([]Link, 0, len(order))
	for _, id := range order {
		if id == drop {
			continue
		}
		links = append(links, c.links[id])
	}
	for i := range links {
		links[i].Next = LinkID(i + 1)
	}
	c.head = NoLink
	if len(links) > 0 {
		links[len(links)-1].Next = NoLink
		c.head = 0
	}
	c.links = links
}

func (c *Chain) clone() Chain {
	return Chain{links: append([]Link(nil), c.links...), head: c.head}
}

// index returns the position of id in chain order, -1 if absent.
func (c *Chain) index(id LinkID) int {
	for i, l := range c.Order() {
		if l == id {
			return i
		}
	}
	return -1
}

// FixOrder sorts the chain into disk order in two passes. The first sorts
// the EBR sectors of every link but the head. The second swaps the logical
// partitions between links until their starts ascend. Each pass repeats
// until nothing moves. Reports whether anything changed.
func (c *Chain) FixOrder() bool {
	order := c.Order()
	changed := false

	for swapped := true; swapped; {
		swapped = false
		for j := 1; j+1 < len(order); j++ {
			a, b := &c.links[order[j]], &c.links[order[j+1]]
			if a.EBR > b.EBR {
				a.EBR, b.EBR = b.EBR, a.EBR
				swapped, changed = true, true
			}
		}
	}

	for swapped := true; swapped; {
		swapped = false
		for j := 0; j+1 < len(order); j++ {
			a, b := &c.links[order[j]], &c.links[order[j+1]]
			if a.Data.Start > b.Data.Start {
				a.Data, b.Data = b.Data, a.Data
				swapped, changed = true, true
			}
		}
	}
	return changed
}

// SectorReader reads one logical sector.
type SectorReader interface {
	ReadSector(lba uint64) ([]byte, error)
}

// ReadChain walks the EBR chain of the extended partition at start. Link
// pointers are relative to start. Links without a logical partition are
// dropped.
func ReadChain(r SectorReader, start, size uint64, log logrus.FieldLogger) (*Chain, error) {
	c := newChain()
	last := start + size - 1
	visited := make(map[uint64]bool)

	for ebr := start; ; {
		if visited[ebr] {
			e := newError("read extended chain", ErrCycleDetected)
			e.Start = ebr
			return nil, e
		}
		if ebr < start || ebr > last || size == 0 {
			e := newError("read extended chain", ErrOutOfRange)
			e.Start, e.Lo, e.Hi = ebr, start, last
			return nil, e
		}
		if len(c.links) >= maxLogical {
			return nil, newError("read extended chain", ErrTooManyPartitions)
		}
		visited[ebr] = true

		buf, err := r.ReadSector(ebr)
		if err != nil {
			return nil, &IOError{Op: "read", LBA: ebr, Err: err}
		}
		l := log.WithField("lba", ebr)
		if !hasSignature(buf) {
			l.Warn("extended boot record has no signature, chain ends here")
			break
		}
		l.Debug("reading extended boot record")

		link := Link{EBR: ebr, PointerType: TypeExtended}
		var next *entry
		for i := 0; i < entryCount; i++ {
			e := decodeEntry(buf[entryOffset(i):])
			if e.Size == 0 {
				continue
			}
			switch {
			case e.Type.IsExtended():
				if next != nil {
					l.WithField("entry", i).Warn("ignoring extra link pointer")
					continue
				}
				next = &e
			case e.Type != TypeEmpty:
				if link.Data.IsUsed() {
					l.WithField("entry", i).Warn("ignoring extra data partition")
					continue
				}
				link.Data = e.partition(ebr)
			}
		}
		if next != nil {
			link.PointerType = next.Type
		}
		c.append(link)

		if next == nil {
			break
		}
		ebr = start + uint64(next.Start)
	}

	c.prune(start, log)
	return &c, nil
}

// prune drops links that carry no logical partition. When the head goes,
// its successor moves into the EBR at the start of the extended partition.
func (c *Chain) prune(start uint64, log logrus.FieldLogger) {
	order := c.Order()
	for i := len(order) - 1; i >= 0; i-- {
		l := c.links[order[i]]
		if l.Data.IsUsed() {
			continue
		}
		if i != len(order)-1 {
			log.WithFields(logrus.Fields{"lba": l.EBR, "link": i}).Debug("omitting empty extended boot record")
		}
		c.remove(order[i])
		order = c.Order()
	}
	if c.head != NoLink {
		c.links[c.head].EBR = start
	}
}
