package dos

import (
	"github.com/sirupsen/logrus"

	"doslabel/internal/geom"
)

// ToSectors renders the table into the MBR and one EBR per logical
// partition, keyed by LBA. An extended partition without logical
// partitions gets a single empty EBR.
func (t *Table) ToSectors() map[uint64][]byte {
	size := max(t.geo.SectorSize(), minSectorSize)
	out := make(map[uint64][]byte)

	mbr := make([]byte, size)
	copy(mbr, t.mbr[:])
	for i, p := range t.primary {
		entryFor(p, 0).encode(mbr[entryOffset(i):])
	}
	setSignature(mbr)
	out[0] = mbr

	if t.ext < 0 {
		return out
	}
	ext := t.primary[t.ext]
	links := t.chain.Links()
	if len(links) == 0 {
		b := make([]byte, size)
		setSignature(b)
		out[ext.Start] = b
		return out
	}
	for i, l := range links {
		b := make([]byte, size)
		entryFor(l.Data, l.EBR).encode(b[entryOffset(0):])
		if i+1 < len(links) {
			next := links[i+1]
			ptr := Partition{Start: next.EBR, Size: next.Last() - next.EBR + 1, Type: l.PointerType}
			ptr.BeginCHS, _ = t.geo.EncodeCHS(ptr.Start)
			ptr.EndCHS, _ = t.geo.EncodeCHS(ptr.Last())
			entryFor(ptr, ext.Start).encode(b[entryOffset(1):])
		}
		setSignature(b)
		out[l.EBR] = b
	}
	return out
}

type sectorMap struct {
	sectors map[uint64][]byte
	size    uint64
}

// ReadSector returns zeros for sectors that are not in the map.
func (m sectorMap) ReadSector(lba uint64) ([]byte, error) {
	b := make([]byte, m.size)
	copy(b, m.sectors[lba])
	return b, nil
}

// FromSectors parses a table from sectors produced by ToSectors.
func FromSectors(sectors map[uint64][]byte, g geom.Geometry, opts Options) (*Table, error) {
	r := sectorMap{sectors: sectors, size: max(g.SectorSize(), minSectorSize)}
	return load(r, g, opts.logger())
}

func load(r SectorReader, g geom.Geometry, log logrus.FieldLogger) (*Table, error) {
	mbr, err := r.ReadSector(0)
	if err != nil {
		return nil, &IOError{Op: "read", LBA: 0, Err: err}
	}
	if !hasSignature(mbr) {
		return nil, ErrNoTable
	}

	t := &Table{geo: g, log: log, ext: -1, chain: newChain()}
	copy(t.mbr[:], mbr)
	for i := range t.primary {
		p := decodeEntry(mbr[entryOffset(i):]).partition(0)
		t.primary[i] = p
		if !p.IsUsed() || !p.Type.IsExtended() {
			continue
		}
		if t.ext >= 0 {
			log.WithField("partition", i+1).Warn("ignoring extra extended partition")
			continue
		}
		t.ext = i
	}

	if t.ext >= 0 {
		ext := t.primary[t.ext]
		c, err := ReadChain(r, ext.Start, ext.Size, log)
		if err != nil {
			return nil, err
		}
		t.chain = *c
	}
	return t, nil
}

// ends collects the end addresses of the used primary entries of mbr.
func ends(mbr []byte) []geom.End {
	var out []geom.End
	for i := 0; i < entryCount; i++ {
		p := decodeEntry(mbr[entryOffset(i):]).partition(0)
		if p.IsUsed() {
			out = append(out, geom.End{CHS: p.EndCHS, LBA: p.Last()})
		}
	}
	return out
}
