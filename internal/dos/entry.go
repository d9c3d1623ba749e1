package dos

import (
	"encoding/binary"

	"doslabel/internal/geom"
)

// On-disk layout of MBR and EBR sectors.
const (
	minSectorSize   = 512
	diskIDOffset    = 0x1b8
	entriesOffset   = 0x1be
	entrySize       = 16
	entryCount      = 4
	signatureOffset = 510

	bootFlagActive = 0x80
)

// entry is one raw 16 byte partition entry. Start is relative to the sector
// the entry is interpreted against.
type entry struct {
	Flag  byte
	Begin geom.PackedCHS
	Type  Type
	End   geom.PackedCHS
	Start uint32
	Size  uint32
}

func entryOffset(n int) int {
	return entriesOffset + n*entrySize
}

func decodeEntry(b []byte) entry {
	var e entry
	e.Flag = b[0]
	copy(e.Begin[:], b[1:4])
	e.Type = Type(b[4])
	copy(e.End[:], b[5:8])
	e.Start = binary.LittleEndian.Uint32(b[8:12])
	e.Size = binary.LittleEndian.Uint32(b[12:16])
	return e
}

func (e entry) encode(b []byte) {
	b[0] = e.Flag
	copy(b[1:4], e.Begin[:])
	b[4] = byte(e.Type)
	copy(b[5:8], e.End[:])
	binary.LittleEndian.PutUint32(b[8:12], e.Start)
	binary.LittleEndian.PutUint32(b[12:16], e.Size)
}

func (e entry) isZero() bool {
	return e == entry{}
}

// partition converts the entry into absolute coordinates.
func (e entry) partition(base uint64) Partition {
	p := Partition{
		Start:    base + uint64(e.Start),
		Size:     uint64(e.Size),
		Type:     e.Type,
		Boot:     e.Flag == bootFlagActive,
		BeginCHS: e.Begin,
		EndCHS:   e.End,
	}
	if e.isZero() {
		p.Start = 0
	}
	p.badFlag = e.Flag != 0 && e.Flag != bootFlagActive
	return p
}

// entryFor builds the raw entry for p relative to base.
func entryFor(p Partition, base uint64) entry {
	if p.isZero() {
		return entry{}
	}
	e := entry{
		Type:  p.Type,
		Begin: p.BeginCHS,
		End:   p.EndCHS,
		Start: uint32(p.Start - base),
		Size:  uint32(p.Size),
	}
	if p.Boot {
		e.Flag = bootFlagActive
	}
	return e
}

func hasSignature(sector []byte) bool {
	return len(sector) >= minSectorSize && sector[signatureOffset] == 0x55 && sector[signatureOffset+1] == 0xaa
}

func setSignature(sector []byte) {
	sector[signatureOffset] = 0x55
	sector[signatureOffset+1] = 0xaa
}
