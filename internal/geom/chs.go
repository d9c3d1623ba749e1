package geom

import "fmt"

// CHS is an unpacked cylinder/head/sector address. Sector numbers start at 1.
type CHS struct {
	Cylinder uint32
	Head     uint32
	Sector   uint32
}

func (c CHS) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Cylinder, c.Head, c.Sector)
}

// PackedCHS is the three byte form stored in a partition entry:
//
//	byte 0: head
//	byte 1: bits 0-5 sector, bits 6-7 cylinder bits 8-9
//	byte 2: cylinder bits 0-7
type PackedCHS [3]byte

// PackCHS packs c. Cylinders above 1023 are stored as 1023.
func PackCHS(c CHS) PackedCHS {
	cyl := c.Cylinder
	if cyl >= MaxCHSCylinders {
		cyl = MaxCHSCylinders - 1
	}
	return PackedCHS{
		byte(c.Head),
		byte(c.Sector&0x3f) | byte((cyl>>8)&0x03)<<6,
		byte(cyl),
	}
}

// Unpack returns the address held in p.
func (p PackedCHS) Unpack() CHS {
	return CHS{
		Cylinder: uint32(p[2]) | uint32(p[1]&0xc0)<<2,
		Head:     uint32(p[0]),
		Sector:   uint32(p[1] & 0x3f),
	}
}

// IsZero reports whether all three bytes are zero.
func (p PackedCHS) IsZero() bool {
	return p == PackedCHS{}
}

func (p PackedCHS) String() string {
	return p.Unpack().String()
}

// LBAToCHS converts lba with the geometry. The cylinder is not clamped.
func (g Geometry) LBAToCHS(lba uint64) CHS {
	if g.CylinderSize() == 0 {
		return CHS{}
	}
	spt := uint64(g.Sectors)
	cyl := lba / g.CylinderSize()
	if cyl > uint64(^uint32(0)) {
		cyl = uint64(^uint32(0))
	}
	return CHS{
		Cylinder: uint32(cyl),
		Head:     uint32((lba / spt) % uint64(g.Heads)),
		Sector:   uint32(lba%spt + 1),
	}
}

// CHSToLBA is the inverse of LBAToCHS.
func (g Geometry) CHSToLBA(c CHS) uint64 {
	if c.Sector == 0 {
		return 0
	}
	return (uint64(c.Cylinder)*uint64(g.Heads)+uint64(c.Head))*uint64(g.Sectors) + uint64(c.Sector) - 1
}

// EncodeCHS returns the packed address for lba. Addresses beyond cylinder
// 1023 saturate to the largest address of the geometry, as BIOS era tools
// expect. exact is false whenever the packed value does not decode back to lba.
func (g Geometry) EncodeCHS(lba uint64) (p PackedCHS, exact bool) {
	if g.CylinderSize() == 0 {
		return PackedCHS{}, false
	}
	c := g.LBAToCHS(lba)
	exact = c.Cylinder < MaxCHSCylinders && g.Heads <= MaxCHSHeads && g.Sectors <= MaxCHSSectors
	if c.Cylinder >= MaxCHSCylinders {
		c = g.LBAToCHS(g.CylinderSize()*MaxCHSCylinders - 1)
	}
	return PackCHS(c), exact
}
