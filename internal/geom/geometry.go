// Package geom holds the disk geometry used by the DOS partition table code:
// how it is resolved from user input, the on-disk table and the device, how
// LBA addresses map to packed CHS triples, and where new partitions should
// start to line up with the physical sectors of the device.
package geom

import "fmt"

const (
	// DefaultHeads and DefaultSectors are used when neither the user, the
	// existing table nor the kernel provide a geometry.
	DefaultHeads   = 255
	DefaultSectors = 63

	// DefaultSectorSize is the logical sector size assumed when the device
	// does not report one.
	DefaultSectorSize = 512

	// MaxCHSCylinders is the number of cylinders a packed CHS triple can
	// address (10 bits).
	MaxCHSCylinders = 1024
	// MaxCHSSectors is the largest sector number a packed CHS triple can hold (6 bits).
	MaxCHSSectors = 63
	// MaxCHSHeads is the number of heads a packed CHS triple can address.
	MaxCHSHeads = 256
)

// Geometry is the effective geometry of a disk.
type Geometry struct {
	Heads     uint32
	Sectors   uint32 // sectors per track
	Cylinders uint32

	TotalSectors uint64 // in logical sectors

	LogicalSectorSize  uint32
	PhysicalSectorSize uint32
	MinIO              uint32 // bytes
	OptimalIO          uint32 // bytes
	AlignmentOffset    uint32 // bytes

	// DOSCompat places partitions on the legacy track boundary instead of
	// aligning them to the physical topology.
	DOSCompat bool
}

// Topology is what the device (or the kernel) reports about the disk.
// Zero values mean "unknown".
type Topology struct {
	Heads     uint32
	Sectors   uint32
	Cylinders uint32 // as reported by the kernel, possibly truncated to 16 bits

	TotalSectors uint64 // in units of LogicalSectorSize

	LogicalSectorSize  uint32
	PhysicalSectorSize uint32
	MinIO              uint32
	OptimalIO          uint32
	AlignmentOffset    uint32
}

// Override carries user supplied geometry values. Zero values are unset.
type Override struct {
	Heads      uint32
	Sectors    uint32
	Cylinders  uint32
	SectorSize uint32
	DOSCompat  bool
}

// Hint is the geometry recovered from an existing partition table.
type Hint struct {
	Heads   uint32
	Sectors uint32
}

// CylinderSize is the number of sectors in one cylinder.
func (g Geometry) CylinderSize() uint64 {
	return uint64(g.Heads) * uint64(g.Sectors)
}

// SectorSize returns the logical sector size, falling back to 512.
func (g Geometry) SectorSize() uint64 {
	if g.LogicalSectorSize == 0 {
		return DefaultSectorSize
	}
	return uint64(g.LogicalSectorSize)
}

// Bytes converts a sector count into bytes.
func (g Geometry) Bytes(sectors uint64) uint64 {
	return sectors * g.SectorSize()
}

// LastLBA is the last addressable sector of the disk.
func (g Geometry) LastLBA() uint64 {
	if g.TotalSectors == 0 {
		return 0
	}
	return g.TotalSectors - 1
}

func (g Geometry) String() string {
	return fmt.Sprintf("%d heads, %d sectors/track, %d cylinders", g.Heads, g.Sectors, g.Cylinders)
}

// ValidSectorSize reports whether n is a logical sector size the DOS label supports.
func ValidSectorSize(n uint32) bool {
	switch n {
	case 512, 1024, 2048, 4096:
		return true
	default:
		return false
	}
}
