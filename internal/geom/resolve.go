package geom

import (
	"fmt"
	"math"
)

// Resolve computes the effective geometry. Every field is taken from the user
// override if set, else from the existing partition table, else from the
// device, else from the defaults. It never fails; anything suspicious is
// returned as a warning.
func Resolve(ov Override, hint Hint, topo Topology) (Geometry, []string) {
	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	g := Geometry{DOSCompat: ov.DOSCompat}

	// sector sizes
	g.LogicalSectorSize = topo.LogicalSectorSize
	if ov.SectorSize != 0 {
		switch {
		case !ValidSectorSize(ov.SectorSize):
			warnf("ignoring invalid sector size %d (must be 512, 1024, 2048 or 4096)", ov.SectorSize)
		case topo.LogicalSectorSize != 0 && ov.SectorSize != topo.LogicalSectorSize:
			// the device addresses its own sectors; a table in other units could not be written
			warnf("ignoring sector size %d, the device uses %d-byte sectors", ov.SectorSize, topo.LogicalSectorSize)
		default:
			g.LogicalSectorSize = ov.SectorSize
		}
	}
	if !ValidSectorSize(g.LogicalSectorSize) {
		if g.LogicalSectorSize != 0 {
			warnf("device reports unsupported sector size %d, using %d", g.LogicalSectorSize, DefaultSectorSize)
		}
		g.LogicalSectorSize = DefaultSectorSize
	}

	g.PhysicalSectorSize = topo.PhysicalSectorSize
	if g.PhysicalSectorSize < g.LogicalSectorSize {
		g.PhysicalSectorSize = g.LogicalSectorSize
	}
	g.MinIO = topo.MinIO
	if g.MinIO < g.PhysicalSectorSize {
		g.MinIO = g.PhysicalSectorSize
	}
	g.OptimalIO = topo.OptimalIO
	g.AlignmentOffset = topo.AlignmentOffset

	// total size, re-expressed in the effective sector size
	devSectorSize := uint64(topo.LogicalSectorSize)
	if devSectorSize == 0 {
		devSectorSize = uint64(g.LogicalSectorSize)
	}
	g.TotalSectors = topo.TotalSectors * devSectorSize / uint64(g.LogicalSectorSize)

	// heads
	switch {
	case ov.Heads != 0 && ov.Heads <= 255:
		g.Heads = ov.Heads
	case ov.Heads != 0:
		warnf("ignoring invalid number of heads %d (must be 1-255)", ov.Heads)
		fallthrough
	default:
		g.Heads = pick(hint.Heads, topo.Heads, DefaultHeads)
	}

	// sectors per track
	switch {
	case ov.Sectors != 0:
		g.Sectors = ov.Sectors
		if ov.Sectors > MaxCHSSectors {
			warnf("%d sectors per track cannot be encoded in CHS addresses, they will be inexact", ov.Sectors)
		}
	default:
		g.Sectors = pick(hint.Sectors, topo.Sectors, DefaultSectors)
	}

	// cylinders
	computed := uint64(0)
	if cs := g.CylinderSize(); cs != 0 {
		computed = g.TotalSectors / cs
	}
	if computed > math.MaxUint32 {
		computed = math.MaxUint32
	}
	if topo.Cylinders != 0 && computed > math.MaxUint16 && uint64(topo.Cylinders) != computed {
		warnf("device reports %d cylinders, which was truncated; using %d", topo.Cylinders, computed)
	}
	if ov.Cylinders != 0 {
		g.Cylinders = ov.Cylinders
	} else {
		g.Cylinders = uint32(computed)
	}
	if g.DOSCompat && g.Cylinders > MaxCHSCylinders {
		warnf("the number of cylinders for this disk is set to %d, which is larger than %d "+
			"and could cause problems with software that runs at boot time", g.Cylinders, MaxCHSCylinders)
	}

	return g, warnings
}

func pick(vals ...uint32) uint32 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// End is the stored end address of a partition entry and the LBA of its
// last sector.
type End struct {
	CHS PackedCHS
	LBA uint64
}

// GuessFromEnds recovers heads and sectors from the end addresses of the used
// primary entries of a partition table. Legacy tools end every partition on a
// cylinder boundary, so the end head is heads-1 and the end sector is the
// number of sectors per track. The guess is only returned when all entries
// agree and each unsaturated address decodes back to its LBA.
func GuessFromEnds(ends []End) (Hint, bool) {
	var hint Hint
	for _, e := range ends {
		if e.CHS.IsZero() {
			continue
		}
		c := e.CHS.Unpack()
		h, s := c.Head+1, c.Sector
		// head byte 255 would mean 256 heads, which no label can use
		if s == 0 || h >= MaxCHSHeads {
			return Hint{}, false
		}
		if c.Cylinder < MaxCHSCylinders-1 {
			g := Geometry{Heads: h, Sectors: s}
			if g.CHSToLBA(c) != e.LBA {
				return Hint{}, false
			}
		}
		if hint.Heads == 0 {
			hint = Hint{Heads: h, Sectors: s}
			continue
		}
		if hint.Heads != h || hint.Sectors != s {
			return Hint{}, false
		}
	}
	return hint, hint.Heads != 0
}
