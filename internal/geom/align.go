package geom

// Direction tells Align which way to round.
type Direction int

const (
	Up Direction = iota
	Down
	Nearest
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "nearest"
	}
}

// granularity is the physical I/O unit in bytes.
func (g Geometry) granularity() uint64 {
	gran := uint64(g.PhysicalSectorSize)
	if uint64(g.MinIO) > gran {
		gran = uint64(g.MinIO)
	}
	if gran < g.SectorSize() {
		gran = g.SectorSize()
	}
	return gran
}

// Grain is the physical I/O unit in logical sectors, at least 1.
func (g Geometry) Grain() uint64 {
	grain := g.granularity() / g.SectorSize()
	if grain == 0 {
		return 1
	}
	return grain
}

// IsAligned reports whether lba starts on a physical I/O boundary, taking the
// alignment offset of the device into account.
func (g Geometry) IsAligned(lba uint64) bool {
	gran := g.granularity()
	off := (lba * g.SectorSize()) % gran
	return (gran+uint64(g.AlignmentOffset)%gran-off)%gran == 0
}

// Align moves lba to a physical I/O boundary. Up never returns a value below
// lba. Below the first boundary every direction returns that boundary. In DOS
// compatible mode lba is returned unchanged.
func (g Geometry) Align(lba uint64, dir Direction) uint64 {
	if g.DOSCompat || g.IsAligned(lba) {
		return lba
	}

	grain := g.Grain()
	var res uint64
	switch dir {
	case Up:
		res = (lba + grain) / grain * grain
	case Down:
		res = lba / grain * grain
	default:
		res = (lba + grain/2) / grain * grain
	}

	gran := g.granularity()
	offset := uint64(g.AlignmentOffset) % gran
	if offset != 0 && !g.IsAligned(res) {
		// the first physical block starts before LBA 0
		if res == 0 {
			return offset / g.SectorSize()
		}
		res -= (gran - offset) / g.SectorSize()
		if dir == Up && res < lba {
			res += grain
		}
	}
	return res
}

// AlignInRange aligns lba to the nearest boundary and clamps it into
// [lo, hi], where lo is aligned up and hi is aligned down first.
func (g Geometry) AlignInRange(lba, lo, hi uint64) uint64 {
	lo = g.Align(lo, Up)
	if down := g.Align(hi, Down); down <= hi {
		hi = down
	}
	lba = g.Align(lba, Nearest)

	switch {
	case lba < lo:
		return lo
	case lba > hi:
		return hi
	}
	return lba
}

// FirstLBA is the default start of the first partition on the disk: 1 MiB
// (or one grain, whichever is larger), except on disks too small for that and
// in DOS compatible mode, where it is the first sector of the second track.
func (g Geometry) FirstLBA() uint64 {
	if g.DOSCompat {
		if g.Sectors == 0 {
			return 1
		}
		return uint64(g.Sectors)
	}
	first := uint64(1<<20) / g.SectorSize()
	grain := g.Grain()
	if grain > first {
		first = grain
	}
	if g.TotalSectors != 0 && g.TotalSectors <= first*4 {
		first = grain
	}
	return g.Align(first, Up)
}
