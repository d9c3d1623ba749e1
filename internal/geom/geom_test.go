package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classic(cylinders uint32) Geometry {
	return Geometry{
		Heads:              255,
		Sectors:            63,
		Cylinders:          cylinders,
		TotalSectors:       uint64(cylinders) * 255 * 63,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
		MinIO:              512,
	}
}

func TestResolvePrecedence(t *testing.T) {
	topo := Topology{
		Heads:              16,
		Sectors:            32,
		TotalSectors:       2097152,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 4096,
	}

	tests := []struct {
		name    string
		ov      Override
		hint    Hint
		topo    Topology
		heads   uint32
		sectors uint32
	}{
		{"defaults", Override{}, Hint{}, Topology{TotalSectors: 2097152}, DefaultHeads, DefaultSectors},
		{"kernel", Override{}, Hint{}, topo, 16, 32},
		{"table beats kernel", Override{}, Hint{Heads: 128, Sectors: 32}, topo, 128, 32},
		{"user beats all", Override{Heads: 64, Sectors: 16}, Hint{Heads: 128, Sectors: 32}, topo, 64, 16},
		{"invalid heads ignored", Override{Heads: 300}, Hint{}, topo, 16, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := Resolve(tt.ov, tt.hint, tt.topo)
			assert.Equal(t, tt.heads, g.Heads)
			assert.Equal(t, tt.sectors, g.Sectors)
			assert.Equal(t, uint32(tt.topo.TotalSectors/(uint64(tt.heads)*uint64(tt.sectors))), g.Cylinders)
		})
	}
}

func TestResolveSectorSize(t *testing.T) {
	g, warnings := Resolve(Override{SectorSize: 4096}, Hint{}, Topology{TotalSectors: 1024, LogicalSectorSize: 4096})
	assert.Empty(t, warnings)
	assert.Equal(t, uint32(4096), g.LogicalSectorSize)
	assert.Equal(t, uint64(1024), g.TotalSectors)
	assert.Equal(t, uint32(4096), g.PhysicalSectorSize)

	// a block device keeps its own sector size
	g, warnings = Resolve(Override{SectorSize: 4096}, Hint{}, Topology{TotalSectors: 8192, LogicalSectorSize: 512})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "the device uses 512-byte sectors")
	assert.Equal(t, uint32(512), g.LogicalSectorSize)
	assert.Equal(t, uint64(8192), g.TotalSectors)

	g, warnings = Resolve(Override{SectorSize: 1000}, Hint{}, Topology{TotalSectors: 8192})
	assert.Len(t, warnings, 1)
	assert.Equal(t, uint32(512), g.LogicalSectorSize)
}

func TestResolveCylinderTruncation(t *testing.T) {
	total := uint64(255*63) * 100000
	g, warnings := Resolve(Override{}, Hint{}, Topology{TotalSectors: total, Cylinders: 100000 & 0xffff})
	assert.Equal(t, uint32(100000), g.Cylinders)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "truncated")
}

func TestResolveCylinderSaturates(t *testing.T) {
	g, _ := Resolve(Override{Heads: 1, Sectors: 1}, Hint{}, Topology{TotalSectors: 1 << 40})
	assert.Equal(t, ^uint32(0), g.Cylinders)
}

func TestGuessFromEnds(t *testing.T) {
	g := Geometry{Heads: 128, Sectors: 32}
	end := func(lba uint64) End {
		return End{CHS: PackCHS(g.LBAToCHS(lba)), LBA: lba}
	}
	end1 := end(g.CylinderSize()*10 - 1)
	end2 := end(g.CylinderSize()*20 - 1)

	hint, ok := GuessFromEnds([]End{end1, {}, end2})
	require.True(t, ok)
	assert.Equal(t, Hint{Heads: 128, Sectors: 32}, hint)

	odd := End{CHS: PackCHS(CHS{Cylinder: 3, Head: 4, Sector: 5}), LBA: 100}
	_, ok = GuessFromEnds([]End{end1, odd})
	assert.False(t, ok)

	// an aligned end that is not on a cylinder boundary
	legacy := Geometry{Heads: 255, Sectors: 63}
	p, _ := legacy.EncodeCHS(206847)
	_, ok = GuessFromEnds([]End{{CHS: p, LBA: 206847}})
	assert.False(t, ok)

	// saturated addresses are taken as they are
	sat := PackCHS(CHS{Cylinder: 1023, Head: 254, Sector: 63})
	hint, ok = GuessFromEnds([]End{{CHS: sat, LBA: 500000000}})
	require.True(t, ok)
	assert.Equal(t, Hint{Heads: 255, Sectors: 63}, hint)

	// a head byte of 255 is out of range for a label
	wide := PackCHS(CHS{Cylinder: 1023, Head: 255, Sector: 63})
	_, ok = GuessFromEnds([]End{{CHS: wide, LBA: 500000000}})
	assert.False(t, ok)
	_, ok = GuessFromEnds([]End{end1, {CHS: wide, LBA: 500000000}})
	assert.False(t, ok)

	_, ok = GuessFromEnds(nil)
	assert.False(t, ok)
}

func TestPackUnpack(t *testing.T) {
	c := CHS{Cylinder: 1000, Head: 254, Sector: 63}
	p := PackCHS(c)
	assert.Equal(t, PackedCHS{254, 63 | 3<<6, 1000 & 0xff}, p)
	assert.Equal(t, c, p.Unpack())

	big := PackCHS(CHS{Cylinder: 5000, Head: 1, Sector: 1})
	assert.Equal(t, uint32(1023), big.Unpack().Cylinder)
}

func TestCHSRoundTrip(t *testing.T) {
	g := classic(1023)
	limit := uint64(g.Heads) * uint64(g.Sectors) * uint64(g.Cylinders)
	step := limit / 5000
	for lba := uint64(0); lba < limit; lba += step {
		c := g.LBAToCHS(lba)
		require.Equal(t, lba, g.CHSToLBA(c), "lba %d", lba)

		p, exact := g.EncodeCHS(lba)
		require.True(t, exact)
		require.Equal(t, lba, g.CHSToLBA(p.Unpack()), "lba %d", lba)
	}
}

func TestEncodeCHSBeyondLimit(t *testing.T) {
	g := classic(4000)
	p, exact := g.EncodeCHS(g.CylinderSize() * 2000)
	assert.False(t, exact)
	assert.Equal(t, CHS{Cylinder: 1023, Head: 254, Sector: 63}, p.Unpack())

	_, exact = Geometry{}.EncodeCHS(10)
	assert.False(t, exact)
}

func TestScenarioAStartCHS(t *testing.T) {
	g := classic(130)
	p, exact := g.EncodeCHS(2048)
	assert.True(t, exact)
	assert.Equal(t, uint32(0), p.Unpack().Cylinder)
	assert.Equal(t, CHS{Cylinder: 0, Head: 32, Sector: 33}, p.Unpack())
}

func TestAlign(t *testing.T) {
	g := Geometry{LogicalSectorSize: 512, PhysicalSectorSize: 4096, MinIO: 4096, TotalSectors: 1 << 21}

	assert.Equal(t, uint64(8), g.Grain())
	assert.True(t, g.IsAligned(2048))
	assert.Equal(t, uint64(2048), g.Align(2048, Up))
	assert.Equal(t, uint64(2056), g.Align(2049, Up))
	assert.Equal(t, uint64(2048), g.Align(2055, Down))
	assert.Equal(t, uint64(2048), g.Align(2051, Nearest))
	assert.Equal(t, uint64(2056), g.Align(2053, Nearest))
}

func TestAlignWithOffset(t *testing.T) {
	g := Geometry{LogicalSectorSize: 512, PhysicalSectorSize: 4096, MinIO: 4096, AlignmentOffset: 3584}

	assert.True(t, g.IsAligned(7))
	assert.False(t, g.IsAligned(8))

	up := g.Align(100, Up)
	assert.Equal(t, uint64(103), up)
	assert.True(t, g.IsAligned(up))
	assert.GreaterOrEqual(t, g.Align(104, Up), uint64(104))
}

func TestAlignBeforeFirstBoundary(t *testing.T) {
	g := Geometry{LogicalSectorSize: 512, PhysicalSectorSize: 4096, MinIO: 4096, AlignmentOffset: 3584}

	for _, dir := range []Direction{Up, Down, Nearest} {
		for lba := uint64(0); lba < 7; lba++ {
			got := g.Align(lba, dir)
			assert.Equal(t, uint64(7), got, "%s %d", dir, lba)
			assert.True(t, g.IsAligned(got))
		}
	}
	assert.Equal(t, uint64(7), g.Align(1, Nearest))
}

func TestAlignIdempotent(t *testing.T) {
	for _, gran := range []uint32{512, 1024, 4096, 8192, 65536, 1 << 20} {
		for _, off := range []uint32{0, 512, gran / 2} {
			if off%512 != 0 || off >= gran {
				continue
			}
			g := Geometry{LogicalSectorSize: 512, PhysicalSectorSize: 512, MinIO: gran, AlignmentOffset: off}
			for x := uint64(0); x < 5000; x += 7 {
				once := g.Align(x, Up)
				require.Equal(t, once, g.Align(once, Up), "gran %d off %d x %d", gran, off, x)
				require.GreaterOrEqual(t, once, x)
			}
		}
	}
}

func TestAlignInRange(t *testing.T) {
	g := Geometry{LogicalSectorSize: 512, PhysicalSectorSize: 4096, MinIO: 4096}

	assert.Equal(t, uint64(2048), g.AlignInRange(2049, 2048, 4000))
	assert.Equal(t, uint64(2056), g.AlignInRange(10, 2049, 4000))
	assert.Equal(t, uint64(3992), g.AlignInRange(9000, 2048, 3999))
}

func TestFirstLBA(t *testing.T) {
	g := classic(130)
	assert.Equal(t, uint64(2048), g.FirstLBA())

	g.DOSCompat = true
	assert.Equal(t, uint64(63), g.FirstLBA())
	assert.Equal(t, uint64(65), g.Align(65, Up))

	small := Geometry{LogicalSectorSize: 512, PhysicalSectorSize: 512, TotalSectors: 4096}
	assert.Equal(t, uint64(1), small.FirstLBA())
}
