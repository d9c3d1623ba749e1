package dos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeRegionsEmptyDisk(t *testing.T) {
	tab := newTable(t)
	regions := tab.FreeRegions()
	require.Len(t, regions, 1)
	assert.Equal(t, Region{Start: 2048, End: diskSectors - 1}, regions[0])
	assert.Equal(t, uint64(2048), tab.SuggestStart(regions[0]))
	assert.Equal(t, uint64(diskSectors-1), tab.Unallocated())
}

func TestFreeRegionsWithExtended(t *testing.T) {
	tab := newTable(t)
	mustAdd(t, tab, Primary, TypeLinux, 2048, 204800)
	mustAdd(t, tab, Primary, TypeExtended, 206848, 1000000)

	regions := tab.FreeRegions()
	require.Len(t, regions, 2)
	inside := regions[0]
	assert.Equal(t, Region{Start: 206848, End: 1206847, Logical: true}, inside)
	assert.Equal(t, Region{Start: 1206848, End: diskSectors - 1}, regions[1])

	// the default start of the first logical partition leaves room for its EBR
	assert.Equal(t, uint64(208896), tab.SuggestStart(inside))

	mustAdd(t, tab, Logical, TypeLinux, 208896, 100000)
	regions = tab.FreeRegions()
	require.Len(t, regions, 2)
	assert.Equal(t, Region{Start: 308896, End: 1206847, Logical: true}, regions[0])
	assert.Equal(t, uint64(308896+2048), tab.SuggestStart(regions[0]))

	r, ok := tab.RegionAt(500000)
	require.True(t, ok)
	assert.True(t, r.Logical)
	_, ok = tab.RegionAt(3000)
	assert.False(t, ok)
}

func TestUnallocated(t *testing.T) {
	tab := newTable(t)
	mustAdd(t, tab, Primary, TypeLinux, 2048, 204800)
	assert.Equal(t, uint64(diskSectors-1-204800), tab.Unallocated())

	mustAdd(t, tab, Primary, TypeExtended, 206848, 1000000)
	assert.Equal(t, uint64(diskSectors-1-204800), tab.Unallocated())

	// the EBR, its padding and the logical partition itself
	mustAdd(t, tab, Logical, TypeLinux, 208896, 100000)
	assert.Equal(t, uint64(diskSectors-1-204800-2048-100000), tab.Unallocated())
}

func TestFreeRegionsSkipsSlivers(t *testing.T) {
	tab := newTable(t)
	g := tab.geo
	g.MinIO = 4096 // grain of 8 sectors
	tab.geo = g

	mustAdd(t, tab, Primary, TypeLinux, 2048, 10000)
	mustAdd(t, tab, Primary, TypeLinux, 12052, 10000)
	for _, r := range tab.FreeRegions() {
		assert.GreaterOrEqual(t, r.Size(), uint64(8))
		assert.NotEqual(t, uint64(12048), r.Start)
	}
}
