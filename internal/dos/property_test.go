package dos

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRandomEdits applies random edits and checks after every accepted one
// that the table has no check errors, that no two extents overlap and that
// it survives a round trip through its sectors.
func TestRandomEdits(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewPCG(seed, 42))
		tab := newTable(t)
		types := []Type{TypeLinux, TypeLinuxSwap, TypeLinuxLVM, TypeFAT32LBA}

		for step := 0; step < 300; step++ {
			before := view(tab)
			start := 1 + rng.Uint64N(diskSectors-1)
			size := 1 + rng.Uint64N(150000)
			parts := tab.Partitions()

			var err error
			switch op := rng.IntN(10); {
			case op < 4:
				_, err = tab.Add(Logical, types[rng.IntN(len(types))], start, size)
			case op < 6:
				typ := types[rng.IntN(len(types))]
				if rng.IntN(4) == 0 {
					typ = TypeExtended
				}
				_, err = tab.Add(Primary, typ, start, size)
			case op < 8 && len(parts) > 0:
				err = tab.Resize(parts[rng.IntN(len(parts))].ID, start, size)
			case len(parts) > 0:
				err = tab.Delete(parts[rng.IntN(len(parts))].ID)
			}
			if err != nil {
				require.Equal(t, before, view(tab), "seed %d step %d: failed edit changed the table", seed, step)
				continue
			}

			require.Empty(t, errorsOf(Check(tab)), "seed %d step %d", seed, step)
			assertDisjoint(t, tab)
			roundTrip(t, tab)
		}
	}
}

func assertDisjoint(t *testing.T, tab *Table) {
	t.Helper()
	var spans []span
	for i, p := range tab.primary {
		if p.IsUsed() && i != tab.ext {
			spans = append(spans, span{p.Start, p.Last()})
		}
	}
	for _, l := range tab.Chain().Links() {
		spans = append(spans, span{l.EBR, l.EBR}, span{l.Data.Start, l.Data.Last()})
	}
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			require.False(t, overlaps(a.start, a.last, b.start, b.last), "%v overlaps %v", a, b)
		}
	}
}
