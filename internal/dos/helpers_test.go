package dos

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"doslabel/internal/geom"
)

const diskSectors = 2097152 // 1 GiB

func testGeometry() geom.Geometry {
	g, _ := geom.Resolve(geom.Override{}, geom.Hint{}, geom.Topology{
		TotalSectors:       diskSectors,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
	})
	return g
}

func quietLogger() (*logrus.Logger, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

func newTable(t *testing.T) *Table {
	t.Helper()
	log, _ := quietLogger()
	return New(testGeometry(), Options{Log: log})
}

func mustAdd(t *testing.T, tab *Table, kind Kind, typ Type, start, size uint64) SlotID {
	t.Helper()
	id, err := tab.Add(kind, typ, start, size)
	require.NoError(t, err)
	return id
}

type slotView struct {
	ID     SlotID
	Sector uint64
	Part   Partition
}

func view(tab *Table) []slotView {
	var out []slotView
	for _, s := range tab.Partitions() {
		out = append(out, slotView{ID: s.ID, Sector: s.Sector, Part: s.Partition})
	}
	return out
}

func roundTrip(t *testing.T, tab *Table) *Table {
	t.Helper()
	log, _ := quietLogger()
	got, err := FromSectors(tab.ToSectors(), tab.Geometry(), Options{Log: log})
	require.NoError(t, err)
	require.Equal(t, view(tab), view(got))
	require.Equal(t, tab.DiskID(), got.DiskID())
	return got
}

// rawEntry places an entry into a sector.
func rawEntry(sector []byte, n int, e entry) {
	e.encode(sector[entryOffset(n):])
}

func signed(size int) []byte {
	b := make([]byte, size)
	setSignature(b)
	return b
}

func errorsOf(fs []Finding) []string {
	var out []string
	for _, f := range fs {
		if f.Severity == SeverityError {
			out = append(out, f.Msg)
		}
	}
	return out
}

func messages(fs []Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Msg
	}
	return out
}
