package blkdev

import (
	"fmt"
	"io"
	"sort"

	"doslabel/internal/geom"
)

// Memory is a sparse in-memory device. Sectors never written read as
// zeros.
type Memory struct {
	topo    geom.Topology
	sectors map[uint64][]byte

	// Busy, RereadErr and WriteErr let callers simulate device state.
	Busy      bool
	RereadErr error
	WriteErr  func(lba uint64) error

	Rereads int
}

// NewMemory returns an empty device with the given topology. A zero
// logical sector size means 512.
func NewMemory(topo geom.Topology) *Memory {
	if topo.LogicalSectorSize == 0 {
		topo.LogicalSectorSize = geom.DefaultSectorSize
	}
	if topo.PhysicalSectorSize == 0 {
		topo.PhysicalSectorSize = topo.LogicalSectorSize
	}
	return &Memory{topo: topo, sectors: make(map[uint64][]byte)}
}

// Clone copies the device, contents included.
func (m *Memory) Clone() *Memory {
	c := NewMemory(m.topo)
	for lba, b := range m.sectors {
		c.sectors[lba] = append([]byte(nil), b...)
	}
	return c
}

func (m *Memory) Topology() geom.Topology { return m.topo }
func (m *Memory) Sync() error { return nil }
func (m *Memory) InUse() (bool, error) { return m.Busy, nil }

func (m *Memory) NotifyTableChanged() error {
	m.Rereads++
	return m.RereadErr
}

func (m *Memory) size() uint64 { return uint64(m.topo.LogicalSectorSize) }

func (m *Memory) ReadSector(lba uint64) ([]byte, error) {
	if m.topo.TotalSectors != 0 && lba >= m.topo.TotalSectors {
		return nil, fmt.Errorf("sector %d: %w", lba, io.ErrUnexpectedEOF)
	}
	b := make([]byte, m.size())
	copy(b, m.sectors[lba])
	return b, nil
}

func (m *Memory) WriteSector(lba uint64, b []byte) error {
	if uint64(len(b)) != m.size() {
		return ErrShortSector
	}
	if m.topo.TotalSectors != 0 && lba >= m.topo.TotalSectors {
		return fmt.Errorf("sector %d: %w", lba, io.ErrShortWrite)
	}
	if m.WriteErr != nil {
		if err := m.WriteErr(lba); err != nil {
			return err
		}
	}
	m.sectors[lba] = append([]byte(nil), b...)
	return nil
}

// ReadAt implements io.ReaderAt over the sector contents.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	ss := int64(m.size())
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		lba := uint64(pos / ss)
		if m.topo.TotalSectors != 0 && lba >= m.topo.TotalSectors {
			return n, io.EOF
		}
		b := m.sectors[lba]
		in := pos % ss
		chunk := min(int64(len(p)-n), ss-in)
		if b == nil {
			clear(p[n : n+int(chunk)])
		} else {
			copy(p[n:n+int(chunk)], b[in:in+chunk])
		}
		n += int(chunk)
	}
	return n, nil
}

// Written returns the LBAs holding data, in ascending order.
func (m *Memory) Written() []uint64 {
	lbas := make([]uint64, 0, len(m.sectors))
	for lba := range m.sectors {
		lbas = append(lbas, lba)
	}
	sort.Slice(lbas, func(i, j int) bool { return lbas[i] < lbas[j] })
	return lbas
}
