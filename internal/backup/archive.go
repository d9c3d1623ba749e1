// Package backup saves the sectors a partition table write will overwrite
// into a compressed archive, and writes them back.
package backup

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

const magic = "DOSLBAK1"

var (
	// ErrFormat is returned for streams that are not backup archives.
	ErrFormat = errors.New("not a partition table backup")
	// ErrSectorSize is returned when sectors do not match the archive's
	// sector size.
	ErrSectorSize = errors.New("sector size mismatch")
)

// maxSectors bounds the record count accepted from an archive.
const maxSectors = 1 << 16

// Archive is a set of sectors of one disk.
type Archive struct {
	SectorSize int
	Sectors    map[uint64][]byte
}

// New returns an empty archive.
func New(sectorSize int) *Archive {
	return &Archive{SectorSize: sectorSize, Sectors: make(map[uint64][]byte)}
}

// Add stores a copy of sector lba.
func (a *Archive) Add(lba uint64, sector []byte) error {
	if len(sector) != a.SectorSize {
		return fmt.Errorf("sector %d: %w: %d bytes, want %d", lba, ErrSectorSize, len(sector), a.SectorSize)
	}
	a.Sectors[lba] = slices.Clone(sector)
	return nil
}

// LBAs returns the sector numbers in ascending order.
func (a *Archive) LBAs() []uint64 {
	lbas := make([]uint64, 0, len(a.Sectors))
	for lba := range a.Sectors {
		lbas = append(lbas, lba)
	}
	slices.Sort(lbas)
	return lbas
}

// encode writes the archive:
//
//	magic       8 bytes
//	sector size u32 LE
//	count       u32 LE
//	count times: lba u64 LE, sector size bytes
func (a *Archive) encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var hdr [16]byte
	copy(hdr[:], magic)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(a.SectorSize))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(a.Sectors)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	var lba [8]byte
	for _, n := range a.LBAs() {
		binary.LittleEndian.PutUint64(lba[:], n)
		if _, err := bw.Write(lba[:]); err != nil {
			return err
		}
		if _, err := bw.Write(a.Sectors[n]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func decode(r io.Reader) (*Archive, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if string(hdr[:8]) != magic {
		return nil, ErrFormat
	}
	size := binary.LittleEndian.Uint32(hdr[8:])
	count := binary.LittleEndian.Uint32(hdr[12:])
	switch size {
	case 512, 1024, 2048, 4096:
	default:
		return nil, fmt.Errorf("%w: sector size %d", ErrFormat, size)
	}
	if count > maxSectors {
		return nil, fmt.Errorf("%w: %d sectors", ErrFormat, count)
	}

	a := New(int(size))
	var lba [8]byte
	for i := uint32(0); i < count; i++ {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, lba[:]); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrFormat, i, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrFormat, i, err)
		}
		a.Sectors[binary.LittleEndian.Uint64(lba[:])] = buf
	}
	return a, nil
}

// Stats describes a written archive.
type Stats struct {
	Sectors    int
	Raw        int64
	Compressed int64
}

// Ratio is the compression ratio as text, like "3.20:1".
func (s Stats) Ratio() string {
	if s.Compressed == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f:1", float64(s.Raw)/float64(s.Compressed))
}

type countingWriter struct {
	w     io.Writer
	count int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)
	return n, err
}

// Write compresses a into w.
func Write(w io.Writer, algorithm string, a *Archive) (Stats, error) {
	cw := &countingWriter{w: w}
	zw, err := newWriter(algorithm, cw)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create compression writer: %w", err)
	}
	if err := a.encode(zw); err != nil {
		_ = zw.Close()
		return Stats{}, err
	}
	if err := zw.Close(); err != nil {
		return Stats{}, err
	}
	return Stats{
		Sectors:    len(a.Sectors),
		Raw:        16 + int64(len(a.Sectors))*int64(8+a.SectorSize),
		Compressed: cw.count,
	}, nil
}

// Read decompresses an archive from r.
func Read(r io.Reader, algorithm string) (*Archive, error) {
	zr, err := newReader(algorithm, r)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", algorithm, err)
	}
	defer func() {
		_ = zr.Close()
	}()
	return decode(zr)
}
