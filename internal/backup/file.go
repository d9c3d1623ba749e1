package backup

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gosuri/uilive"
	"github.com/sirupsen/logrus"
)

// SectorReader reads whole sectors.
type SectorReader interface {
	ReadSector(lba uint64) ([]byte, error)
}

// SectorWriter writes whole sectors.
type SectorWriter interface {
	WriteSector(lba uint64, b []byte) error
	Sync() error
}

// progress redraws a one-line status on out while sectors are processed.
type progress struct {
	w     *uilive.Writer
	verb  string
	total int
}

func newProgress(out io.Writer, verb string, total int) *progress {
	w := uilive.New()
	w.Out = out
	w.Start()
	return &progress{w: w, verb: verb, total: total}
}

func (p *progress) update(done int, lba uint64) {
	_, _ = fmt.Fprintf(p.w, "%s sector %d (%d of %d)\n", p.verb, lba, done, p.total)
}

func (p *progress) stop() {
	_ = p.w.Flush()
	p.w.Stop()
}

// Collect reads the given sectors from r into a new archive.
func Collect(r SectorReader, sectorSize int, lbas []uint64, out io.Writer) (*Archive, error) {
	a := New(sectorSize)
	p := newProgress(out, "Reading", len(lbas))
	defer p.stop()
	for i, lba := range lbas {
		b, err := r.ReadSector(lba)
		if err != nil {
			return nil, fmt.Errorf("read sector %d: %w", lba, err)
		}
		if err := a.Add(lba, b); err != nil {
			return nil, err
		}
		p.update(i+1, lba)
	}
	return a, nil
}

// Save writes a to path, adding the algorithm's extension when path lacks
// it. It returns the path written.
func Save(path, algorithm string, a *Archive, log logrus.FieldLogger) (string, error) {
	ext, err := Extension(algorithm)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(path, ext) {
		path += ext
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	start := time.Now()
	st, err := Write(f, algorithm, a)
	if err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write backup %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	log.WithFields(logrus.Fields{
		"path":        path,
		"sectors":     st.Sectors,
		"compression": algorithm,
		"ratio":       st.Ratio(),
		"elapsed":     time.Since(start).Truncate(time.Millisecond),
	}).Info("saved partition table backup")
	return path, nil
}

// Load reads the archive at path. An empty algorithm is guessed from the
// file extension.
func Load(path, algorithm string) (*Archive, error) {
	if algorithm == "" {
		algorithm = AlgorithmFor(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	a, err := Read(f, algorithm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Restore writes every sector of a to w in ascending order and syncs.
// sectorSize is the device's logical sector size.
func Restore(w SectorWriter, sectorSize int, a *Archive, out io.Writer) error {
	if sectorSize != a.SectorSize {
		return fmt.Errorf("%w: backup has %d byte sectors, device has %d", ErrSectorSize, a.SectorSize, sectorSize)
	}
	lbas := a.LBAs()
	p := newProgress(out, "Writing", len(lbas))
	defer p.stop()
	for i, lba := range lbas {
		if err := w.WriteSector(lba, a.Sectors[lba]); err != nil {
			return fmt.Errorf("write sector %d: %w", lba, err)
		}
		p.update(i+1, lba)
	}
	return w.Sync()
}
