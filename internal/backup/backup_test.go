package backup

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doslabel/internal/blkdev"
	"doslabel/internal/geom"
)

func sector(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 512)
}

func sample(t *testing.T) *Archive {
	t.Helper()
	a := New(512)
	require.NoError(t, a.Add(0, sector(0xaa)))
	require.NoError(t, a.Add(206848, sector(0x55)))
	require.NoError(t, a.Add(2048, sector(0)))
	return a
}

func TestRoundTrip(t *testing.T) {
	for _, alg := range Algorithms() {
		t.Run(alg, func(t *testing.T) {
			var buf bytes.Buffer
			st, err := Write(&buf, alg, sample(t))
			require.NoError(t, err)
			assert.Equal(t, 3, st.Sectors)
			assert.Equal(t, int64(buf.Len()), st.Compressed)

			got, err := Read(&buf, alg)
			require.NoError(t, err)
			assert.Equal(t, sample(t), got)
			assert.Equal(t, []uint64{0, 2048, 206848}, got.LBAs())
		})
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := Write(io.Discard, "lz4", sample(t))
	assert.ErrorContains(t, err, "unsupported compression algorithm: lz4")
	_, err = Extension("lz4")
	assert.Error(t, err)
}

func TestAlgorithmFor(t *testing.T) {
	tests := map[string]string{
		"sda.bak.gz":  Gzip,
		"sda.bak.ZST": Zstd,
		"sda.bak.bz2": Bzip2,
		"sda.bak.zip": Zip,
		"sda.bak":     None,
	}
	for path, want := range tests {
		assert.Equal(t, want, AlgorithmFor(path), path)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("NOTABACKUPFILE..")), None)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Read(bytes.NewReader([]byte("DOS")), None)
	assert.ErrorIs(t, err, ErrFormat)

	var buf bytes.Buffer
	_, err = Write(&buf, None, sample(t))
	require.NoError(t, err)
	truncated := buf.Bytes()[:buf.Len()-100]
	_, err = Read(bytes.NewReader(truncated), None)
	assert.ErrorIs(t, err, ErrFormat)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	bad := bytes.Clone(buf.Bytes())
	bad[8] = 0x01 // sector size 513
	_, err = Read(bytes.NewReader(bad), None)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestAddChecksSize(t *testing.T) {
	a := New(512)
	assert.ErrorIs(t, a.Add(1, make([]byte, 4096)), ErrSectorSize)
}

func TestSaveLoad(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	path := filepath.Join(t.TempDir(), "sda.bak")

	written, err := Save(path, Zstd, sample(t), log)
	require.NoError(t, err)
	assert.Equal(t, path+".zst", written)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, 3, hook.LastEntry().Data["sectors"])

	got, err := Load(written, "")
	require.NoError(t, err)
	assert.Equal(t, sample(t), got)

	_, err = Load(written, Gzip)
	assert.Error(t, err)
}

func TestCollectAndRestore(t *testing.T) {
	src := blkdev.NewMemory(geom.Topology{TotalSectors: 1 << 20})
	require.NoError(t, src.WriteSector(0, sector(1)))
	require.NoError(t, src.WriteSector(4096, sector(2)))

	a, err := Collect(src, 512, []uint64{0, 4096, 8192}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, sector(0), a.Sectors[8192])

	dst := blkdev.NewMemory(geom.Topology{TotalSectors: 1 << 20})
	require.NoError(t, dst.WriteSector(8192, sector(9)))
	require.NoError(t, Restore(dst, 512, a, io.Discard))
	for _, lba := range []uint64{0, 4096, 8192} {
		got, err := dst.ReadSector(lba)
		require.NoError(t, err)
		assert.Equal(t, a.Sectors[lba], got, "sector %d", lba)
	}

	err = Restore(dst, 4096, a, io.Discard)
	assert.ErrorIs(t, err, ErrSectorSize)

	_, err = Collect(src, 512, []uint64{1 << 21}, io.Discard)
	assert.Error(t, err)
}
