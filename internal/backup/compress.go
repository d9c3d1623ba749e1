package backup

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithms.
const (
	None   = "none"
	Gzip   = "gzip"
	Zlib   = "zlib"
	Bzip2  = "bzip2"
	Snappy = "snappy"
	S2     = "s2"
	Zstd   = "zstd"
	Zip    = "zip"
)

var extensions = map[string]string{
	None:   "",
	Gzip:   ".gz",
	Zlib:   ".zlib",
	Bzip2:  ".bz2",
	Snappy: ".snappy",
	S2:     ".s2",
	Zstd:   ".zst",
	Zip:    ".zip",
}

// zipEntry is the name of the archive member holding the backup.
const zipEntry = "sectors"

// Algorithms lists the supported compression algorithms.
func Algorithms() []string {
	return []string{None, Gzip, Zlib, Bzip2, Snappy, S2, Zstd, Zip}
}

// Extension returns the file extension for algorithm.
func Extension(algorithm string) (string, error) {
	ext, ok := extensions[algorithm]
	if !ok {
		return "", fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	return ext, nil
}

// AlgorithmFor guesses the algorithm from the extension of path, falling
// back to None.
func AlgorithmFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for alg, e := range extensions {
		if e != "" && e == ext {
			return alg
		}
	}
	return None
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// zipWriter closes the archive after the member.
type zipWriter struct {
	io.Writer
	zw *zip.Writer
}

func (z zipWriter) Close() error { return z.zw.Close() }

// newWriter returns a writer compressing into w. Closing it flushes the
// compressor but leaves w open.
func newWriter(algorithm string, w io.Writer) (io.WriteCloser, error) {
	switch algorithm {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zlib:
		return zlib.NewWriter(w), nil
	case Bzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{})
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		return s2.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case Zip:
		zw := zip.NewWriter(w)
		f, err := zw.Create(zipEntry)
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("failed to create zip entry: %w", err)
		}
		return zipWriter{Writer: f, zw: zw}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

type zstdReader struct{ *zstd.Decoder }

func (z zstdReader) Close() error {
	z.Decoder.Close()
	return nil
}

// newReader returns a reader decompressing r.
func newReader(algorithm string, r io.Reader) (io.ReadCloser, error) {
	switch algorithm {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zlib:
		return zlib.NewReader(r)
	case Bzip2:
		return bzip2.NewReader(r, &bzip2.ReaderConfig{})
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReader{d}, nil
	case Zip:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		for _, f := range zr.File {
			if f.Name == zipEntry {
				return f.Open()
			}
		}
		return nil, fmt.Errorf("zip archive has no %q member", zipEntry)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}
