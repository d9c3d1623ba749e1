package probe

import (
	"io"
	"strings"
)

// Result is what was found at the start of a partition.
type Result struct {
	Filesystem string
	Containers []Container
}

// Empty reports whether nothing was recognised.
func (r Result) Empty() bool {
	return r.Filesystem == "" && len(r.Containers) == 0
}

func (r Result) String() string {
	var names []string
	if r.Filesystem != "" {
		names = append(names, r.Filesystem)
	}
	for _, c := range r.Containers {
		names = append(names, string(c.Type))
	}
	return strings.Join(names, ",")
}

// Probe looks for a filesystem and for container headers in the size bytes
// starting at off.
func Probe(r io.ReaderAt, off, size, sectorSize int64) (Result, error) {
	fs, err := Filesystem(r, off)
	if err != nil {
		return Result{}, err
	}
	return Result{Filesystem: fs, Containers: Containers(r, off, size, sectorSize)}, nil
}
