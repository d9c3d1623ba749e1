//go:build !linux

package blkdev

import (
	"errors"
	"os"

	"doslabel/internal/geom"
)

var errUnsupported = errors.New("block devices are only supported on Linux")

func blockTopology(*os.File) (geom.Topology, error) {
	return geom.Topology{}, errUnsupported
}

func rereadPartitions(*os.File) error { return errUnsupported }

func exclusivelyHeld(string) (bool, error) { return false, nil }

func mountedPartitions(string) ([]string, error) { return nil, nil }
