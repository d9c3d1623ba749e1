package blkdev

import (
	"bufio"
	"io"
	"strings"
)

// parseMountInfo returns the mount points of dev and its partitions found
// in a /proc/self/mountinfo listing.
func parseMountInfo(r io.Reader, dev string) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), " - ")
		if len(parts) < 2 {
			continue
		}
		before := strings.Split(parts[0], " ")
		after := strings.Split(parts[1], " ")
		if len(before) < 5 || len(after) < 3 {
			continue
		}
		if isPartitionOf(after[1], dev) {
			out = append(out, before[4])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// isPartitionOf matches /dev/sda against /dev/sda and /dev/sda1, and
// /dev/nvme0n1 against /dev/nvme0n1p2.
func isPartitionOf(source, dev string) bool {
	if source == dev {
		return true
	}
	rest, ok := strings.CutPrefix(source, dev)
	if !ok || rest == "" {
		return false
	}
	rest = strings.TrimPrefix(rest, "p")
	for _, c := range rest {
		if c < '0' || c > '9' {
			return false
		}
	}
	return rest != ""
}
