package main

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kb = 1 << 10
	mb = 1 << 20
	gb = 1 << 30
	tb = 1 << 40
	pb = 1 << 50
)

// dataSizeNumber is a type constraint that allows any signed or unsigned integer type.
type dataSizeNumber interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~uintptr
}

// Unit represents a data size unit with its name and threshold.
type Unit struct {
	Name      string
	Short     string
	Threshold uint64
}

// Predefined units in ascending order.
var units = []Unit{
	{"PB", "P", pb},
	{"TB", "T", tb},
	{"GB", "G", gb},
	{"MB", "M", mb},
	{"KB", "K", kb},
	{"bytes", "B", 1},
}

// formatBytes renders n with the largest unit it reaches, e.g. "1.5 GB".
func formatBytes[T dataSizeNumber](n T) string {
	v := uint64(n)
	for _, u := range units {
		if v >= u.Threshold && u.Threshold > 1 {
			return fmt.Sprintf("%.1f %s", float64(v)/float64(u.Threshold), u.Name)
		}
	}
	return fmt.Sprintf("%d bytes", v)
}

// formatShort is the compact form used in partition listings, e.g. "100M"
// or "1.5G".
func formatShort[T dataSizeNumber](n T) string {
	v := uint64(n)
	for _, u := range units {
		if v < u.Threshold {
			continue
		}
		if u.Threshold == 1 {
			return fmt.Sprintf("%dB", v)
		}
		f := float64(v) / float64(u.Threshold)
		s := strconv.FormatFloat(f, 'f', 1, 64)
		return strings.TrimSuffix(s, ".0") + u.Short
	}
	return "0B"
}

// parseSize reads a sector count. A K, M, G or T suffix (optionally
// followed by "iB" or "B") makes it a byte size that is converted to
// sectors, rounding down.
func parseSize(s string, sectorSize uint64) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	upper := strings.ToUpper(s)
	upper = strings.TrimSuffix(upper, "IB")
	if b := strings.TrimSuffix(upper, "B"); b != upper && strings.ContainsAny(b[max(len(b)-1, 0):], "KMGTP") {
		upper = b
	}

	mult := uint64(0)
	for _, u := range units {
		if u.Threshold > 1 && strings.HasSuffix(upper, u.Short) {
			mult = u.Threshold
			upper = strings.TrimSuffix(upper, u.Short)
			break
		}
	}
	n, err := strconv.ParseUint(upper, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if mult == 0 {
		return n, nil
	}
	return n * mult / sectorSize, nil
}
