package main

import (
	"bytes"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doslabel/internal/blkdev"
	"doslabel/internal/dos"
	"doslabel/internal/geom"
)

const (
	testDevice  = "/dev/sdz"
	diskSectors = 2097152 // 1 GiB
)

func newDisk() *blkdev.Memory {
	return blkdev.NewMemory(geom.Topology{TotalSectors: diskSectors})
}

// memSession opens the table on dev like the commands do on a real disk.
func memSession(t *testing.T, dev *blkdev.Memory) *session {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	tab, err := dos.Open(dev, dos.Options{Log: log})
	require.NoError(t, err)
	return &session{path: testDevice, dev: dev, table: tab, log: log}
}

// reopen reads back what was committed to dev.
func reopen(t *testing.T, dev *blkdev.Memory) *dos.Table {
	t.Helper()
	return memSession(t, dev).table
}

type part struct {
	Num   int
	Start uint64
	Size  uint64
	Type  dos.Type
	Boot  bool
}

func parts(tab *dos.Table) []part {
	var out []part
	for _, p := range tab.Partitions() {
		out = append(out, part{p.ID.Number(), p.Start, p.Size, p.Type, p.Boot})
	}
	return out
}

func TestPartitionName(t *testing.T) {
	assert.Equal(t, "/dev/sda1", partitionName("/dev/sda", 1))
	assert.Equal(t, "/dev/nvme0n1p5", partitionName("/dev/nvme0n1", 5))
	assert.Equal(t, "/dev/loop0p2", partitionName("/dev/loop0", 2))
	assert.Equal(t, "disk.img1", partitionName("disk.img", 1))
}

func TestFormatSizes(t *testing.T) {
	assert.Equal(t, "100M", formatShort(uint64(100<<20)))
	assert.Equal(t, "1.5G", formatShort(uint64(1536<<20)))
	assert.Equal(t, "512B", formatShort(512))
	assert.Equal(t, "1.0 GB", formatBytes(int64(1<<30)))
	assert.Equal(t, "100 bytes", formatBytes(100))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"2048", 2048},
		{"100M", 204800},
		{"100MiB", 204800},
		{"1G", 2097152},
		{"1gb", 2097152},
		{"4K", 8},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in, 512)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	for _, bad := range []string{"", "x", "10Q", "-5"} {
		_, err := parseSize(bad, 512)
		assert.Error(t, err, bad)
	}
}

func TestHexDump(t *testing.T) {
	buf := make([]byte, 32)
	copy(buf, "DOSLABEL")
	buf[30], buf[31] = 0x55, 0xaa
	var out bytes.Buffer
	hexDump(&out, buf, 0x200)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "00000200  44 4F 53 4C 41 42 45 4C  00 00 00 00 00 00 00 00   |DOSLABEL........|", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "55 AA   |..............U.|"), lines[1])
}

func TestPrintPartitions(t *testing.T) {
	s := memSession(t, newDisk())
	_, err := s.table.Add(dos.Primary, dos.TypeLinux, 2048, 204800)
	require.NoError(t, err)
	_, err = s.table.ToggleBoot(0)
	require.NoError(t, err)

	// an ext4 superblock at the start of the partition
	sb := make([]byte, 512)
	sb[0x38], sb[0x39] = 0x53, 0xef
	sb[0x60] = 0x40
	require.NoError(t, s.dev.WriteSector(2048+2, sb))

	var out bytes.Buffer
	s.printDisk(&out)
	s.printPartitions(&out)
	text := out.String()
	assert.Contains(t, text, "Disk /dev/sdz: 1.0 GB, 1073741824 bytes, 2097152 sectors")
	assert.Contains(t, text, "Geometry: 255 heads, 63 sectors/track, 130 cylinders")
	assert.Regexp(t, `/dev/sdz1\s+\*\s+2048\s+206847\s+204800\s+100M\s+83\s+Linux\s+ext4`, text)
}
