package blkdev

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SysBlock is where the kernel lists block devices.
const SysBlock = "/sys/class/block"

var skipPrefixes = []string{"loop", "zram", "ram", "sr", "fd"}

// Info describes a whole disk found in sysfs.
type Info struct {
	Path      string
	Sectors   uint64 // 512-byte units, as sysfs reports them
	Removable bool
}

// Size is the disk size in bytes.
func (i Info) Size() uint64 { return i.Sectors * 512 }

// List returns the whole disks under sysDir, skipping partitions, empty
// devices and RAM, loop and optical drives.
func List(sysDir string) ([]Info, error) {
	entries, err := os.ReadDir(sysDir)
	if err != nil {
		return nil, err
	}
	var out []Info
	for _, e := range entries {
		name := e.Name()
		if skipped(name) {
			continue
		}
		dir := filepath.Join(sysDir, name)
		if _, err := os.Stat(filepath.Join(dir, "partition")); err == nil {
			continue
		}
		sectors, err := readUint(filepath.Join(dir, "size"))
		if err != nil || sectors == 0 {
			continue
		}
		removable, _ := readUint(filepath.Join(dir, "removable"))
		out = append(out, Info{
			Path:      "/dev/" + name,
			Sectors:   sectors,
			Removable: removable == 1,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func skipped(name string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func readUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}
