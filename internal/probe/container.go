package probe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ContainerType is a volume manager or encryption layer.
type ContainerType string

// Container types.
const (
	ContainerLUKS   ContainerType = "LUKS"
	ContainerLVM2PV ContainerType = "LVM2_member"
	ContainerMDRAID ContainerType = "linux_raid_member"
)

// Confidence grades how much of a container header was checked.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
)

// Container is a detected container header.
type Container struct {
	Type       ContainerType
	Offset     int64 // bytes, absolute
	Confidence Confidence
	Notes      string
}

func (c Container) String() string {
	return fmt.Sprintf("%s (%s confidence, %s)", c.Type, c.Confidence, c.Notes)
}

var luksMagic = []byte{'L', 'U', 'K', 'S', 0xba, 0xbe}

func detectLUKS(r io.ReaderAt, off int64) (Container, bool) {
	buf, err := readWindow(r, off, 8)
	if err != nil || !bytes.Equal(buf[:6], luksMagic) {
		return Container{}, false
	}
	c := Container{Type: ContainerLUKS, Offset: off, Confidence: High}
	ver := binary.BigEndian.Uint16(buf[6:8])
	if ver == 1 || ver == 2 {
		c.Notes = fmt.Sprintf("version %d", ver)
	} else {
		c.Confidence = Medium
		c.Notes = fmt.Sprintf("unexpected version %d", ver)
	}
	return c, true
}

// detectLVM2PV looks for the physical volume label, which lives in one of
// the first four sectors.
func detectLVM2PV(r io.ReaderAt, off int64, sectorSize int64) (Container, bool) {
	for i := int64(0); i < 4; i++ {
		at := off + i*sectorSize
		buf, err := readWindow(r, at, sectorSize)
		if err != nil || !bytes.HasPrefix(buf, []byte("LABELONE")) {
			continue
		}
		c := Container{Type: ContainerLVM2PV, Offset: at, Confidence: Medium, Notes: "LABELONE label"}
		if bytes.Equal(buf[0x18:0x20], []byte("LVM2 001")) {
			c.Confidence = High
			c.Notes = "LABELONE label, LVM2 001 type"
		}
		return c, true
	}
	return Container{}, false
}

const mdMagic = 0xa92b4efc

type mdLocation struct {
	at    int64
	notes string
}

// detectMDRAID checks the version 1.1 and 1.2 superblocks near the start
// and the 0.90 and 1.0 superblocks near the end of the partition.
func detectMDRAID(r io.ReaderAt, off, size int64) (Container, bool) {
	candidates := []mdLocation{
		{0, "version 1.1 superblock"},
		{4096, "version 1.2 superblock"},
	}
	if size >= 128*1024 {
		candidates = append(candidates,
			mdLocation{size&^(64*1024-1) - 64*1024, "version 0.90 superblock"},
			mdLocation{(size - 8*1024) &^ (4*1024 - 1), "version 1.0 superblock"},
		)
	}

	for _, cand := range candidates {
		buf, err := readWindow(r, off+cand.at, 8)
		if err != nil {
			continue
		}
		le := binary.LittleEndian.Uint32(buf)
		be := binary.BigEndian.Uint32(buf)
		if le != mdMagic && be != mdMagic {
			continue
		}
		c := Container{Type: ContainerMDRAID, Offset: off + cand.at, Confidence: Medium, Notes: cand.notes}
		if major := binary.LittleEndian.Uint32(buf[4:]); major == 0 || major == 1 {
			c.Confidence = High
		}
		return c, true
	}
	return Container{}, false
}

// Containers returns every container header found in the size bytes at
// off.
func Containers(r io.ReaderAt, off, size, sectorSize int64) []Container {
	var found []Container
	if c, ok := detectLUKS(r, off); ok {
		found = append(found, c)
	}
	if c, ok := detectLVM2PV(r, off, sectorSize); ok {
		found = append(found, c)
	}
	if c, ok := detectMDRAID(r, off, size); ok {
		found = append(found, c)
	}
	return found
}
