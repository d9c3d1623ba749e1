package dos

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Type is the system id byte of a partition entry.
type Type byte

const (
	TypeEmpty         Type = 0x00
	TypeFAT12         Type = 0x01
	TypeFAT16Small    Type = 0x04
	TypeExtended      Type = 0x05
	TypeFAT16         Type = 0x06
	TypeNTFS          Type = 0x07
	TypeFAT32         Type = 0x0b
	TypeFAT32LBA      Type = 0x0c
	TypeFAT16LBA      Type = 0x0e
	TypeExtendedLBA   Type = 0x0f
	TypeLinuxSwap     Type = 0x82
	TypeLinux         Type = 0x83
	TypeLinuxExtended Type = 0x85
	TypeLinuxLVM      Type = 0x8e
	TypeGPTProtective Type = 0xee
	TypeEFI           Type = 0xef
	TypeLinuxRAID     Type = 0xfd
)

var typeNames = map[Type]string{
	0x00: "Empty",
	0x01: "FAT12",
	0x02: "XENIX root",
	0x03: "XENIX usr",
	0x04: "FAT16 <32M",
	0x05: "Extended",
	0x06: "FAT16",
	0x07: "HPFS/NTFS/exFAT",
	0x08: "AIX",
	0x0a: "OS/2 Boot Manager",
	0x0b: "W95 FAT32",
	0x0c: "W95 FAT32 (LBA)",
	0x0e: "W95 FAT16 (LBA)",
	0x0f: "W95 Ext'd (LBA)",
	0x11: "Hidden FAT12",
	0x12: "Compaq diagnostics",
	0x14: "Hidden FAT16 <32M",
	0x16: "Hidden FAT16",
	0x17: "Hidden HPFS/NTFS",
	0x1b: "Hidden W95 FAT32",
	0x1c: "Hidden W95 FAT32 (LBA)",
	0x1e: "Hidden W95 FAT16 (LBA)",
	0x27: "Hidden NTFS WinRE",
	0x39: "Plan 9",
	0x3c: "PartitionMagic recovery",
	0x42: "SFS",
	0x4d: "QNX4.x",
	0x63: "GNU HURD or SysV",
	0x80: "Old Minix",
	0x81: "Minix / old Linux",
	0x82: "Linux swap / Solaris",
	0x83: "Linux",
	0x84: "OS/2 hidden or Intel hibernation",
	0x85: "Linux extended",
	0x86: "NTFS volume set",
	0x87: "NTFS volume set",
	0x88: "Linux plaintext",
	0x8e: "Linux LVM",
	0x93: "Amoeba",
	0xa5: "FreeBSD",
	0xa6: "OpenBSD",
	0xa8: "Darwin UFS",
	0xa9: "NetBSD",
	0xab: "Darwin boot",
	0xaf: "HFS / HFS+",
	0xbe: "Solaris boot",
	0xbf: "Solaris",
	0xda: "Non-FS data",
	0xeb: "BeOS fs",
	0xee: "GPT",
	0xef: "EFI (FAT-12/16/32)",
	0xf0: "Linux/PA-RISC boot",
	0xfb: "VMware VMFS",
	0xfc: "VMware VMKCORE",
	0xfd: "Linux raid autodetect",
	0xfe: "LANstep",
	0xff: "BBT",
}

// IsExtended reports whether t marks a container for logical partitions.
// 0x05, 0x0f and 0x85 are treated alike.
func (t Type) IsExtended() bool {
	switch t {
	case TypeExtended, TypeExtendedLBA, TypeLinuxExtended:
		return true
	default:
		return false
	}
}

// Name returns the human readable name of the type.
func (t Type) Name() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Unknown"
}

func (t Type) String() string {
	return fmt.Sprintf("%02x", byte(t))
}

// KnownTypes lists the types with a name, in ascending order.
func KnownTypes() []Type {
	types := make([]Type, 0, len(typeNames))
	for t := range typeNames {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

var typeShortcuts = map[string]Type{
	"L": TypeLinux,
	"S": TypeLinuxSwap,
	"E": TypeExtended,
	"X": TypeLinuxExtended,
	"U": TypeEFI,
	"R": TypeLinuxRAID,
	"V": TypeLinuxLVM,
}

// ParseType accepts a hex type id ("83", "0x83") or one of the sfdisk
// shortcuts L, S, E, X, U, R and V. Shortcuts are upper case only, so "e"
// is type 0x0e.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if t, ok := typeShortcuts[s]; ok {
		return t, nil
	}
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid partition type %q: %w", s, err)
	}
	return Type(v), nil
}

// TypeName returns the name of t, "Unknown" for unlisted ids.
func TypeName(t Type) string {
	return t.Name()
}
