package dos

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"83", TypeLinux},
		{"0x8e", TypeLinuxLVM},
		{" fd ", TypeLinuxRAID},
		{"L", TypeLinux},
		{"S", TypeLinuxSwap},
		{"E", TypeExtended},
		{"X", TypeLinuxExtended},
		{"U", TypeEFI},
		{"R", TypeLinuxRAID},
		{"V", TypeLinuxLVM},
		{"e", TypeFAT16LBA},
		{"5", TypeExtended},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "zz", "100", "Linux"} {
		_, err := ParseType(bad)
		assert.Error(t, err, bad)
	}
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "Linux", TypeName(TypeLinux))
	assert.Equal(t, "W95 Ext'd (LBA)", TypeExtendedLBA.Name())
	assert.Equal(t, "Unknown", Type(0xe0).Name())
	assert.Equal(t, "0c", TypeFAT32LBA.String())

	for _, typ := range []Type{TypeExtended, TypeExtendedLBA, TypeLinuxExtended} {
		assert.True(t, typ.IsExtended(), typ)
	}
	assert.False(t, TypeLinux.IsExtended())
	assert.False(t, TypeEmpty.IsExtended())

	known := KnownTypes()
	assert.True(t, sort.SliceIsSorted(known, func(i, j int) bool { return known[i] < known[j] }))
	assert.Contains(t, known, TypeLinuxLVM)
}

func TestEntryCodec(t *testing.T) {
	b := make([]byte, entrySize)
	e := entry{Flag: bootFlagActive, Type: TypeLinux, Start: 0x01020304, Size: 0xa0b0c0d0}
	e.Begin[0], e.Begin[1], e.Begin[2] = 1, 2, 3
	e.encode(b)
	assert.Equal(t, []byte{0x80, 1, 2, 3, 0x83, 0, 0, 0, 4, 3, 2, 1, 0xd0, 0xc0, 0xb0, 0xa0}, b)
	assert.Equal(t, e, decodeEntry(b))
}

func TestErrorMessages(t *testing.T) {
	e := newError("add partition", ErrOverlap)
	e.Slot = 1
	e.Start, e.End = 100, 199
	e.Lo, e.Hi = 300, 400
	assert.Equal(t, "add partition: overlaps another partition (partition 2): requested 100-199, available 300-400", e.Error())

	io := &IOError{Op: "write", LBA: 7, Err: ErrVerify}
	assert.Equal(t, "write sector 7: read back differs from written data", io.Error())
	assert.ErrorIs(t, io, ErrVerify)
}
