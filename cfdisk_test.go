package main

import (
	"strings"
	"testing"

	tcell "github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doslabel/internal/dos"
)

func press(c *cfdisk, keys ...any) {
	for _, k := range keys {
		switch k := k.(type) {
		case tcell.Key:
			c.handleKey(tcell.NewEventKey(k, 0, tcell.ModNone))
		case string:
			for _, r := range k {
				c.handleKey(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
			}
		}
	}
}

func backspaces(n int) []any {
	keys := make([]any, n)
	for i := range keys {
		keys[i] = tcell.KeyBackspace2
	}
	return keys
}

func TestCfdiskCreate(t *testing.T) {
	dev := newDisk()
	c := newCfdisk(memSession(t, dev), writeOptions{})
	require.Len(t, c.rows, 1)

	// 2095104 sectors offered, replaced by 100M
	press(c, "n")
	press(c, backspaces(7)...)
	press(c, "100M", tcell.KeyEnter, tcell.KeyEnter)
	assert.Equal(t, "Created a new partition 1 of type 'Linux' and of size 100M.", c.status)
	press(c, "b", "j")

	press(c, "n", tcell.KeyEnter, tcell.KeyBackspace2, "e", tcell.KeyEnter)
	require.Len(t, c.rows, 3)
	assert.True(t, c.rows[1].part.Type.IsExtended())
	assert.True(t, c.rows[2].free.Logical)

	press(c, "j", "n", tcell.KeyEnter)
	require.Len(t, c.rows, 3)
	assert.Equal(t, 5, c.rows[2].part.ID.Number())

	press(c, "t", tcell.KeyUp, tcell.KeyEnter)
	assert.Equal(t, "Changed type of partition 'Linux' to 'Linux swap / Solaris'.", c.status)

	press(c, "W", "yes", tcell.KeyEnter)
	assert.Equal(t, "Calling ioctl() to re-read partition table.", c.status)
	assert.False(t, c.quit)

	assert.Equal(t, []part{
		{1, 2048, 204800, dos.TypeLinux, true},
		{2, 206848, 1890304, dos.TypeExtended, false},
		{5, 208896, 1888256, dos.TypeLinuxSwap, false},
	}, parts(reopen(t, dev)))
}

func TestCfdiskKeys(t *testing.T) {
	dev := newDisk()
	c := newCfdisk(memSession(t, dev), writeOptions{})
	assert.Equal(t, "Device does not contain a recognized partition table.", c.status)

	press(c, "d")
	assert.Len(t, c.rows, 1)

	press(c, "n", tcell.KeyEnter, tcell.KeyEnter)
	require.Len(t, c.rows, 1)
	require.NotNil(t, c.rows[0].part)

	press(c, "n")
	assert.Equal(t, "Select free space to create a partition.", c.status)

	press(c, "s")
	assert.Equal(t, "Nothing to do. Ordering is correct already.", c.status)

	press(c, "W", "no", tcell.KeyEnter)
	assert.Equal(t, "Did not write partition table to disk.", c.status)
	assert.Empty(t, dev.Written())

	// Esc leaves a prompt without acting
	press(c, "d")
	assert.Equal(t, "Partition 1 has been deleted.", c.status)
	press(c, "n", tcell.KeyEscape)
	assert.Equal(t, modeList, c.mode)
	assert.Nil(t, c.rows[0].part)

	press(c, "n")
	press(c, backspaces(7)...)
	press(c, "0", tcell.KeyEnter)
	assert.Contains(t, c.status, "Value out of range")

	press(c, "q")
	assert.True(t, c.quit)
}

func TestCfdiskRows(t *testing.T) {
	s := memSession(t, newDisk())
	_, err := s.table.Add(dos.Primary, dos.TypeExtended, 1050624, 1046528)
	require.NoError(t, err)
	_, err = s.table.Add(dos.Primary, dos.TypeLinux, 2048, 204800)
	require.NoError(t, err)

	rows := cfdiskRows(s.table)
	var got []string
	for _, r := range rows {
		if r.part != nil {
			got = append(got, r.part.ID.String())
		} else if r.free.Logical {
			got = append(got, "logical free")
		} else {
			got = append(got, "free")
		}
	}
	assert.Equal(t, []string{"2", "free", "1", "logical free"}, got)
}

func TestCfdiskRender(t *testing.T) {
	s := memSession(t, newDisk())
	_, err := s.table.Add(dos.Primary, dos.TypeLinux, 2048, 204800)
	require.NoError(t, err)
	c := newCfdisk(s, writeOptions{})

	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	defer screen.Fini()
	screen.SetSize(100, 30)
	c.render(screen)
	screen.Show()

	cells, width, _ := screen.GetContents()
	var sb strings.Builder
	for i, cell := range cells {
		if i > 0 && i%width == 0 {
			sb.WriteByte('\n')
		}
		if len(cell.Runes) > 0 {
			sb.WriteRune(cell.Runes[0])
		} else {
			sb.WriteByte(' ')
		}
	}
	text := sb.String()
	assert.Contains(t, text, "/dev/sdz1")
	assert.Contains(t, text, "Free space")
	assert.Contains(t, text, "[W]rite")
}
