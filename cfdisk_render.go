package main

import (
	"fmt"

	tcell "github.com/gdamore/tcell/v2"

	"doslabel/internal/dos"
)

const cfdiskKeys = "[n]ew  [d]elete  [b]ootable  [t]ype  [s]ort  [W]rite  [q]uit"

// drawText writes s at (x, y), clipped to the screen width.
func drawText(screen tcell.Screen, x, y int, s string, style tcell.Style) {
	width, _ := screen.Size()
	for _, ch := range s {
		if x >= width {
			break
		}
		screen.SetContent(x, y, ch, nil, style)
		x++
	}
}

func drawCentered(screen tcell.Screen, y int, s string, style tcell.Style) {
	width, _ := screen.Size()
	drawText(screen, max((width-len(s))/2, 0), y, s, style)
}

// rowText formats a row of the partition list.
func (c *cfdisk) rowText(r cfdiskRow) string {
	g := c.s.table.Geometry()
	if r.free != nil {
		indent := ""
		if r.free.Logical {
			indent = "  "
		}
		return fmt.Sprintf("%-14s %4s %12d %12d %12d %7s  %s",
			indent+"Free space", "", r.free.Start, r.free.End, r.free.Size(), formatShort(g.Bytes(r.free.Size())), "")
	}
	p := r.part
	name := partitionName(c.s.path, p.ID.Number())
	if p.ID.IsLogical() {
		name = "  " + name
	}
	boot := ""
	if p.Boot {
		boot = "*"
	}
	return fmt.Sprintf("%-14s %4s %12d %12d %12d %7s  %s %s",
		name, boot, p.Start, p.Last(), p.Size, formatShort(g.Bytes(p.Size)), p.Type, p.Type.Name())
}

func (c *cfdisk) render(screen tcell.Screen) {
	screen.Clear()
	width, height := screen.Size()
	t := c.s.table
	g := t.Geometry()
	bold := tcell.StyleDefault.Bold(true)

	drawCentered(screen, 0, "Disk: "+c.s.path, bold)
	drawCentered(screen, 1, fmt.Sprintf("Size: %s, %d bytes, %d sectors",
		formatBytes(g.Bytes(g.TotalSectors)), g.Bytes(g.TotalSectors), g.TotalSectors), tcell.StyleDefault)
	drawCentered(screen, 2, fmt.Sprintf("Label: dos, identifier: 0x%08x", t.DiskID()), tcell.StyleDefault)

	header := fmt.Sprintf("%-14s %4s %12s %12s %12s %7s  %s", "Device", "Boot", "Start", "End", "Sectors", "Size", "Id Type")
	drawText(screen, 0, 4, header, bold)

	y := 5
	for i, r := range c.rows {
		if y >= height-4 {
			break
		}
		style := tcell.StyleDefault
		if r.free != nil {
			style = style.Dim(true)
		}
		prefix := "  "
		if i == c.sel {
			style = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
			prefix = "> "
		}
		line := prefix + c.rowText(r)
		for x := len(line); x < width; x++ {
			line += " "
		}
		drawText(screen, 0, y, line, style)
		y++
	}

	// status line
	statusY := height - 3
	for x := 0; x < width; x++ {
		screen.SetContent(x, statusY, ' ', nil, tcell.StyleDefault.Reverse(true))
	}
	status := c.status
	if status == "" {
		if fs := dos.Check(t); len(fs) > 0 {
			status = fs[0].String()
		}
	}
	drawText(screen, 0, statusY, status, tcell.StyleDefault.Reverse(true))

	switch c.mode {
	case modeInput:
		drawText(screen, 0, height-2, fmt.Sprintf("%s: %s", c.input.label, string(c.input.text)), bold)
		screen.ShowCursor(len(c.input.label)+2+len(c.input.text), height-2)
	default:
		screen.HideCursor()
		drawCentered(screen, height-1, cfdiskKeys, tcell.StyleDefault.Dim(true))
	}
	if c.mode == modePicker {
		c.renderPicker(screen, width, height)
	}
}

// renderPicker draws the type popup centred on the screen, scrolled so the
// selected type is visible.
func (c *cfdisk) renderPicker(screen tcell.Screen, width, height int) {
	p := c.picker
	popupWidth := min(40, width)
	popupHeight := min(len(p.types)+4, height)
	popupX := max((width-popupWidth)/2, 0)
	popupY := max((height-popupHeight)/2, 0)
	border := tcell.StyleDefault.Bold(true)
	body := tcell.StyleDefault.Reverse(true)

	for y := popupY; y < popupY+popupHeight; y++ {
		for x := popupX; x < popupX+popupWidth; x++ {
			ch := ' '
			style := body
			switch {
			case y == popupY && x == popupX:
				ch, style = '┌', border
			case y == popupY && x == popupX+popupWidth-1:
				ch, style = '┐', border
			case y == popupY+popupHeight-1 && x == popupX:
				ch, style = '└', border
			case y == popupY+popupHeight-1 && x == popupX+popupWidth-1:
				ch, style = '┘', border
			case y == popupY || y == popupY+popupHeight-1:
				ch, style = '─', border
			case x == popupX || x == popupX+popupWidth-1:
				ch, style = '│', border
			}
			screen.SetContent(x, y, ch, nil, style)
		}
	}
	drawText(screen, popupX+2, popupY+1, "Select partition type", border.Reverse(true))

	visible := popupHeight - 4
	if visible <= 0 {
		return
	}
	first := max(0, min(p.sel-visible/2, len(p.types)-visible))
	for i := 0; i < visible && first+i < len(p.types); i++ {
		typ := p.types[first+i]
		style := body
		marker := "  "
		if first+i == p.sel {
			style = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
			marker = "▶ "
		}
		text := fmt.Sprintf("%s%s %s", marker, typ, typ.Name())
		if len(text) > popupWidth-4 {
			text = text[:popupWidth-4]
		}
		drawText(screen, popupX+2, popupY+3+i, text, style)
	}
}
