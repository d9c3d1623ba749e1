package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"doslabel/internal/dos"
)

// scriptPart is one partition line of an sfdisk script. Unset fields take
// their defaults when the script is applied.
type scriptPart struct {
	num      int
	start    uint64
	size     uint64
	typ      dos.Type
	boot     bool
	hasStart bool
	hasSize  bool
	hasType  bool
}

type script struct {
	label    string
	labelID  uint32
	hasID    bool
	unit     string
	firstLBA uint64
	parts    []scriptPart
}

var headerKeys = map[string]bool{
	"label":        true,
	"label-id":     true,
	"device":       true,
	"unit":         true,
	"first-lba":    true,
	"last-lba":     true,
	"sector-size":  true,
	"grain":        true,
	"table-length": true,
}

// dumpScript writes t in the format parseScript reads.
func dumpScript(w io.Writer, device string, t *dos.Table) {
	g := t.Geometry()
	fmt.Fprintln(w, "label: dos")
	fmt.Fprintf(w, "label-id: 0x%08x\n", t.DiskID())
	fmt.Fprintf(w, "device: %s\n", device)
	fmt.Fprintln(w, "unit: sectors")
	fmt.Fprintf(w, "first-lba: %d\n", g.FirstLBA())
	fmt.Fprintf(w, "sector-size: %d\n", g.SectorSize())
	fmt.Fprintln(w)

	for _, p := range t.Partitions() {
		fmt.Fprintf(w, "%s : start=%12d, size=%12d, type=%x", partitionName(device, p.ID.Number()), p.Start, p.Size, byte(p.Type))
		if p.Boot {
			fmt.Fprint(w, ", bootable")
		}
		fmt.Fprintln(w)
	}
}

// parseScript reads an sfdisk script. Sizes and starts with a K, M, G or T
// suffix are converted with sectorSize.
func parseScript(r io.Reader, sectorSize uint64) (*script, error) {
	sc := &script{label: "dos", unit: "sectors"}
	next := 1
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		if key, val, ok := strings.Cut(line, ":"); ok && !strings.Contains(line, "=") && headerKeys[strings.TrimSpace(key)] {
			if err := sc.header(strings.TrimSpace(key), strings.TrimSpace(val)); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		var (
			p   scriptPart
			err error
		)
		if strings.Contains(line, "=") {
			p, err = parseNamedLine(line, sectorSize)
		} else {
			p, err = parseShortLine(line, sectorSize)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if p.num == 0 {
			p.num = next
		}
		for _, q := range sc.parts {
			if q.num == p.num {
				return nil, fmt.Errorf("line %d: partition %d given twice", lineNo, p.num)
			}
		}
		next = p.num + 1
		sc.parts = append(sc.parts, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *script) header(key, val string) error {
	switch key {
	case "label":
		if val != "dos" {
			return fmt.Errorf("unsupported label type %q", val)
		}
	case "label-id":
		id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(val), "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("invalid label-id %q", val)
		}
		sc.labelID, sc.hasID = uint32(id), true
	case "unit":
		if val != "sectors" {
			return fmt.Errorf("unsupported unit %q", val)
		}
	case "first-lba":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid first-lba %q", val)
		}
		sc.firstLBA = n
	}
	return nil
}

// parseNamedLine reads "[NAME :] start=N, size=N, type=T, bootable".
func parseNamedLine(line string, sectorSize uint64) (scriptPart, error) {
	var p scriptPart
	if name, rest, ok := strings.Cut(line, ":"); ok && !strings.Contains(name, "=") {
		p.num = trailingNumber(strings.TrimSpace(name))
		line = rest
	}
	for _, field := range strings.Split(line, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, val, _ := strings.Cut(field, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		var err error
		switch key {
		case "start":
			p.start, p.hasStart, err = parseOptional(val, sectorSize)
		case "size":
			p.size, p.hasSize, err = parseOptional(val, sectorSize)
		case "type", "Id":
			p.typ, err = dos.ParseType(val)
			p.hasType = true
		case "bootable":
			p.boot = true
		case "attrs", "uuid", "name":
		default:
			err = fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// parseShortLine reads "start,size,type,bootable". Empty fields and "-"
// take the default, bootable is "*".
func parseShortLine(line string, sectorSize uint64) (scriptPart, error) {
	var p scriptPart
	var fields []string
	if strings.Contains(line, ",") {
		fields = strings.Split(line, ",")
	} else {
		fields = strings.Fields(line)
	}
	if len(fields) > 4 {
		return p, fmt.Errorf("too many fields in %q", line)
	}
	for len(fields) < 4 {
		fields = append(fields, "")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var err error
	if p.start, p.hasStart, err = parseOptional(fields[0], sectorSize); err != nil {
		return p, err
	}
	if p.size, p.hasSize, err = parseOptional(fields[1], sectorSize); err != nil {
		return p, err
	}
	if f := fields[2]; f != "" && f != "-" {
		if p.typ, err = dos.ParseType(f); err != nil {
			return p, err
		}
		p.hasType = true
	}
	switch fields[3] {
	case "*", "+", "bootable":
		p.boot = true
	case "", "-":
	default:
		return p, fmt.Errorf("invalid bootable flag %q", fields[3])
	}
	return p, nil
}

// parseOptional returns false for "", "-" and "+", which ask for the
// default.
func parseOptional(s string, sectorSize uint64) (uint64, bool, error) {
	if s == "" || s == "-" || s == "+" {
		return 0, false, nil
	}
	n, err := parseSize(strings.TrimPrefix(s, "+"), sectorSize)
	return n, err == nil, err
}

func trailingNumber(name string) int {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	n, _ := strconv.Atoi(name[i:])
	return n
}

// apply replaces the partitions of t with the ones in sc. Lines 1 to 4
// are primary partitions, later lines are logical.
func (sc *script) apply(t *dos.Table) error {
	t.Reset()
	if sc.hasID {
		t.SetDiskID(sc.labelID)
	}

	// primaries first so logicals land in the extended partition they name
	for _, logical := range []bool{false, true} {
		for _, p := range sc.parts {
			if (p.num > 4) != logical {
				continue
			}
			if err := sc.add(t, p); err != nil {
				return fmt.Errorf("partition %d: %w", p.num, err)
			}
		}
	}
	return nil
}

func (sc *script) add(t *dos.Table, p scriptPart) error {
	kind := dos.Primary
	if p.num > 4 {
		kind = dos.Logical
	}
	typ := dos.TypeLinux
	if p.hasType {
		typ = p.typ
	}

	start, size := p.start, p.size
	if !p.hasStart || !p.hasSize {
		r, ok := freeRegionFor(t, kind, p)
		if !ok {
			return fmt.Errorf("no free space")
		}
		if !p.hasStart {
			start = t.SuggestStart(r)
			if sc.firstLBA != 0 && !r.Logical && start < sc.firstLBA && sc.firstLBA <= r.End {
				start = sc.firstLBA
			}
		}
		if !p.hasSize {
			if start > r.End {
				return fmt.Errorf("no free space at sector %d", start)
			}
			size = r.End - start + 1
		}
	}

	id, err := t.Add(kind, typ, start, size)
	if err != nil {
		return err
	}
	if p.boot {
		if _, err := t.ToggleBoot(id); err != nil {
			return err
		}
	}
	return nil
}

// freeRegionFor picks the region a partition line with defaults goes to:
// the one holding its start, else the first one of the right kind.
func freeRegionFor(t *dos.Table, kind dos.Kind, p scriptPart) (dos.Region, bool) {
	if p.hasStart {
		return t.RegionAt(p.start)
	}
	_, hasExt := t.Extended()
	wantLogical := kind == dos.Logical && hasExt
	for _, r := range t.FreeRegions() {
		if r.Logical == wantLogical {
			return r, true
		}
	}
	return dos.Region{}, false
}
