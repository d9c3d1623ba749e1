package dos

import "sort"

// Region is a run of sectors no partition uses. Logical regions lie inside
// the extended partition.
type Region struct {
	Start   uint64
	End     uint64
	Logical bool
}

func (r Region) Size() uint64 { return r.End - r.Start + 1 }

type span struct{ start, last uint64 }

// gaps returns the uncovered runs of [lo, hi].
func gaps(used []span, lo, hi uint64) []span {
	sort.Slice(used, func(i, j int) bool { return used[i].start < used[j].start })
	var out []span
	cur := lo
	for _, u := range used {
		if u.last < cur {
			continue
		}
		if u.start > cur {
			out = append(out, span{cur, min(u.start-1, hi)})
		}
		if u.last+1 > cur {
			cur = u.last + 1
		}
		if cur > hi {
			return out
		}
	}
	if cur <= hi {
		out = append(out, span{cur, hi})
	}
	return out
}

// logicalSpans returns what the chain occupies. A link covers its EBR
// through the end of its data unless another link lies in between.
func (t *Table) logicalSpans() []span {
	links := t.chain.Links()
	var out []span
	for i, l := range links {
		padded := l.EBR < l.Data.Start
		for j, o := range links {
			if j != i && padded && (o.EBR > l.EBR && o.EBR < l.Data.Start || o.Data.Start > l.EBR && o.Data.Start < l.Data.Start) {
				padded = false
			}
		}
		if padded {
			out = append(out, span{l.EBR, l.Data.Last()})
			continue
		}
		out = append(out, span{l.EBR, l.EBR}, span{l.Data.Start, l.Data.Last()})
	}
	return out
}

// FreeRegions lists the free space outside and inside the extended
// partition. Runs smaller than the alignment grain are left out.
func (t *Table) FreeRegions() []Region {
	var out []Region
	grain := t.geo.Grain()

	var used []span
	for _, p := range t.primary {
		if p.IsUsed() {
			used = append(used, span{p.Start, p.Last()})
		}
	}
	lo, hi := t.geo.FirstLBA(), t.LastUsable()
	if lo <= hi {
		for _, g := range gaps(used, lo, hi) {
			if g.last-g.start+1 >= grain {
				out = append(out, Region{Start: g.start, End: g.last})
			}
		}
	}

	if t.ext >= 0 {
		ext := t.primary[t.ext]
		for _, g := range gaps(t.logicalSpans(), ext.Start, ext.Last()) {
			if g.last-g.start+1 >= grain {
				out = append(out, Region{Start: g.start, End: g.last, Logical: true})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// RegionAt returns the free region holding lba, preferring space inside
// the extended partition.
func (t *Table) RegionAt(lba uint64) (Region, bool) {
	var found *Region
	for _, r := range t.FreeRegions() {
		if lba < r.Start || lba > r.End {
			continue
		}
		if r.Logical {
			return r, true
		}
		found = &r
	}
	if found == nil {
		return Region{}, false
	}
	return *found, true
}

// SuggestStart returns the default first sector for a new partition in r:
// aligned, and for logical partitions leaving room for the EBR.
func (t *Table) SuggestStart(r Region) uint64 {
	if r.Logical {
		return t.geo.AlignInRange(r.Start+t.gap(), r.Start+1, r.End)
	}
	return t.geo.AlignInRange(max(r.Start, t.geo.FirstLBA()), r.Start, r.End)
}

// Unallocated counts the sectors after the MBR that belong to no partition,
// no EBR and no gap between an EBR and its partition.
func (t *Table) Unallocated() uint64 {
	var used []span
	for i, p := range t.primary {
		if p.IsUsed() && i != t.ext {
			used = append(used, span{p.Start, p.Last()})
		}
	}
	used = append(used, t.logicalSpans()...)
	last := t.geo.LastLBA()
	if last == 0 {
		return 0
	}
	var n uint64
	for _, g := range gaps(used, 1, last) {
		n += g.last - g.start + 1
	}
	return n
}
