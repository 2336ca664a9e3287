// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package junction

import (
	"sort"

	"github.com/biogo/store/llrb"
)

type tableRow struct {
	total uint32
	// Strand votes; only used when strand is not part of the identity.
	fwd, rev uint32
	// cells maps barcode index to count.  nil in bulk mode.
	cells map[int]uint32
}

// Table accumulates junction counts, per barcode in single-cell mode.  Counts
// only ever increase.  A Table is not safe for concurrent use.
type Table struct {
	stranded bool
	rows     map[Junction]*tableRow
}

// NewTable creates an empty table.  If stranded is set, observations of the
// same interval on opposite strands are counted separately.
func NewTable(stranded bool) *Table {
	return &Table{stranded: stranded, rows: make(map[Junction]*tableRow)}
}

func (t *Table) row(k Junction) *tableRow {
	r := t.rows[k]
	if r == nil {
		r = &tableRow{}
		t.rows[k] = r
	}
	return r
}

// Add counts one observation of j.  barcode is the barcode column index, or -1
// in bulk mode.
func (t *Table) Add(j Junction, barcode int) {
	r := t.row(j.key(t.stranded))
	r.total++
	if !t.stranded {
		switch j.Strand {
		case StrandFwd:
			r.fwd++
		case StrandRev:
			r.rev++
		}
	}
	if barcode >= 0 {
		if r.cells == nil {
			r.cells = make(map[int]uint32)
		}
		r.cells[barcode]++
	}
}

// Merge adds the counts of o into t.  remap[i] is the index in t's barcode
// space of o's barcode i; a nil remap means the spaces are the same.
func (t *Table) Merge(o *Table, remap []int) {
	for k, or := range o.rows {
		r := t.row(k)
		r.total += or.total
		r.fwd += or.fwd
		r.rev += or.rev
		for b, n := range or.cells {
			if remap != nil {
				b = remap[b]
			}
			if r.cells == nil {
				r.cells = make(map[int]uint32)
			}
			r.cells[b] += n
		}
	}
}

// Len returns the number of distinct junctions.
func (t *Table) Len() int { return len(t.rows) }

// Cell is a nonzero entry of a junction's per-barcode counts.
type Cell struct {
	Barcode int
	Count   uint32
}

// Row is one junction of a Snapshot.
type Row struct {
	Junction
	Count uint32
	// Cells holds the nonzero per-barcode counts in increasing barcode order.
	// Empty in bulk mode.
	Cells []Cell
}

// Snapshot is the immutable, sorted rendering of a Table.
type Snapshot struct {
	Mode Mode
	// ShowStrand is set when strand was inferred; the bulk table then has a
	// strand column.
	ShowStrand bool
	// Barcodes lists the barcodes in column order.
	Barcodes []string
	// Rows are sorted by (Ref, Start, End, Strand).
	Rows []Row
}

// NNZ returns the number of nonzero (junction, barcode) cells.
func (s *Snapshot) NNZ() int {
	n := 0
	for _, r := range s.Rows {
		n += len(r.Cells)
	}
	return n
}

// Total returns the sum of all junction counts.
func (s *Snapshot) Total() uint64 {
	var n uint64
	for _, r := range s.Rows {
		n += uint64(r.Count)
	}
	return n
}

// displayStrand returns the strand reported for an unstranded junction:
// unanimous votes decide, anything else is StrandNone.
func displayStrand(r *tableRow) Strand {
	switch {
	case r.fwd > 0 && r.rev == 0:
		return StrandFwd
	case r.rev > 0 && r.fwd == 0:
		return StrandRev
	}
	return StrandNone
}

// Snapshot renders t.  barcodes is the barcode list in column order.
func (t *Table) Snapshot(mode Mode, showStrand bool, barcodes []string) *Snapshot {
	var idx llrb.Tree
	for k := range t.rows {
		idx.Insert(k)
	}
	snap := &Snapshot{
		Mode:       mode,
		ShowStrand: showStrand,
		Barcodes:   append([]string(nil), barcodes...),
		Rows:       make([]Row, 0, idx.Len()),
	}
	idx.Do(func(c llrb.Comparable) bool {
		k := c.(Junction)
		r := t.rows[k]
		row := Row{Junction: k, Count: r.total}
		if !t.stranded {
			row.Strand = displayStrand(r)
		}
		if len(r.cells) > 0 {
			row.Cells = make([]Cell, 0, len(r.cells))
			for b, n := range r.cells {
				row.Cells = append(row.Cells, Cell{Barcode: b, Count: n})
			}
			sort.Slice(row.Cells, func(i, j int) bool { return row.Cells[i].Barcode < row.Cells[j].Barcode })
		}
		snap.Rows = append(snap.Rows, row)
		return false
	})
	return snap
}
