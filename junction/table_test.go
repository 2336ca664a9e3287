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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stranded(j Junction, s Strand) Junction {
	j.Strand = s
	return j
}

func TestTableBulkSnapshot(t *testing.T) {
	tab := NewTable(false)
	tab.Add(junc("chr2", 100, 200), -1)
	tab.Add(junc("chr10", 500, 900), -1)
	tab.Add(junc("chr1", 300, 400), -1)
	tab.Add(junc("chr1", 100, 250), -1)
	tab.Add(junc("chr1", 100, 200), -1)
	tab.Add(junc("chr1", 100, 200), -1)

	snap := tab.Snapshot(ModeBulk, false, nil)
	require.Len(t, snap.Rows, 5)
	var got []Junction
	for _, r := range snap.Rows {
		got = append(got, r.Junction)
		assert.Empty(t, r.Cells)
	}
	assert.Equal(t, []Junction{
		junc("chr1", 100, 200),
		junc("chr1", 100, 250),
		junc("chr1", 300, 400),
		junc("chr10", 500, 900),
		junc("chr2", 100, 200),
	}, got)
	assert.Equal(t, uint32(2), snap.Rows[0].Count)
	assert.Equal(t, uint64(6), snap.Total())
	assert.Equal(t, 0, snap.NNZ())
}

func TestTableStrandVotes(t *testing.T) {
	j := junc("chr1", 100, 200)
	k := junc("chr1", 300, 400)
	l := junc("chr1", 500, 600)

	tab := NewTable(false)
	tab.Add(stranded(j, StrandFwd), -1)
	tab.Add(stranded(j, StrandFwd), -1)
	tab.Add(stranded(k, StrandFwd), -1)
	tab.Add(stranded(k, StrandRev), -1)
	tab.Add(stranded(l, StrandRev), -1)
	snap := tab.Snapshot(ModeBulk, true, nil)
	require.Len(t, snap.Rows, 3)
	assert.Equal(t, StrandFwd, snap.Rows[0].Strand)
	assert.Equal(t, uint32(2), snap.Rows[0].Count)
	assert.Equal(t, StrandNone, snap.Rows[1].Strand)
	assert.Equal(t, uint32(2), snap.Rows[1].Count)
	assert.Equal(t, StrandRev, snap.Rows[2].Strand)

	// With stranded identity the two strands of k are distinct junctions.
	tab = NewTable(true)
	tab.Add(stranded(k, StrandRev), -1)
	tab.Add(stranded(k, StrandFwd), -1)
	snap = tab.Snapshot(ModeBulk, true, nil)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, StrandFwd, snap.Rows[0].Strand)
	assert.Equal(t, StrandRev, snap.Rows[1].Strand)
	assert.Equal(t, uint32(1), snap.Rows[0].Count)
}

func TestTableCellsAndMerge(t *testing.T) {
	j := junc("chr1", 100, 200)
	k := junc("chr2", 100, 200)

	a := NewTable(false)
	a.Add(j, 1)
	a.Add(j, 0)
	a.Add(j, 1)

	// b's barcode 0 is a's barcode 1; b's barcode 1 is new (a's 2).
	b := NewTable(false)
	b.Add(j, 0)
	b.Add(k, 1)
	a.Merge(b, []int{1, 2})

	snap := a.Snapshot(ModeSingleCell, false, []string{"A", "B", "C"})
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, uint32(4), snap.Rows[0].Count)
	assert.Equal(t, []Cell{{Barcode: 0, Count: 1}, {Barcode: 1, Count: 3}}, snap.Rows[0].Cells)
	assert.Equal(t, []Cell{{Barcode: 2, Count: 1}}, snap.Rows[1].Cells)
	assert.Equal(t, 3, snap.NNZ())
	assert.Equal(t, []string{"A", "B", "C"}, snap.Barcodes)

	// Every nonzero cell sums to the total.
	var sum uint64
	for _, r := range snap.Rows {
		for _, c := range r.Cells {
			sum += uint64(c.Count)
		}
	}
	assert.Equal(t, snap.Total(), sum)
}
