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
	"blainsmith.com/go/seahash"
	"github.com/biogo/store/llrb"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/hts/sam"
)

// We track templates whose first-seen end contributed junctions, and drop
// junctions already credited to the template when the other end streams past.
// A template is tracked only while one end is outstanding.  Further
// alignments of an end already seen (e.g. supplementary records) are
// deduplicated against the template the same way.
//
// With coordinate-sorted input an end whose mate starts earlier on the same
// reference can never create an entry: if the mate had junctions the entry
// already exists, and otherwise there is nothing to deduplicate against.  When
// both ends start at the same position either may come first, so the first
// one is tracked even without junctions.  Each entry is keyed by its mate's
// start, and is evicted once the stream moves past it without the mate
// showing up (e.g. because the mate was filtered).  Entries can't outlive
// their reference, so the whole table is dropped when the reference changes.
// This bounds memory by the number of in-flight pairs.
//
// Templates are identified by a 64-bit hash of their name.  The name is kept
// in the entry, and a hash collision between two live templates makes the
// second one bypass deduplication.

// templateEntry is a slot in pairDeduper.arena.
type templateEntry struct {
	name string
	hash uint64
	// matePos is the start of the outstanding end; used only when
	// coordSorted is set.
	matePos int
	// seen is the union of the Read1/Read2 bits of the ends seen so far.
	seen sam.Flags
	// junctions credited to the template, as keys.
	junctions []Junction
}

type pairDeduper struct {
	coordSorted bool
	stranded    bool

	index map[uint64]int32
	arena []templateEntry
	free  []int32

	// curRef is the reference ID of the last record seen, and pending orders
	// the live entries by matePos.  Used only when coordSorted is set.
	curRef  int
	pending llrb.Tree
}

// pendingMate is an element of pairDeduper.pending.
type pendingMate struct {
	pos  int
	slot int32
}

// Compare implements llrb.Comparable.
func (p pendingMate) Compare(c llrb.Comparable) int {
	o := c.(pendingMate)
	if p.pos != o.pos {
		if p.pos < o.pos {
			return -1
		}
		return 1
	}
	return int(p.slot) - int(o.slot)
}

func newPairDeduper(coordSorted, stranded bool) *pairDeduper {
	return &pairDeduper{
		coordSorted: coordSorted,
		stranded:    stranded,
		index:       make(map[uint64]int32),
		curRef:      -1,
	}
}

func hashTemplate(name string) uint64 {
	return seahash.Sum64(gunsafe.StringToBytes(name))
}

// mateBit returns the Read1/Read2 bit of rec, or 0 if exactly one of them
// isn't set.
func mateBit(rec *sam.Record) sam.Flags {
	switch rec.Flags & (sam.Read1 | sam.Read2) {
	case sam.Read1:
		return sam.Read1
	case sam.Read2:
		return sam.Read2
	}
	return 0
}

// bypass reports whether rec can't share a junction with its mate.
func bypass(rec *sam.Record) bool {
	if rec.Flags&sam.Paired == 0 || rec.Flags&sam.MateUnmapped != 0 {
		return true
	}
	if rec.MateRef == nil || rec.Ref == nil || rec.MateRef.ID() != rec.Ref.ID() {
		return true
	}
	return mateBit(rec) == 0
}

// observe filters obs, the accepted junctions of rec, down to those not yet
// credited to rec's template.  The kept junctions are written over the prefix
// of obs and returned, along with the number dropped.  observe must be called
// for every paired record that reaches deduplication, including records with
// no accepted junctions, so that finished templates are retired.
func (d *pairDeduper) observe(rec *sam.Record, obs []Junction) ([]Junction, int) {
	if d.coordSorted && rec.Ref != nil {
		if rec.Ref.ID() != d.curRef {
			d.reset()
			d.curRef = rec.Ref.ID()
		} else {
			d.evict(rec.Pos)
		}
	}
	if bypass(rec) {
		return obs, 0
	}
	sameStart := d.coordSorted && rec.MatePos == rec.Pos
	if len(obs) == 0 && len(d.index) == 0 && !sameStart {
		return obs, 0
	}
	bit := mateBit(rec)
	h := hashTemplate(rec.Name)
	if i, ok := d.index[h]; ok {
		e := &d.arena[i]
		if e.name != rec.Name {
			return obs, 0
		}
		kept := obs[:0]
		for _, j := range obs {
			if !d.credited(e, j) {
				kept = append(kept, j)
			}
		}
		dropped := len(obs) - len(kept)
		e.seen |= bit
		if e.seen == sam.Read1|sam.Read2 {
			d.release(i)
		} else {
			for _, j := range kept {
				e.junctions = append(e.junctions, j.key(d.stranded))
			}
		}
		return kept, dropped
	}
	if len(obs) == 0 && !sameStart {
		return obs, 0
	}
	if d.coordSorted && rec.MatePos < rec.Pos {
		return obs, 0
	}
	i := d.alloc()
	e := &d.arena[i]
	e.name = rec.Name
	e.hash = h
	e.seen = bit
	for _, j := range obs {
		e.junctions = append(e.junctions, j.key(d.stranded))
	}
	d.index[h] = i
	if d.coordSorted {
		e.matePos = rec.MatePos
		d.pending.Insert(pendingMate{pos: e.matePos, slot: i})
	}
	return obs, 0
}

// evict releases the entries whose outstanding end should have started
// before pos.
func (d *pairDeduper) evict(pos int) {
	for d.pending.Len() > 0 {
		p := d.pending.Min().(pendingMate)
		if p.pos >= pos {
			return
		}
		d.release(p.slot)
	}
}

func (d *pairDeduper) credited(e *templateEntry, j Junction) bool {
	k := j.key(d.stranded)
	for _, c := range e.junctions {
		if c == k {
			return true
		}
	}
	return false
}

func (d *pairDeduper) alloc() int32 {
	if n := len(d.free); n > 0 {
		i := d.free[n-1]
		d.free = d.free[:n-1]
		return i
	}
	d.arena = append(d.arena, templateEntry{})
	return int32(len(d.arena) - 1)
}

func (d *pairDeduper) release(i int32) {
	e := &d.arena[i]
	delete(d.index, e.hash)
	if d.coordSorted {
		d.pending.Delete(pendingMate{pos: e.matePos, slot: i})
	}
	e.name = ""
	e.seen = 0
	e.junctions = e.junctions[:0]
	d.free = append(d.free, i)
}

// reset drops every tracked template.  The arena's storage is retained.
func (d *pairDeduper) reset() {
	if len(d.index) == 0 {
		return
	}
	d.index = make(map[uint64]int32)
	d.pending = llrb.Tree{}
	d.free = d.free[:0]
	for i := range d.arena {
		d.arena[i].name = ""
		d.arena[i].seen = 0
		d.arena[i].junctions = d.arena[i].junctions[:0]
		d.free = append(d.free, int32(i))
	}
}

// live returns the number of templates currently tracked.
func (d *pairDeduper) live() int { return len(d.index) }
