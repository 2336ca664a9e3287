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
	"bytes"
	"fmt"

	"github.com/grailbio/hts/sam"
)

var (
	r1F = sam.Paired | sam.Read1
	r1R = sam.Paired | sam.Read1 | sam.Reverse
	r2F = sam.Paired | sam.Read2
	r2R = sam.Paired | sam.Read2 | sam.Reverse
	se  = sam.Flags(0)
)

// newHeader returns a header over chr1 and chr2.  References can only belong
// to one header, so each test building a header gets fresh copies.
func newHeader(sorted bool) (*sam.Header, *sam.Reference, *sam.Reference) {
	c1, _ := sam.NewReference("chr1", "", "", 1000000, nil, nil)
	c2, _ := sam.NewReference("chr2", "", "", 1000000, nil, nil)
	h, err := sam.NewHeader(nil, []*sam.Reference{c1, c2})
	if err != nil {
		panic(err)
	}
	if sorted {
		h.SortOrder = sam.Coordinate
	}
	return h, c1, c2
}

func mustCigar(s string) sam.Cigar {
	c, err := sam.ParseCigar([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("bad cigar %s: %v", s, err))
	}
	return c
}

func newAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

// newRecord creates a record whose sequence length matches its CIGAR.  A nil
// mateRef with a paired flag means the mate is on ref.
func newRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, cigar string, aux ...sam.Aux) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.Flags = flags
	r.MapQ = 60
	r.Cigar = mustCigar(cigar)
	if flags&sam.Paired != 0 {
		r.MateRef = ref
		r.MatePos = matePos
	} else {
		r.MateRef = nil
		r.MatePos = -1
	}
	_, readLen := r.Cigar.Lengths()
	r.Seq = sam.NewSeq(bytes.Repeat([]byte{'A'}, readLen))
	r.Qual = bytes.Repeat([]byte{30}, readLen)
	r.AuxFields = append(r.AuxFields[:0], aux...)
	return r
}
