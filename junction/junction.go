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
	"fmt"
	"strings"

	"github.com/biogo/store/llrb"
)

// Strand is the transcription strand assigned to a junction observation.
type Strand byte

const (
	// StrandNone means the strand is not tracked, or could not be inferred.
	StrandNone Strand = '.'
	// StrandFwd is the forward (+) strand.
	StrandFwd Strand = '+'
	// StrandRev is the reverse (-) strand.
	StrandRev Strand = '-'
)

// Junction is a putative intron: the half-open, 0-based reference interval
// [Start, End) skipped by a read alignment.
//
// Whether Strand is part of a junction's identity depends on
// Opts.StrandedIdentity; see key().
type Junction struct {
	Ref    string
	Start  int
	End    int
	Strand Strand
}

// Len returns the intron length.
func (j Junction) Len() int { return j.End - j.Start }

// String renders the junction as "ref:start-end", which is also its feature
// name in the long-format single-cell output.
func (j Junction) String() string {
	return fmt.Sprintf("%s:%d-%d", j.Ref, j.Start, j.End)
}

// key returns the identity of j: strand is dropped unless stranded is set.
func (j Junction) key(stranded bool) Junction {
	if !stranded {
		j.Strand = StrandNone
	}
	return j
}

// Compare orders junctions by (Ref, Start, End, Strand). Reference names are
// compared lexicographically. It implements llrb.Comparable.
func (j Junction) Compare(c llrb.Comparable) int {
	o := c.(Junction)
	if d := strings.Compare(j.Ref, o.Ref); d != 0 {
		return d
	}
	if j.Start != o.Start {
		if j.Start < o.Start {
			return -1
		}
		return 1
	}
	if j.End != o.End {
		if j.End < o.End {
			return -1
		}
		return 1
	}
	return int(j.Strand) - int(o.Strand)
}

// Candidate is a junction extracted from a single record, together with the
// number of aligned bases directly flanking the intron on each side.
type Candidate struct {
	Junction
	LeftAnchor  int
	RightAnchor int
}
