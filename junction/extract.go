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
	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Extract appends one Candidate per skipped-region ('N') CIGAR op of rec to
// dst, and returns the extended slice.  rec must be mapped.
//
// Anchors are the lengths of the contiguous M/=/X runs directly before and
// after the intron, within rec only.  Insertions, deletions and other introns
// end a run; clips and padding are transparent.  A zero-length 'N' op
// describes no interval and yields nothing.
func Extract(rec *sam.Record, dst []Candidate) ([]Candidate, error) {
	cigar := rec.Cigar
	refName := rec.Ref.Name()
	pos := rec.Pos
	run := 0 // length of the match run ending at the current op
	for i, co := range cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			run += n
			pos += n
		case sam.CigarInsertion:
			run = 0
		case sam.CigarDeletion:
			run = 0
			pos += n
		case sam.CigarSkipped:
			if n > 0 {
				dst = append(dst, Candidate{
					Junction: Junction{
						Ref:    refName,
						Start:  pos,
						End:    pos + n,
						Strand: StrandNone,
					},
					LeftAnchor:  run,
					RightAnchor: rightAnchor(cigar[i+1:]),
				})
			}
			run = 0
			pos += n
		case sam.CigarSoftClipped, sam.CigarHardClipped, sam.CigarPadded:
			// Consume no reference and don't interrupt a match run.
		default:
			return dst, errors.E(errors.Integrity,
				"junction.Extract: read", rec.Name, "has unsupported CIGAR op", co.String())
		}
	}
	return dst, nil
}

// rightAnchor returns the length of the match run at the start of ops.
func rightAnchor(ops sam.Cigar) int {
	run := 0
	for _, co := range ops {
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			run += co.Len()
		case sam.CigarSoftClipped, sam.CigarHardClipped, sam.CigarPadded:
		default:
			return run
		}
	}
	return run
}
