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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func cand(ref string, start, end, left, right int) Candidate {
	return Candidate{
		Junction:    Junction{Ref: ref, Start: start, End: end, Strand: StrandNone},
		LeftAnchor:  left,
		RightAnchor: right,
	}
}

func TestExtract(t *testing.T) {
	_, c1, _ := newHeader(false)
	tests := []struct {
		name  string
		pos   int
		cigar string
		want  []Candidate
	}{
		{"unspliced", 100, "50M", nil},
		{"simple", 1000, "20M100N20M", []Candidate{cand("chr1", 1020, 1120, 20, 20)}},
		{"softclips are transparent", 1000, "5S15M100N20M7S", []Candidate{cand("chr1", 1015, 1115, 15, 20)}},
		{"hardclips are transparent", 1000, "3H15M100N20M", []Candidate{cand("chr1", 1015, 1115, 15, 20)}},
		{"insertion breaks left run", 1000, "10M2I8M100N20M", []Candidate{cand("chr1", 1018, 1118, 8, 20)}},
		{"deletion breaks left run and advances", 1000, "10M3D8M100N20M", []Candidate{cand("chr1", 1021, 1121, 8, 20)}},
		{"deletion breaks right run", 1000, "20M100N6M1D14M", []Candidate{cand("chr1", 1020, 1120, 20, 6)}},
		{"sequence match and mismatch", 1000, "10=2X8=100N20M", []Candidate{cand("chr1", 1020, 1120, 20, 20)}},
		{"padding is transparent", 1000, "10M1P10M100N20M", []Candidate{cand("chr1", 1020, 1120, 20, 20)}},
		{"two introns", 500, "10M100N12M200N14M", []Candidate{
			cand("chr1", 510, 610, 10, 12),
			cand("chr1", 622, 822, 12, 14),
		}},
		{"intron at read start", 1000, "100N20M", []Candidate{cand("chr1", 1000, 1100, 0, 20)}},
		{"intron at read end", 1000, "20M100N", []Candidate{cand("chr1", 1020, 1120, 20, 0)}},
		{"zero-length intron", 1000, "20M0N20M", nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := newRecord("r", c1, test.pos, se, 0, test.cigar)
			got, err := Extract(rec, nil)
			assert.NoError(t, err)
			expect.EQ(t, got, test.want)
		})
	}
}

func TestExtractAppends(t *testing.T) {
	_, c1, c2 := newHeader(false)
	var dst []Candidate
	var err error
	dst, err = Extract(newRecord("a", c1, 0, se, 0, "10M100N10M"), dst)
	assert.NoError(t, err)
	dst, err = Extract(newRecord("b", c2, 0, se, 0, "10M200N10M"), dst)
	assert.NoError(t, err)
	assert.EQ(t, dst, []Candidate{cand("chr1", 10, 110, 10, 10), cand("chr2", 10, 210, 10, 10)})
}

func TestExtractUnsupportedOp(t *testing.T) {
	_, c1, _ := newHeader(false)
	rec := newRecord("r", c1, 1000, se, 0, "20M100N20M")
	rec.Cigar = append(rec.Cigar, sam.NewCigarOp(sam.CigarBack, 5))
	_, err := Extract(rec, nil)
	assert.True(t, errors.Is(errors.Integrity, err))
}
