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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

var (
	nhTag = sam.NewTag("NH")
	xsTag = sam.NewTag("XS")
)

// lociCount returns the NH tag value of rec, or 1 if the tag is absent.
func lociCount(rec *sam.Record) (int, error) {
	aux := rec.AuxFields.Get(nhTag)
	if aux == nil {
		return 1, nil
	}
	var n int
	switch v := aux.Value().(type) {
	case uint8:
		n = int(v)
	case int8:
		n = int(v)
	case uint16:
		n = int(v)
	case int16:
		n = int(v)
	case uint32:
		n = int(v)
	case int32:
		n = int(v)
	default:
		return 0, errors.E(errors.Integrity, fmt.Sprintf("read %s: NH tag is not an integer: %v", rec.Name, aux))
	}
	if n < 1 {
		return 0, errors.E(errors.Integrity, fmt.Sprintf("read %s: invalid NH value %d", rec.Name, n))
	}
	return n, nil
}

// stringTag returns the value of a Z-typed tag, and false if the tag is absent,
// empty or of another type.
func stringTag(rec *sam.Record, tag sam.Tag) (string, bool) {
	aux := rec.AuxFields.Get(tag)
	if aux == nil {
		return "", false
	}
	s, ok := aux.Value().(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// checkRecord verifies the fields the pipeline relies on for a mapped record.
func checkRecord(rec *sam.Record) error {
	if rec.Ref == nil {
		return errors.E(errors.Integrity, fmt.Sprintf("read %s: mapped without a reference", rec.Name))
	}
	if rec.Pos < 0 {
		return errors.E(errors.Integrity, fmt.Sprintf("read %s: mapped at negative position %d", rec.Name, rec.Pos))
	}
	if rec.Seq.Length != 0 {
		if _, readLen := rec.Cigar.Lengths(); readLen != rec.Seq.Length {
			return errors.E(errors.Integrity,
				fmt.Sprintf("read %s: CIGAR %v covers %d bases, sequence has %d", rec.Name, rec.Cigar, readLen, rec.Seq.Length))
		}
	}
	return nil
}

// StrandSource selects how the strand of a junction observation is inferred.
type StrandSource int

const (
	// StrandSourceNone disables strand tracking.
	StrandSourceNone StrandSource = iota
	// StrandSourceXS uses the XS:A tag emitted by spliced aligners.
	StrandSourceXS
	// StrandSourceRead1 assumes the first read of a pair (or an unpaired read)
	// has the orientation of the transcript.
	StrandSourceRead1
	// StrandSourceRead2 assumes the second read of a pair has the orientation
	// of the transcript (dUTP-style libraries); unpaired reads are reverse
	// complemented.
	StrandSourceRead2
)

var strandSourceNames = map[string]StrandSource{
	"none":  StrandSourceNone,
	"xs":    StrandSourceXS,
	"read1": StrandSourceRead1,
	"read2": StrandSourceRead2,
}

// inferStrand returns the strand of the transcript rec was sequenced from.
func inferStrand(rec *sam.Record, src StrandSource) Strand {
	switch src {
	case StrandSourceXS:
		aux := rec.AuxFields.Get(xsTag)
		if aux == nil {
			return StrandNone
		}
		switch v := aux.Value().(type) {
		case byte:
			return strandFromByte(v)
		case string:
			if len(v) == 1 {
				return strandFromByte(v[0])
			}
		}
		return StrandNone
	case StrandSourceRead1, StrandSourceRead2:
		// Orientation of read 1 of the fragment.
		rev := rec.Flags&sam.Reverse != 0
		if rec.Flags&(sam.Paired|sam.Read2) == (sam.Paired | sam.Read2) {
			rev = !rev
		}
		if src == StrandSourceRead2 {
			rev = !rev
		}
		if rev {
			return StrandRev
		}
		return StrandFwd
	}
	return StrandNone
}

func strandFromByte(b byte) Strand {
	switch b {
	case '+':
		return StrandFwd
	case '-':
		return StrandRev
	}
	return StrandNone
}
