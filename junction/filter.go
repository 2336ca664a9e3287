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

// Filter holds the per-candidate quality gates.
type Filter struct {
	// MinAnchor is the minimum number of matched bases required on each side
	// of the intron.
	MinAnchor int
	// MinIntron and MaxIntron bound the intron length, inclusive.
	MinIntron int
	MaxIntron int
	// MaxLoci is the maximum number of loci (NH) the read may map to.
	MaxLoci int
}

// Accept reports whether c, observed on a read mapped to loci loci, passes
// every gate.
func (f Filter) Accept(c Candidate, loci int) bool {
	n := c.Len()
	return c.LeftAnchor >= f.MinAnchor &&
		c.RightAnchor >= f.MinAnchor &&
		n >= f.MinIntron &&
		n <= f.MaxIntron &&
		loci <= f.MaxLoci
}

// apply keeps the accepted candidates of cands, in order, and appends their
// junctions to dst.
func (f Filter) apply(cands []Candidate, loci int, dst []Junction) []Junction {
	for _, c := range cands {
		if f.Accept(c, loci) {
			dst = append(dst, c.Junction)
		}
	}
	return dst
}
