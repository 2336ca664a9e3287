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

/*
Package junction counts spliced-read evidence for intron junctions.

Problem:
Given a BAM/SAM of RNA-seq alignments, we want the number of reads (more
precisely, read-pairs) supporting each junction, i.e. each reference interval
skipped by an 'N' CIGAR operation.  For single-cell libraries we want the same
counts split by cell barcode, as a junction x barcode sparse matrix.

Per record, the pipeline is:

  1. Gate: skip unmapped reads, reads with a flag in FlagExclude, and reads
     mapped to more than MaxLoci loci (NH tag).
  2. Resolve the cell barcode (single-cell only), optionally restricted to a
     whitelist, with optional correction of near misses.  Barcodes get column
     indices in first-seen order, so a barcode seen only on unspliced reads
     still gets a column.
  3. Extract: walk the CIGAR and emit one candidate per 'N' op, together with
     the lengths of the match runs directly flanking it (the anchors).
  4. Filter: drop candidates with short anchors or introns outside
     [MinIntronLength, MaxIntronLength].
  5. Deduplicate: when both ends of a read-pair span the same junction, count
     the pair once.  Only templates whose mate may still show up are tracked,
     so memory is bounded by the number of in-flight pairs.  With CollapseUMI,
     each (junction, barcode, UMI) is also counted once.
  6. Aggregate into a Table, which is snapshotted and rendered once the input
     is exhausted.

Records are processed strictly sequentially within a shard.  With an indexed
BAM the input is split into one shard per reference; each shard owns its own
Table, deduplicator and barcode resolver, and shard results are merged in
header order.  Mates on different references can never support the same
junction, so per-reference sharding never splits a deduplication decision.
*/
package junction
