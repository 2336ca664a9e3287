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
Given a BAM or SAM of RNA-seq alignments, bio-junction counts the reads
supporting each splice junction (each reference interval skipped by an 'N'
CIGAR op).

In bulk mode it writes junction.tsv.gz, one row per junction.  In single-cell
mode it writes a junction x cell-barcode sparse matrix in the layout
expected by 10x-style tools: barcodes.tsv.gz, features.tsv.gz, matrix.mtx.gz,
plus the long-form junction_barcodes.tsv.gz.

Both ends of a read-pair crossing the same junction are counted once.

Sample usage:
bio-junction \
    -mode single \
    -whitelist 737K-august-2016.txt.gz \
    -parallelism 8 \
    possorted_genome_bam.bam \
    out-dir
*/
package main
