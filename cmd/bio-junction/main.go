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
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/splicecount/junction"
)

var (
	mode             = flag.String("mode", junction.DefaultOpts.Mode, "Counting mode: 'bulk' or 'single'")
	anchorLength     = flag.Int("anchor-length", junction.DefaultOpts.MinAnchorLength, "Minimum number of matched bases on each side of a junction")
	minIntronLength  = flag.Int("min-intron-length", junction.DefaultOpts.MinIntronLength, "Minimum intron length")
	maxIntronLength  = flag.Int("max-intron-length", junction.DefaultOpts.MaxIntronLength, "Maximum intron length")
	maxLoci          = flag.Int("max-loci", junction.DefaultOpts.MaxLoci, "Reads whose NH tag exceeds this value are skipped; 1 = uniquely mapped reads only")
	whitelist        = flag.String("whitelist", junction.DefaultOpts.WhitelistPath, "Cell barcode whitelist, one barcode per line, optionally gzipped (single-cell mode only)")
	mismatches       = flag.Int("barcode-mismatches", junction.DefaultOpts.BarcodeMismatches, "Correct a barcode missing from the whitelist to the unique whitelisted barcode within this many edits; 0 = exact match only")
	barcodeDistance  = flag.String("barcode-distance", junction.DefaultOpts.BarcodeDistance, "Edit distance for -barcode-mismatches: 'hamming' (substitutions only) or 'levenshtein' (also insertions and deletions)")
	barcodeTag       = flag.String("barcode-tag", junction.DefaultOpts.BarcodeTag, "Aux tag holding the cell barcode")
	umiTag           = flag.String("umi-tag", junction.DefaultOpts.UMITag, "Aux tag holding the UMI")
	collapseUMI      = flag.Bool("collapse-umi", junction.DefaultOpts.CollapseUMI, "Count each (junction, barcode, UMI) once")
	flagExclude      = flag.Int("flag-exclude", junction.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	strand           = flag.String("strand", junction.DefaultOpts.Strand, "Strand inference: 'none', 'xs' (aligner XS tag), 'read1' or 'read2' (stranded library)")
	strandedIdentity = flag.Bool("stranded-identity", junction.DefaultOpts.StrandedIdentity, "Count the same interval on opposite strands as two junctions")
	compression      = flag.String("compression", junction.DefaultOpts.Compression, "Output compression: 'gzip', 'bgzf' or 'none'")
	parallelism      = flag.Int("parallelism", junction.DefaultOpts.Parallelism, "Maximum number of references counted concurrently; requires an indexed BAM")
	progress         = flag.Int("progress", junction.DefaultOpts.ProgressInterval, "Log progress every this many records; 0 = never")
	bamIndexPath     = flag.String("index", junction.DefaultOpts.BamIndexPath, "Input BAM index path. Defaults to bampath + .bai")
)

func bioJunctionUsage() {
	fmt.Printf("Usage: %s [OPTIONS] {b,s}ampath outdir\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioJunctionUsage
	shutdown := grail.Init()
	defer shutdown()

	positionalArgs := flag.Args()
	if len(positionalArgs) != 2 {
		log.Fatalf("Expected two positional arguments ({b,s}ampath and outdir); please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
	}
	ctx := vcontext.Background()
	opts := junction.Opts{
		Mode:              *mode,
		MinAnchorLength:   *anchorLength,
		MinIntronLength:   *minIntronLength,
		MaxIntronLength:   *maxIntronLength,
		MaxLoci:           *maxLoci,
		WhitelistPath:     *whitelist,
		BarcodeMismatches: *mismatches,
		BarcodeDistance:   *barcodeDistance,
		BarcodeTag:        *barcodeTag,
		UMITag:            *umiTag,
		CollapseUMI:       *collapseUMI,
		FlagExclude:       *flagExclude,
		Strand:            *strand,
		StrandedIdentity:  *strandedIdentity,
		Compression:       *compression,
		Parallelism:       *parallelism,
		ProgressInterval:  *progress,
		BamIndexPath:      *bamIndexPath,
	}
	if err := junction.CountJunctions(ctx, positionalArgs[0], positionalArgs[1], &opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
