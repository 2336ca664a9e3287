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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Opts is the user-facing configuration of a junction count.  String-valued
// fields are parsed and validated by Count.
type Opts struct {
	// Mode is "bulk" or "single".
	Mode string
	// MinAnchorLength is the minimum number of matched bases required on each
	// side of an intron.
	MinAnchorLength int
	// MinIntronLength and MaxIntronLength bound the intron length, inclusive.
	MinIntronLength int
	MaxIntronLength int
	// MaxLoci is the maximum NH value of a contributing read.
	MaxLoci int
	// WhitelistPath, if nonempty, names a newline-separated (optionally
	// gzipped) list of accepted cell barcodes.  Single-cell mode only.
	WhitelistPath string
	// BarcodeMismatches is the distance allowed when matching a barcode
	// absent from the whitelist to a whitelisted one.  0 requires exact
	// matches.
	BarcodeMismatches int
	// BarcodeDistance is the metric for BarcodeMismatches: "hamming" or
	// "levenshtein".
	BarcodeDistance string
	// BarcodeTag and UMITag name the SAM tags carrying the cell barcode and the
	// unique molecular identifier.
	BarcodeTag string
	UMITag     string
	// CollapseUMI counts each (junction, barcode, UMI) triple once.
	CollapseUMI bool
	// FlagExclude is a mask of SAM flags; records with any of these bits set
	// are skipped.
	FlagExclude int
	// Strand is "none", "xs", "read1" or "read2".
	Strand string
	// StrandedIdentity makes the inferred strand part of a junction's
	// identity, so the same interval on opposite strands is counted twice.
	StrandedIdentity bool
	// Compression is "gzip", "bgzf" or "none".  It applies to every output
	// file.
	Compression string
	// Parallelism is the maximum number of shards processed concurrently.  A
	// value > 1 requires an indexed BAM; other inputs are processed
	// sequentially.
	Parallelism int
	// ProgressInterval is the number of records between progress log lines; 0
	// disables progress logging.
	ProgressInterval int
	// BamIndexPath overrides the default "<bampath>.bai" index location.
	BamIndexPath string
}

// DefaultOpts holds the default configuration.
var DefaultOpts = Opts{
	Mode:             "bulk",
	MinAnchorLength:  8,
	MinIntronLength:  70,
	MaxIntronLength:  500000,
	MaxLoci:          1,
	BarcodeDistance:  "hamming",
	BarcodeTag:       "CB",
	UMITag:           "UB",
	Strand:           "none",
	Compression:      "gzip",
	Parallelism:      1,
	ProgressInterval: 1000000,
}

// Mode selects between bulk and per-cell counting.
type Mode int

const (
	// ModeBulk counts reads per junction.
	ModeBulk Mode = iota
	// ModeSingleCell counts reads per (junction, cell barcode).
	ModeSingleCell
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeSingleCell {
		return "single"
	}
	return "bulk"
}

// ParseMode parses "bulk" or "single" (also accepted: "single-cell",
// "singlecell", "sc").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "bulk":
		return ModeBulk, nil
	case "single", "single-cell", "singlecell", "sc":
		return ModeSingleCell, nil
	}
	return ModeBulk, errors.E(errors.Invalid, fmt.Sprintf("unknown mode %q; must be bulk or single", s))
}

// Compression selects the encoding of the output files.
type Compression int

const (
	// CompressGzip writes a plain gzip stream.
	CompressGzip Compression = iota
	// CompressBgzf writes a BGZF stream, readable by gzip tools and
	// indexable by tabix.
	CompressBgzf
	// CompressNone writes plain text.
	CompressNone
)

// ParseCompression parses "gzip", "bgzf" or "none".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "gzip", "gz":
		return CompressGzip, nil
	case "bgzf":
		return CompressBgzf, nil
	case "none", "":
		return CompressNone, nil
	}
	return CompressNone, errors.E(errors.Invalid, fmt.Sprintf("unknown compression %q; must be gzip, bgzf or none", s))
}

// ParseStrandSource parses "none", "xs", "read1" or "read2".
func ParseStrandSource(s string) (StrandSource, error) {
	if src, ok := strandSourceNames[strings.ToLower(s)]; ok {
		return src, nil
	}
	return StrandSourceNone, errors.E(errors.Invalid, fmt.Sprintf("unknown strand source %q; must be none, xs, read1 or read2", s))
}

// ParseBarcodeMetric parses "hamming" or "levenshtein".  The empty string
// selects hamming.
func ParseBarcodeMetric(s string) (BarcodeMetric, error) {
	switch strings.ToLower(s) {
	case "hamming", "":
		return BarcodeHamming, nil
	case "levenshtein", "edit":
		return BarcodeLevenshtein, nil
	}
	return BarcodeHamming, errors.E(errors.Invalid, fmt.Sprintf("unknown barcode distance %q; must be hamming or levenshtein", s))
}

// countOpts is the validated form of Opts.
type countOpts struct {
	mode             Mode
	filter           Filter
	whitelistPath    string
	maxMismatches    int
	barcodeMetric    BarcodeMetric
	barcodeTag       sam.Tag
	umiTag           sam.Tag
	collapseUMI      bool
	flagExclude      sam.Flags
	strand           StrandSource
	stranded         bool
	compression      Compression
	parallelism      int
	progressInterval int
	bamIndexPath     string
}

func parseTag(name, field string) (sam.Tag, error) {
	if len(name) != 2 {
		return sam.Tag{}, errors.E(errors.Invalid, fmt.Sprintf("%s %q must be exactly two characters", field, name))
	}
	return sam.NewTag(name), nil
}

func parseOpts(raw *Opts) (countOpts, error) {
	var (
		opts countOpts
		err  error
	)
	if opts.mode, err = ParseMode(raw.Mode); err != nil {
		return opts, err
	}
	if opts.strand, err = ParseStrandSource(raw.Strand); err != nil {
		return opts, err
	}
	if opts.compression, err = ParseCompression(raw.Compression); err != nil {
		return opts, err
	}
	if opts.barcodeMetric, err = ParseBarcodeMetric(raw.BarcodeDistance); err != nil {
		return opts, err
	}
	if raw.MinAnchorLength < 0 || raw.MinIntronLength < 0 || raw.MaxIntronLength < 0 {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("length thresholds must be non-negative: anchor %d, intron [%d, %d]",
			raw.MinAnchorLength, raw.MinIntronLength, raw.MaxIntronLength))
	}
	if raw.MaxIntronLength < raw.MinIntronLength {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("max intron length %d is less than min intron length %d",
			raw.MaxIntronLength, raw.MinIntronLength))
	}
	if raw.MaxLoci < 1 {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("max loci must be at least 1, got %d", raw.MaxLoci))
	}
	if raw.FlagExclude < 0 || raw.FlagExclude > 0xffff {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("flag exclude mask %d out of range", raw.FlagExclude))
	}
	if raw.WhitelistPath != "" && opts.mode != ModeSingleCell {
		return opts, errors.E(errors.Invalid, "a barcode whitelist requires single-cell mode")
	}
	if raw.BarcodeMismatches < 0 {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("barcode mismatches must be non-negative, got %d", raw.BarcodeMismatches))
	}
	if raw.BarcodeMismatches > 0 && raw.WhitelistPath == "" {
		return opts, errors.E(errors.Invalid, "barcode correction requires a whitelist")
	}
	if raw.StrandedIdentity && opts.strand == StrandSourceNone {
		return opts, errors.E(errors.Invalid, "stranded junction identity requires a strand source")
	}
	if opts.mode == ModeSingleCell {
		if opts.barcodeTag, err = parseTag(raw.BarcodeTag, "barcode tag"); err != nil {
			return opts, err
		}
	}
	if raw.CollapseUMI {
		if opts.umiTag, err = parseTag(raw.UMITag, "UMI tag"); err != nil {
			return opts, err
		}
	}
	opts.filter = Filter{
		MinAnchor: raw.MinAnchorLength,
		MinIntron: raw.MinIntronLength,
		MaxIntron: raw.MaxIntronLength,
		MaxLoci:   raw.MaxLoci,
	}
	opts.whitelistPath = raw.WhitelistPath
	opts.maxMismatches = raw.BarcodeMismatches
	opts.collapseUMI = raw.CollapseUMI
	opts.flagExclude = sam.Flags(raw.FlagExclude)
	opts.stranded = raw.StrandedIdentity
	opts.parallelism = raw.Parallelism
	if opts.parallelism < 1 {
		opts.parallelism = 1
	}
	opts.progressInterval = raw.ProgressInterval
	if opts.progressInterval < 0 {
		opts.progressInterval = 0
	}
	opts.bamIndexPath = raw.BamIndexPath
	return opts, nil
}
