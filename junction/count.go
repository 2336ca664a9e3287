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
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/splicecount/encoding/bamprovider"
)

// Stats summarizes a run.  Record-level counters are disjoint: each record
// is accounted for by at most one of Unmapped, FlagExcluded, MultiMapped,
// MissingBarcode, FilteredBarcode and MissingUMI.  CorrectedBarcode counts
// records that are kept.
type Stats struct {
	// Records is the number of records read.
	Records uint64
	// Unmapped records are skipped.
	Unmapped uint64
	// FlagExcluded records have a flag in Opts.FlagExclude.
	FlagExcluded uint64
	// MultiMapped records map to more than Opts.MaxLoci loci.
	MultiMapped uint64
	// MissingBarcode and FilteredBarcode count single-cell records without a
	// usable barcode, and with a barcode outside the whitelist.
	MissingBarcode  uint64
	FilteredBarcode uint64
	// CorrectedBarcode counts single-cell records whose barcode was replaced
	// by a whitelisted barcode within Opts.BarcodeMismatches, measured by
	// Opts.BarcodeDistance.
	CorrectedBarcode uint64
	// MissingUMI counts records without a UMI when UMI collapsing is on.
	MissingUMI uint64
	// SplicedRecords is the number of records with at least one accepted
	// junction.
	SplicedRecords uint64
	// PairDuplicates is the number of junction observations dropped because
	// the other end of the template already counted them.
	PairDuplicates uint64
	// UMIDuplicates is the number of junction observations dropped because
	// their (junction, barcode, UMI) was already counted.
	UMIDuplicates uint64
	// Observations is the number of junction observations added to the
	// table.
	Observations uint64
}

// Add adds the counters of o to s.
func (s *Stats) Add(o Stats) {
	s.Records += o.Records
	s.Unmapped += o.Unmapped
	s.FlagExcluded += o.FlagExcluded
	s.MultiMapped += o.MultiMapped
	s.MissingBarcode += o.MissingBarcode
	s.FilteredBarcode += o.FilteredBarcode
	s.CorrectedBarcode += o.CorrectedBarcode
	s.MissingUMI += o.MissingUMI
	s.SplicedRecords += o.SplicedRecords
	s.PairDuplicates += o.PairDuplicates
	s.UMIDuplicates += o.UMIDuplicates
	s.Observations += o.Observations
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("records=%d unmapped=%d flag_excluded=%d multimapped=%d missing_barcode=%d "+
		"filtered_barcode=%d corrected_barcode=%d missing_umi=%d spliced=%d pair_dups=%d umi_dups=%d observations=%d",
		s.Records, s.Unmapped, s.FlagExcluded, s.MultiMapped, s.MissingBarcode,
		s.FilteredBarcode, s.CorrectedBarcode, s.MissingUMI, s.SplicedRecords, s.PairDuplicates, s.UMIDuplicates, s.Observations)
}

// progress logs a line every interval records, across all shards.
type progress struct {
	interval int64
	total    uint64 // mapped records in the input, if known
	n        int64
}

func (p *progress) tick() {
	if p.interval <= 0 {
		return
	}
	n := atomic.AddInt64(&p.n, 1)
	if n%p.interval != 0 {
		return
	}
	if p.total > 0 {
		log.Printf("processed %d records (%.1f%% of %d mapped)", n, 100*float64(n)/float64(p.total), p.total)
		return
	}
	log.Printf("processed %d records", n)
}

type umiKey struct {
	junction Junction
	barcode  int
	umi      string
}

// shardCounter owns all the mutable state of one shard.
type shardCounter struct {
	opts     *countOpts
	progress *progress

	table    *Table
	dedup    *pairDeduper
	barcodes *BarcodeResolver
	umis     map[umiKey]struct{}
	stats    Stats

	cands []Candidate
	obs   []Junction
}

func newShardCounter(opts *countOpts, wl Whitelist, coordSorted bool, p *progress) *shardCounter {
	c := &shardCounter{
		opts:     opts,
		progress: p,
		table:    NewTable(opts.stranded),
		dedup:    newPairDeduper(coordSorted, opts.stranded),
	}
	if opts.mode == ModeSingleCell {
		c.barcodes = NewBarcodeResolver(opts.barcodeTag, wl, opts.maxMismatches, opts.barcodeMetric)
	}
	if opts.collapseUMI {
		c.umis = make(map[umiKey]struct{})
	}
	return c
}

// add runs rec through the pipeline.  The returned error is fatal.
func (c *shardCounter) add(rec *sam.Record) error {
	c.stats.Records++
	c.progress.tick()
	if rec.Flags&sam.Unmapped != 0 {
		c.stats.Unmapped++
		return nil
	}
	if rec.Flags&c.opts.flagExclude != 0 {
		c.stats.FlagExcluded++
		return nil
	}
	loci, err := lociCount(rec)
	if err != nil {
		return err
	}
	if loci > c.opts.filter.MaxLoci {
		c.stats.MultiMapped++
		return nil
	}
	if err := checkRecord(rec); err != nil {
		return err
	}
	barcode := -1
	if c.barcodes != nil {
		var status BarcodeStatus
		switch barcode, status = c.barcodes.Resolve(rec); status {
		case BarcodeMissing:
			c.stats.MissingBarcode++
			return nil
		case BarcodeFiltered:
			c.stats.FilteredBarcode++
			return nil
		case BarcodeCorrected:
			c.stats.CorrectedBarcode++
		}
	}
	var umi string
	if c.umis != nil {
		var ok bool
		if umi, ok = stringTag(rec, c.opts.umiTag); !ok {
			c.stats.MissingUMI++
			return nil
		}
	}

	if c.cands, err = Extract(rec, c.cands[:0]); err != nil {
		return err
	}
	c.obs = c.opts.filter.apply(c.cands, loci, c.obs[:0])
	if c.opts.strand != StrandSourceNone && len(c.obs) > 0 {
		s := inferStrand(rec, c.opts.strand)
		for i := range c.obs {
			c.obs[i].Strand = s
		}
	}
	kept, dropped := c.dedup.observe(rec, c.obs)
	c.stats.PairDuplicates += uint64(dropped)
	if len(c.obs) > 0 {
		c.stats.SplicedRecords++
	}
	for _, j := range kept {
		if c.umis != nil {
			k := umiKey{junction: j.key(c.opts.stranded), barcode: barcode, umi: umi}
			if _, ok := c.umis[k]; ok {
				c.stats.UMIDuplicates++
				continue
			}
			c.umis[k] = struct{}{}
		}
		c.table.Add(j, barcode)
		c.stats.Observations++
	}
	return nil
}

func (c *shardCounter) run(provider bamprovider.Provider, shard bamprovider.Shard) (err error) {
	iter := provider.NewIterator(shard)
	defer func() {
		if e := iter.Close(); e != nil && err == nil {
			err = e
		}
	}()
	for iter.Scan() {
		if err = c.add(iter.Record()); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Count reads every record of provider and returns the junction counts.  If
// opts.Parallelism > 1 and the provider supports it, references are
// processed concurrently; the result is the same as a sequential run.
func Count(ctx context.Context, provider bamprovider.Provider, rawOpts *Opts) (*Snapshot, Stats, error) {
	opts, err := parseOpts(rawOpts)
	if err != nil {
		return nil, Stats{}, err
	}
	return count(ctx, provider, &opts)
}

func count(ctx context.Context, provider bamprovider.Provider, opts *countOpts) (*Snapshot, Stats, error) {
	var (
		wl  Whitelist
		err error
	)
	if opts.whitelistPath != "" {
		if wl, err = LoadWhitelist(ctx, opts.whitelistPath); err != nil {
			return nil, Stats{}, err
		}
	}
	header, err := provider.GetHeader()
	if err != nil {
		return nil, Stats{}, err
	}
	coordSorted := header.SortOrder == sam.Coordinate

	shards := []bamprovider.Shard{bamprovider.UniversalShard()}
	if opts.parallelism > 1 {
		if shards, err = provider.GenerateShards(); err != nil {
			return nil, Stats{}, err
		}
		if len(shards) == 0 {
			shards = []bamprovider.Shard{bamprovider.UniversalShard()}
		}
	}
	p := &progress{interval: int64(opts.progressInterval)}
	if n, ok := provider.MappedRecords(); ok {
		p.total = n
	}
	log.Printf("counting junctions: mode %v, %d shard(s), parallelism %d, coordinate-sorted %v",
		opts.mode, len(shards), opts.parallelism, coordSorted)

	counters := make([]*shardCounter, len(shards))
	for i := range counters {
		counters[i] = newShardCounter(opts, wl, coordSorted, p)
	}
	nJob := opts.parallelism
	if nJob > len(shards) {
		nJob = len(shards)
	}
	err = traverse.Each(nJob, func(jobIdx int) error {
		startIdx := (jobIdx * len(shards)) / nJob
		endIdx := ((jobIdx + 1) * len(shards)) / nJob
		for i := startIdx; i < endIdx; i++ {
			if err := counters[i].run(provider, shards[i]); err != nil {
				return errors.E(err, fmt.Sprintf("shard %v", shards[i]))
			}
			log.Debug.Printf("shard %v: %v, %d templates pending", shards[i], counters[i].stats, counters[i].dedup.live())
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}

	// Merge in shard order, so barcode columns are in first-seen file order.
	merged := counters[0]
	stats := merged.stats
	for _, c := range counters[1:] {
		var remap []int
		if merged.barcodes != nil {
			remap = merged.barcodes.merge(c.barcodes)
		}
		merged.table.Merge(c.table, remap)
		stats.Add(c.stats)
	}
	var barcodes []string
	if merged.barcodes != nil {
		barcodes = merged.barcodes.Barcodes()
	}
	snap := merged.table.Snapshot(opts.mode, opts.strand != StrandSourceNone, barcodes)
	log.Printf("counted %d junctions, %d barcodes: %v", len(snap.Rows), len(snap.Barcodes), stats)
	return snap, stats, nil
}

// CountJunctions counts the junctions in the BAM or SAM file at xampath and
// writes the result files into outDir.  No output is written if counting
// fails.
func CountJunctions(ctx context.Context, xampath, outDir string, rawOpts *Opts) (err error) {
	opts, err := parseOpts(rawOpts)
	if err != nil {
		return err
	}
	provider := bamprovider.NewProvider(xampath, bamprovider.ProviderOpts{Index: opts.bamIndexPath})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	snap, _, err := count(ctx, provider, &opts)
	if err != nil {
		return err
	}
	if !strings.Contains(outDir, "://") {
		if err = os.MkdirAll(outDir, 0755); err != nil {
			return err
		}
	}
	return WriteOutputs(ctx, snap, outDir, opts.compression, opts.parallelism)
}
