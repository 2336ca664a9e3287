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
	"bufio"
	"context"
	"sort"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/splicecount/util"
	"github.com/pkg/errors"
)

// Whitelist is a set of accepted cell barcodes.  A nil Whitelist accepts
// everything.
type Whitelist map[string]struct{}

// NewWhitelist returns a whitelist containing barcodes.
func NewWhitelist(barcodes ...string) Whitelist {
	wl := make(Whitelist, len(barcodes))
	for _, b := range barcodes {
		wl[b] = struct{}{}
	}
	return wl
}

// Contains reports whether barcode is accepted.
func (wl Whitelist) Contains(barcode string) bool {
	if wl == nil {
		return true
	}
	_, ok := wl[barcode]
	return ok
}

// Barcodes returns the whitelisted barcodes in sorted order.
func (wl Whitelist) Barcodes() []string {
	barcodes := make([]string, 0, len(wl))
	for b := range wl {
		barcodes = append(barcodes, b)
	}
	sort.Strings(barcodes)
	return barcodes
}

// LoadWhitelist reads one barcode per line from path.  Gzip input is detected
// and decompressed.  Surrounding whitespace is trimmed and blank lines are
// ignored.  A file with no barcodes yields a nil Whitelist, i.e. one that
// accepts every barcode.
func LoadWhitelist(ctx context.Context, path string) (wl Whitelist, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open whitelist %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = errors.Wrapf(e, "close whitelist %s", path)
		}
	}()
	wl = Whitelist{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		b := strings.TrimSpace(scanner.Text())
		if b == "" {
			continue
		}
		wl[b] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read whitelist %s", path)
	}
	if len(wl) == 0 {
		log.Printf("whitelist %s is empty; accepting all barcodes", path)
		return nil, nil
	}
	log.Printf("loaded %d barcodes from whitelist %s", len(wl), path)
	return wl, nil
}

// BarcodeStatus is the outcome of resolving a record's barcode.
type BarcodeStatus int

const (
	// BarcodeOK means the barcode is present and accepted.
	BarcodeOK BarcodeStatus = iota
	// BarcodeMissing means the record has no usable barcode tag.
	BarcodeMissing
	// BarcodeFiltered means the barcode is not in the whitelist.
	BarcodeFiltered
	// BarcodeCorrected means the barcode is not in the whitelist, but exactly
	// one whitelisted barcode is within the allowed number of mismatches.
	BarcodeCorrected
)

// BarcodeMetric is the distance used to correct barcodes.
type BarcodeMetric int

const (
	// BarcodeHamming counts substitutions.  Barcodes of different lengths
	// differ in every overhanging position.
	BarcodeHamming BarcodeMetric = iota
	// BarcodeLevenshtein counts substitutions, insertions and deletions.
	BarcodeLevenshtein
)

// String implements fmt.Stringer.
func (m BarcodeMetric) String() string {
	if m == BarcodeLevenshtein {
		return "levenshtein"
	}
	return "hamming"
}

func (m BarcodeMetric) distance() func(a, b string) int {
	if m == BarcodeLevenshtein {
		return util.Levenshtein
	}
	return util.Hamming
}

// BarcodeResolver assigns column indices to cell barcodes in first-seen
// order.  It is not safe for concurrent use; sharded runs use one resolver per
// shard and merge them afterwards.
type BarcodeResolver struct {
	tag       sam.Tag
	whitelist Whitelist
	index     map[string]int
	barcodes  []string

	maxMismatches int
	dist          func(a, b string) int
	// candidates is the sorted whitelist, built on the first correction.
	candidates []string
	// corrections caches the outcome of correcting a barcode; "" means the
	// barcode can't be corrected.
	corrections map[string]string
}

// NewBarcodeResolver creates a resolver reading barcodes from tag, restricted
// to wl (nil means no restriction).  A barcode outside wl is replaced by the
// unique whitelisted barcode within distance maxMismatches under metric, if
// any.
func NewBarcodeResolver(tag sam.Tag, wl Whitelist, maxMismatches int, metric BarcodeMetric) *BarcodeResolver {
	return &BarcodeResolver{
		tag:           tag,
		whitelist:     wl,
		index:         make(map[string]int),
		maxMismatches: maxMismatches,
		dist:          metric.distance(),
	}
}

// lookup returns rec's barcode, and whether it is present and accepted.
func (r *BarcodeResolver) lookup(rec *sam.Record) (string, BarcodeStatus) {
	b, ok := stringTag(rec, r.tag)
	if !ok {
		return "", BarcodeMissing
	}
	if r.whitelist.Contains(b) {
		return b, BarcodeOK
	}
	if r.maxMismatches > 0 {
		if c := r.correct(b); c != "" {
			return c, BarcodeCorrected
		}
	}
	return "", BarcodeFiltered
}

func (r *BarcodeResolver) correct(b string) string {
	if c, ok := r.corrections[b]; ok {
		return c
	}
	if r.candidates == nil {
		r.candidates = r.whitelist.Barcodes()
		r.corrections = make(map[string]string)
	}
	c, _ := util.Nearest(b, r.candidates, r.maxMismatches, r.dist)
	r.corrections[b] = c
	return c
}

// Resolve returns the column index of rec's barcode, assigning the next free
// index if the barcode hasn't been seen before.  Corrected barcodes are
// indexed under their whitelisted spelling.  The index is -1 unless the
// status is BarcodeOK or BarcodeCorrected.
func (r *BarcodeResolver) Resolve(rec *sam.Record) (int, BarcodeStatus) {
	b, status := r.lookup(rec)
	if status != BarcodeOK && status != BarcodeCorrected {
		return -1, status
	}
	return r.Intern(b), status
}

// Intern returns the index of barcode, assigning one if needed.  The
// whitelist is not consulted.
func (r *BarcodeResolver) Intern(barcode string) int {
	if i, ok := r.index[barcode]; ok {
		return i
	}
	i := len(r.barcodes)
	r.index[barcode] = i
	r.barcodes = append(r.barcodes, barcode)
	return i
}

// Barcodes returns the barcodes seen so far, in index order.  The caller must
// not modify the result.
func (r *BarcodeResolver) Barcodes() []string { return r.barcodes }

// merge interns o's barcodes in o's order and returns the index remapping
// from o's indices to r's.
func (r *BarcodeResolver) merge(o *BarcodeResolver) []int {
	remap := make([]int, len(o.barcodes))
	for i, b := range o.barcodes {
		remap[i] = r.Intern(b)
	}
	return remap
}
