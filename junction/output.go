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
	"io"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
)

// Output file names, before the compression suffix.
const (
	BulkFile             = "junction.tsv"
	BarcodesFile         = "barcodes.tsv"
	FeaturesFile         = "features.tsv"
	MatrixFile           = "matrix.mtx"
	JunctionBarcodesFile = "junction_barcodes.tsv"
)

const matrixMarketHeader = "%%MatrixMarket matrix coordinate integer general"

// WriteBulk writes the bulk junction table: a header line, then one
// "chrom start end [strand] count" line per junction.
func WriteBulk(w io.Writer, snap *Snapshot) error {
	t := tsv.NewWriter(w)
	t.WriteString("chrom")
	t.WriteString("start")
	t.WriteString("end")
	if snap.ShowStrand {
		t.WriteString("strand")
	}
	t.WriteString("count")
	if err := t.EndLine(); err != nil {
		return err
	}
	for _, r := range snap.Rows {
		t.WriteString(r.Ref)
		t.WriteInt64(int64(r.Start))
		t.WriteInt64(int64(r.End))
		if snap.ShowStrand {
			t.WriteByte(byte(r.Strand))
		}
		t.WriteUint32(r.Count)
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	return t.Flush()
}

// WriteBarcodes writes one barcode per line, in column order.
func WriteBarcodes(w io.Writer, snap *Snapshot) error {
	t := tsv.NewWriter(w)
	for _, b := range snap.Barcodes {
		t.WriteString(b)
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	return t.Flush()
}

// WriteFeatures writes one "chrom start end" line per junction, in row order.
func WriteFeatures(w io.Writer, snap *Snapshot) error {
	t := tsv.NewWriter(w)
	for _, r := range snap.Rows {
		t.WriteString(r.Ref)
		t.WriteInt64(int64(r.Start))
		t.WriteInt64(int64(r.End))
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	return t.Flush()
}

// WriteMatrix writes the junction x barcode counts in MatrixMarket coordinate
// format.  Indices are 1-based; entries are ordered by row, then column.
func WriteMatrix(w io.Writer, snap *Snapshot) error {
	t := tsv.NewWriter(w)
	t.WriteString(matrixMarketHeader)
	if err := t.EndLine(); err != nil {
		return err
	}
	t.WriteString("%")
	if err := t.EndLine(); err != nil {
		return err
	}
	var buf []byte
	line := func(a, b, c uint64) error {
		buf = strconv.AppendUint(buf[:0], a, 10)
		buf = append(buf, ' ')
		buf = strconv.AppendUint(buf, b, 10)
		buf = append(buf, ' ')
		buf = strconv.AppendUint(buf, c, 10)
		t.WriteString(gunsafe.BytesToString(buf))
		return t.EndLine()
	}
	if err := line(uint64(len(snap.Rows)), uint64(len(snap.Barcodes)), uint64(snap.NNZ())); err != nil {
		return err
	}
	for i, r := range snap.Rows {
		for _, c := range r.Cells {
			if err := line(uint64(i+1), uint64(c.Barcode+1), uint64(c.Count)); err != nil {
				return err
			}
		}
	}
	return t.Flush()
}

// WriteJunctionBarcodes writes the long form of the matrix: one
// "chrom:start-end barcode count" line per nonzero cell, after a header.
func WriteJunctionBarcodes(w io.Writer, snap *Snapshot) error {
	t := tsv.NewWriter(w)
	t.WriteString("feature")
	t.WriteString("barcode")
	t.WriteString("count")
	if err := t.EndLine(); err != nil {
		return err
	}
	for _, r := range snap.Rows {
		feature := r.Junction.String()
		for _, c := range r.Cells {
			t.WriteString(feature)
			t.WriteString(snap.Barcodes[c.Barcode])
			t.WriteUint32(c.Count)
			if err := t.EndLine(); err != nil {
				return err
			}
		}
	}
	return t.Flush()
}

// OutputFiles returns the paths WriteOutputs creates for a snapshot of the
// given mode.
func OutputFiles(outDir string, mode Mode, comp Compression) []string {
	names := []string{BulkFile}
	if mode == ModeSingleCell {
		names = []string{BarcodesFile, FeaturesFile, MatrixFile, JunctionBarcodesFile}
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = outputPath(outDir, n, comp)
	}
	return paths
}

func outputPath(outDir, name string, comp Compression) string {
	if comp != CompressNone {
		name += ".gz"
	}
	return file.Join(outDir, name)
}

// writeFile creates path and streams render's output through the requested
// compression.
func writeFile(ctx context.Context, path string, comp Compression, parallelism int, snap *Snapshot,
	render func(io.Writer, *Snapshot) error) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	var (
		w      io.Writer = out.Writer(ctx)
		closer io.Closer
	)
	switch comp {
	case CompressGzip:
		gz := gzip.NewWriter(w)
		w, closer = gz, gz
	case CompressBgzf:
		bw := bgzf.NewWriter(w, parallelism)
		w, closer = bw, bw
	}
	if closer != nil {
		defer func() {
			if e := closer.Close(); e != nil && err == nil {
				err = e
			}
		}()
	}
	return render(w, snap)
}

// WriteOutputs writes the files for snap into outDir.  If any file fails,
// the files created so far are removed.
func WriteOutputs(ctx context.Context, snap *Snapshot, outDir string, comp Compression, parallelism int) (err error) {
	type job struct {
		name   string
		render func(io.Writer, *Snapshot) error
	}
	jobs := []job{{BulkFile, WriteBulk}}
	if snap.Mode == ModeSingleCell {
		jobs = []job{
			{BarcodesFile, WriteBarcodes},
			{FeaturesFile, WriteFeatures},
			{MatrixFile, WriteMatrix},
			{JunctionBarcodesFile, WriteJunctionBarcodes},
		}
	}
	var created []string
	defer func() {
		if err == nil {
			return
		}
		for _, p := range created {
			if e := file.Remove(ctx, p); e != nil {
				log.Error.Printf("remove %s: %v", p, e)
			}
		}
	}()
	for _, j := range jobs {
		path := outputPath(outDir, j.name, comp)
		created = append(created, path)
		if err = writeFile(ctx, path, comp, parallelism, snap, j.render); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	return nil
}
