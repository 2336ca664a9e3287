package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files.  Both BAM and the index
// filenames may be any path understood by grailbio/base/file. The index is
// optional; without it the file can only be read as a single shard.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	err   errors.Once

	mu          sync.Mutex
	nActive     int
	freeIters   []*bamIterator
	header      *sam.Header
	index       *bam.Index
	indexLoaded bool
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	// Offset of the first record in the file.
	firstRecord bgzf.Offset
	// Reference to read, or nil to read the whole file.
	ref *sam.Reference

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	index := b.Index
	if index == "" {
		index = b.Path + ".bai"
	}
	return index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx)
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close()
	b.header = bamReader.Header()
	return b.header, nil
}

// getIndex returns the BAM index, or nil if the index cannot be read. The
// index is read at most once.
func (b *BAMProvider) getIndex() *bam.Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexLoaded {
		return b.index
	}
	b.indexLoaded = true
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.indexPath())
	if err != nil {
		vlog.VI(1).Infof("%v: no usable index (%v), reading as a single shard", b.Path, err)
		return nil
	}
	defer in.Close(ctx)
	idx, err := bam.ReadIndex(in.Reader(ctx))
	if err != nil {
		vlog.VI(1).Infof("%v: failed to read index %v: %v", b.Path, b.indexPath(), err)
		return nil
	}
	b.index = idx
	return b.index
}

// GenerateShards implements the Provider interface.
func (b *BAMProvider) GenerateShards() ([]Shard, error) {
	header, err := b.GetHeader()
	if err != nil {
		return nil, err
	}
	idx := b.getIndex()
	if idx == nil {
		return []Shard{UniversalShard()}, nil
	}
	var shards []Shard
	for _, ref := range header.Refs() {
		chunks, err := idx.Chunks(ref, 0, ref.Len())
		if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
			// No reads on this reference.
			continue
		}
		if err != nil {
			return nil, err
		}
		shards = append(shards, Shard{Ref: ref, ShardIdx: len(shards)})
	}
	vlog.VI(1).Infof("%v: generated %d shards", b.Path, len(shards))
	return shards, nil
}

// MappedRecords implements the Provider interface.
func (b *BAMProvider) MappedRecords() (uint64, bool) {
	header, err := b.GetHeader()
	if err != nil {
		return 0, false
	}
	idx := b.getIndex()
	if idx == nil {
		return 0, false
	}
	var n uint64
	for _, ref := range header.Refs() {
		if stats, ok := idx.ReferenceStats(ref.ID()); ok {
			n += stats.Mapped
		}
	}
	return n, true
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	if i.Err() != nil {
		// The iter may be invalid. Don't reuse it.
		i.internalClose() // Will set b.err
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
}

// Return an unused iterator. If b.freeIters is nonempty, this function returns
// one from freeIters. Else, it opens the BAM file, creates a BAM reader and
// returns an iterator containing them. On error, returns an iterator with
// non-nil err field.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if len(b.freeIters) > 0 {
		iter := b.freeIters[len(b.freeIters)-1]
		iter.active = true
		iter.err = nil
		iter.next = nil
		b.freeIters = b.freeIters[:len(b.freeIters)-1]
		b.mu.Unlock()
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{
		provider: b,
		active:   true,
	}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1); iter.err != nil {
		return &iter
	}
	iter.firstRecord = iter.reader.LastChunk().End
	return &iter
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(shard Shard) Iterator {
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.ref = shard.Ref
	if shard.Ref == nil {
		iter.err = iter.reader.Seek(iter.firstRecord)
		return iter
	}
	idx := b.getIndex()
	if idx == nil {
		iter.err = fmt.Errorf("bamprovider: shard %v requires an index for %v", shard, b.Path)
		return iter
	}
	chunks, err := idx.Chunks(shard.Ref, 0, shard.Ref.Len())
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		iter.err = io.EOF
		return iter
	}
	if err != nil {
		iter.err = err
		return iter
	}
	iter.err = iter.reader.Seek(chunks[0].Begin)
	return iter
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	for {
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			return false
		}
		if i.ref == nil {
			return true
		}
		if i.next.Ref == nil {
			// Reached the unmapped tail.
			i.err = io.EOF
			return false
		}
		id := i.next.Ref.ID()
		if id < i.ref.ID() {
			continue
		}
		if id > i.ref.ID() {
			i.err = io.EOF
			return false
		}
		return true
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.next
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
