package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

type fakeIterator struct {
	recs []*sam.Record
	rec  *sam.Record
	ref  *sam.Reference
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and recs by GenerateShards+NewIterator calls. Like an
// indexed BAM, GenerateShards returns one shard per reference that has at
// least one record; the UniversalShard yields every record in the given order.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header, recs}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// MappedRecords implements the Provider interface.
func (b *fakeProvider) MappedRecords() (uint64, bool) {
	var n uint64
	for _, r := range b.recs {
		if r.Flags&sam.Unmapped == 0 {
			n++
		}
	}
	return n, true
}

// GenerateShards implements the Provider interface.
func (b *fakeProvider) GenerateShards() ([]Shard, error) {
	var shards []Shard
	for _, ref := range b.header.Refs() {
		for _, r := range b.recs {
			if r.Ref != nil && r.Ref.ID() == ref.ID() {
				shards = append(shards, Shard{Ref: ref, ShardIdx: len(shards)})
				break
			}
		}
	}
	return shards, nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(shard Shard) Iterator {
	return &fakeIterator{recs: b.recs, ref: shard.Ref}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return nil
}

// Scan implements the Iterator interface.
func (i *fakeIterator) Scan() bool {
	for {
		if len(i.recs) == 0 {
			return false
		}
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if i.ref == nil || (i.rec.Ref != nil && i.rec.Ref.ID() == i.ref.ID()) {
			return true
		}
	}
}

// Record implements the Iterator interface.
func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
