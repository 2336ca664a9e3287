package bamprovider

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
)

// SAMProvider implements Provider for SAM text files. A ".gz" file is
// decompressed transparently. SAM files have no index, so GenerateShards
// always returns a single UniversalShard.
type SAMProvider struct {
	// Path of the SAM file. Must be nonempty.
	Path string
	err  errors.Once

	mu     sync.Mutex
	header *sam.Header
}

type samIterator struct {
	provider *SAMProvider
	ctx      context.Context
	in       file.File
	body     io.ReadCloser
	reader   *sam.Reader
	err      error
	next     *sam.Record
}

// open opens the SAM file and parses its header.
func (p *SAMProvider) open(ctx context.Context) (in file.File, body io.ReadCloser, reader *sam.Reader, err error) {
	if in, err = file.Open(ctx, p.Path); err != nil {
		return
	}
	body, _ = compress.NewReader(in.Reader(ctx))
	if reader, err = sam.NewReader(body); err != nil {
		body.Close()
		in.Close(ctx)
		return nil, nil, nil, err
	}
	return
}

// GetHeader implements the Provider interface.
func (p *SAMProvider) GetHeader() (*sam.Header, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.header != nil {
		return p.header, nil
	}
	ctx := vcontext.Background()
	in, body, reader, err := p.open(ctx)
	if err != nil {
		p.err.Set(err)
		return nil, err
	}
	p.header = reader.Header()
	if err := body.Close(); err != nil {
		p.err.Set(err)
	}
	if err := in.Close(ctx); err != nil {
		p.err.Set(err)
	}
	return p.header, nil
}

// GenerateShards implements the Provider interface.
func (p *SAMProvider) GenerateShards() ([]Shard, error) {
	if _, err := p.GetHeader(); err != nil {
		return nil, err
	}
	return []Shard{UniversalShard()}, nil
}

// MappedRecords implements the Provider interface. SAM files carry no
// statistics, so it always returns false.
func (p *SAMProvider) MappedRecords() (uint64, bool) {
	return 0, false
}

// NewIterator implements the Provider interface.
//
// REQUIRES: shard must be a UniversalShard.
func (p *SAMProvider) NewIterator(shard Shard) Iterator {
	if shard.Ref != nil {
		return NewErrorIterator(fmt.Errorf("bamprovider: %v: SAM input cannot be read by reference (shard %v)", p.Path, shard))
	}
	iter := &samIterator{provider: p, ctx: vcontext.Background()}
	iter.in, iter.body, iter.reader, iter.err = p.open(iter.ctx)
	return iter
}

// Close implements the Provider interface.
func (p *SAMProvider) Close() error {
	return p.err.Err()
}

// Scan implements the Iterator interface.
func (i *samIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	i.next, i.err = i.reader.Read()
	return i.err == nil
}

// Record implements the Iterator interface.
func (i *samIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *samIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *samIterator) Close() error {
	if i.body != nil {
		if err := i.body.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.body = nil
	}
	if i.in != nil {
		if err := i.in.Close(i.ctx); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	err := i.Err()
	i.provider.err.Set(err)
	return err
}
