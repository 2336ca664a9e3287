package bamprovider

import (
	"strings"

	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. This field is meaningful
	// only for BAM files. If Index=="", it defaults to path + ".bai".
	Index string
}

// Shard is a unit of parallel reading. A shard either covers every record
// placed on one reference, or (Ref == nil) the whole file in file order.
type Shard struct {
	// Ref is the reference covered by the shard. nil means the whole file,
	// including unmapped records.
	Ref *sam.Reference
	// ShardIdx is the position of the shard in the list returned by
	// GenerateShards. Results merged in ShardIdx order reproduce file order.
	ShardIdx int
}

// UniversalShard returns a shard that covers the entire file.
func UniversalShard() Shard {
	return Shard{}
}

// String returns the reference name covered by the shard, or "*" for the
// universal shard.
func (s Shard) String() string {
	if s.Ref == nil {
		return "*"
	}
	return s.Ref.Name()
}

// Provider allows reading a BAM or SAM file, possibly in parallel. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided data.  The callee must
	// not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// GenerateShards prepares for parallel reading. If the input supports
	// random access (an indexed BAM), it returns one shard per reference that
	// has at least one placed record, in header order. Otherwise it returns a
	// single UniversalShard.
	//
	// REQUIRES: Close has not been called.
	GenerateShards() ([]Shard, error)

	// NewIterator returns an iterator over the records contained in the shard.
	//
	// REQUIRES: Close has not been called.
	NewIterator(shard Shard) Iterator

	// MappedRecords returns the number of mapped records according to the
	// index, and false if that number is not known.
	MappedRecords() (uint64, bool)

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records of one shard. Thread compatible.
type Iterator interface {
	// Scan returns whether there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true. The record is owned by
	// the caller.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encountered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// FileType represents the type of an alignment file.
type FileType int

const (
	// Unknown is a sentinel.
	Unknown FileType = iota
	// BAM file
	BAM
	// SAM text file, possibly compressed.
	SAM
)

// ParseFileType parses the file type string. "bam" returns bamprovider.BAM, for
// example. On error, it returns Unknown.
func ParseFileType(name string) FileType {
	switch name {
	case "bam":
		return BAM
	case "sam":
		return SAM
	default:
		return Unknown
	}
}

// GuessFileType returns the file type from the pathname. Returns Unknown if
// the suffix is not recognized.
func GuessFileType(path string) FileType {
	if strings.HasSuffix(path, ".bam") {
		return BAM
	}
	if strings.HasSuffix(path, ".sam") || strings.HasSuffix(path, ".sam.gz") {
		return SAM
	}
	vlog.VI(1).Infof("%v: could not detect file type.", path)
	return Unknown
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
	}
	return opts
}

// NewProvider creates a Provider object that can handle the BAM or SAM file
// at "path". The file type is autodetected from the path; unknown types are
// read as BAM.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	switch GuessFileType(path) {
	case BAM, Unknown:
		return &BAMProvider{Path: path, Index: opts.Index}
	case SAM:
		return &SAMProvider{Path: path}
	}
	panic("shouldn't reach here")
}

type errorIterator struct {
	err error
}

func (i *errorIterator) Scan() bool          { return false }
func (i *errorIterator) Record() *sam.Record { panic("shall not be called") }
func (i *errorIterator) Err() error          { return i.err }
func (i *errorIterator) Close() error        { return i.err }

// NewErrorIterator creates an Iterator that yields no record and returns "err"
// in Err and Close.
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}
