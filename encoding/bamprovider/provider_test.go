package bamprovider_test

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/splicecount/encoding/bamprovider"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

// newTestData returns a coordinate-sorted header over chr1, chr2 and chr3 and
// records "a", "b" on chr1, "c" on chr3 and an unmapped "u". chr2 is empty.
func newTestData(t *testing.T) (*sam.Header, []*sam.Record) {
	var refs []*sam.Reference
	for _, name := range []string{"chr1", "chr2", "chr3"} {
		ref, err := sam.NewReference(name, "", "", 100000, nil, nil)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	h, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	h.SortOrder = sam.Coordinate

	cigar := []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 4)}
	seq := []byte("ACGT")
	qual := []byte{30, 30, 30, 30}
	newRecord := func(name string, ref *sam.Reference, pos int) *sam.Record {
		co := cigar
		if ref == nil {
			co = nil
		}
		r, err := sam.NewRecord(name, ref, nil, pos, -1, 0, 60, co, seq, qual, nil)
		require.NoError(t, err)
		if ref == nil {
			r.Flags = sam.Unmapped
			r.MapQ = 0
		}
		return r
	}
	return h, []*sam.Record{
		newRecord("a", refs[0], 100),
		newRecord("b", refs[0], 200),
		newRecord("c", refs[2], 50),
		newRecord("u", nil, -1),
	}
}

const testSAM = `@HD	VN:1.6	SO:coordinate
@SQ	SN:chr1	LN:100000
@SQ	SN:chr2	LN:100000
@SQ	SN:chr3	LN:100000
a	0	chr1	101	60	4M	*	0	0	ACGT	????
b	0	chr1	201	60	4M	*	0	0	ACGT	????
c	0	chr3	51	60	4M	*	0	0	ACGT	????
u	4	*	0	0	*	*	0	0	ACGT	????
`

func writeBAM(t *testing.T, path string, h *sam.Header, recs []*sam.Record) {
	out, err := os.Create(path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out, h, 1)
	assert.NoError(t, err)
	for _, r := range recs {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close())
}

// writeIndex creates path.bai for the BAM file at path.
func writeIndex(t *testing.T, path string) {
	in, err := os.Open(path)
	assert.NoError(t, err)
	defer in.Close() // nolint: errcheck
	br, err := bam.NewReader(in, 1)
	assert.NoError(t, err)
	var idx bam.Index
	for {
		r, err := br.Read()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		if r.Ref == nil {
			continue
		}
		assert.NoError(t, idx.Add(r, br.LastChunk()))
	}
	assert.NoError(t, br.Close())

	out, err := os.Create(path + ".bai")
	assert.NoError(t, err)
	assert.NoError(t, bam.WriteIndex(out, &idx))
	assert.NoError(t, out.Close())
}

// readShards reads every shard and returns the record names, one slice per
// shard.
func readShards(t *testing.T, p bamprovider.Provider, shards []bamprovider.Shard) [][]string {
	var names [][]string
	for _, shard := range shards {
		var shardNames []string
		iter := p.NewIterator(shard)
		for iter.Scan() {
			shardNames = append(shardNames, iter.Record().Name)
		}
		require.NoError(t, iter.Err())
		require.NoError(t, iter.Close())
		names = append(names, shardNames)
	}
	return names
}

func shardRefs(shards []bamprovider.Shard) []string {
	var refs []string
	for _, shard := range shards {
		refs = append(refs, shard.String())
	}
	return refs
}

func TestFakeProvider(t *testing.T) {
	h, recs := newTestData(t)
	p := bamprovider.NewFakeProvider(h, recs)
	shards, err := p.GenerateShards()
	require.NoError(t, err)
	expect.EQ(t, shardRefs(shards), []string{"chr1", "chr3"})
	expect.EQ(t, shards[1].ShardIdx, 1)
	expect.EQ(t, readShards(t, p, shards), [][]string{{"a", "b"}, {"c"}})
	expect.EQ(t, readShards(t, p, []bamprovider.Shard{bamprovider.UniversalShard()}),
		[][]string{{"a", "b", "c", "u"}})

	n, ok := p.MappedRecords()
	expect.True(t, ok)
	expect.EQ(t, n, uint64(3))

	// Records are copies of the input.
	iter := p.NewIterator(bamprovider.UniversalShard())
	require.True(t, iter.Scan())
	iter.Record().Name = "changed"
	require.NoError(t, iter.Close())
	expect.EQ(t, recs[0].Name, "a")
	require.NoError(t, p.Close())
}

func TestSAMProvider(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	plain := filepath.Join(tmpDir, "test.sam")
	require.NoError(t, ioutil.WriteFile(plain, []byte(testSAM), 0644))
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testSAM))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	compressed := filepath.Join(tmpDir, "test.sam.gz")
	require.NoError(t, ioutil.WriteFile(compressed, buf.Bytes(), 0644))

	for _, path := range []string{plain, compressed} {
		p := bamprovider.NewProvider(path)
		_, isSAM := p.(*bamprovider.SAMProvider)
		expect.True(t, isSAM)
		h, err := p.GetHeader()
		require.NoError(t, err)
		expect.EQ(t, len(h.Refs()), 3)
		expect.EQ(t, h.SortOrder, sam.Coordinate)

		shards, err := p.GenerateShards()
		require.NoError(t, err)
		expect.EQ(t, shards, []bamprovider.Shard{bamprovider.UniversalShard()})
		expect.EQ(t, readShards(t, p, shards), [][]string{{"a", "b", "c", "u"}})
		_, ok := p.MappedRecords()
		expect.True(t, !ok)

		iter := p.NewIterator(bamprovider.Shard{Ref: h.Refs()[0]})
		expect.True(t, !iter.Scan())
		assert.HasSubstr(t, iter.Close().Error(), "cannot be read by reference")
		require.NoError(t, p.Close())
	}
}

func TestBAMProvider(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	h, recs := newTestData(t)
	path := filepath.Join(tmpDir, "test.bam")
	writeBAM(t, path, h, recs)

	p := bamprovider.NewProvider(path)
	// Without an index the file is read as one shard.
	shards, err := p.GenerateShards()
	require.NoError(t, err)
	expect.EQ(t, shards, []bamprovider.Shard{bamprovider.UniversalShard()})
	// Repeat to exercise iterator reuse.
	for i := 0; i < 3; i++ {
		expect.EQ(t, readShards(t, p, shards), [][]string{{"a", "b", "c", "u"}})
	}
	_, ok := p.MappedRecords()
	expect.True(t, !ok)
	require.NoError(t, p.Close())
}

func TestBAMProviderIndexed(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	h, recs := newTestData(t)
	path := filepath.Join(tmpDir, "test.bam")
	writeBAM(t, path, h, recs)
	writeIndex(t, path)

	// The index may live anywhere.
	moved := filepath.Join(tmpDir, "moved.bai")
	require.NoError(t, os.Rename(path+".bai", moved))
	for _, p := range []bamprovider.Provider{
		bamprovider.NewProvider(path, bamprovider.ProviderOpts{Index: moved}),
		&bamprovider.BAMProvider{Path: path, Index: moved},
	} {
		shards, err := p.GenerateShards()
		require.NoError(t, err)
		expect.EQ(t, shardRefs(shards), []string{"chr1", "chr3"})
		expect.EQ(t, readShards(t, p, shards), [][]string{{"a", "b"}, {"c"}})
		expect.EQ(t, readShards(t, p, []bamprovider.Shard{bamprovider.UniversalShard()}),
			[][]string{{"a", "b", "c", "u"}})

		n, ok := p.MappedRecords()
		expect.True(t, ok)
		expect.EQ(t, n, uint64(3))
		require.NoError(t, p.Close())
	}
}

func TestError(t *testing.T) {
	for _, path := range []string{"nonexistent.bam", "nonexistent.sam"} {
		p := bamprovider.NewProvider(path)
		_, err := p.GenerateShards()
		require.Regexp(t, "no such file", err.Error())

		iter := p.NewIterator(bamprovider.UniversalShard())
		expect.True(t, !iter.Scan())
		require.Regexp(t, "no such file", iter.Close().Error())
		require.Regexp(t, "no such file", p.Close().Error())
	}
}

func TestFileType(t *testing.T) {
	for _, test := range []struct {
		path string
		want bamprovider.FileType
	}{
		{"foo.bam", bamprovider.BAM},
		{"s3://bucket/foo.sam", bamprovider.SAM},
		{"foo.sam.gz", bamprovider.SAM},
		{"foo.cram", bamprovider.Unknown},
	} {
		expect.EQ(t, bamprovider.GuessFileType(test.path), test.want)
		name := strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(test.path, ".gz")), ".")
		expect.EQ(t, bamprovider.ParseFileType(name), test.want)
	}
}
