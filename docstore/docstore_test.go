package docstore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/db"
	"github.com/beyondbrewing/brewery-docstore/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults"},
		{name: "manual_compaction", opts: []Option{WithCompaction(CompactionManual, 0)}},
		{name: "lsm_relaxed", opts: []Option{WithIndexLayout(LayoutLSM), WithDurability(DurabilityRelaxed)}},
		{name: "negative_cache", opts: []Option{WithCacheSize(-1)}, wantErr: true},
		{name: "threshold_over_100", opts: []Option{WithCompaction(CompactionAuto, 101)}, wantErr: true},
		{name: "tiny_meta_buffer", opts: []Option{WithMetaBufferSize(codec.HeaderSize - 1)}, wantErr: true},
		{name: "unknown_layout", opts: []Option{WithIndexLayout(IndexLayout(9))}, wantErr: true},
		{name: "unknown_durability", opts: []Option{WithDurability(Durability(9))}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.opts...)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg.Logger)
			assert.NotNil(t, cfg.Metrics)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, CompactionAuto, cfg.CompactionMode)
	assert.Equal(t, 30, cfg.CompactionThreshold)
	assert.Equal(t, DurabilitySafe, cfg.Durability)
	assert.Equal(t, LayoutBTree, cfg.IndexLayout)
	assert.Equal(t, codec.DefaultCapacity, cfg.MetaBufferSize)
}

func TestConfigKeepsCollector(t *testing.T) {
	m := &metrics.Basic{}
	cfg, err := NewConfig(WithMetrics(m))
	require.NoError(t, err)
	assert.Same(t, m, cfg.Metrics)
}

func TestSyncWrites(t *testing.T) {
	safe := DefaultConfig()
	relaxed := DefaultConfig()
	relaxed.Durability = DurabilityRelaxed

	assert.True(t, safe.SyncWrites(FlagCreate))
	assert.False(t, safe.SyncWrites(FlagCreate|FlagNoSync))
	assert.False(t, relaxed.SyncWrites(FlagCreate))
}

func TestParseEnums(t *testing.T) {
	mode, err := ParseCompactionMode("manual")
	require.NoError(t, err)
	assert.Equal(t, CompactionManual, mode)

	d, err := ParseDurability("relaxed")
	require.NoError(t, err)
	assert.Equal(t, "relaxed", d.String())

	l, err := ParseIndexLayout("lsm")
	require.NoError(t, err)
	assert.Equal(t, "lsm", l.String())

	for _, fn := range []func() error{
		func() error { _, err := ParseCompactionMode("sometimes"); return err },
		func() error { _, err := ParseDurability("maybe"); return err },
		func() error { _, err := ParseIndexLayout("heap"); return err },
	} {
		assert.ErrorIs(t, fn(), ErrInvalidConfig)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "key_not_found", in: db.ErrKeyNotFound, want: ErrDocNotFound},
		{name: "closed", in: db.ErrClosed, want: ErrClosed},
		{name: "read_only", in: db.ErrReadOnly, want: ErrReadOnly},
		{name: "short_buffer", in: codec.ErrShortBuffer, want: ErrMetaTooLarge},
		{name: "truncated", in: codec.ErrTruncated, want: ErrCorrupt},
		{name: "unknown", in: errors.New("disk on fire"), want: ErrFailure},
		{name: "already_translated", in: ErrKeyTooLong, want: ErrKeyTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Translate(tc.in)
			assert.ErrorIs(t, got, tc.want)
			assert.ErrorIs(t, got, tc.in)
		})
	}

	assert.NoError(t, Translate(nil))
}

func TestBatchError(t *testing.T) {
	err := error(&BatchError{Index: 1, ID: []byte("k2"), Err: ErrKeyTooLong})
	assert.ErrorIs(t, err, ErrKeyTooLong)
	assert.Contains(t, err.Error(), `"k2"`)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
}

func TestBatchErrorLongID(t *testing.T) {
	id := bytes.Repeat([]byte("k"), 40000)
	err := &BatchError{Index: 1, ID: id, Err: ErrKeyTooLong}

	msg := err.Error()
	assert.Less(t, len(msg), 256)
	assert.Contains(t, msg, string(id[:maxErrorIDLen]))
	assert.Contains(t, msg, "40000 bytes")
	assert.Len(t, err.ID, 40000)
}

func TestValidateBatch(t *testing.T) {
	doc := &Document{ID: []byte("k"), Body: []byte("v")}
	info := &DocInfo{ID: doc.ID}

	assert.NoError(t, ValidateBatch([]*Document{doc}, []*DocInfo{info}))
	assert.NoError(t, ValidateBatch(nil, nil))
	assert.ErrorIs(t, ValidateBatch([]*Document{doc}, nil), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateBatch([]*Document{nil}, []*DocInfo{info}), ErrInvalidArgument)
}

func TestScratch(t *testing.T) {
	s := NewScratch(codec.DefaultCapacity)
	assert.Equal(t, codec.DefaultCapacity, s.Cap())

	small := &codec.Meta{RevSeq: 1, RevMeta: []byte("abc")}
	enc, err := s.Encode(small)
	require.NoError(t, err)
	assert.Len(t, enc, codec.HeaderSize+3)
	assert.Zero(t, s.Grows())

	big := &codec.Meta{RevSeq: 2, Deleted: true, RevMeta: make([]byte, 1000)}
	for i := range big.RevMeta {
		big.RevMeta[i] = byte(i)
	}
	rec := codec.Append(nil, big)

	var got codec.Meta
	require.NoError(t, s.Decode(rec, &got))
	assert.Equal(t, 1, s.Grows())
	assert.Equal(t, codec.HeaderSize+1000, s.Cap())
	assert.Equal(t, big.RevMeta, got.RevMeta)
	assert.True(t, got.Deleted)

	// Same size again: no further growth.
	require.NoError(t, s.Decode(rec, &got))
	assert.Equal(t, 1, s.Grows())
}

func TestScratchRejectsHugeRecords(t *testing.T) {
	s := NewScratch(0)
	assert.Equal(t, codec.HeaderSize, s.Cap())

	rec := codec.Append(nil, &codec.Meta{})
	rec[codec.RevMetaLenOffset+7] = 0x7f

	var m codec.Meta
	assert.ErrorIs(t, s.Decode(rec, &m), ErrAllocFail)

	_, err := s.Bytes(MaxScratchSize + 1)
	assert.ErrorIs(t, err, ErrAllocFail)
}

func TestScratchTruncated(t *testing.T) {
	s := NewScratch(codec.DefaultCapacity)
	var m codec.Meta
	assert.ErrorIs(t, s.Decode([]byte{1, 2, 3}, &m), ErrCorrupt)
}

func TestDocInfoClone(t *testing.T) {
	id := []byte("k1")
	info := &DocInfo{ID: id, DBSeq: 7, Meta: codec.Meta{RevMeta: []byte("r")}}
	c := info.Clone()
	id[0] = 'x'
	info.RevMeta[0] = 'y'
	assert.Equal(t, []byte("k1"), c.ID)
	assert.Equal(t, []byte("r"), c.RevMeta)
	assert.Equal(t, uint64(7), c.DBSeq)
}

func TestFeatureString(t *testing.T) {
	f := FeatureSequences | FeatureChanges
	assert.True(t, f.Has(FeatureSequences))
	assert.False(t, f.Has(FeatureAtomicBatch))
	assert.Equal(t, "Sequences|Changes", f.String())
	assert.Equal(t, "None", Feature(0).String())
}

func TestOpenFlags(t *testing.T) {
	f := FlagCreate | FlagNoSync
	assert.True(t, f.Has(FlagCreate))
	assert.False(t, f.Has(FlagReadOnly))
}
