package logstore

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/docstore/storetest"
	"github.com/beyondbrewing/brewery-docstore/metrics"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T, fs vfs.FS, name string, flags docstore.OpenFlags, opts ...docstore.Option) *DB {
	t.Helper()
	opts = append([]docstore.Option{
		docstore.WithFS(fs),
		docstore.WithLogger(logger.Nop()),
	}, opts...)
	d, err := Open(name, flags, opts...)
	require.NoError(t, err)
	return d
}

func TestConformance(t *testing.T) {
	storetest.RunStoreTests(t, "logstore", func(t *testing.T) docstore.Store {
		return openMem(t, vfs.NewMem(), "test.db", docstore.FlagCreate)
	})
	storetest.RunStoreTests(t, "logstore-compressed", func(t *testing.T) docstore.Store {
		return openMem(t, vfs.NewMem(), "test.db", docstore.FlagCreate|docstore.FlagNoSync,
			docstore.WithCompressBodies(true),
			docstore.WithCompaction(docstore.CompactionManual, 0),
		)
	})
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	_, err := Open("missing.db", 0, docstore.WithFS(vfs.NewMem()), docstore.WithLogger(logger.Nop()))
	assert.ErrorIs(t, err, docstore.ErrOpenFile)
}

func TestOpenInvalidConfig(t *testing.T) {
	_, err := Open("x.db", docstore.FlagCreate, docstore.WithCompaction(docstore.CompactionAuto, 200))
	assert.ErrorIs(t, err, docstore.ErrOpenFile)
	assert.ErrorIs(t, err, docstore.ErrInvalidConfig)
}

func TestSequenceIndependence(t *testing.T) {
	d := openMem(t, vfs.NewMem(), "seq.db", docstore.FlagCreate)
	defer d.Close() //nolint:errcheck

	docs := make([]*docstore.Document, 3)
	infos := make([]*docstore.DocInfo, 3)
	for i := range docs {
		docs[i] = &docstore.Document{ID: []byte(fmt.Sprintf("k%d", i)), Body: []byte("v")}
		infos[i] = &docstore.DocInfo{ID: docs[i].ID}
	}
	require.NoError(t, d.SaveDocuments(docs, infos, docstore.SaveDefault))

	seen := map[uint64]bool{}
	for i, info := range infos {
		assert.NotZero(t, info.DBSeq, i)
		assert.False(t, seen[info.DBSeq], "sequence %d reused", info.DBSeq)
		seen[info.DBSeq] = true
		if i > 0 {
			assert.Greater(t, info.BytePosition, infos[i-1].BytePosition)
		}
	}
}

func TestPartialBatch(t *testing.T) {
	d := openMem(t, vfs.NewMem(), "partial.db", docstore.FlagCreate)
	defer d.Close() //nolint:errcheck

	docs := []*docstore.Document{
		{ID: []byte("k1"), Body: []byte("v1")},
		{ID: bytes.Repeat([]byte("x"), MaxKeyLen+1), Body: []byte("v2")},
		{ID: []byte("k3"), Body: []byte("v3")},
	}
	infos := []*docstore.DocInfo{{}, {}, {}}

	err := d.SaveDocuments(docs, infos, docstore.SaveDefault)
	var be *docstore.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.ErrorIs(t, err, docstore.ErrKeyTooLong)

	// Earlier documents stay written; later ones were never attempted.
	_, body, err := d.GetByID([]byte("k1"), docstore.ReadWithBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), body)

	_, _, err = d.GetByID([]byte("k3"), docstore.ReadMetaOnly)
	assert.ErrorIs(t, err, docstore.ErrDocNotFound)
}

func TestEmptyKeyRejected(t *testing.T) {
	d := openMem(t, vfs.NewMem(), "empty.db", docstore.FlagCreate)
	defer d.Close() //nolint:errcheck

	err := d.SaveDocument(&docstore.Document{ID: []byte{}}, &docstore.DocInfo{}, docstore.SaveDefault)
	assert.ErrorIs(t, err, docstore.ErrInvalidArgument)
}

func TestMaxKeyBySequence(t *testing.T) {
	d := openMem(t, vfs.NewMem(), "maxkey.db", docstore.FlagCreate)
	defer d.Close() //nolint:errcheck

	key := bytes.Repeat([]byte("k"), MaxKeyLen)
	info := &docstore.DocInfo{}
	require.NoError(t, d.SaveDocument(&docstore.Document{ID: key}, info, docstore.SaveDefault))

	var got []byte
	require.NoError(t, d.DocInfosBySequence([]uint64{info.DBSeq}, func(i *docstore.DocInfo) error {
		got = append([]byte(nil), i.ID...)
		return nil
	}))
	assert.Equal(t, key, got)
}

func TestMetaBufferGrowth(t *testing.T) {
	d := openMem(t, vfs.NewMem(), "grow.db", docstore.FlagCreate)
	defer d.Close() //nolint:errcheck

	small := &docstore.DocInfo{}
	small.RevMeta = []byte("r")
	big := &docstore.DocInfo{}
	big.RevMeta = bytes.Repeat([]byte{7}, 1000)

	require.NoError(t, d.SaveDocuments(
		[]*docstore.Document{{ID: []byte("s")}, {ID: []byte("b")}},
		[]*docstore.DocInfo{small, big},
		docstore.SaveDefault,
	))
	assert.Equal(t, 1, d.encBuf.Grows())

	var lens []int
	require.NoError(t, d.DocInfosByID([][]byte{[]byte("s"), []byte("b"), []byte("s")}, func(i *docstore.DocInfo) error {
		lens = append(lens, len(i.RevMeta))
		return nil
	}))
	assert.Equal(t, []int{1, 1000, 1}, lens)
	assert.Equal(t, 1, d.decBuf.Grows())
}

func TestRelocatingCompact(t *testing.T) {
	fs := vfs.NewMem()
	d := openMem(t, fs, "old.db", docstore.FlagCreate)
	defer d.Close() //nolint:errcheck

	for i := range 10 {
		require.NoError(t, d.SaveDocument(
			&docstore.Document{ID: []byte("k"), Body: []byte(fmt.Sprintf("v%d", i))},
			&docstore.DocInfo{},
			docstore.SaveDefault,
		))
	}
	before, err := d.Info()
	require.NoError(t, err)

	require.NoError(t, d.Compact("new.db"))
	assert.Equal(t, "new.db", d.Filename())

	info, err := d.Info()
	require.NoError(t, err)
	assert.Equal(t, "new.db", info.Filename)
	assert.Equal(t, before.LastSequence, info.LastSequence)
	assert.Equal(t, uint64(1), info.DocCount)

	_, body, err := d.GetByID([]byte("k"), docstore.ReadWithBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("v9"), body)

	_, err = fs.Stat("old.db")
	assert.Error(t, err)
}

func TestAutoCompaction(t *testing.T) {
	m := &metrics.Basic{}
	d := openMem(t, vfs.NewMem(), "auto.db", docstore.FlagCreate,
		docstore.WithCompaction(docstore.CompactionAuto, 30),
		docstore.WithMetrics(m),
	)
	defer d.Close() //nolint:errcheck

	for range 3 {
		require.NoError(t, d.SaveDocument(&docstore.Document{ID: []byte("k"), Body: []byte("body")}, &docstore.DocInfo{}, docstore.SaveDefault))
	}
	assert.Positive(t, m.Compactions.Load())
	assert.Zero(t, d.log.Stats().StaleBytes)
}

func TestManualCompaction(t *testing.T) {
	m := &metrics.Basic{}
	d := openMem(t, vfs.NewMem(), "manual.db", docstore.FlagCreate,
		docstore.WithCompaction(docstore.CompactionManual, 30),
		docstore.WithMetrics(m),
	)
	defer d.Close() //nolint:errcheck

	for range 3 {
		require.NoError(t, d.SaveDocument(&docstore.Document{ID: []byte("k"), Body: []byte("body")}, &docstore.DocInfo{}, docstore.SaveDefault))
	}
	assert.Zero(t, m.Compactions.Load())
	assert.Positive(t, d.log.Stats().StaleBytes)

	require.NoError(t, d.Compact(""))
	assert.Equal(t, int64(1), m.Compactions.Load())
	assert.Zero(t, d.log.Stats().StaleBytes)
}

func TestReopenPersists(t *testing.T) {
	fs := vfs.NewMem()
	d := openMem(t, fs, "persist.db", docstore.FlagCreate|docstore.FlagNoSync)

	info := &docstore.DocInfo{}
	info.RevSeq = 5
	require.NoError(t, d.SaveDocument(&docstore.Document{ID: []byte("k1"), Body: []byte("v1")}, info, docstore.SaveDefault))
	require.NoError(t, d.Commit())
	require.NoError(t, d.Close())

	d = openMem(t, fs, "persist.db", docstore.FlagReadOnly)
	defer d.Close() //nolint:errcheck

	got, body, err := d.GetByID([]byte("k1"), docstore.ReadWithBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), body)
	assert.Equal(t, uint64(5), got.RevSeq)
	assert.Equal(t, info.DBSeq, got.DBSeq)

	err = d.SaveDocument(&docstore.Document{ID: []byte("k2")}, &docstore.DocInfo{}, docstore.SaveDefault)
	assert.ErrorIs(t, err, docstore.ErrReadOnly)
	assert.ErrorIs(t, d.Commit(), docstore.ErrReadOnly)
}

func TestMetrics(t *testing.T) {
	m := &metrics.Basic{}
	d := openMem(t, vfs.NewMem(), "metrics.db", docstore.FlagCreate, docstore.WithMetrics(m))
	defer d.Close() //nolint:errcheck

	require.NoError(t, d.SaveDocument(&docstore.Document{ID: []byte("a")}, &docstore.DocInfo{}, docstore.SaveDefault))
	_, _, err := d.GetByID([]byte("a"), docstore.ReadMetaOnly)
	require.NoError(t, err)
	_, _, err = d.GetByID([]byte("zz"), docstore.ReadMetaOnly)
	require.Error(t, err)
	require.NoError(t, d.Commit())

	assert.Equal(t, int64(1), m.SavedDocs.Load())
	assert.Equal(t, int64(2), m.Gets.Load())
	assert.Equal(t, int64(1), m.GetErrors.Load())
	assert.Equal(t, int64(1), m.Commits.Load())
}
