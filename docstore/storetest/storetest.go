// Package storetest is the conformance suite shared by every docstore
// binding. A binding's tests call RunStoreTests with a factory that opens a
// fresh, empty database; tests for optional behaviour are skipped unless the
// store reports the matching feature.
package storetest

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens a fresh, empty database. The suite closes it.
type Factory func(t *testing.T) docstore.Store

// RunStoreTests runs the conformance suite against the binding named name.
func RunStoreTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		tests := []struct {
			name string
			fn   func(t *testing.T, s docstore.Store)
		}{
			{name: "SaveGet", fn: testSaveGet},
			{name: "MetaOnly", fn: testMetaOnly},
			{name: "Overwrite", fn: testOverwrite},
			{name: "DeletedFlag", fn: testDeletedFlag},
			{name: "NotFound", fn: testNotFound},
			{name: "LargeRevMeta", fn: testLargeRevMeta},
			{name: "BatchByID", fn: testBatchByID},
			{name: "CallbackStops", fn: testCallbackStops},
			{name: "MismatchedBatch", fn: testMismatchedBatch},
			{name: "Info", fn: testInfo},
			{name: "Commit", fn: testCommit},
			{name: "Sequences", fn: testSequences},
			{name: "BySequence", fn: testBySequence},
			{name: "ChangesSince", fn: testChangesSince},
			{name: "Unsequenced", fn: testUnsequenced},
			{name: "AtomicBatch", fn: testAtomicBatch},
			{name: "CompactInPlace", fn: testCompactInPlace},
			{name: "Close", fn: testClose},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				s := factory(t)
				t.Cleanup(func() { _ = s.Close() })
				tc.fn(t, s)
			})
		}
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func requireFeature(t testing.TB, s docstore.Store, f docstore.Feature) {
	t.Helper()
	if !s.Features().Has(f) {
		t.Skipf("binding lacks %s", f)
	}
}

func doc(id, body string) (*docstore.Document, *docstore.DocInfo) {
	d := &docstore.Document{ID: []byte(id), Body: []byte(body)}
	return d, &docstore.DocInfo{ID: d.ID, Size: uint64(len(d.Body))}
}

func save(t testing.TB, s docstore.Store, id, body string, rev uint64) *docstore.DocInfo {
	t.Helper()
	d, info := doc(id, body)
	info.RevSeq = rev
	require.NoError(t, s.SaveDocument(d, info, docstore.SaveDefault))
	return info
}

func collect(out *[]*docstore.DocInfo) docstore.DocInfoFunc {
	return func(info *docstore.DocInfo) error {
		*out = append(*out, info.Clone())
		return nil
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func testSaveGet(t *testing.T, s docstore.Store) {
	save(t, s, "k1", "v1", 1)

	info, body, err := s.GetByID([]byte("k1"), docstore.ReadWithBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("k1"), info.ID)
	assert.Equal(t, []byte("v1"), body)
	assert.False(t, info.Deleted)
	assert.Equal(t, uint64(1), info.RevSeq)
	assert.Equal(t, uint64(2), info.Size)
}

func testMetaOnly(t *testing.T, s docstore.Store) {
	d, info := doc("k1", "body")
	info.ContentMeta = 0x0a
	info.RevMeta = []byte{0xde, 0xad}
	require.NoError(t, s.SaveDocument(d, info, docstore.SaveDefault))

	got, body, err := s.GetByID([]byte("k1"), docstore.ReadMetaOnly)
	require.NoError(t, err)
	assert.Nil(t, body)
	assert.Equal(t, uint32(0x0a), got.ContentMeta)
	assert.Equal(t, []byte{0xde, 0xad}, got.RevMeta)
}

func testOverwrite(t *testing.T, s docstore.Store) {
	save(t, s, "k", "old", 1)
	save(t, s, "k", "new", 2)

	info, body, err := s.GetByID([]byte("k"), docstore.ReadWithBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), body)
	assert.Equal(t, uint64(2), info.RevSeq)
}

func testDeletedFlag(t *testing.T, s docstore.Store) {
	d, info := doc("gone", "")
	info.Deleted = true
	info.RevSeq = 3
	require.NoError(t, s.SaveDocument(d, info, docstore.SaveDefault))

	got, _, err := s.GetByID([]byte("gone"), docstore.ReadMetaOnly)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Nil(t, got.RevMeta)
}

func testNotFound(t *testing.T, s docstore.Store) {
	_, _, err := s.GetByID([]byte("missing"), docstore.ReadWithBody)
	assert.ErrorIs(t, err, docstore.ErrDocNotFound)
}

func testLargeRevMeta(t *testing.T, s docstore.Store) {
	revMeta := bytes.Repeat([]byte{0xab}, 1000)
	d, info := doc("big", "b")
	info.RevMeta = revMeta
	require.NoError(t, s.SaveDocuments([]*docstore.Document{d}, []*docstore.DocInfo{info}, docstore.SaveDefault))

	var got []*docstore.DocInfo
	require.NoError(t, s.DocInfosByID([][]byte{[]byte("big")}, collect(&got)))
	require.Len(t, got, 1)
	assert.Equal(t, revMeta, got[0].RevMeta)
	assert.Equal(t, codec.HeaderSize+1000, codec.Size(&got[0].Meta))
}

func testBatchByID(t *testing.T, s docstore.Store) {
	var (
		docs  []*docstore.Document
		infos []*docstore.DocInfo
	)
	for i := range 5 {
		d, info := doc(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
		info.RevSeq = uint64(i + 1)
		docs = append(docs, d)
		infos = append(infos, info)
	}
	require.NoError(t, s.SaveDocuments(docs, infos, docstore.SaveDefault))

	ids := [][]byte{[]byte("k3"), []byte("missing"), []byte("k0"), []byte("k4")}
	var got []*docstore.DocInfo
	require.NoError(t, s.DocInfosByID(ids, collect(&got)))

	require.Len(t, got, 3)
	assert.Equal(t, []byte("k3"), got[0].ID)
	assert.Equal(t, uint64(4), got[0].RevSeq)
	assert.Equal(t, []byte("k0"), got[1].ID)
	assert.Equal(t, []byte("k4"), got[2].ID)
}

func testCallbackStops(t *testing.T, s docstore.Store) {
	save(t, s, "a", "1", 1)
	save(t, s, "b", "2", 1)

	stop := fmt.Errorf("enough")
	calls := 0
	err := s.DocInfosByID([][]byte{[]byte("a"), []byte("b")}, func(*docstore.DocInfo) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func testMismatchedBatch(t *testing.T, s docstore.Store) {
	d, _ := doc("k", "v")
	err := s.SaveDocuments([]*docstore.Document{d}, nil, docstore.SaveDefault)
	assert.ErrorIs(t, err, docstore.ErrInvalidArgument)
}

func testInfo(t *testing.T, s docstore.Store) {
	save(t, s, "k1", "v1", 1)
	require.NoError(t, s.Commit())

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, s.Filename(), info.Filename)
	assert.NotEmpty(t, info.Filename)
}

func testCommit(t *testing.T, s docstore.Store) {
	save(t, s, "k1", "v1", 1)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Commit())

	_, body, err := s.GetByID([]byte("k1"), docstore.ReadWithBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), body)
}

func testSequences(t *testing.T, s docstore.Store) {
	requireFeature(t, s, docstore.FeatureSequences)

	a := save(t, s, "a", "x", 1)
	b := save(t, s, "b", "y", 1)
	assert.Greater(t, b.DBSeq, a.DBSeq)

	// Rewriting a key keeps it retrievable and advances the sequence.
	a2 := save(t, s, "a", "z", 2)
	assert.Greater(t, a2.DBSeq, b.DBSeq)

	got, _, err := s.GetByID([]byte("a"), docstore.ReadMetaOnly)
	require.NoError(t, err)
	assert.Equal(t, a2.DBSeq, got.DBSeq)
	assert.Equal(t, uint64(2), got.RevSeq)

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, a2.DBSeq, info.LastSequence)
	assert.Equal(t, uint64(2), info.DocCount)
}

func testBySequence(t *testing.T, s docstore.Store) {
	requireFeature(t, s, docstore.FeatureChanges)

	a := save(t, s, "a", "x", 1)
	b := save(t, s, "b", "y", 1)

	var got []*docstore.DocInfo
	require.NoError(t, s.DocInfosBySequence([]uint64{b.DBSeq, 9999, a.DBSeq}, collect(&got)))
	require.Len(t, got, 2)
	assert.Equal(t, []byte("b"), got[0].ID)
	assert.Equal(t, b.DBSeq, got[0].DBSeq)
	assert.Equal(t, []byte("a"), got[1].ID)
}

func testChangesSince(t *testing.T, s docstore.Store) {
	requireFeature(t, s, docstore.FeatureChanges)

	first := save(t, s, "a", "1", 1)
	save(t, s, "b", "2", 1)
	save(t, s, "a", "3", 2)

	var got []*docstore.DocInfo
	require.NoError(t, s.ChangesSince(first.DBSeq, collect(&got)))
	require.Len(t, got, 2)
	assert.Equal(t, []byte("b"), got[0].ID)
	assert.Equal(t, []byte("a"), got[1].ID)
	assert.Equal(t, uint64(2), got[1].RevSeq)
	assert.Less(t, got[0].DBSeq, got[1].DBSeq)
}

func testUnsequenced(t *testing.T, s docstore.Store) {
	if s.Features().Has(docstore.FeatureChanges) {
		t.Skip("binding tracks sequences")
	}

	info := save(t, s, "a", "x", 1)
	assert.Zero(t, info.DBSeq)

	err := s.DocInfosBySequence([]uint64{1}, func(*docstore.DocInfo) error { return nil })
	assert.ErrorIs(t, err, docstore.ErrNotSupported)
	err = s.ChangesSince(0, func(*docstore.DocInfo) error { return nil })
	assert.ErrorIs(t, err, docstore.ErrNotSupported)
}

func testAtomicBatch(t *testing.T, s docstore.Store) {
	requireFeature(t, s, docstore.FeatureAtomicBatch)

	d1, i1 := doc("k1", "v1")
	d2, i2 := doc("", "v2")
	d3, i3 := doc("k3", "v3")
	err := s.SaveDocuments(
		[]*docstore.Document{d1, d2, d3},
		[]*docstore.DocInfo{i1, i2, i3},
		docstore.SaveDefault,
	)
	require.Error(t, err)

	var be *docstore.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)

	for _, id := range []string{"k1", "k3"} {
		_, _, err := s.GetByID([]byte(id), docstore.ReadMetaOnly)
		assert.ErrorIs(t, err, docstore.ErrDocNotFound, id)
	}
}

func testCompactInPlace(t *testing.T, s docstore.Store) {
	save(t, s, "k", "v1", 1)
	save(t, s, "k", "v2", 2)
	require.NoError(t, s.Compact(""))

	_, body, err := s.GetByID([]byte("k"), docstore.ReadWithBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), body)
}

func testClose(t *testing.T, s docstore.Store) {
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), docstore.ErrClosed)

	_, _, err := s.GetByID([]byte("k"), docstore.ReadMetaOnly)
	assert.ErrorIs(t, err, docstore.ErrClosed)
}
