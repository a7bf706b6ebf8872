package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	open func(t *testing.T, cfs ...string) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{
			name: "pebble",
			open: func(t *testing.T, cfs ...string) Store {
				s, err := Open("db",
					WithFS(vfs.NewMem()),
					WithColumnFamilies(cfs...),
					WithLogger(logger.Nop()),
				)
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "mock",
			open: func(t *testing.T, cfs ...string) Store {
				return NewMockStore(cfs...)
			},
		},
	}
}

func TestStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{name: "get_put_delete", fn: testGetPutDelete},
		{name: "column_family_isolation", fn: testColumnFamilyIsolation},
		{name: "create_column_family", fn: testCreateColumnFamily},
		{name: "batch_atomic", fn: testBatch},
		{name: "iterator_order", fn: testIterator},
		{name: "maintenance", fn: testMaintenance},
	}

	for _, f := range factories() {
		for _, tc := range tests {
			t.Run(f.name+"/"+tc.name, func(t *testing.T) {
				s := f.open(t, "meta", "body")
				defer s.Close() //nolint:errcheck
				tc.fn(t, s)
			})
		}
	}
}

func testGetPutDelete(t *testing.T, s Store) {
	require.NoError(t, s.Put("meta", []byte("k"), []byte("v")))

	got, err := s.Get("meta", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := s.Has("meta", []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete("meta", []byte("k")))
	_, err = s.Get("meta", []byte("k"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = s.Get("meta", nil)
	assert.ErrorIs(t, err, ErrNilKey)

	_, err = s.Get("nope", []byte("k"))
	assert.ErrorIs(t, err, ErrColumnFamilyNotFound)
}

func testColumnFamilyIsolation(t *testing.T, s Store) {
	require.NoError(t, s.Put("meta", []byte("k"), []byte("m")))
	require.NoError(t, s.Put("body", []byte("k"), []byte("b")))

	m, err := s.Get("meta", []byte("k"))
	require.NoError(t, err)
	b, err := s.Get("body", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("m"), m)
	assert.Equal(t, []byte("b"), b)
}

func testCreateColumnFamily(t *testing.T, s Store) {
	require.NoError(t, s.CreateColumnFamily("users.couch"))
	require.NoError(t, s.CreateColumnFamily("users.couch"), "re-registering is allowed")
	require.NoError(t, s.Put("users.couch", []byte("a"), []byte("1")))

	assert.ErrorIs(t, s.CreateColumnFamily(""), ErrColumnFamilyInvalid)
	assert.ErrorIs(t, s.CreateColumnFamily("bad\x00name"), ErrColumnFamilyInvalid)
}

func testBatch(t *testing.T, s Store) {
	batch := s.NewBatch()
	defer batch.Close()

	require.NoError(t, batch.Put("meta", []byte("a"), []byte("1")))
	require.NoError(t, batch.Put("body", []byte("a"), []byte("2")))
	require.NoError(t, batch.Delete("meta", []byte("missing")))
	assert.Equal(t, 3, batch.Count())

	_, err := s.Get("meta", []byte("a"))
	assert.ErrorIs(t, err, ErrKeyNotFound, "staged writes are invisible before commit")

	require.NoError(t, batch.Commit())

	got, err := s.Get("body", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	batch.Close()
	assert.ErrorIs(t, batch.Put("meta", []byte("b"), nil), ErrBatchClosed)
}

func testIterator(t *testing.T, s Store) {
	for i := 5; i > 0; i-- {
		require.NoError(t, s.Put("meta", []byte(fmt.Sprintf("k%d", i)), []byte{byte(i)}))
	}
	require.NoError(t, s.Put("body", []byte("k0"), []byte("other")))

	it, err := s.NewIterator("meta")
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"k1", "k2", "k3", "k4", "k5"}, keys)

	it.Seek([]byte("k3"))
	require.True(t, it.Valid())
	assert.Equal(t, []byte{3}, it.Value())
}

func testMaintenance(t *testing.T, s Store) {
	require.NoError(t, s.Put("meta", []byte("a"), []byte("1")))
	require.NoError(t, s.SyncWAL())
	require.NoError(t, s.Flush())
	require.NoError(t, s.Compact())

	n, err := s.DiskUsage()
	require.NoError(t, err)
	assert.Greater(t, n, uint64(0))
}

func TestClosedStore(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			require.NoError(t, s.Close())

			_, err := s.Get(DefaultColumnFamily, []byte("k"))
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, s.Put(DefaultColumnFamily, []byte("k"), nil), ErrClosed)
			assert.ErrorIs(t, s.Close(), ErrClosed)
		})
	}
}

func TestPebbleCheckpoint(t *testing.T) {
	fs := vfs.NewMem()
	s, err := Open("src", WithFS(fs), WithColumnFamilies("meta"), WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.Put("meta", []byte("k"), []byte("v")))
	require.NoError(t, s.Checkpoint("dst"))
	require.NoError(t, s.Close())

	c, err := Open("dst", WithFS(fs), WithColumnFamilies("meta"), WithErrorIfNotExists(true), WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	got, err := c.Get("meta", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestPebbleReadOnly(t *testing.T) {
	fs := vfs.NewMem()
	s, err := Open("ro", WithFS(fs), WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.Put(DefaultColumnFamily, []byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	ro, err := Open("ro", WithFS(fs), WithReadOnly(true), WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer ro.Close() //nolint:errcheck

	got, err := ro.Get(DefaultColumnFamily, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.ErrorIs(t, ro.Put(DefaultColumnFamily, []byte("k"), nil), ErrReadOnly)
}

func TestMockFaultInjection(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockStore("meta")
	defer m.Close() //nolint:errcheck

	m.InjectFault(func(op, cf string, key []byte) error {
		if string(key) == "bad" {
			return boom
		}
		return nil
	})

	batch := m.NewBatch()
	defer batch.Close()
	require.NoError(t, batch.Put("meta", []byte("good"), []byte("1")))
	require.NoError(t, batch.Put("meta", []byte("bad"), []byte("2")))
	assert.ErrorIs(t, batch.Commit(), boom)
	assert.Equal(t, 0, m.Len("meta"), "rejected batch applies nothing")

	m.InjectFault(nil)
	require.NoError(t, m.Put("meta", []byte("bad"), []byte("ok")))
	assert.Equal(t, 1, m.Len("meta"))
}
