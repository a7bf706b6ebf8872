// Package cursorstore binds the docstore contract to a cursor/transaction
// engine. A [Conn] owns the engines for one directory; each database opened
// through it is a table, stored either as a bbolt B-tree bucket or as a
// column family of a shared Pebble LSM tree.
//
// Metadata and body share one value slot, prefixed with the metadata length.
// A SaveDocuments batch is one transaction: it either commits whole or
// leaves nothing behind. The engine assigns no sequences or byte positions,
// so DBSeq and BytePosition are always 0, and commit and compaction are
// handled by the engine itself.
package cursorstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/metrics"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	bolt "go.etcd.io/bbolt"
)

// Engine is the engine label used in logs and metrics.
const Engine = "cursor"

// Compile-time interface check.
var _ docstore.Store = (*DB)(nil)

// DB is one open table. It is not safe for concurrent use.
type DB struct {
	conn     *Conn
	filename string
	table    string
	flags    docstore.OpenFlags
	cfg      *docstore.Config
	eng      engine
	sync     bool

	logger  logger.Logger
	metrics metrics.Collector

	scratch *docstore.Scratch
	info    docstore.DocInfo

	closed bool
}

// SetSync selects whether commits wait for stable storage.
func (d *DB) SetSync(sync bool) { d.sync = sync }

func (d *DB) Features() docstore.Feature { return docstore.FeatureAtomicBatch }

func (d *DB) Filename() string { return d.filename }

// Layout returns the table's index layout.
func (d *DB) Layout() docstore.IndexLayout { return d.cfg.IndexLayout }

func (d *DB) Info() (*docstore.DatabaseInfo, error) {
	if d.closed {
		return nil, docstore.ErrClosed
	}
	st, err := d.eng.stat(d.table)
	if err != nil {
		return nil, translate(err)
	}
	return &docstore.DatabaseInfo{
		Filename:  d.filename,
		SpaceUsed: st.size,
		DocCount:  st.keys,
	}, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

func (d *DB) SaveDocuments(docs []*docstore.Document, infos []*docstore.DocInfo, opts docstore.SaveOptions) error {
	if err := d.writable(); err != nil {
		return err
	}
	if err := docstore.ValidateBatch(docs, infos); err != nil {
		return err
	}

	start := time.Now()
	err := d.saveAll(docs, infos)
	failed := 0
	if err != nil {
		failed = len(docs)
		d.logger.Warn("save batch rolled back", "docs", len(docs), "error", err)
	}
	d.metrics.RecordSave(Engine, len(docs), failed, time.Since(start))
	return err
}

func (d *DB) SaveDocument(doc *docstore.Document, info *docstore.DocInfo, opts docstore.SaveOptions) error {
	return d.SaveDocuments([]*docstore.Document{doc}, []*docstore.DocInfo{info}, opts)
}

func (d *DB) saveAll(docs []*docstore.Document, infos []*docstore.DocInfo) error {
	tx, err := d.eng.begin(true)
	if err != nil {
		return translate(err)
	}
	cur, err := tx.cursor(d.table)
	if err != nil {
		_ = tx.rollback()
		return translate(err)
	}

	for i := range docs {
		if err := insert(cur, docs[i], infos[i]); err != nil {
			if rbErr := tx.rollback(); rbErr != nil {
				d.logger.Error("rollback failed", "error", rbErr)
			}
			return &docstore.BatchError{Index: i, ID: docs[i].ID, Err: err}
		}
	}

	if err := tx.commit(d.sync); err != nil {
		return translate(err)
	}

	for i := range docs {
		infos[i].DBSeq = 0
		infos[i].BytePosition = 0
		infos[i].Size = uint64(len(docs[i].Body))
	}
	return nil
}

func insert(cur cursor, doc *docstore.Document, info *docstore.DocInfo) error {
	if len(doc.ID) == 0 {
		return fmt.Errorf("%w: empty document key", docstore.ErrInvalidArgument)
	}
	v, err := packValue(&info.Meta, doc.Body)
	if err != nil {
		return err
	}
	key := append([]byte(nil), doc.ID...)
	if err := cur.insert(key, v); err != nil {
		return translate(err)
	}
	return nil
}

// Commit is a no-op: every save batch commits its own transaction.
func (d *DB) Commit() error {
	if d.closed {
		return docstore.ErrClosed
	}
	d.metrics.RecordCommit(Engine, 0, nil)
	return nil
}

// Compact is a no-op: the engine reclaims space on its own.
func (d *DB) Compact(string) error {
	if d.closed {
		return docstore.ErrClosed
	}
	d.metrics.RecordCompact(Engine, 0, nil)
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// view runs fn inside a read transaction on the table's cursor.
func (d *DB) view(fn func(cur cursor) error) error {
	tx, err := d.eng.begin(false)
	if err != nil {
		return translate(err)
	}
	defer tx.rollback() //nolint:errcheck

	cur, err := tx.cursor(d.table)
	if err != nil {
		return translate(err)
	}
	return fn(cur)
}

func (d *DB) GetByID(id []byte, mode docstore.ReadMode) (*docstore.DocInfo, []byte, error) {
	if d.closed {
		return nil, nil, docstore.ErrClosed
	}
	start := time.Now()

	var (
		info *docstore.DocInfo
		body []byte
	)
	err := d.view(func(cur cursor) error {
		v, err := cur.search(id)
		if err != nil {
			return translate(err)
		}
		meta, b, err := unpackValue(v)
		if err != nil {
			return err
		}
		info = &docstore.DocInfo{
			ID:   append([]byte(nil), id...),
			Size: uint64(len(b)),
		}
		if _, err := codec.Decode(meta, &info.Meta); err != nil {
			return docstore.Translate(err)
		}
		if mode == docstore.ReadWithBody {
			body = append([]byte{}, b...)
		}
		return nil
	})

	got := 1
	if err != nil {
		got, info, body = 0, nil, nil
	}
	d.metrics.RecordGet(Engine, got, time.Since(start), err)
	return info, body, err
}

func (d *DB) DocInfosByID(ids [][]byte, fn docstore.DocInfoFunc) error {
	if d.closed {
		return docstore.ErrClosed
	}
	start := time.Now()
	found := 0
	err := d.view(func(cur cursor) error {
		for _, id := range ids {
			v, err := cur.search(id)
			if errors.Is(err, errNotFound) {
				continue
			}
			if err != nil {
				return translate(err)
			}
			meta, b, err := unpackValue(v)
			if err != nil {
				return err
			}
			d.info = docstore.DocInfo{ID: id, Size: uint64(len(b))}
			if err := d.scratch.Decode(meta, &d.info.Meta); err != nil {
				return err
			}
			found++
			if err := fn(&d.info); err != nil {
				return err
			}
		}
		return nil
	})
	d.metrics.RecordGet(Engine, found, time.Since(start), err)
	return err
}

// DocInfosBySequence is not supported: the engine keeps no sequence index.
func (d *DB) DocInfosBySequence([]uint64, docstore.DocInfoFunc) error {
	if d.closed {
		return docstore.ErrClosed
	}
	return docstore.ErrNotSupported
}

// ChangesSince is not supported: the engine keeps no sequence index.
func (d *DB) ChangesSince(uint64, docstore.DocInfoFunc) error {
	if d.closed {
		return docstore.ErrClosed
	}
	return docstore.ErrNotSupported
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close releases the table. The connection stays open.
func (d *DB) Close() error {
	if d.closed {
		return docstore.ErrClosed
	}
	d.closed = true
	d.conn.release(d)
	d.logger.Info("database closed", "file", d.filename)
	return nil
}

func (d *DB) writable() error {
	if d.closed {
		return docstore.ErrClosed
	}
	if d.flags.Has(docstore.FlagReadOnly) {
		return docstore.ErrReadOnly
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotFound):
		return fmt.Errorf("%w: %w", docstore.ErrDocNotFound, err)
	case errors.Is(err, errNoTable):
		return fmt.Errorf("%w: %w", docstore.ErrOpenFile, err)
	case errors.Is(err, bolt.ErrKeyRequired):
		return fmt.Errorf("%w: %w", docstore.ErrInvalidArgument, err)
	case errors.Is(err, bolt.ErrKeyTooLarge):
		return fmt.Errorf("%w: %w", docstore.ErrKeyTooLong, err)
	case errors.Is(err, bolt.ErrDatabaseNotOpen), errors.Is(err, bolt.ErrTxClosed):
		return fmt.Errorf("%w: %w", docstore.ErrClosed, err)
	}
	return docstore.Translate(err)
}
