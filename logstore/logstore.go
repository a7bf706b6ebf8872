// Package logstore binds the docstore contract to a sequenced, log-structured
// engine: a [seqlog.Log] over a Pebble database.
//
// Every saved document gets a database sequence and a byte position, bodies
// and metadata are stored apart so metadata reads never load bodies, and
// stale space from overwritten documents is reclaimed by compaction, either
// automatically once it crosses the configured threshold or on Compact.
//
// Documents in a SaveDocuments batch are written one at a time; a failure
// part-way leaves the earlier documents in place.
package logstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/db"
	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/metrics"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	"github.com/beyondbrewing/brewery-docstore/seqlog"
)

// Engine is the engine label used in logs and metrics.
const Engine = "log"

// MaxKeyLen is the longest document key the binding accepts. By-sequence
// reads copy keys into a buffer of this size.
const MaxKeyLen = 4096

// Compile-time interface check.
var _ docstore.Store = (*DB)(nil)

// DB is an open log-structured database. It is not safe for concurrent use.
type DB struct {
	filename string
	flags    docstore.OpenFlags
	cfg      *docstore.Config

	store *db.PebbleDB
	log   *seqlog.Log

	logger  logger.Logger
	metrics metrics.Collector

	// Reused across calls; see docstore.DocInfoFunc.
	encBuf *docstore.Scratch
	decBuf *docstore.Scratch
	keyBuf [MaxKeyLen]byte
	info   docstore.DocInfo

	closed bool
}

// Open opens the database stored at filename. FlagCreate creates it when
// missing; FlagReadOnly rejects every write; FlagNoSync acknowledges writes
// before they are durable, leaving durability to Commit.
func Open(filename string, flags docstore.OpenFlags, opts ...docstore.Option) (*DB, error) {
	cfg, err := docstore.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, filename, err)
	}

	d := &DB{
		filename: filename,
		flags:    flags,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "logstore"),
		metrics:  cfg.Metrics,
		encBuf:   docstore.NewScratch(cfg.MetaBufferSize),
		decBuf:   docstore.NewScratch(cfg.MetaBufferSize),
	}
	if err := d.attach(filename, flags); err != nil {
		return nil, err
	}

	d.logger.Info("database opened",
		"file", filename,
		"compaction", cfg.CompactionMode.String(),
		"threshold", cfg.CompactionThreshold,
		"durability", cfg.Durability.String(),
		"sync_writes", cfg.SyncWrites(flags),
	)
	return d, nil
}

// attach opens the Pebble database at path and loads its log.
func (d *DB) attach(path string, flags docstore.OpenFlags) error {
	cfg := d.cfg
	store, err := db.Open(path,
		db.WithFS(cfg.FS),
		db.WithColumnFamilies(seqlog.ColumnFamilies...),
		db.WithCacheSize(cfg.CacheSize),
		db.WithMemTableSize(cfg.WriteBufferThreshold),
		db.WithAutomaticCompactions(cfg.CompactionMode == docstore.CompactionAuto),
		db.WithSyncWrites(cfg.SyncWrites(flags)),
		db.WithReadOnly(flags.Has(docstore.FlagReadOnly)),
		db.WithErrorIfNotExists(!flags.Has(docstore.FlagCreate)),
		db.WithLogger(cfg.Logger),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, path, err)
	}

	log, err := seqlog.Open(store, cfg.Logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, path, err)
	}

	d.store, d.log = store, log
	return nil
}

func (d *DB) Features() docstore.Feature {
	return docstore.FeatureSequences |
		docstore.FeatureChanges |
		docstore.FeatureCompaction |
		docstore.FeatureRelocate |
		docstore.FeatureCompression
}

func (d *DB) Filename() string { return d.filename }

func (d *DB) Info() (*docstore.DatabaseInfo, error) {
	if d.closed {
		return nil, docstore.ErrClosed
	}
	used, err := d.store.DiskUsage()
	if err != nil {
		return nil, translate(err)
	}
	s := d.log.Stats()
	return &docstore.DatabaseInfo{
		Filename:       d.filename,
		SpaceUsed:      used,
		DocCount:       s.DocCount,
		DeletedCount:   s.DeletedCount,
		HeaderPosition: s.HeaderPos,
		LastSequence:   s.LastSeq,
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
	for i := range docs {
		if err := d.save(docs[i], infos[i], opts); err != nil {
			d.metrics.RecordSave(Engine, len(docs), len(docs)-i, time.Since(start))
			d.logger.Warn("save failed", "file", d.filename, "index", i, "error", err)
			return &docstore.BatchError{Index: i, ID: docs[i].ID, Err: err}
		}
	}
	d.metrics.RecordSave(Engine, len(docs), 0, time.Since(start))

	d.maybeCompact()
	return nil
}

func (d *DB) SaveDocument(doc *docstore.Document, info *docstore.DocInfo, opts docstore.SaveOptions) error {
	return d.SaveDocuments([]*docstore.Document{doc}, []*docstore.DocInfo{info}, opts)
}

func (d *DB) save(doc *docstore.Document, info *docstore.DocInfo, opts docstore.SaveOptions) error {
	switch {
	case len(doc.ID) == 0:
		return fmt.Errorf("%w: empty document key", docstore.ErrInvalidArgument)
	case len(doc.ID) > MaxKeyLen:
		return fmt.Errorf("%w: %d bytes, limit %d", docstore.ErrKeyTooLong, len(doc.ID), MaxKeyLen)
	}

	meta, err := d.encBuf.Encode(&info.Meta)
	if err != nil {
		return err
	}

	seq, offset, err := d.log.Set(doc.ID, meta, doc.Body, seqlog.SetOptions{
		Deleted:  info.Deleted,
		Compress: d.cfg.CompressBodies || opts&docstore.SaveCompressBody != 0,
	})
	if err != nil {
		return translate(err)
	}

	info.DBSeq = seq
	info.BytePosition = offset
	info.Size = uint64(len(doc.Body))
	return nil
}

// maybeCompact runs a compaction when automatic compaction is on and stale
// data has crossed the threshold. Failures are logged; the saves that
// triggered it already succeeded.
func (d *DB) maybeCompact() {
	if d.cfg.CompactionMode != docstore.CompactionAuto || !d.log.NeedsCompaction(d.cfg.CompactionThreshold) {
		return
	}
	start := time.Now()
	err := d.log.Compact()
	d.metrics.RecordCompact(Engine, time.Since(start), err)
	if err != nil {
		d.logger.Error("automatic compaction failed", "file", d.filename, "error", err)
		return
	}
	d.logger.Debug("automatic compaction finished", "file", d.filename, "duration", time.Since(start))
}

func (d *DB) Commit() error {
	if err := d.writable(); err != nil {
		return err
	}
	start := time.Now()
	err := translate(d.log.Sync())
	d.metrics.RecordCommit(Engine, time.Since(start), err)
	return err
}

// Compact compacts the database. With a target different from the current
// filename, the compacted database is written there, the handle switches to
// it and the old files are removed.
func (d *DB) Compact(target string) error {
	if err := d.writable(); err != nil {
		return err
	}
	start := time.Now()
	err := d.compact(target)
	d.metrics.RecordCompact(Engine, time.Since(start), err)
	return err
}

func (d *DB) compact(target string) error {
	if err := d.log.Compact(); err != nil {
		return translate(err)
	}
	if target == "" || target == d.filename {
		return nil
	}

	if err := d.store.Checkpoint(target); err != nil {
		return translate(err)
	}
	old, fs := d.filename, d.store.FS()
	if err := d.store.Close(); err != nil {
		return translate(err)
	}
	if err := d.attach(target, d.flags&^docstore.FlagCreate); err != nil {
		d.closed = true
		return err
	}
	d.filename = target

	if err := fs.RemoveAll(old); err != nil {
		d.logger.Warn("failed to remove compacted database", "file", old, "error", err)
	}
	d.logger.Info("database relocated", "from", old, "to", target)
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (d *DB) GetByID(id []byte, mode docstore.ReadMode) (*docstore.DocInfo, []byte, error) {
	if d.closed {
		return nil, nil, docstore.ErrClosed
	}
	start := time.Now()

	var (
		e   *seqlog.Entry
		err error
	)
	if mode == docstore.ReadWithBody {
		e, err = d.log.Get(id)
	} else {
		e, err = d.log.GetMeta(id)
	}
	if err != nil {
		err = translate(err)
		d.metrics.RecordGet(Engine, 0, time.Since(start), err)
		return nil, nil, err
	}

	info := &docstore.DocInfo{
		ID:           append([]byte(nil), id...),
		Size:         e.BodyLen,
		BytePosition: e.Offset,
		DBSeq:        e.Seq,
	}
	if _, err := codec.Decode(e.Meta, &info.Meta); err != nil {
		err = translate(err)
		d.metrics.RecordGet(Engine, 0, time.Since(start), err)
		return nil, nil, err
	}

	d.metrics.RecordGet(Engine, 1, time.Since(start), nil)
	return info, e.Body, nil
}

func (d *DB) DocInfosByID(ids [][]byte, fn docstore.DocInfoFunc) error {
	if d.closed {
		return docstore.ErrClosed
	}
	start := time.Now()
	found := 0
	err := func() error {
		for _, id := range ids {
			e, err := d.log.GetMeta(id)
			if errors.Is(err, seqlog.ErrNotFound) {
				continue
			}
			if err != nil {
				return translate(err)
			}
			if err := d.fill(e); err != nil {
				return err
			}
			found++
			if err := fn(&d.info); err != nil {
				return err
			}
		}
		return nil
	}()
	d.metrics.RecordGet(Engine, found, time.Since(start), err)
	return err
}

func (d *DB) DocInfosBySequence(seqs []uint64, fn docstore.DocInfoFunc) error {
	if d.closed {
		return docstore.ErrClosed
	}
	start := time.Now()
	found := 0
	err := func() error {
		for _, seq := range seqs {
			e, err := d.log.GetMetaBySeq(seq, d.keyBuf[:])
			if errors.Is(err, seqlog.ErrNotFound) {
				continue
			}
			if err != nil {
				return translate(err)
			}
			if err := d.fill(e); err != nil {
				return err
			}
			found++
			if err := fn(&d.info); err != nil {
				return err
			}
		}
		return nil
	}()
	d.metrics.RecordGet(Engine, found, time.Since(start), err)
	return err
}

func (d *DB) ChangesSince(since uint64, fn docstore.DocInfoFunc) error {
	if d.closed {
		return docstore.ErrClosed
	}
	start := time.Now()
	found := 0

	var cbErr error
	err := d.log.Changes(since, func(e *seqlog.Entry) error {
		if err := d.fill(e); err != nil {
			return err
		}
		found++
		if err := fn(&d.info); err != nil {
			cbErr = err
			return seqlog.ErrStopIterate
		}
		return nil
	})
	if cbErr != nil {
		err = cbErr
	} else {
		err = translate(err)
	}
	d.metrics.RecordGet(Engine, found, time.Since(start), err)
	return err
}

// fill decodes e into the reused info record. ID aliases e.Key and RevMeta
// aliases the decode scratch buffer.
func (d *DB) fill(e *seqlog.Entry) error {
	d.info = docstore.DocInfo{
		ID:           e.Key,
		Size:         e.BodyLen,
		BytePosition: e.Offset,
		DBSeq:        e.Seq,
	}
	return d.decBuf.Decode(e.Meta, &d.info.Meta)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (d *DB) Close() error {
	if d.closed {
		return docstore.ErrClosed
	}
	d.closed = true
	if err := d.store.Close(); err != nil {
		return translate(err)
	}
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
	case errors.Is(err, seqlog.ErrNotFound):
		return fmt.Errorf("%w: %w", docstore.ErrDocNotFound, err)
	case errors.Is(err, seqlog.ErrCorrupt):
		return fmt.Errorf("%w: %w", docstore.ErrCorrupt, err)
	case errors.Is(err, seqlog.ErrKeyTooLong):
		return fmt.Errorf("%w: %w", docstore.ErrKeyTooLong, err)
	case errors.Is(err, seqlog.ErrEmptyKey):
		return fmt.Errorf("%w: %w", docstore.ErrInvalidArgument, err)
	}
	return docstore.Translate(err)
}
