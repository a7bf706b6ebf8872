// Package seqlog is a sequenced document log on top of a [db.Store].
//
// Every Set assigns the next sequence number and a monotonically increasing
// byte offset, as an append-only file would. Metadata and bodies live in
// separate column families so metadata can be read without touching bodies,
// and a sequence index maps each live sequence back to its key. Overwritten
// entries are accounted as stale bytes until the next compaction.
//
// A Log does not own its store: callers open and close the [db.Store]
// themselves.
package seqlog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/beyondbrewing/brewery-docstore/db"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
)

// Column families used by the log.
const (
	CFEntries = "entries"
	CFBodies  = "bodies"
	CFSeq     = "seq"
	CFHeader  = "header"
)

// ColumnFamilies lists every column family a Log needs, for stores opened
// with db.WithColumnFamilies.
var ColumnFamilies = []string{CFEntries, CFBodies, CFSeq, CFHeader}

var (
	ErrNotFound    = errors.New("seqlog: entry not found")
	ErrCorrupt     = errors.New("seqlog: corrupt record")
	ErrKeyTooLong  = errors.New("seqlog: key does not fit buffer")
	ErrEmptyKey    = errors.New("seqlog: empty key")
	ErrStopIterate = errors.New("seqlog: stop iteration")
)

// SetOptions control how one entry is written.
type SetOptions struct {
	Deleted  bool
	Compress bool
}

// Stats is a snapshot of the log header.
type Stats struct {
	LastSeq      uint64
	NextOffset   uint64
	HeaderPos    uint64
	DocCount     uint64
	DeletedCount uint64
	LiveBytes    uint64
	StaleBytes   uint64
}

// StalePercent returns the share of stale bytes in the log, 0..100.
func (s Stats) StalePercent() int {
	total := s.LiveBytes + s.StaleBytes
	if total == 0 {
		return 0
	}
	return int(s.StaleBytes * 100 / total)
}

// Log is a sequenced document log. It is safe for concurrent use; writes
// are serialised.
type Log struct {
	store  db.Store
	logger logger.Logger

	mu  sync.Mutex
	hdr header
}

// Open attaches a Log to store, registering its column families and loading
// the header. A store without a header is an empty log.
func Open(store db.Store, log logger.Logger) (*Log, error) {
	if log == nil {
		log = logger.Default()
	}
	for _, cf := range ColumnFamilies {
		if err := store.CreateColumnFamily(cf); err != nil {
			return nil, fmt.Errorf("seqlog: register %s: %w", cf, err)
		}
	}

	l := &Log{store: store, logger: log.With("component", "seqlog")}

	raw, err := store.Get(CFHeader, headerKey)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
	case err != nil:
		return nil, fmt.Errorf("seqlog: read header: %w", err)
	default:
		if l.hdr, err = decodeHeader(raw); err != nil {
			return nil, err
		}
	}

	l.logger.Debug("log opened", "last_seq", l.hdr.lastSeq, "docs", l.hdr.docCount)
	return l, nil
}

// Set writes key with its metadata and body as the next entry and returns
// the assigned sequence and offset. The entry, its sequence index entry and
// the updated header are committed in one batch.
func (l *Log) Set(key, meta, body []byte, opts SetOptions) (seq, offset uint64, err error) {
	if len(key) == 0 {
		return 0, 0, ErrEmptyKey
	}

	stored, compressed := body, false
	if opts.Compress {
		if stored, compressed, err = compress(body); err != nil {
			return 0, 0, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var old *Entry
	raw, err := l.store.Get(CFEntries, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
	case err != nil:
		return 0, 0, fmt.Errorf("seqlog: read previous entry: %w", err)
	default:
		old = &Entry{Key: key}
		if err := decodeEntry(raw, old); err != nil {
			return 0, 0, err
		}
	}

	hdr := l.hdr
	e := &Entry{
		Key:        key,
		Meta:       meta,
		Seq:        hdr.lastSeq + 1,
		Offset:     hdr.nextOffset,
		BodyLen:    uint64(len(body)),
		Deleted:    opts.Deleted,
		storedLen:  uint64(len(stored)),
		compressed: compressed,
	}

	hdr.lastSeq = e.Seq
	hdr.headerPos = e.Offset + e.size()
	hdr.nextOffset = hdr.headerPos + headerSize
	hdr.liveBytes += e.size()
	if old != nil {
		hdr.liveBytes -= old.size()
		hdr.staleBytes += old.size()
		hdr.uncount(old.Deleted)
	}
	hdr.count(e.Deleted)

	b := l.store.NewBatch()
	defer b.Close()

	if old != nil {
		if err := b.Delete(CFSeq, seqKey(old.Seq)); err != nil {
			return 0, 0, err
		}
	}
	for _, op := range []struct {
		cf       string
		key, val []byte
	}{
		{CFEntries, key, encodeEntry(e)},
		{CFBodies, key, stored},
		{CFSeq, seqKey(e.Seq), key},
		{CFHeader, headerKey, hdr.encode()},
	} {
		if err := b.Put(op.cf, op.key, op.val); err != nil {
			return 0, 0, err
		}
	}
	if err := b.Commit(); err != nil {
		return 0, 0, fmt.Errorf("seqlog: write entry %d: %w", e.Seq, err)
	}

	l.hdr = hdr
	return e.Seq, e.Offset, nil
}

func (h *header) count(deleted bool) {
	if deleted {
		h.deletedCount++
	} else {
		h.docCount++
	}
}

func (h *header) uncount(deleted bool) {
	if deleted {
		h.deletedCount--
	} else {
		h.docCount--
	}
}

// GetMeta returns the entry for key without its body.
func (l *Log) GetMeta(key []byte) (*Entry, error) {
	raw, err := l.store.Get(CFEntries, key)
	if err != nil {
		return nil, notFound(err, "key %q", key)
	}
	e := &Entry{Key: key}
	if err := decodeEntry(raw, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get returns the entry for key with its body.
func (l *Log) Get(key []byte) (*Entry, error) {
	e, err := l.GetMeta(key)
	if err != nil {
		return nil, err
	}
	if err := l.loadBody(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (l *Log) loadBody(e *Entry) error {
	stored, err := l.store.Get(CFBodies, e.Key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return fmt.Errorf("%w: entry %d has no body", ErrCorrupt, e.Seq)
		}
		return fmt.Errorf("seqlog: read body: %w", err)
	}
	if uint64(len(stored)) != e.storedLen {
		return fmt.Errorf("%w: body of %d bytes, entry says %d", ErrCorrupt, len(stored), e.storedLen)
	}
	if e.compressed {
		if stored, err = decompress(stored, e.BodyLen); err != nil {
			return err
		}
	}
	e.Body = stored
	return nil
}

// GetMetaBySeq returns the entry currently holding seq, without its body.
// The entry's key is copied into keyBuf, which must be large enough to hold
// it; the returned Key aliases keyBuf.
func (l *Log) GetMetaBySeq(seq uint64, keyBuf []byte) (*Entry, error) {
	key, err := l.store.Get(CFSeq, seqKey(seq))
	if err != nil {
		return nil, notFound(err, "sequence %d", seq)
	}
	if len(key) > len(keyBuf) {
		return nil, fmt.Errorf("%w: %d bytes, buffer holds %d", ErrKeyTooLong, len(key), len(keyBuf))
	}
	n := copy(keyBuf, key)

	e, err := l.GetMeta(keyBuf[:n])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: sequence %d points at missing key %q", ErrCorrupt, seq, key)
		}
		return nil, err
	}
	if e.Seq != seq {
		return nil, fmt.Errorf("%w: sequence %d points at entry %d", ErrCorrupt, seq, e.Seq)
	}
	return e, nil
}

// Changes calls fn for every live entry with a sequence greater than since,
// in sequence order, without bodies. Returning ErrStopIterate from fn ends
// the walk without error; any other error is returned.
func (l *Log) Changes(since uint64, fn func(*Entry) error) error {
	it, err := l.store.NewIterator(CFSeq)
	if err != nil {
		return fmt.Errorf("seqlog: open sequence index: %w", err)
	}
	defer it.Close()

	for it.Seek(seqKey(since + 1)); it.Valid(); it.Next() {
		seq, err := parseSeqKey(it.Key())
		if err != nil {
			return err
		}
		e, err := l.GetMeta(it.Value())
		if err != nil {
			return err
		}
		if e.Seq != seq {
			return fmt.Errorf("%w: sequence %d points at entry %d", ErrCorrupt, seq, e.Seq)
		}
		if err := fn(e); err != nil {
			if errors.Is(err, ErrStopIterate) {
				return nil
			}
			return err
		}
	}
	return it.Err()
}

// Stats returns a snapshot of the header.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		LastSeq:      l.hdr.lastSeq,
		NextOffset:   l.hdr.nextOffset,
		HeaderPos:    l.hdr.headerPos,
		DocCount:     l.hdr.docCount,
		DeletedCount: l.hdr.deletedCount,
		LiveBytes:    l.hdr.liveBytes,
		StaleBytes:   l.hdr.staleBytes,
	}
}

// NeedsCompaction reports whether stale bytes have reached thresholdPercent
// of the log.
func (l *Log) NeedsCompaction(thresholdPercent int) bool {
	s := l.Stats()
	return s.StaleBytes > 0 && s.StalePercent() >= thresholdPercent
}

// Compact compacts the underlying store and clears the stale byte count.
func (l *Log) Compact() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Compact(); err != nil {
		return fmt.Errorf("seqlog: compact: %w", err)
	}

	hdr := l.hdr
	reclaimed := hdr.staleBytes
	hdr.staleBytes = 0
	if err := l.store.Put(CFHeader, headerKey, hdr.encode()); err != nil {
		return fmt.Errorf("seqlog: write header: %w", err)
	}
	l.hdr = hdr

	l.logger.Debug("log compacted", "reclaimed_bytes", reclaimed, "live_bytes", hdr.liveBytes)
	return nil
}

// Sync makes every entry written so far durable.
func (l *Log) Sync() error {
	if err := l.store.SyncWAL(); err != nil {
		return fmt.Errorf("seqlog: sync: %w", err)
	}
	return nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, fmt.Sprintf(format, args...), err)
	}
	return fmt.Errorf("seqlog: read %s: %w", fmt.Sprintf(format, args...), err)
}
