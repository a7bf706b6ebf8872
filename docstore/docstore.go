// Package docstore defines the document-store contract shared by every
// storage binding: documents, their metadata, the database info snapshot and
// the [Store] operations.
//
// A binding is selected by importing it: logstore (sequenced, log-structured,
// one engine per database) or cursorstore (cursor/transaction tables on a
// shared connection). Both return a [Store]; callers should depend only on
// this package after open.
//
// A Store is not safe for concurrent use. Callers that share one across
// goroutines must serialise access themselves.
package docstore

import (
	"github.com/beyondbrewing/brewery-docstore/codec"
)

// Document is a key and its body. The caller owns both slices; bindings copy
// what they need before returning.
type Document struct {
	ID   []byte
	Body []byte
}

// DocInfo is the metadata of one stored document.
//
// ID is a view into either the caller's key or a binding-owned buffer, never
// a copy. BytePosition and DBSeq are assigned by the engine on save and are
// opaque to callers; bindings without sequencing report DBSeq as 0.
type DocInfo struct {
	ID           []byte
	Size         uint64
	BytePosition uint64
	DBSeq        uint64

	codec.Meta
}

// Clone returns a deep copy of info that does not alias any binding buffer.
// Use it to keep a record handed to a DocInfoFunc past the callback.
func (info *DocInfo) Clone() *DocInfo {
	c := *info
	c.ID = append([]byte(nil), info.ID...)
	if info.RevMeta != nil {
		c.RevMeta = append([]byte(nil), info.RevMeta...)
	}
	return &c
}

// DatabaseInfo is a point-in-time snapshot, built fresh by every Info call.
type DatabaseInfo struct {
	Filename       string
	SpaceUsed      uint64
	DocCount       uint64
	DeletedCount   uint64
	HeaderPosition uint64
	LastSequence   uint64
}

// DocInfoFunc receives one record per key during batch metadata reads. The
// record and every slice it references are reused for the next key; clone
// anything that must outlive the call. Returning an error stops the walk and
// the error is returned to the caller unchanged.
type DocInfoFunc func(info *DocInfo) error

// ReadMode selects what GetByID fetches.
type ReadMode int

const (
	// ReadMetaOnly fetches metadata and leaves the body on disk.
	ReadMetaOnly ReadMode = iota
	// ReadWithBody fetches metadata and body.
	ReadWithBody
)

// SaveOptions are per-call save flags.
type SaveOptions uint32

const (
	// SaveDefault applies the handle's configuration unchanged.
	SaveDefault SaveOptions = 0
	// SaveCompressBody compresses bodies for this call even when the
	// handle was opened without CompressBodies. Bindings that store bodies
	// inline with metadata ignore it.
	SaveCompressBody SaveOptions = 1 << 0
)

// OpenFlags select the open posture.
type OpenFlags uint64

const (
	// FlagCreate creates the database when it does not exist.
	FlagCreate OpenFlags = 1 << 0
	// FlagReadOnly opens without write access.
	FlagReadOnly OpenFlags = 1 << 1
	// FlagNoSync relaxes durability regardless of Config.Durability.
	FlagNoSync OpenFlags = 1 << 4
)

// Has reports whether every bit of f2 is set in f.
func (f OpenFlags) Has(f2 OpenFlags) bool { return f&f2 == f2 }

// Store is the operation set every binding implements.
type Store interface {
	// Info returns a fresh snapshot of database statistics.
	Info() (*DatabaseInfo, error)

	// SaveDocuments writes docs in order. infos[i] describes docs[i]; on
	// success each entry is updated in place with Size, DBSeq and
	// BytePosition as assigned by the engine. A failure is reported as a
	// *BatchError naming the first document that could not be written.
	SaveDocuments(docs []*Document, infos []*DocInfo, opts SaveOptions) error

	// SaveDocument is SaveDocuments for a single document.
	SaveDocument(doc *Document, info *DocInfo, opts SaveOptions) error

	// GetByID returns the metadata for id and, with ReadWithBody, the body.
	// Returns ErrDocNotFound on a miss. The returned values are owned by
	// the caller.
	GetByID(id []byte, mode ReadMode) (*DocInfo, []byte, error)

	// DocInfosByID reads metadata for each id in order and hands it to fn.
	// Ids without a stored document are skipped.
	DocInfosByID(ids [][]byte, fn DocInfoFunc) error

	// DocInfosBySequence reads metadata for each sequence in order and
	// hands it to fn. Sequences that no longer map to a document are
	// skipped. Returns ErrNotSupported on bindings without sequencing.
	DocInfosBySequence(seqs []uint64, fn DocInfoFunc) error

	// ChangesSince walks every document whose sequence is greater than
	// since, in sequence order. Returns ErrNotSupported on bindings
	// without sequencing.
	ChangesSince(since uint64, fn DocInfoFunc) error

	// Commit makes all writes so far durable.
	Commit() error

	// Compact reclaims obsolete space. A non-empty target asks for the
	// compacted database to be written there; the handle then refers to
	// the new location.
	Compact(target string) error

	// Features reports which optional behaviours the binding provides.
	Features() Feature

	// Filename returns the logical name the database was opened with, or
	// its compaction target after a relocating Compact.
	Filename() string

	// Close releases every engine resource held by the handle. Calling
	// Close twice returns ErrClosed.
	Close() error
}
