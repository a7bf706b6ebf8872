package docstore

import (
	"errors"
	"fmt"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/db"
)

// Sentinel errors returned by every binding. Engine errors are wrapped so
// errors.Is matches both the sentinel and the original cause.
var (
	ErrOpenFile    = errors.New("docstore: cannot open database")
	ErrDocNotFound = errors.New("docstore: document not found")
	ErrAllocFail   = errors.New("docstore: allocation refused")
	ErrFailure     = errors.New("docstore: engine failure")

	ErrMetaTooLarge    = errors.New("docstore: encoded metadata exceeds engine capacity")
	ErrKeyTooLong      = errors.New("docstore: key exceeds maximum length")
	ErrInvalidArgument = errors.New("docstore: invalid argument")
	ErrInvalidConfig   = errors.New("docstore: invalid configuration")
	ErrNotSupported    = errors.New("docstore: operation not supported by this binding")
	ErrCorrupt         = errors.New("docstore: stored record is corrupt")
	ErrClosed          = errors.New("docstore: database is closed")
	ErrReadOnly        = errors.New("docstore: database is read-only")
)

// BatchError reports the document a save batch stopped at.
type BatchError struct {
	Index int
	ID    []byte
	Err   error
}

// maxErrorIDLen bounds how much of a document ID an error message quotes.
const maxErrorIDLen = 64

func (e *BatchError) Error() string {
	id := e.ID
	if len(id) > maxErrorIDLen {
		return fmt.Sprintf("docstore: save of document %d (%q... %d bytes) failed: %v", e.Index, id[:maxErrorIDLen], len(id), e.Err)
	}
	return fmt.Sprintf("docstore: save of document %d (%q) failed: %v", e.Index, id, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Translate maps an engine error onto the docstore vocabulary. Errors that
// already carry a docstore sentinel pass through; anything unrecognised
// becomes ErrFailure.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	for _, known := range []error{
		ErrOpenFile, ErrDocNotFound, ErrAllocFail, ErrFailure,
		ErrMetaTooLarge, ErrKeyTooLong, ErrInvalidArgument, ErrInvalidConfig,
		ErrNotSupported, ErrCorrupt, ErrClosed, ErrReadOnly,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return fmt.Errorf("%w: %w", ErrDocNotFound, err)
	case errors.Is(err, db.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, db.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	case errors.Is(err, db.ErrNotSupported):
		return fmt.Errorf("%w: %w", ErrNotSupported, err)
	case errors.Is(err, codec.ErrShortBuffer):
		return fmt.Errorf("%w: %w", ErrMetaTooLarge, err)
	case errors.Is(err, codec.ErrTruncated), errors.Is(err, codec.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return fmt.Errorf("%w: %w", ErrFailure, err)
}

// ValidateBatch checks the shape of a SaveDocuments call.
func ValidateBatch(docs []*Document, infos []*DocInfo) error {
	if len(docs) != len(infos) {
		return fmt.Errorf("%w: %d documents but %d infos", ErrInvalidArgument, len(docs), len(infos))
	}
	for i := range docs {
		if docs[i] == nil || infos[i] == nil {
			return fmt.Errorf("%w: nil entry at index %d", ErrInvalidArgument, i)
		}
	}
	return nil
}
