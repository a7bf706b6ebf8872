package seqlog

import (
	"encoding/binary"
	"fmt"
)

// Entry layout, stored in the entries column family under the document key:
//
//	offset  size  field
//	0       8     sequence
//	8       8     byte offset
//	16      8     body length as written by the caller
//	24      8     body length as stored
//	32      1     flags
//	33      n     caller metadata
const entryHeaderSize = 8 + 8 + 8 + 8 + 1

const (
	flagDeleted    byte = 1 << 0
	flagCompressed byte = 1 << 1
)

// Header layout, stored once in the header column family:
//
//	offset  size  field
//	0       8     last sequence
//	8       8     next byte offset
//	16      8     header position
//	24      8     live document count
//	32      8     deleted document count
//	40      8     live bytes
//	48      8     stale bytes
const headerSize = 7 * 8

var headerKey = []byte("header")

// Entry is one document as stored in the log.
type Entry struct {
	Key     []byte
	Meta    []byte
	Body    []byte
	Seq     uint64
	Offset  uint64
	BodyLen uint64
	Deleted bool

	storedLen  uint64
	compressed bool
}

// size is the number of log bytes the entry occupies.
func (e *Entry) size() uint64 {
	return uint64(entryHeaderSize+len(e.Key)+len(e.Meta)) + e.storedLen
}

func encodeEntry(e *Entry) []byte {
	buf := make([]byte, entryHeaderSize+len(e.Meta))
	binary.LittleEndian.PutUint64(buf[0:8], e.Seq)
	binary.LittleEndian.PutUint64(buf[8:16], e.Offset)
	binary.LittleEndian.PutUint64(buf[16:24], e.BodyLen)
	binary.LittleEndian.PutUint64(buf[24:32], e.storedLen)
	var flags byte
	if e.Deleted {
		flags |= flagDeleted
	}
	if e.compressed {
		flags |= flagCompressed
	}
	buf[32] = flags
	copy(buf[entryHeaderSize:], e.Meta)
	return buf
}

// decodeEntry parses src into e. e.Meta aliases src.
func decodeEntry(src []byte, e *Entry) error {
	if len(src) < entryHeaderSize {
		return fmt.Errorf("%w: entry of %d bytes, header needs %d", ErrCorrupt, len(src), entryHeaderSize)
	}
	flags := src[32]
	if flags&^(flagDeleted|flagCompressed) != 0 {
		return fmt.Errorf("%w: unknown entry flags %#x", ErrCorrupt, flags)
	}
	e.Seq = binary.LittleEndian.Uint64(src[0:8])
	e.Offset = binary.LittleEndian.Uint64(src[8:16])
	e.BodyLen = binary.LittleEndian.Uint64(src[16:24])
	e.storedLen = binary.LittleEndian.Uint64(src[24:32])
	e.Deleted = flags&flagDeleted != 0
	e.compressed = flags&flagCompressed != 0
	e.Meta = src[entryHeaderSize:]
	return nil
}

// header is the log-wide state rewritten with every Set.
type header struct {
	lastSeq      uint64
	nextOffset   uint64
	headerPos    uint64
	docCount     uint64
	deletedCount uint64
	liveBytes    uint64
	staleBytes   uint64
}

func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	for i, v := range []uint64{
		h.lastSeq, h.nextOffset, h.headerPos,
		h.docCount, h.deletedCount, h.liveBytes, h.staleBytes,
	} {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func decodeHeader(src []byte) (header, error) {
	if len(src) != headerSize {
		return header{}, fmt.Errorf("%w: header of %d bytes, want %d", ErrCorrupt, len(src), headerSize)
	}
	u := func(i int) uint64 { return binary.LittleEndian.Uint64(src[i*8:]) }
	return header{
		lastSeq:      u(0),
		nextOffset:   u(1),
		headerPos:    u(2),
		docCount:     u(3),
		deletedCount: u(4),
		liveBytes:    u(5),
		staleBytes:   u(6),
	}, nil
}

// seqKey encodes a sequence number big-endian so the sequence column family
// iterates in sequence order.
func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

func parseSeqKey(k []byte) (uint64, error) {
	if len(k) != 8 {
		return 0, fmt.Errorf("%w: sequence key of %d bytes", ErrCorrupt, len(k))
	}
	return binary.BigEndian.Uint64(k), nil
}
