// Package codec encodes and decodes the fixed-layout document metadata record
// shared by every storage binding.
//
// The record layout is little-endian with no padding:
//
//	offset  size  field
//	0       8     revision sequence
//	8       1     deleted flag (0 or 1)
//	9       4     content-meta flags
//	13      8     revision-meta length n
//	21      n     revision-meta bytes (omitted when n == 0)
//
// Engine-assigned values (database sequence, byte position) are not part of the
// record; bindings attach them to the in-memory metadata separately.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// HeaderSize is the size of the fixed part of an encoded record.
	HeaderSize = 8 + 1 + 4 + 8

	// RevMetaLenOffset is the offset of the revision-meta length field.
	RevMetaLenOffset = 8 + 1 + 4

	// DefaultCapacity is the baseline metadata buffer size used by bindings
	// before any growth.
	DefaultCapacity = 256
)

// Sentinel errors returned by the codec.
var (
	ErrShortBuffer = errors.New("codec: destination buffer too small")
	ErrTruncated   = errors.New("codec: record truncated")
	ErrCorrupt     = errors.New("codec: record corrupt")
)

// Meta is the part of document metadata that is persisted by the codec.
type Meta struct {
	RevSeq      uint64
	Deleted     bool
	ContentMeta uint32
	RevMeta     []byte
}

// Size returns the encoded size of m.
func Size(m *Meta) int {
	return HeaderSize + len(m.RevMeta)
}

// Encode writes m into dst and returns the number of bytes written. It never
// writes past len(dst); when dst is too small it returns ErrShortBuffer and
// leaves dst untouched.
func Encode(dst []byte, m *Meta) (int, error) {
	n := Size(m)
	if len(dst) < n {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, len(dst))
	}
	putHeader(dst, m)
	copy(dst[HeaderSize:], m.RevMeta)
	return n, nil
}

// Append appends the encoding of m to dst, growing it as needed.
func Append(dst []byte, m *Meta) []byte {
	var hdr [HeaderSize]byte
	putHeader(hdr[:], m)
	dst = append(dst, hdr[:]...)
	return append(dst, m.RevMeta...)
}

func putHeader(dst []byte, m *Meta) {
	binary.LittleEndian.PutUint64(dst[0:8], m.RevSeq)
	if m.Deleted {
		dst[8] = 1
	} else {
		dst[8] = 0
	}
	binary.LittleEndian.PutUint32(dst[9:13], m.ContentMeta)
	binary.LittleEndian.PutUint64(dst[RevMetaLenOffset:HeaderSize], uint64(len(m.RevMeta)))
}

// RevMetaLen reads the revision-meta length field of an encoded record without
// decoding the rest. Bindings use it to size scratch buffers before decoding.
func RevMetaLen(src []byte) (uint64, error) {
	if len(src) < HeaderSize {
		return 0, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(src), HeaderSize)
	}
	return binary.LittleEndian.Uint64(src[RevMetaLenOffset:HeaderSize]), nil
}

// Decode parses src into m and returns the number of bytes consumed. The
// revision meta is copied into a fresh slice owned by m, or set to nil when
// its length is zero.
func Decode(src []byte, m *Meta) (int, error) {
	return decode(src, m, nil, true)
}

// DecodeInto is like Decode but copies the revision meta into scratch when it
// has enough capacity, so m.RevMeta aliases scratch. The returned slice is the
// buffer actually used, which callers should keep for the next call.
func DecodeInto(src []byte, m *Meta, scratch []byte) (int, []byte, error) {
	n, err := decode(src, m, &scratch, false)
	return n, scratch, err
}

func decode(src []byte, m *Meta, scratch *[]byte, own bool) (int, error) {
	size, err := RevMetaLen(src)
	if err != nil {
		return 0, err
	}
	if size > math.MaxInt-HeaderSize || uint64(len(src)-HeaderSize) < size {
		return 0, fmt.Errorf("%w: revision meta of %d bytes, %d available",
			ErrTruncated, size, len(src)-HeaderSize)
	}

	var deleted bool
	switch src[8] {
	case 0:
	case 1:
		deleted = true
	default:
		return 0, fmt.Errorf("%w: deleted flag %#x", ErrCorrupt, src[8])
	}

	m.RevSeq = binary.LittleEndian.Uint64(src[0:8])
	m.Deleted = deleted
	m.ContentMeta = binary.LittleEndian.Uint32(src[9:13])

	n := int(size)
	switch {
	case n == 0:
		m.RevMeta = nil
	case own:
		m.RevMeta = make([]byte, n)
		copy(m.RevMeta, src[HeaderSize:HeaderSize+n])
	default:
		if cap(*scratch) < n {
			*scratch = make([]byte, n)
		}
		buf := (*scratch)[:n]
		copy(buf, src[HeaderSize:HeaderSize+n])
		m.RevMeta = buf
	}
	return HeaderSize + n, nil
}
