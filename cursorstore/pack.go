package cursorstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/docstore"
)

// Stored values carry the encoded metadata and the body in one slot:
//
//	[meta length: uint16 LE][metadata record][body]
const lenPrefixSize = 2

// MaxMetaLen is the largest encoded metadata record a value can carry.
const MaxMetaLen = math.MaxUint16

// packValue returns a freshly allocated value holding m and body.
func packValue(m *codec.Meta, body []byte) ([]byte, error) {
	n := codec.Size(m)
	if n > MaxMetaLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", docstore.ErrMetaTooLarge, n, MaxMetaLen)
	}
	v := make([]byte, lenPrefixSize+n+len(body))
	binary.LittleEndian.PutUint16(v, uint16(n))
	if _, err := codec.Encode(v[lenPrefixSize:lenPrefixSize+n], m); err != nil {
		return nil, docstore.Translate(err)
	}
	copy(v[lenPrefixSize+n:], body)
	return v, nil
}

// unpackValue splits a stored value into its metadata record and body. Both
// alias v.
func unpackValue(v []byte) (meta, body []byte, err error) {
	if len(v) < lenPrefixSize {
		return nil, nil, fmt.Errorf("%w: value of %d bytes has no length prefix", docstore.ErrCorrupt, len(v))
	}
	n := int(binary.LittleEndian.Uint16(v))
	if n < codec.HeaderSize || lenPrefixSize+n > len(v) {
		return nil, nil, fmt.Errorf("%w: metadata length %d in value of %d bytes", docstore.ErrCorrupt, n, len(v))
	}
	return v[lenPrefixSize : lenPrefixSize+n], v[lenPrefixSize+n:], nil
}
