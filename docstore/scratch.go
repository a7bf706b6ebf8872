package docstore

import (
	"fmt"

	"github.com/beyondbrewing/brewery-docstore/codec"
)

// MaxScratchSize bounds how far a Scratch buffer may grow. A stored record
// claiming more revision metadata than this is treated as an allocation
// failure rather than trusted.
const MaxScratchSize = 64 << 20

// Scratch is a reusable metadata buffer owned by one handle. It grows to the
// exact size requested and never shrinks.
type Scratch struct {
	buf   []byte
	grows int
}

// NewScratch returns a Scratch with the given initial capacity, raised to
// codec.HeaderSize if smaller.
func NewScratch(capacity int) *Scratch {
	if capacity < codec.HeaderSize {
		capacity = codec.HeaderSize
	}
	return &Scratch{buf: make([]byte, capacity)}
}

// Bytes returns the buffer sized to at least n bytes, growing it when the
// current capacity is smaller. The contents are not preserved on growth.
func (s *Scratch) Bytes(n int) ([]byte, error) {
	if n < 0 || n > MaxScratchSize {
		return nil, fmt.Errorf("%w: metadata buffer of %d bytes", ErrAllocFail, n)
	}
	if n > len(s.buf) {
		s.buf = make([]byte, n)
		s.grows++
	}
	return s.buf[:n], nil
}

// Cap returns the current capacity.
func (s *Scratch) Cap() int { return len(s.buf) }

// Grows returns how many times the buffer has been reallocated.
func (s *Scratch) Grows() int { return s.grows }

// Reserve grows the buffer to fit the record in src. The revision-meta length
// is read from the record header so the whole record can be decoded without
// a second pass.
func (s *Scratch) Reserve(src []byte) error {
	n, err := codec.RevMetaLen(src)
	if err != nil {
		return Translate(err)
	}
	if n > MaxScratchSize-codec.HeaderSize {
		return fmt.Errorf("%w: revision metadata of %d bytes", ErrAllocFail, n)
	}
	_, err = s.Bytes(codec.HeaderSize + int(n))
	return err
}

// Decode decodes the record in src into m. m.RevMeta aliases the scratch
// buffer and is valid until the next call on s.
func (s *Scratch) Decode(src []byte, m *codec.Meta) error {
	if err := s.Reserve(src); err != nil {
		return err
	}
	if _, _, err := codec.DecodeInto(src, m, s.buf); err != nil {
		return Translate(err)
	}
	return nil
}

// Encode encodes m into the scratch buffer, growing it when needed, and
// returns the encoded bytes. The result is valid until the next call on s.
func (s *Scratch) Encode(m *codec.Meta) ([]byte, error) {
	dst, err := s.Bytes(codec.Size(m))
	if err != nil {
		return nil, err
	}
	n, err := codec.Encode(dst, m)
	if err != nil {
		return nil, Translate(err)
	}
	return dst[:n], nil
}
