package seqlog

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Encoders and decoders are expensive to build; bodies are small and
// frequent, so both are pooled.
var (
	encoderPool sync.Pool
	decoderPool sync.Pool
)

func getEncoder() (*zstd.Encoder, error) {
	if v := encoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
}

func getDecoder() (*zstd.Decoder, error) {
	if v := decoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// compress returns the zstd encoding of body and true, or body unchanged and
// false when compression does not save at least a tenth of its size.
func compress(body []byte) ([]byte, bool, error) {
	if len(body) == 0 {
		return body, false, nil
	}
	enc, err := getEncoder()
	if err != nil {
		return nil, false, fmt.Errorf("seqlog: zstd encoder: %w", err)
	}
	defer encoderPool.Put(enc)

	out := enc.EncodeAll(body, make([]byte, 0, len(body)))
	if len(out)*10 > len(body)*9 {
		return body, false, nil
	}
	return out, true, nil
}

func decompress(stored []byte, bodyLen uint64) ([]byte, error) {
	dec, err := getDecoder()
	if err != nil {
		return nil, fmt.Errorf("seqlog: zstd decoder: %w", err)
	}
	defer decoderPool.Put(dec)

	out, err := dec.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrCorrupt, err)
	}
	if uint64(len(out)) != bodyLen {
		return nil, fmt.Errorf("%w: body decompressed to %d bytes, want %d", ErrCorrupt, len(out), bodyLen)
	}
	return out, nil
}
