package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a value compression algorithm.
type Algorithm uint8

const (
	// AlgorithmNone marks a value stored uncompressed.
	AlgorithmNone Algorithm = 0
	// AlgorithmLZ4 is LZ4 block compression (fast, good for hot data).
	AlgorithmLZ4 Algorithm = 1
	// AlgorithmZSTD is ZSTD compression (better ratio, good for large sources).
	AlgorithmZSTD Algorithm = 2
)

// String returns the stable algorithm name used in codec names.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmZSTD:
		return "zstd"
	default:
		return "none"
	}
}

func algorithmByName(name string) (Algorithm, bool) {
	switch name {
	case "lz4":
		return AlgorithmLZ4, true
	case "zstd":
		return AlgorithmZSTD, true
	default:
		return AlgorithmNone, false
	}
}

// ErrCorruptValue is returned when a compressed value cannot be decoded.
var ErrCorruptValue = errors.New("corrupt compressed value")

// MaxValueSize bounds the uncompressed size a value header may claim.
const MaxValueSize = 256 << 20

// lz4MaxRatio is the highest expansion an LZ4 block can encode.
const lz4MaxRatio = 255

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxValueSize))
	return dec
}

// Compressed wraps another codec and compresses its output.
//
// Layout: [algorithm byte][uvarint uncompressed size][payload].
// Values that do not shrink are stored with AlgorithmNone, so decoding never
// depends on the configured algorithm.
//
// Compressed values are not JSON and are unreadable by tools expecting the
// plain JSON layout. Use it only for caches buildcache owns end to end.
type Compressed struct {
	inner     Codec
	algorithm Algorithm
}

// NewCompressed returns a codec compressing inner's output with a.
func NewCompressed(inner Codec, a Algorithm) *Compressed {
	if inner == nil {
		inner = Default
	}
	return &Compressed{inner: inner, algorithm: a}
}

// Name returns "<inner>+<algorithm>".
func (c *Compressed) Name() string {
	return c.inner.Name() + "+" + c.algorithm.String()
}

// Marshal encodes v with the inner codec and compresses the result.
func (c *Compressed) Marshal(v any) ([]byte, error) {
	raw, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}

	var packed []byte
	switch c.algorithm {
	case AlgorithmLZ4:
		packed, err = compressLZ4(raw)
	case AlgorithmZSTD:
		packed = compressZSTD(raw)
	}
	if err != nil {
		return nil, err
	}

	alg := c.algorithm
	// If compression doesn't help (ratio > 0.9), store uncompressed
	if len(packed) == 0 || float64(len(packed)) > float64(len(raw))*0.9 {
		alg, packed = AlgorithmNone, raw
	}

	out := make([]byte, 1, 1+binary.MaxVarintLen64+len(packed))
	out[0] = byte(alg)
	out = binary.AppendUvarint(out, uint64(len(raw)))
	return append(out, packed...), nil
}

// Unmarshal decompresses data and decodes it with the inner codec.
func (c *Compressed) Unmarshal(data []byte, v any) error {
	raw, err := decompress(data)
	if err != nil {
		return err
	}
	return c.inner.Unmarshal(raw, v)
}

func compressLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // Incompressible
	}
	return compressed[:n], nil
}

func compressZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)

	return enc.EncodeAll(data, nil)
}

func decompress(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptValue, len(data))
	}

	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad size header", ErrCorruptValue)
	}
	if size > MaxValueSize {
		return nil, fmt.Errorf("%w: size %d exceeds %d", ErrCorruptValue, size, MaxValueSize)
	}
	payload := data[1+n:]

	switch Algorithm(data[0]) {
	case AlgorithmNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorruptValue)
		}
		return payload, nil

	case AlgorithmLZ4:
		if size > uint64(len(payload))*lz4MaxRatio+16 {
			return nil, fmt.Errorf("%w: size %d too large for %d byte block", ErrCorruptValue, size, len(payload))
		}
		result := make([]byte, size)
		m, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptValue, err)
		}
		if uint64(m) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptValue)
		}
		return result, nil

	case AlgorithmZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptValue, err)
		}
		if uint64(len(decoded)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptValue)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrCorruptValue, data[0])
	}
}
