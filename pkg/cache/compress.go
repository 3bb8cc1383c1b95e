package cache

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor shrinks payloads before they are stored.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// S2Compressor is a fast Snappy-compatible compressor.
type S2Compressor struct{}

// NewS2Compressor returns an S2 compressor.
func NewS2Compressor() *S2Compressor {
	return &S2Compressor{}
}

func (S2Compressor) Name() string { return "s2" }

func (S2Compressor) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (S2Compressor) Decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

// ZstdCompressor trades CPU for a better ratio than S2.
// The encoder and decoder are shared and safe for concurrent use.
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompressor creates a zstd compressor at the given level.
func NewZstdCompressor(level zstd.EncoderLevel) (*ZstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (z *ZstdCompressor) Name() string { return "zstd" }

func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return z.dec.DecodeAll(data, nil)
}

// Close releases the encoder and decoder.
func (z *ZstdCompressor) Close() error {
	z.dec.Close()
	return z.enc.Close()
}

type valueKind uint8

const (
	kindBytes valueKind = iota
	kindString
	kindJSON
)

// compressedValue is what the store holds for a compressed payload.
type compressedValue struct {
	data []byte
	kind valueKind
}

// compressValue compresses string, []byte and json.RawMessage payloads.
// Other shapes return ok=false and the caller keeps the original.
func compressValue(c Compressor, value any) (cv compressedValue, ok bool, err error) {
	var raw []byte
	var kind valueKind
	switch v := value.(type) {
	case string:
		raw, kind = []byte(v), kindString
	case []byte:
		raw, kind = v, kindBytes
	case json.RawMessage:
		raw, kind = v, kindJSON
	default:
		return compressedValue{}, false, nil
	}

	out, err := c.Compress(raw)
	if err != nil {
		return compressedValue{}, false, fmt.Errorf("compress with %s: %w", c.Name(), err)
	}
	return compressedValue{data: out, kind: kind}, true, nil
}

// decompressValue restores the original payload shape.
func decompressValue(c Compressor, cv compressedValue) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("no compressor configured for compressed value")
	}
	raw, err := c.Decompress(cv.data)
	if err != nil {
		return nil, fmt.Errorf("decompress with %s: %w", c.Name(), err)
	}
	switch cv.kind {
	case kindString:
		return string(raw), nil
	case kindJSON:
		return json.RawMessage(raw), nil
	default:
		return raw, nil
	}
}
