package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

type failingCompressor struct {
	compressErr   error
	decompressErr error
}

func (failingCompressor) Name() string { return "failing" }

func (f failingCompressor) Compress(data []byte) ([]byte, error) {
	if f.compressErr != nil {
		return nil, f.compressErr
	}
	return append([]byte(nil), data...), nil
}

func (f failingCompressor) Decompress(data []byte) ([]byte, error) {
	if f.decompressErr != nil {
		return nil, f.decompressErr
	}
	return data, nil
}

func TestCompressors_RoundTrip(t *testing.T) {
	zc, err := NewZstdCompressor(zstd.SpeedFastest)
	if err != nil {
		t.Fatalf("NewZstdCompressor() error = %v", err)
	}
	defer zc.Close()

	payload := bytes.Repeat([]byte("tiered cache payload "), 200)

	for _, c := range []Compressor{NewS2Compressor(), zc} {
		t.Run(c.Name(), func(t *testing.T) {
			packed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if len(packed) >= len(payload) {
				t.Errorf("compressed size %d >= original %d", len(packed), len(payload))
			}
			unpacked, err := c.Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(unpacked, payload) {
				t.Error("round trip changed the payload")
			}
		})
	}
}

func TestCompressValue_Shapes(t *testing.T) {
	c := NewS2Compressor()

	tests := []struct {
		name   string
		value  any
		wantOK bool
	}{
		{"string", strings.Repeat("a", 100), true},
		{"bytes", bytes.Repeat([]byte{1}, 100), true},
		{"raw json", json.RawMessage(`{"k":"` + strings.Repeat("v", 100) + `"}`), true},
		{"map is not compressed", map[string]int{"a": 1}, false},
		{"int is not compressed", 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv, ok, err := compressValue(c, tt.value)
			if err != nil {
				t.Fatalf("compressValue() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("compressValue() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			got, err := decompressValue(c, cv)
			if err != nil {
				t.Fatalf("decompressValue() error = %v", err)
			}
			switch want := tt.value.(type) {
			case string:
				if s, isString := got.(string); !isString || s != want {
					t.Errorf("decompressValue() = %T %v, want string", got, got)
				}
			case []byte:
				if b, isBytes := got.([]byte); !isBytes || !bytes.Equal(b, want) {
					t.Errorf("decompressValue() = %T %v, want []byte", got, got)
				}
			case json.RawMessage:
				if b, isRaw := got.(json.RawMessage); !isRaw || !bytes.Equal(b, want) {
					t.Errorf("decompressValue() = %T %v, want json.RawMessage", got, got)
				}
			}
		})
	}
}

func TestCache_CompressionRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.Compressor = NewS2Compressor()
		cfg.CompressionThreshold = 64
	})

	text := strings.Repeat("compressible ", 100)
	raw := bytes.Repeat([]byte("xyz"), 500)

	_ = c.Set("text", text, SetOptions{})
	_ = c.Set("raw", raw, SetOptions{})
	_ = c.Set("small", "tiny", SetOptions{})

	info, _ := c.Inspect("text")
	if !info.Compressed {
		t.Error("large string not compressed")
	}
	if info.SizeBytes >= int64(len(text)*2) {
		t.Errorf("SizeBytes = %d, want < %d after compression", info.SizeBytes, len(text)*2)
	}
	if info, _ := c.Inspect("small"); info.Compressed {
		t.Error("value under threshold was compressed")
	}

	got, ok := c.Get("text")
	if !ok || got != text {
		t.Errorf("Get(text) = %v, %v; want original string", got, ok)
	}
	gotRaw, ok := c.Get("raw")
	if b, isBytes := gotRaw.([]byte); !ok || !isBytes || !bytes.Equal(b, raw) {
		t.Errorf("Get(raw) = %T, %v; want original bytes", gotRaw, ok)
	}

	if got := c.Stats().Compressions; got != 2 {
		t.Errorf("Compressions = %d, want 2", got)
	}
	assertAccounting(t, c)
}

func TestCache_DisableCompression(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.Compressor = NewS2Compressor()
		cfg.CompressionThreshold = 64
	})

	text := strings.Repeat("a", 500)
	_ = c.Set("k", text, SetOptions{DisableCompression: true})

	info, _ := c.Inspect("k")
	if info.Compressed {
		t.Error("entry compressed despite DisableCompression")
	}
	if info.SizeBytes != 1000 {
		t.Errorf("SizeBytes = %d, want 1000", info.SizeBytes)
	}
}

func TestCache_CompressionFailureStoresOriginal(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.Compressor = failingCompressor{compressErr: errors.New("boom")}
		cfg.CompressionThreshold = 64
	})

	text := strings.Repeat("a", 500)
	if err := c.Set("k", text, SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if got, ok := c.Get("k"); !ok || got != text {
		t.Errorf("Get() = %v, %v; want original value", got, ok)
	}
	if got := c.Stats().CompressionErrors; got != 1 {
		t.Errorf("CompressionErrors = %d, want 1", got)
	}
}

func TestCache_UndecodableEntryIsDropped(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.Compressor = failingCompressor{decompressErr: errors.New("corrupt")}
		cfg.CompressionThreshold = 64
	})

	_ = c.Set("k", strings.Repeat("a", 500), SetOptions{})

	if _, ok := c.Get("k"); ok {
		t.Error("Get() = hit, want miss for undecodable entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	assertAccounting(t, c)
}

type panicMarshaler struct{}

func (panicMarshaler) MarshalJSON() ([]byte, error) {
	panic("cannot marshal")
}

func TestEstimateSize(t *testing.T) {
	type record struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"nil", nil, 8},
		{"bool", true, 4},
		{"int", 42, 8},
		{"float", 3.14, 8},
		{"string counts two bytes per char", "abc", 6},
		{"empty string", "", 0},
		{"bytes", []byte{1, 2, 3}, 3},
		{"raw json", json.RawMessage(`{}`), 2},
		{"map doubles json length", map[string]int{"a": 1}, 14},
		{"struct doubles json length", record{ID: 1, Name: "x"}, int64(len(`{"id":1,"name":"x"}`) * 2)},
		{"unserializable falls back", make(chan int), fallbackSize},
		{"panicking marshaler falls back", panicMarshaler{}, fallbackSize},
		{"compressed payload", compressedValue{data: make([]byte, 17)}, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateSize(tt.value); got != tt.want {
				t.Errorf("estimateSize() = %d, want %d", got, tt.want)
			}
		})
	}
}
