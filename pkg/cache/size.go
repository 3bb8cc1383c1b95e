package cache

import (
	"encoding/json"
)

// estimateSize returns an approximate byte cost for value. It never fails:
// values that cannot be serialized are charged fallbackSize.
func estimateSize(value any) (size int64) {
	defer func() {
		if r := recover(); r != nil {
			size = fallbackSize
		}
	}()

	switch v := value.(type) {
	case nil:
		return 8
	case bool:
		return 4
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128:
		return 8
	case string:
		// UTF-16 proxy
		return int64(len(v)) * 2
	case []byte:
		return int64(len(v))
	case compressedValue:
		return int64(len(v.data))
	case json.RawMessage:
		return int64(len(v))
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fallbackSize
	}
	return int64(len(data)) * 2
}
