// Package codec centralizes record value encoding.
//
// Buildcache treats codec selection as a breaking-change boundary:
// if you change codecs, values written by older codecs may no longer decode.
// The JSON codecs produce plain JSON documents; the [Compressed] wrapper does not.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a codec by its stable name.
//
// Compressed codecs are named "<inner>+<algorithm>", e.g. "go-json+zstd".
// Snapshots record the codec name in their header and use this on import.
func ByName(name string) (Codec, bool) {
	if inner, alg, ok := strings.Cut(name, "+"); ok {
		c, found := ByName(inner)
		if !found {
			return nil, false
		}
		a, found := algorithmByName(alg)
		if !found {
			return nil, false
		}
		return NewCompressed(c, a), true
	}

	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
