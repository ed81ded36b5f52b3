// Package key defines the namespaced keys buildcache stores records under.
//
// Every key is a tuple of strings whose first element names the namespace:
//
//	["file", id]
//	["plugin", name, key]
//
// Tuples are serialized as compact JSON arrays escaped the way JSON.stringify
// escapes strings: only '"', '\\' and control characters are escaped, with
// the short forms \b \f \n \r \t where they exist. HTML characters and
// U+2028/U+2029 are written as is.
//
// Because the namespace is the leading element, all keys of a namespace
// share the byte prefix returned by [Prefix] and sort together in an
// ordered store.
package key

import (
	"errors"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
)

// Namespace is the leading tuple element of a key.
type Namespace string

const (
	// File holds per-file build records.
	File Namespace = "file"
	// Plugin holds plugin-private values.
	Plugin Namespace = "plugin"
)

// ErrMalformed is returned when bytes do not decode to a known key shape.
var ErrMalformed = errors.New("malformed key")

// Key is a tagged store key.
//
// Plugin is only meaningful for the Plugin namespace.
type Key struct {
	Namespace Namespace
	Plugin    string
	ID        string
}

// ForFile returns the key of the file record with the given id.
func ForFile(id string) Key {
	return Key{Namespace: File, ID: id}
}

// ForPlugin returns the key of a plugin value.
func ForPlugin(name, id string) Key {
	return Key{Namespace: Plugin, Plugin: name, ID: id}
}

// Tuple returns the key as its string tuple.
func (k Key) Tuple() []string {
	if k.Namespace == Plugin {
		return []string{string(Plugin), k.Plugin, k.ID}
	}
	return []string{string(k.Namespace), k.ID}
}

// Encode serializes the key.
func (k Key) Encode() ([]byte, error) {
	switch k.Namespace {
	case File, Plugin:
	default:
		return nil, fmt.Errorf("%w: unknown namespace %q", ErrMalformed, k.Namespace)
	}
	tuple := k.Tuple()

	n := 2
	for _, s := range tuple {
		n += len(s) + 3
	}
	b := make([]byte, 0, n)
	b = append(b, '[')
	for i, s := range tuple {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendString(b, s)
	}
	return append(b, ']'), nil
}

const hex = "0123456789abcdef"

// appendString appends s as a JSON string literal in JSON.stringify form.
func appendString(b []byte, s string) []byte {
	b = append(b, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		b = append(b, s[start:i]...)
		switch c {
		case '"', '\\':
			b = append(b, '\\', c)
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		default:
			b = append(b, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
		}
		start = i + 1
	}
	b = append(b, s[start:]...)
	return append(b, '"')
}

// MustEncode is like Encode but panics on an unknown namespace.
func (k Key) MustEncode() []byte {
	b, err := k.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// String renders the tuple for logs, e.g. "plugin/babel/k".
func (k Key) String() string {
	return strings.Join(k.Tuple(), "/")
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) (Key, error) {
	var tuple []string
	if err := gojson.Unmarshal(b, &tuple); err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(tuple) == 0 {
		return Key{}, fmt.Errorf("%w: empty tuple", ErrMalformed)
	}

	switch Namespace(tuple[0]) {
	case File:
		if len(tuple) != 2 {
			return Key{}, fmt.Errorf("%w: file key has %d elements", ErrMalformed, len(tuple))
		}
		return ForFile(tuple[1]), nil
	case Plugin:
		if len(tuple) != 3 {
			return Key{}, fmt.Errorf("%w: plugin key has %d elements", ErrMalformed, len(tuple))
		}
		return ForPlugin(tuple[1], tuple[2]), nil
	default:
		return Key{}, fmt.Errorf("%w: unknown namespace %q", ErrMalformed, tuple[0])
	}
}

// Prefix returns the byte prefix shared by every encoded key of ns.
func Prefix(ns Namespace) []byte {
	return []byte(`["` + string(ns) + `",`)
}
