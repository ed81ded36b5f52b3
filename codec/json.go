package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Values written by JSON are readable by any JSON-valued LevelDB consumer,
// which makes it the portable choice when a cache directory is shared with
// other tools.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used when none is configured.
//
// Both built-in JSON codecs produce interchangeable documents, so switching
// between them does not invalidate an existing cache.
var Default Codec = GoJSON{}
