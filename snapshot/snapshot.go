// Package snapshot implements the portable dump format for cache stores.
//
// A snapshot is a zstd stream of newline-delimited JSON:
//
//	{"format":"buildcache-snapshot","version":1,"id":"…","created":"…","codec":"go-json"}
//	{"k":"<base64 key>","v":"<base64 value>"}
//	…
//	{"count":N,"xxhash":"<hex>"}
//
// The trailer carries the entry count and an xxhash64 digest over every
// length-prefixed key and value, so truncated or altered snapshots are
// rejected on read. Keys and values are opaque bytes; the header names the
// value codec they were written with.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	// Format identifies snapshot streams.
	Format = "buildcache-snapshot"
	// Version is the current format version.
	Version = 1
)

var (
	// ErrCorrupt is returned when a snapshot fails validation.
	ErrCorrupt = errors.New("corrupt snapshot")
	// ErrUnsupported is returned for unknown formats or versions.
	ErrUnsupported = errors.New("unsupported snapshot")
	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("snapshot writer closed")
)

// Header is the first line of a snapshot.
type Header struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	ID      uuid.UUID `json:"id"`
	Created time.Time `json:"created"`
	Codec   string    `json:"codec"`
}

// Entry is one key/value pair.
type Entry struct {
	Key   []byte
	Value []byte
}

// Stats summarizes a written or read snapshot.
type Stats struct {
	ID      uuid.UUID
	Codec   string
	Entries int64
}

type line struct {
	K      []byte `json:"k,omitempty"`
	V      []byte `json:"v,omitempty"`
	Count  *int64 `json:"count,omitempty"`
	XXHash string `json:"xxhash,omitempty"`
}

type digest struct {
	h   *xxhash.Digest
	buf []byte
}

func newDigest() *digest {
	return &digest{h: xxhash.New(), buf: make([]byte, 0, binary.MaxVarintLen64)}
}

func (d *digest) add(key, value []byte) {
	for _, b := range [][]byte{key, value} {
		d.buf = binary.AppendUvarint(d.buf[:0], uint64(len(b)))
		_, _ = d.h.Write(d.buf)
		_, _ = d.h.Write(b)
	}
}

func (d *digest) sum() string {
	return strconv.FormatUint(d.h.Sum64(), 16)
}

// Writer streams entries into a snapshot.
type Writer struct {
	zw     *zstd.Encoder
	enc    *gojson.Encoder
	digest *digest
	header Header
	count  int64
	closed bool
}

// NewWriter writes a snapshot header to w and returns a Writer for entries.
// codecName records the value codec of the entries that follow.
func NewWriter(w io.Writer, codecName string) (*Writer, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}

	sw := &Writer{
		zw:     zw,
		enc:    gojson.NewEncoder(zw),
		digest: newDigest(),
		header: Header{
			Format:  Format,
			Version: Version,
			ID:      uuid.New(),
			Created: time.Now().UTC().Truncate(time.Second),
			Codec:   codecName,
		},
	}
	if err := sw.enc.Encode(sw.header); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("write snapshot header: %w", err)
	}
	return sw, nil
}

// Header returns the header written to the stream.
func (w *Writer) Header() Header { return w.header }

// Count returns the number of entries added so far.
func (w *Writer) Count() int64 { return w.count }

// Add appends one entry.
func (w *Writer) Add(key, value []byte) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.enc.Encode(line{K: key, V: value}); err != nil {
		return err
	}
	w.digest.add(key, value)
	w.count++
	return nil
}

// Close writes the trailer and flushes the compressor.
// It does not close the underlying writer.
func (w *Writer) Close() (Stats, error) {
	if w.closed {
		return Stats{}, ErrClosed
	}
	w.closed = true

	count := w.count
	if err := w.enc.Encode(line{Count: &count, XXHash: w.digest.sum()}); err != nil {
		_ = w.zw.Close()
		return Stats{}, err
	}
	if err := w.zw.Close(); err != nil {
		return Stats{}, err
	}
	return Stats{ID: w.header.ID, Codec: w.header.Codec, Entries: count}, nil
}

// Reader reads entries from a snapshot.
type Reader struct {
	zr     *zstd.Decoder
	dec    *gojson.Decoder
	digest *digest
	header Header
	count  int64
	done   bool
}

// NewReader reads and validates the snapshot header from r.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}

	sr := &Reader{
		zr:     zr,
		dec:    gojson.NewDecoder(zr),
		digest: newDigest(),
	}
	if err := sr.dec.Decode(&sr.header); err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if sr.header.Format != Format {
		zr.Close()
		return nil, fmt.Errorf("%w: format %q", ErrUnsupported, sr.header.Format)
	}
	if sr.header.Version != Version {
		zr.Close()
		return nil, fmt.Errorf("%w: version %d", ErrUnsupported, sr.header.Version)
	}
	return sr, nil
}

// Header returns the snapshot header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next entry, or io.EOF once the trailer was read and
// verified.
func (r *Reader) Next() (Entry, error) {
	if r.done {
		return Entry{}, io.EOF
	}

	var l line
	if err := r.dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, fmt.Errorf("%w: missing trailer after %d entries", ErrCorrupt, r.count)
		}
		return Entry{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if l.Count != nil {
		r.done = true
		if *l.Count != r.count {
			return Entry{}, fmt.Errorf("%w: trailer count %d, read %d", ErrCorrupt, *l.Count, r.count)
		}
		if l.XXHash != r.digest.sum() {
			return Entry{}, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
		}
		return Entry{}, io.EOF
	}

	if len(l.K) == 0 {
		return Entry{}, fmt.Errorf("%w: entry %d has no key", ErrCorrupt, r.count)
	}
	r.digest.add(l.K, l.V)
	r.count++
	return Entry{Key: l.K, Value: l.V}, nil
}

// Stats returns what has been read so far.
func (r *Reader) Stats() Stats {
	return Stats{ID: r.header.ID, Codec: r.header.Codec, Entries: r.count}
}

// Close releases the decompressor.
func (r *Reader) Close() {
	r.zr.Close()
}
