package artwork

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

// DefaultHashPrefix bounds how much of an encoded payload is hashed. The
// payload length is always mixed in, so two images only collide when they
// share this prefix and their encoded size.
const DefaultHashPrefix = 4096

var (
	// ErrSizeMismatch means the decoded image is not exactly Format.Size bytes.
	ErrSizeMismatch = errors.New("artwork: decoded size mismatch")
	// ErrEncoding means the payload is not valid base64 or hex.
	ErrEncoding = errors.New("artwork: invalid encoding")
	// ErrNoAssembly means a chunk or end marker arrived without a start marker.
	ErrNoAssembly = errors.New("artwork: chunk outside of an assembly")
)

// Result is the outcome of a decode attempt.
type Result int

const (
	// Failed leaves the buffer and its hash untouched.
	Failed Result = iota
	// Unchanged means the payload matches the committed image; nothing was
	// committed and the "new" flag is untouched.
	Unchanged
	// Updated means a new image was committed and flagged as new.
	Updated
)

func (r Result) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	default:
		return "failed"
	}
}

// Cache persists decoded images across restarts, keyed by a digest of the
// whole encoded payload. Load reports false on any miss or error; Store is
// best effort.
type Cache interface {
	Load(key uint64, dst []byte) bool
	Store(key uint64, pixels []byte)
}

// Stats counts decode outcomes.
type Stats struct {
	Updated   uint64
	Unchanged uint64
	Failed    uint64
	CacheHits uint64
}

// Decoder owns the decode scratch space and is the Buffer's only writer.
// Not safe for concurrent use; it belongs to the ingestion goroutine.
type Decoder struct {
	buf        *Buffer
	cache      Cache
	hashPrefix int
	hashBuf    []byte
	scratch    []byte
	maxEncoded int

	assembling bool
	assembled  int
	asmBroken  bool

	// digest is xxh3 over the committed pixels; both transfer paths
	// compare against it so a resend in either encoding is Unchanged.
	digest     uint64
	haveDigest bool

	stats Stats
}

// NewDecoder binds a decoder to buf. hashPrefix <= 0 selects
// DefaultHashPrefix. cache may be nil.
func NewDecoder(buf *Buffer, hashPrefix int, cache Cache) *Decoder {
	if hashPrefix <= 0 {
		hashPrefix = DefaultHashPrefix
	}
	size := buf.Format().Size()
	maxEncoded := base64.StdEncoding.EncodedLen(size)
	return &Decoder{
		buf:        buf,
		cache:      cache,
		hashPrefix: hashPrefix,
		hashBuf:    make([]byte, 8+hashPrefix),
		// base64 may write up to DecodedLen bytes before the size check runs.
		scratch:    make([]byte, size, base64.StdEncoding.DecodedLen(maxEncoded)),
		maxEncoded: maxEncoded,
	}
}

// Buffer returns the buffer this decoder writes.
func (d *Decoder) Buffer() *Buffer {
	return d.buf
}

// Stats returns a copy of the decode counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// DecodeBase64 decodes an inline base64 image. A payload whose prefix hash
// matches the committed image returns Unchanged without decoding. A payload
// that decodes to the committed pixels is also Unchanged.
func (d *Decoder) DecodeBase64(payload []byte) (Result, error) {
	payload = bytes.TrimSpace(payload)
	h := d.hash(payload)
	if last, ok := d.buf.Hash(); ok && last == h {
		d.stats.Unchanged++
		return Unchanged, nil
	}
	key := xxh3.Hash(payload)
	if d.cache != nil && d.cache.Load(key, d.scratch) {
		d.stats.CacheHits++
		return d.settle(h, true), nil
	}
	if len(payload) > d.maxEncoded {
		return d.fail(fmt.Errorf("%w: %d encoded bytes, want at most %d", ErrSizeMismatch, len(payload), d.maxEncoded))
	}
	n, err := base64.StdEncoding.Decode(d.scratch[:cap(d.scratch)], payload)
	if err != nil {
		return d.fail(fmt.Errorf("%w: %v", ErrEncoding, err))
	}
	if n != len(d.scratch) {
		return d.fail(fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, len(d.scratch)))
	}
	if d.cache != nil {
		d.cache.Store(key, d.scratch)
	}
	return d.settle(h, true), nil
}

// BeginChunks starts a legacy hex-chunked transfer, abandoning any transfer
// already in progress.
func (d *Decoder) BeginChunks() {
	d.assembling = true
	d.assembled = 0
	d.asmBroken = false
}

// AddChunk appends one hex chunk. Bad hex or overflow poisons the transfer;
// the error is reported once at EndChunks.
func (d *Decoder) AddChunk(hexData []byte) error {
	if !d.assembling {
		return ErrNoAssembly
	}
	if d.asmBroken {
		return nil
	}
	hexData = bytes.TrimSpace(hexData)
	if len(hexData)%2 != 0 {
		d.asmBroken = true
		return nil
	}
	need := len(hexData) / 2
	if d.assembled+need > len(d.scratch) {
		d.asmBroken = true
		return nil
	}
	if _, err := hex.Decode(d.scratch[d.assembled:d.assembled+need], hexData); err != nil {
		d.asmBroken = true
		return nil
	}
	d.assembled += need
	return nil
}

// EndChunks finishes a chunked transfer and commits it when it decoded to
// exactly the expected size. Chunked images have no single encoded payload,
// so they bypass the cache and leave the prefix hash unset.
func (d *Decoder) EndChunks() (Result, error) {
	if !d.assembling {
		return d.fail(ErrNoAssembly)
	}
	d.assembling = false
	if d.asmBroken {
		return d.fail(fmt.Errorf("%w: chunked transfer", ErrEncoding))
	}
	if d.assembled != len(d.scratch) {
		return d.fail(fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, d.assembled, len(d.scratch)))
	}
	return d.settle(0, false), nil
}

// Assembling reports whether a chunked transfer is open.
func (d *Decoder) Assembling() bool {
	return d.assembling
}

// settle commits the scratch pixels unless they equal the committed image.
// h is the prefix hash of the encoded payload when known is true.
func (d *Decoder) settle(h uint64, known bool) Result {
	digest := xxh3.Hash(d.scratch)
	if d.haveDigest && digest == d.digest {
		if known {
			d.buf.remember(h)
		}
		d.stats.Unchanged++
		return Unchanged
	}
	d.digest, d.haveDigest = digest, true
	d.buf.commit(d.scratch, h, known)
	d.stats.Updated++
	return Updated
}

func (d *Decoder) fail(err error) (Result, error) {
	d.stats.Failed++
	return Failed, err
}

// hash folds the payload length and a bounded prefix into one xxh3 digest
// using a fixed scratch layout: 8 bytes little-endian length, then the prefix.
func (d *Decoder) hash(payload []byte) uint64 {
	binary.LittleEndian.PutUint64(d.hashBuf[:8], uint64(len(payload)))
	n := copy(d.hashBuf[8:], payload)
	return xxh3.Hash(d.hashBuf[:8+n])
}
