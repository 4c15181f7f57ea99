// Package artwork decodes album art payloads into a single fixed-size pixel
// buffer, skipping work when the host resends an image it already sent.
//
// Exactly one Buffer exists per client. The ingestion goroutine is the only
// writer (through Decoder); the presentation goroutine is the only reader and
// clears the "new" flag once it has copied the pixels out.
package artwork

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// Format describes the fixed pixel layout the host encodes: width x height
// pixels of 16-bit RGB565.
type Format struct {
	Width     int
	Height    int
	BigEndian bool
}

// DefaultFormat is the 80x80 RGB565 thumbnail the host produces.
var DefaultFormat = Format{Width: 80, Height: 80}

const bytesPerPixel = 2

// Size is the exact decoded byte count an image must have.
func (f Format) Size() int {
	return f.Width * f.Height * bytesPerPixel
}

// Validate rejects empty or absurd dimensions.
func (f Format) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("artwork: invalid dimensions %dx%d", f.Width, f.Height)
	}
	if f.Width > 1024 || f.Height > 1024 {
		return fmt.Errorf("artwork: dimensions %dx%d exceed 1024x1024", f.Width, f.Height)
	}
	return nil
}

// RGB expands the pixel at (x, y) to 8-bit channels.
func (f Format) RGB(pixels []byte, x, y int) (r, g, b uint8) {
	off := (y*f.Width + x) * bytesPerPixel
	if x < 0 || y < 0 || x >= f.Width || off+1 >= len(pixels) {
		return 0, 0, 0
	}
	var v uint16
	if f.BigEndian {
		v = binary.BigEndian.Uint16(pixels[off:])
	} else {
		v = binary.LittleEndian.Uint16(pixels[off:])
	}
	r5 := uint8(v >> 11 & 0x1f)
	g6 := uint8(v >> 5 & 0x3f)
	b5 := uint8(v & 0x1f)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// Buffer is the single committed image. The mutex only covers the pixel
// copy in and out (a few kilobytes); nobody holds it across I/O.
type Buffer struct {
	format Format

	mu     sync.Mutex
	pixels []byte

	hash    atomic.Uint64
	hasHash atomic.Bool
	fresh   atomic.Bool
	commits atomic.Uint64
}

// NewBuffer allocates the pixel store for format.
func NewBuffer(format Format) *Buffer {
	return &Buffer{
		format: format,
		pixels: make([]byte, format.Size()),
	}
}

// Format returns the buffer's fixed layout.
func (b *Buffer) Format() Format {
	return b.format
}

// IsNew reports whether a decode landed since the consumer last took it.
func (b *Buffer) IsNew() bool {
	return b.fresh.Load()
}

// HasImage reports whether any image was ever committed.
func (b *Buffer) HasImage() bool {
	return b.commits.Load() > 0
}

// Hash returns the prefix hash of the payload that produced the committed
// image. It reports false after a chunked transfer.
func (b *Buffer) Hash() (uint64, bool) {
	return b.hash.Load(), b.hasHash.Load()
}

// Commits reports how many images were committed.
func (b *Buffer) Commits() uint64 {
	return b.commits.Load()
}

// TakeIfNew copies the pixels into dst and clears the "new" flag when a fresh
// image is present. dst must be at least Format().Size() bytes.
func (b *Buffer) TakeIfNew(dst []byte) bool {
	if !b.fresh.Load() {
		return false
	}
	b.mu.Lock()
	copy(dst, b.pixels)
	b.fresh.Store(false)
	b.mu.Unlock()
	return true
}

// CopyTo copies the committed pixels regardless of the "new" flag.
func (b *Buffer) CopyTo(dst []byte) {
	b.mu.Lock()
	copy(dst, b.pixels)
	b.mu.Unlock()
}

// commit is called by the Decoder only.
func (b *Buffer) commit(pixels []byte, hash uint64, known bool) {
	b.mu.Lock()
	copy(b.pixels, pixels)
	b.hash.Store(hash)
	b.hasHash.Store(known)
	b.commits.Add(1)
	b.fresh.Store(true)
	b.mu.Unlock()
}

// remember records another payload hash for the committed pixels without
// raising the "new" flag.
func (b *Buffer) remember(hash uint64) {
	b.hash.Store(hash)
	b.hasHash.Store(true)
}
