// Package framer turns an arbitrary byte stream into newline-delimited frames.
//
// The framer is fed whatever the transport returned from a single read. It
// never blocks and never allocates past its line cap: a host that stops
// sending terminators costs at most maxLine bytes before the partial line is
// discarded and the framer skips ahead to the next newline.
package framer

import "bytes"

// DefaultMaxLine fits the largest artwork-bearing snapshot (80x80 RGB565 in
// base64 plus the metrics and media fields) with room to spare.
const DefaultMaxLine = 32 * 1024

// Framer accumulates bytes until a '\n' arrives. Carriage returns are
// dropped wherever they appear. Not safe for concurrent use; it belongs to the
// ingestion goroutine.
type Framer struct {
	buf        []byte
	maxLine    int
	dropping   bool
	overflows  uint64
	frames     uint64
	onOverflow func(discarded int)
}

// New returns a framer that discards any line longer than maxLine bytes.
// onOverflow, when non-nil, is told how many bytes were thrown away.
func New(maxLine int, onOverflow func(discarded int)) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &Framer{
		buf:        make([]byte, 0, maxLine),
		maxLine:    maxLine,
		onOverflow: onOverflow,
	}
}

// Feed consumes one chunk and calls emit for every completed, non-empty line.
// The slice passed to emit aliases the framer's buffer and is only valid for
// the duration of the call.
func (f *Framer) Feed(chunk []byte, emit func(line []byte)) {
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			f.appendSegment(chunk)
			return
		}
		f.appendSegment(chunk[:idx])
		f.endLine(emit)
		chunk = chunk[idx+1:]
	}
}

// Reset discards any partial line, e.g. after the connection dropped mid-frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.dropping = false
}

// Buffered reports how many bytes of the current partial line are held.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Overflows reports how many oversized lines have been discarded.
func (f *Framer) Overflows() uint64 {
	return f.overflows
}

// Frames reports how many lines have been emitted.
func (f *Framer) Frames() uint64 {
	return f.frames
}

func (f *Framer) appendSegment(seg []byte) {
	for len(seg) > 0 && !f.dropping {
		piece := seg
		next := []byte(nil)
		if cr := bytes.IndexByte(seg, '\r'); cr >= 0 {
			piece = seg[:cr]
			next = seg[cr+1:]
		}
		if len(f.buf)+len(piece) > f.maxLine {
			f.overflow(len(f.buf) + len(piece))
			return
		}
		f.buf = append(f.buf, piece...)
		seg = next
	}
}

func (f *Framer) endLine(emit func(line []byte)) {
	if f.dropping {
		// Resynchronized: the oversized line ended here.
		f.dropping = false
		return
	}
	if len(f.buf) == 0 {
		return
	}
	f.frames++
	if emit != nil {
		emit(f.buf)
	}
	f.buf = f.buf[:0]
}

func (f *Framer) overflow(discarded int) {
	f.buf = f.buf[:0]
	f.dropping = true
	f.overflows++
	if f.onOverflow != nil {
		f.onOverflow(discarded)
	}
}
