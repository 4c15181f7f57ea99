// Package ingest is the ingestion context: it owns the framer, the frame
// decoder and the artwork decoder, and is the only writer of the snapshot
// mailbox and the artwork buffer. All methods run on the transport's read
// goroutine.
package ingest

import (
	"log"
	"time"

	"mediadash/artwork"
	"mediadash/framer"
	"mediadash/internal/ratelimit"
	"mediadash/mailbox"
	"mediadash/protocol"
	"mediadash/stats"
)

// SnapshotRecorder receives every published snapshot. Record must not block.
type SnapshotRecorder interface {
	Record(at time.Time, s *protocol.Snapshot)
}

// Options wires a Pipeline to its sinks. Only Mailbox is required.
type Options struct {
	MaxLine int
	Mailbox *mailbox.Mailbox[protocol.Snapshot]
	Artwork *artwork.Decoder
	// OnAck is called synchronously for every acknowledgement frame.
	OnAck    func(action string)
	Recorder SnapshotRecorder
	Stats    *stats.Tracker
	// OnFrame observes every classified frame; used by diagnostics.
	OnFrame func(f *protocol.Frame)
	Now     func() time.Time
}

// Pipeline turns transport bytes into mailbox publications.
type Pipeline struct {
	framer  *framer.Framer
	decoder *protocol.Decoder
	mailbox *mailbox.Mailbox[protocol.Snapshot]
	onAck   func(string)
	rec     SnapshotRecorder
	stats   *stats.Tracker
	onFrame func(*protocol.Frame)
	now     func() time.Time

	emit func([]byte)

	overflowLog  ratelimit.Counter
	malformedLog ratelimit.Counter
	artworkLog   ratelimit.Counter
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		mailbox:      opts.Mailbox,
		onAck:        opts.OnAck,
		rec:          opts.Recorder,
		stats:        opts.Stats,
		onFrame:      opts.OnFrame,
		now:          opts.Now,
		overflowLog:  ratelimit.NewCounter(30 * time.Second),
		malformedLog: ratelimit.NewCounter(30 * time.Second),
		artworkLog:   ratelimit.NewCounter(30 * time.Second),
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.stats == nil {
		p.stats = stats.NewTracker()
	}
	p.framer = framer.New(opts.MaxLine, p.onOverflow)
	if opts.Artwork != nil {
		p.decoder = protocol.NewDecoder(opts.Artwork)
	} else {
		p.decoder = protocol.NewDecoder(nil)
	}
	p.emit = func(line []byte) { p.HandleLine(line) }
	return p
}

// Feed consumes one transport read.
func (p *Pipeline) Feed(chunk []byte) {
	p.stats.AddBytes(len(chunk))
	p.framer.Feed(chunk, p.emit)
}

// Reset drops any partial frame; the next byte starts a new line.
func (p *Pipeline) Reset() {
	p.framer.Reset()
}

// Stats returns the tracker the pipeline counts into.
func (p *Pipeline) Stats() *stats.Tracker {
	return p.stats
}

// HandleLine classifies and dispatches one complete line.
func (p *Pipeline) HandleLine(line []byte) protocol.Frame {
	f := p.decoder.Decode(line)
	p.stats.IncrementKind(f.Kind.String())

	switch f.Kind {
	case protocol.KindSnapshot:
		if f.Snapshot.HasArtwork || f.Err != nil {
			p.noteArtwork(f.Artwork, f.Err)
		}
		if p.mailbox != nil {
			p.mailbox.Publish(f.Snapshot)
		}
		if p.rec != nil {
			p.rec.Record(p.now(), &f.Snapshot)
		}
	case protocol.KindArtwork:
		p.noteArtwork(f.Artwork, f.Err)
	case protocol.KindArtworkChunk:
		if f.Err != nil {
			p.noteArtwork(artwork.Failed, f.Err)
		}
	case protocol.KindAck:
		if p.onAck != nil {
			p.onAck(f.Ack)
		}
	case protocol.KindIgnore:
		if f.Err != nil {
			p.stats.IncrementMalformed()
			if total, ok := p.malformedLog.Inc(); ok {
				log.Printf("Ingest: dropped frame (%d bytes): %v (total=%d)", len(line), f.Err, total)
			}
		}
	}
	if p.onFrame != nil {
		p.onFrame(&f)
	}
	return f
}

func (p *Pipeline) noteArtwork(res artwork.Result, err error) {
	p.stats.IncrementArtwork(res.String())
	if err == nil {
		return
	}
	if total, ok := p.artworkLog.Inc(); ok {
		log.Printf("Artwork: decode failed: %v (total=%d)", err, total)
	}
}

func (p *Pipeline) onOverflow(discarded int) {
	p.stats.IncrementOverflows()
	if total, ok := p.overflowLog.Inc(); ok {
		log.Printf("Framer: line exceeded cap, discarded %d bytes (total=%d)", discarded, total)
	}
}
