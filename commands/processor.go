// Package commands carries user-initiated control commands back to the
// host: per-class debounce, a bounded best-effort queue, and the drain the
// transport runs when it has a connection.
package commands

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"mediadash/internal/ratelimit"
	"mediadash/protocol"
)

// DefaultQueueDepth bounds the number of unsent commands.
const DefaultQueueDepth = 16

// ErrCommandTooLong is returned for commands exceeding the wire limit.
var ErrCommandTooLong = protocol.ErrCommandTooLong

// Outcome reports what Submit did with a command.
type Outcome int

const (
	Queued Outcome = iota
	Debounced
	Dropped
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Debounced:
		return "debounced"
	case Dropped:
		return "dropped"
	default:
		return "rejected"
	}
}

// Stats is a point-in-time view of the dispatcher counters.
type Stats struct {
	Queued    uint64
	Sent      uint64
	Dropped   uint64
	Debounced uint64
	Rejected  uint64
}

// Processor is the outbound command path. Submit runs on the presentation
// goroutine; Drain runs on the transport writer. The two sides only meet at
// a bounded channel push/pop.
type Processor struct {
	queue    chan []byte
	ready    chan struct{}
	debounce *Debouncer
	maxBytes int

	queued    atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
	debounced atomic.Uint64
	rejected  atomic.Uint64

	dropLog ratelimit.Counter
}

// NewProcessor builds a processor with the given queue depth. debounce may
// be nil to disable debouncing.
func NewProcessor(depth, maxBytes int, debounce *Debouncer) *Processor {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if maxBytes <= 0 || maxBytes > protocol.MaxCommandBytes {
		maxBytes = protocol.MaxCommandBytes
	}
	return &Processor{
		queue:    make(chan []byte, depth),
		ready:    make(chan struct{}, 1),
		debounce: debounce,
		maxBytes: maxBytes,
		dropLog:  ratelimit.NewCounter(10 * time.Second),
	}
}

// Submit is the user-interaction entry point: it applies the debounce for
// the command's class, then encodes and enqueues it.
func (p *Processor) Submit(cmd protocol.Command) Outcome {
	if p == nil {
		return Dropped
	}
	if !p.debounce.Allow(ClassOf(cmd.Name)) {
		p.debounced.Add(1)
		return Debounced
	}
	line, err := cmd.Encode()
	if err != nil {
		p.rejected.Add(1)
		log.Printf("Commands: rejected %s: %v", cmd.Name, err)
		return Rejected
	}
	if len(line) > p.maxBytes {
		p.rejected.Add(1)
		log.Printf("Commands: rejected %s: %v (%d > %d bytes)", cmd.Name, ErrCommandTooLong, len(line), p.maxBytes)
		return Rejected
	}
	if !p.Enqueue(line) {
		return Dropped
	}
	return Queued
}

// Enqueue pushes an encoded command without blocking. It returns false and
// drops the command when the queue is full. line is copied.
func (p *Processor) Enqueue(line []byte) bool {
	if p == nil || len(line) == 0 {
		return false
	}
	if len(line) > p.maxBytes {
		p.rejected.Add(1)
		return false
	}
	owned := append([]byte(nil), line...)
	select {
	case p.queue <- owned:
		p.queued.Add(1)
	default:
		p.dropped.Add(1)
		if total, ok := p.dropLog.Inc(); ok {
			log.Printf("Commands: queue full, dropped command (total=%d)", total)
		}
		return false
	}
	select {
	case p.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after at least one Enqueue since the last receive.
func (p *Processor) Ready() <-chan struct{} {
	return p.ready
}

// Pending reports the number of queued commands.
func (p *Processor) Pending() int {
	return len(p.queue)
}

// Drain writes every pending command to w, newline-terminated, and returns
// how many were written. A write error stops the drain; the command being
// written is lost and the rest stay queued.
func (p *Processor) Drain(w io.Writer) (int, error) {
	n := 0
	for {
		var line []byte
		select {
		case line = <-p.queue:
		default:
			return n, nil
		}
		if !bytes.HasSuffix(line, []byte{'\n'}) {
			line = append(line, '\n')
		}
		if _, err := w.Write(line); err != nil {
			return n, fmt.Errorf("write command: %w", err)
		}
		p.sent.Add(1)
		n++
	}
}

// Discard empties the queue, e.g. when commands must not be replayed onto a
// fresh connection.
func (p *Processor) Discard() int {
	n := 0
	for {
		select {
		case <-p.queue:
			n++
		default:
			return n
		}
	}
}

func (p *Processor) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Queued:    p.queued.Load(),
		Sent:      p.sent.Load(),
		Dropped:   p.dropped.Load(),
		Debounced: p.debounced.Load(),
		Rejected:  p.rejected.Load(),
	}
}
