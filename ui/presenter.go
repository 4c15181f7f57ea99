package ui

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mediadash/artwork"
	"mediadash/commands"
	"mediadash/interp"
	"mediadash/mailbox"
	"mediadash/protocol"
)

// DefaultTick is the presentation cadence when none is configured.
const DefaultTick = 100 * time.Millisecond

// CommandSink accepts user commands. *commands.Processor satisfies it.
type CommandSink interface {
	Submit(cmd protocol.Command) commands.Outcome
}

// State is everything a surface needs to draw one frame. Pixels is never
// mutated after it is handed out, so surfaces may keep it across frames.
type State struct {
	Snapshot    protocol.Snapshot
	HasSnapshot bool
	// Fresh is true when Snapshot arrived on this tick.
	Fresh bool

	Position int
	Duration int
	Playing  bool

	Format         artwork.Format
	Pixels         []byte
	ArtworkChanged bool

	LastAck   string
	Connected bool
	Link      string
}

// PresenterOptions wires a Presenter to the ingestion side.
type PresenterOptions struct {
	Mailbox *mailbox.Mailbox[protocol.Snapshot]
	Artwork *artwork.Buffer
	Sink    CommandSink
	Surface Surface
	Rows    *RowTable
	Now     func() time.Time
}

// Presenter is the presentation context: it polls the mailbox and artwork
// buffer without blocking, drives the position interpolator, and turns user
// actions into commands. Tick and the actions may be called from different
// goroutines.
type Presenter struct {
	mailbox *mailbox.Mailbox[protocol.Snapshot]
	art     *artwork.Buffer
	sink    CommandSink
	surface Surface
	rows    *RowTable
	now     func() time.Time

	pendingAck atomic.Pointer[ackStamp]
	link       atomic.Pointer[linkState]

	mu      sync.Mutex
	ip      interp.Interpolator
	snap    protocol.Snapshot
	hasSnap bool
	pixels  []byte
	lastAck string
}

// ackStamp is an ack together with the mailbox sequence current when it
// arrived. It supersedes every snapshot published at or before that
// sequence.
type ackStamp struct {
	action string
	seq    uint64
}

type linkState struct {
	connected bool
	desc      string
}

func NewPresenter(opts PresenterOptions) *Presenter {
	p := &Presenter{
		mailbox: opts.Mailbox,
		art:     opts.Artwork,
		sink:    opts.Sink,
		surface: opts.Surface,
		rows:    opts.Rows,
		now:     opts.Now,
	}
	if p.rows == nil {
		p.rows = NewRowTable()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Rows exposes the side-table that widget handlers resolve ids against.
func (p *Presenter) Rows() *RowTable {
	return p.rows
}

// OnAck records an acknowledgement. It must be called from the ingestion
// goroutine so the stamp orders it against snapshot publications. It is
// applied on the next tick.
func (p *Presenter) OnAck(action string) {
	p.pendingAck.Store(&ackStamp{action: action, seq: p.mailbox.Seq()})
}

// SetLink records transport state; safe from any goroutine.
func (p *Presenter) SetLink(connected bool, desc string) {
	p.link.Store(&linkState{connected: connected, desc: desc})
}

// Run ticks at the given cadence until ctx is cancelled.
func (p *Presenter) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	p.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick performs one non-blocking presentation step and renders the result.
func (p *Presenter) Tick() State {
	now := p.now()
	p.mu.Lock()
	ack := p.pendingAck.Swap(nil)
	snap, seq, fresh := p.mailbox.TakeSeq()
	// Apply in arrival order. An ack stamped at or after the snapshot's
	// publication is the newer word on play state.
	ackLast := ack != nil && (!fresh || seq <= ack.seq)
	if ack != nil && !ackLast {
		p.applyAckLocked(ack.action, now)
	}
	if fresh {
		p.applySnapshotLocked(snap, now)
	}
	if ackLast {
		p.applyAckLocked(ack.action, now)
	}

	changed := false
	if p.art != nil && p.art.IsNew() {
		buf := make([]byte, p.art.Format().Size())
		if p.art.TakeIfNew(buf) {
			p.pixels = buf
			changed = true
		}
	}

	pos := p.ip.Tick(now)
	st := State{
		Snapshot:       p.snap,
		HasSnapshot:    p.hasSnap,
		Fresh:          fresh,
		Position:       pos,
		Duration:       p.ip.Duration(),
		Playing:        p.ip.Playing(),
		Pixels:         p.pixels,
		ArtworkChanged: changed,
		LastAck:        p.lastAck,
	}
	if p.art != nil {
		st.Format = p.art.Format()
	}
	p.mu.Unlock()

	if l := p.link.Load(); l != nil {
		st.Connected = l.connected
		st.Link = l.desc
	}
	if p.surface != nil {
		p.surface.Render(st)
	}
	return st
}

func (p *Presenter) applyAckLocked(action string, now time.Time) {
	p.lastAck = action
	switch action {
	case protocol.CmdPlay:
		p.snap.Media.Playing = true
		p.ip.SetPlaying(true, now)
	case protocol.CmdPause:
		p.snap.Media.Playing = false
		p.ip.SetPlaying(false, now)
	}
}

func (p *Presenter) applySnapshotLocked(snap protocol.Snapshot, now time.Time) {
	p.snap = snap
	p.hasSnap = true
	if snap.HasMedia {
		p.ip.Observe(snap.Media.Position, snap.Media.Duration, snap.Media.Playing, now)
	} else {
		p.ip.Reset()
	}

	procs := snap.ProcessList()
	rows := make([]RowValue, len(procs))
	for i, pr := range procs {
		rows[i] = RowValue{PID: pr.PID, QueueIndex: -1, Label: pr.Label}
	}
	p.rows.Bind(ListProcesses, rows)

	queue := snap.QueueList()
	rows = make([]RowValue, len(queue))
	for i, q := range queue {
		label := q.Name
		if q.Artist != "" {
			label += " - " + q.Artist
		}
		rows[i] = RowValue{QueueIndex: i, Label: label}
	}
	p.rows.Bind(ListQueue, rows)
}

func (p *Presenter) submit(cmd protocol.Command) commands.Outcome {
	if p.sink == nil {
		return commands.Dropped
	}
	out := p.sink.Submit(cmd)
	if out == commands.Rejected {
		log.Printf("UI: command %s rejected", cmd.Name)
	}
	return out
}

// TogglePlay sends pause while playing and play otherwise.
func (p *Presenter) TogglePlay() commands.Outcome {
	p.mu.Lock()
	playing := p.ip.Playing()
	p.mu.Unlock()
	if playing {
		return p.submit(protocol.Pause())
	}
	return p.submit(protocol.Play())
}

func (p *Presenter) Next() commands.Outcome {
	return p.submit(protocol.Next())
}

func (p *Presenter) Previous() commands.Outcome {
	return p.submit(protocol.Previous())
}

func (p *Presenter) ToggleShuffle() commands.Outcome {
	p.mu.Lock()
	on := !p.snap.Media.Shuffle
	p.mu.Unlock()
	return p.submit(protocol.Shuffle(on))
}

// CycleRepeat requests the repeat mode after the current one.
func (p *Presenter) CycleRepeat() commands.Outcome {
	p.mu.Lock()
	mode := p.snap.Media.Repeat.Next()
	p.mu.Unlock()
	return p.submit(protocol.Repeat(mode))
}

func (p *Presenter) ToggleLike() commands.Outcome {
	p.mu.Lock()
	on := !p.snap.Media.Liked
	p.mu.Unlock()
	return p.submit(protocol.Like(on))
}

// SeekBy seeks relative to the displayed position, clamped to the track.
func (p *Presenter) SeekBy(delta int) commands.Outcome {
	p.mu.Lock()
	pos := p.ip.Position() + delta
	dur := p.ip.Duration()
	p.mu.Unlock()
	if dur <= 0 {
		return commands.Rejected
	}
	if pos < 0 {
		pos = 0
	}
	if pos > dur {
		pos = dur
	}
	return p.submit(protocol.Seek(pos))
}

// ActivateRow kills the process or plays the queue entry bound to id.
func (p *Presenter) ActivateRow(id RowID) commands.Outcome {
	v, ok := p.rows.Lookup(id)
	if !ok {
		return commands.Rejected
	}
	switch id.List {
	case ListProcesses:
		if v.PID <= 0 {
			return commands.Rejected
		}
		return p.submit(protocol.Kill(v.PID))
	case ListQueue:
		return p.submit(protocol.QueueAction(protocol.QueuePlayNow, v.QueueIndex))
	}
	return commands.Rejected
}

// RemoveRow removes the queue entry bound to id.
func (p *Presenter) RemoveRow(id RowID) commands.Outcome {
	if id.List != ListQueue {
		return commands.Rejected
	}
	v, ok := p.rows.Lookup(id)
	if !ok {
		return commands.Rejected
	}
	return p.submit(protocol.QueueAction(protocol.QueueRemove, v.QueueIndex))
}
