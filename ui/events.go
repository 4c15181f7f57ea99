package ui

import (
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// EventKind identifies a UI event category.
type EventKind int

const (
	EventSystem EventKind = iota
	EventTransport
	EventCommand
	EventAck
	EventTrack
	EventDrop
	numEventKinds
)

var eventLabels = [numEventKinds]string{"SYS", "LINK", "CMD", "ACK", "TRACK", "DROP"}

func (k EventKind) Label() string {
	if k >= 0 && k < numEventKinds {
		return eventLabels[k]
	}
	return "UNK"
}

// Event is one line of the event log. Repeat counts identical events that
// were folded into this one.
type Event struct {
	At      time.Time
	Kind    EventKind
	Message string
	Repeat  int
}

// Text is the message with its repeat suffix.
func (e Event) Text() string {
	if e.Repeat > 1 {
		return e.Message + " (x" + strconv.Itoa(e.Repeat) + ")"
	}
	return e.Message
}

// EventRing keeps the newest events. A message longer than the limit is cut
// rather than dropped, and an event equal to the newest one inside the fold
// window only bumps its repeat count, so a flapping link costs one row.
type EventRing struct {
	mu         sync.Mutex
	events     []Event
	head       int
	n          int
	maxMessage int
	foldWindow time.Duration
	seq        uint64

	counts    [numEventKinds]uint64
	evicted   uint64
	truncated uint64
	folded    uint64
}

const defaultFoldWindow = 10 * time.Second

// NewEventRing holds up to capacity events of at most maxMessage bytes
// each; maxMessage <= 0 disables cutting.
func NewEventRing(capacity, maxMessage int) *EventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventRing{
		events:     make([]Event, capacity),
		maxMessage: maxMessage,
		foldWindow: defaultFoldWindow,
	}
}

// Append records e and returns the new sequence number.
func (r *EventRing) Append(e Event) uint64 {
	if r == nil {
		return 0
	}
	if r.maxMessage > 0 && len(e.Message) > r.maxMessage {
		e.Message = cutUTF8(e.Message, r.maxMessage-len("…")) + "…"
		r.mu.Lock()
		r.truncated++
		r.mu.Unlock()
	}
	if e.Repeat <= 0 {
		e.Repeat = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if e.Kind >= 0 && e.Kind < numEventKinds {
		r.counts[e.Kind]++
	}
	if r.n > 0 {
		last := &r.events[(r.head+r.n-1)%len(r.events)]
		if last.Kind == e.Kind && last.Message == e.Message && e.At.Sub(last.At) <= r.foldWindow {
			last.Repeat += e.Repeat
			last.At = e.At
			r.folded++
			return r.seq
		}
	}
	if r.n == len(r.events) {
		r.head = (r.head + 1) % len(r.events)
		r.n--
		r.evicted++
	}
	r.events[(r.head+r.n)%len(r.events)] = e
	r.n++
	return r.seq
}

// Snapshot copies the events oldest first into dst, reusing its storage.
func (r *EventRing) Snapshot(dst []Event) ([]Event, uint64) {
	if r == nil {
		return dst[:0], 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dst = dst[:0]
	for i := 0; i < r.n; i++ {
		dst = append(dst, r.events[(r.head+i)%len(r.events)])
	}
	return dst, r.seq
}

// Len reports how many rows are held.
func (r *EventRing) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Line summarizes per-kind totals for the stats pane, e.g.
// "Events: LINK 2, CMD 14, ACK 9 (folded 3, evicted 0, cut 0)".
func (r *EventRing) Line() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var parts []string
	for k, c := range r.counts {
		if c > 0 {
			parts = append(parts, eventLabels[k]+" "+strconv.FormatUint(c, 10))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	return "Events: " + strings.Join(parts, ", ") +
		" (folded " + strconv.FormatUint(r.folded, 10) +
		", evicted " + strconv.FormatUint(r.evicted, 10) +
		", cut " + strconv.FormatUint(r.truncated, 10) + ")"
}

// cutUTF8 shortens s to at most n bytes without splitting a rune.
func cutUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
