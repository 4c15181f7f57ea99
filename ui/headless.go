package ui

import (
	"io"
	"log"
	"sync"
)

// Headless is the surface used without a terminal. It logs track changes,
// play state flips and stats lines instead of drawing.
type Headless struct {
	logf func(format string, args ...interface{})
	out  io.Writer

	mu        sync.Mutex
	track     string
	playing   bool
	connected bool
	seen      bool
}

// NewHeadless logs through logf, or log.Printf when nil. SystemWriter
// returns out.
func NewHeadless(out io.Writer, logf func(format string, args ...interface{})) *Headless {
	if logf == nil {
		logf = log.Printf
	}
	return &Headless{logf: logf, out: out}
}

func (h *Headless) WaitReady() {}

func (h *Headless) Stop() {}

func (h *Headless) Render(st State) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if st.Connected != h.connected && st.Link != "" {
		h.connected = st.Connected
		if st.Connected {
			h.logf("Link: up (%s)", st.Link)
		} else {
			h.logf("Link: down (%s)", st.Link)
		}
	}
	if !st.HasSnapshot {
		return
	}
	track := ""
	if st.Snapshot.HasMedia {
		track = trackLine(st.Snapshot.Media)
	}
	if track != h.track {
		h.track = track
		h.playing = st.Playing
		h.seen = true
		if track == "" {
			h.logf("Media: nothing playing")
		} else {
			h.logf("Media: %s  %s", track, statusLine(st))
		}
		return
	}
	if h.seen && st.Playing != h.playing && track != "" {
		h.playing = st.Playing
		h.logf("Media: %s", statusLine(st))
	}
}

func (h *Headless) SetStats(lines []string) {
	for _, line := range lines {
		h.logf("%s", line)
	}
}

func (h *Headless) AppendSystem(line string) {
	h.logf("%s", line)
}

func (h *Headless) AppendEvent(kind EventKind, line string) {
	h.logf("[%s] %s", kind.Label(), line)
}

func (h *Headless) SystemWriter() io.Writer {
	return h.out
}
