package ui

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rivo/tview"
)

// pane identifies one redraw slot. Flush order follows the declaration, so
// the artwork block, the most expensive to draw, always goes last.
type pane uint8

const (
	paneMedia pane = iota
	paneFooter
	paneSystem
	paneLists
	paneStats
	paneEvents
	paneArtwork
	numPanes
)

var paneNames = [numPanes]string{"media", "footer", "system", "lists", "stats", "events", "artwork"}

func (p pane) String() string {
	if p >= numPanes {
		return "unknown"
	}
	return paneNames[p]
}

// frameScheduler holds at most one pending redraw per pane and applies them
// together at most once per frame. A newer redraw replaces the pending one.
type frameScheduler struct {
	app          *tview.Application
	frameTime    time.Duration
	drainTimeout time.Duration
	observeDelay func(time.Duration)

	mu      sync.Mutex
	slots   [numPanes]func()
	dirty   int
	started bool

	superseded atomic.Uint64
	batches    atomic.Uint64

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newFrameScheduler(app *tview.Application, targetFPS int, drainTimeout time.Duration, observeDelay func(time.Duration)) *frameScheduler {
	if targetFPS <= 0 {
		targetFPS = 30
	}
	if drainTimeout <= 0 {
		drainTimeout = 100 * time.Millisecond
	}
	return &frameScheduler{
		app:          app,
		frameTime:    time.Second / time.Duration(targetFPS),
		drainTimeout: drainTimeout,
		observeDelay: observeDelay,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (f *frameScheduler) Start() {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	go f.loop()
}

// Stop applies whatever is pending, waiting at most the drain timeout.
// Repeated calls are no-ops.
func (f *frameScheduler) Stop() {
	f.stopOnce.Do(func() {
		close(f.quit)
		f.mu.Lock()
		started := f.started
		f.mu.Unlock()
		if !started {
			return
		}
		select {
		case <-f.done:
		case <-time.After(f.drainTimeout):
		}
	})
}

// Schedule sets the pending redraw for p.
func (f *frameScheduler) Schedule(p pane, fn func()) {
	if f == nil || p >= numPanes || fn == nil {
		return
	}
	f.mu.Lock()
	if f.slots[p] != nil {
		f.superseded.Add(1)
	} else {
		f.dirty++
	}
	f.slots[p] = fn
	f.mu.Unlock()
}

// Superseded counts redraws replaced before they reached the screen.
func (f *frameScheduler) Superseded() uint64 {
	if f == nil {
		return 0
	}
	return f.superseded.Load()
}

// Batches counts frames that carried at least one redraw.
func (f *frameScheduler) Batches() uint64 {
	if f == nil {
		return 0
	}
	return f.batches.Load()
}

func (f *frameScheduler) loop() {
	defer close(f.done)

	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.quit:
			deadline := time.Now().Add(f.drainTimeout)
			for time.Now().Before(deadline) && f.flush() {
			}
			return
		}
	}
}

// take empties the slots into a batch in pane order.
func (f *frameScheduler) take() []func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirty == 0 {
		return nil
	}
	batch := make([]func(), 0, f.dirty)
	for i := range f.slots {
		if f.slots[i] != nil {
			batch = append(batch, f.slots[i])
			f.slots[i] = nil
		}
	}
	f.dirty = 0
	return batch
}

// flush applies one batch and reports whether there was anything to apply.
// Without an application the batch runs inline.
func (f *frameScheduler) flush() bool {
	batch := f.take()
	if len(batch) == 0 {
		return false
	}
	f.batches.Add(1)
	queuedAt := time.Now()
	apply := func() {
		for _, fn := range batch {
			fn()
		}
		if f.observeDelay != nil {
			f.observeDelay(time.Since(queuedAt))
		}
	}
	if f.app == nil {
		apply()
		return true
	}
	f.app.QueueUpdateDraw(apply)
	return true
}
