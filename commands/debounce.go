package commands

import (
	"sync"
	"time"

	"mediadash/protocol"
)

// Class groups commands that share a debounce window. A repeat of the same
// class inside its window is ignored entirely.
type Class uint8

const (
	ClassPlayback Class = iota // play, pause
	ClassSkip                  // next, previous
	ClassSeek
	ClassMode // shuffle, repeat
	ClassLike
	ClassQueue
	ClassProcess
	ClassOther
	numClasses
)

var classNames = [numClasses]string{"playback", "skip", "seek", "mode", "like", "queue", "process", "other"}

func (c Class) String() string {
	if c < numClasses {
		return classNames[c]
	}
	return "unknown"
}

// ParseClass maps a config key to a Class.
func ParseClass(name string) (Class, bool) {
	for i, n := range classNames {
		if n == name {
			return Class(i), true
		}
	}
	return ClassOther, false
}

// ClassOf returns the debounce class of a command name.
func ClassOf(name string) Class {
	switch name {
	case protocol.CmdPlay, protocol.CmdPause:
		return ClassPlayback
	case protocol.CmdNext, protocol.CmdPrevious:
		return ClassSkip
	case protocol.CmdSeek:
		return ClassSeek
	case protocol.CmdShuffle, protocol.CmdRepeat:
		return ClassMode
	case protocol.CmdLike:
		return ClassLike
	case protocol.CmdQueueAction:
		return ClassQueue
	case protocol.CmdKill:
		return ClassProcess
	default:
		return ClassOther
	}
}

// DefaultWindows are the per-class debounce windows.
func DefaultWindows() map[Class]time.Duration {
	return map[Class]time.Duration{
		ClassPlayback: 300 * time.Millisecond,
		ClassSkip:     300 * time.Millisecond,
		ClassSeek:     200 * time.Millisecond,
		ClassMode:     300 * time.Millisecond,
		ClassLike:     500 * time.Millisecond,
		ClassQueue:    500 * time.Millisecond,
		ClassProcess:  time.Second,
	}
}

// Debouncer suppresses repeated triggers of a class within its window.
// A nil Debouncer allows everything.
type Debouncer struct {
	mu      sync.Mutex
	windows [numClasses]time.Duration
	last    [numClasses]time.Time
	now     func() time.Time
}

// NewDebouncer builds a debouncer; classes missing from windows are not
// debounced.
func NewDebouncer(windows map[Class]time.Duration) *Debouncer {
	d := &Debouncer{now: time.Now}
	for c, w := range windows {
		if c < numClasses && w > 0 {
			d.windows[c] = w
		}
	}
	return d
}

// Allow reports whether a trigger of class c should go through, and records
// it when it does. Suppressed triggers do not extend the window.
func (d *Debouncer) Allow(c Class) bool {
	if d == nil || c >= numClasses {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windows[c]
	if w <= 0 {
		return true
	}
	now := d.now()
	if last := d.last[c]; !last.IsZero() && now.Sub(last) < w {
		return false
	}
	d.last[c] = now
	return true
}

// Window returns the configured window for c.
func (d *Debouncer) Window(c Class) time.Duration {
	if d == nil || c >= numClasses {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.windows[c]
}
