package main

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogDedupeMaxKeys = 64
	defaultLogDedupeWindow  = 60 * time.Second
)

// dedupeRule names a family of noisy lines. The first capture group, when
// present, splits the family per endpoint or operation.
type dedupeRule struct {
	family string
	re     *regexp.Regexp
}

var dedupeRules = []dedupeRule{
	{"transport-connect", regexp.MustCompile(`^Transport: connect to (\S+) failed:`)},
	{"transport-write", regexp.MustCompile(`^Transport: write to (\S+) failed:`)},
	{"transport-lost", regexp.MustCompile(`^Transport: connection to (\S+) lost:`)},
	{"mqtt-lost", regexp.MustCompile(`^Transport: MQTT connection lost:`)},
	{"mqtt-backlog", regexp.MustCompile(`^Transport: MQTT backlog full`)},
	{"recorder", regexp.MustCompile(`^Recorder: (?:failed to )?(\w+) failed|^Recorder: failed to (\w+)`)},
	{"artcache-write", regexp.MustCompile(`^Artwork cache: write failed`)},
}

// dedupeKey returns the repeat key for line, or "" when the line always
// passes through.
func dedupeKey(line string) string {
	for _, rule := range dedupeRules {
		m := rule.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, group := range m[1:] {
			if group != "" {
				return rule.family + ":" + strings.ToLower(strings.Trim(group, "():,;"))
			}
		}
		return rule.family
	}
	return ""
}

// logDeduper lets the first line of a family through, holds back repeats
// for one window, then lets the next one through with a count of what was
// held back. A host that stays down logs once a window, not once a retry.
type logDeduper struct {
	mu      sync.Mutex
	window  time.Duration
	maxKeys int
	now     func() time.Time
	seen    map[string]*dedupeState
}

type dedupeState struct {
	openUntil time.Time
	touched   time.Time
	held      uint64
}

func newLogDeduper(window time.Duration, maxKeys int) *logDeduper {
	if window <= 0 || maxKeys <= 0 {
		return nil
	}
	return &logDeduper{
		window:  window,
		maxKeys: maxKeys,
		now:     func() time.Time { return time.Now().UTC() },
		seen:    make(map[string]*dedupeState, maxKeys),
	}
}

// Process returns the line to emit and whether to emit it. Blank lines are
// never emitted.
func (d *logDeduper) Process(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if d == nil {
		return line, true
	}
	key := dedupeKey(line)
	if key == "" {
		return line, true
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.seen[key]
	if st == nil {
		if len(d.seen) >= d.maxKeys {
			d.forgetStalestLocked()
		}
		d.seen[key] = &dedupeState{openUntil: now.Add(d.window), touched: now}
		return line, true
	}
	st.touched = now
	if now.Before(st.openUntil) {
		st.held++
		return "", false
	}
	held := st.held
	st.held = 0
	st.openUntil = now.Add(d.window)
	if held > 0 {
		line = fmt.Sprintf("%s (+%d similar in %s)", line, held, d.window)
	}
	return line, true
}

func (d *logDeduper) forgetStalestLocked() {
	var stalest string
	var at time.Time
	for key, st := range d.seen {
		if stalest == "" || st.touched.Before(at) {
			stalest, at = key, st.touched
		}
	}
	delete(d.seen, stalest)
}
