// Package interp advances a displayed playback position between the
// host's infrequent position reports.
package interp

import "time"

// Interpolator is owned by the presentation goroutine and is not safe for
// concurrent use.
type Interpolator struct {
	serverPos  int
	serverDur  int
	serverAt   time.Time
	haveServer bool

	displayed   int
	remainderMs int64
	lastTick    time.Time
	playing     bool
}

// Observe records a snapshot's position report. A (pos, dur) pair that
// differs from the last one recorded resets the displayed position at once.
func (ip *Interpolator) Observe(pos, dur int, playing bool, now time.Time) {
	ip.playing = playing
	if ip.haveServer && pos == ip.serverPos && dur == ip.serverDur {
		return
	}
	ip.haveServer = true
	ip.serverPos = pos
	ip.serverDur = dur
	ip.serverAt = now
	ip.displayed = pos
	ip.remainderMs = 0
	ip.lastTick = now
}

// SetPlaying flips the playing flag without a new position report, as an
// ack does. Resuming restarts the elapsed-time accounting from now.
func (ip *Interpolator) SetPlaying(playing bool, now time.Time) {
	if playing && !ip.playing {
		ip.lastTick = now
	}
	ip.playing = playing
}

// Tick advances the displayed position by the wall-clock time elapsed
// since the previous tick and returns it.
func (ip *Interpolator) Tick(now time.Time) int {
	elapsed := now.Sub(ip.lastTick)
	ip.lastTick = now
	if !ip.playing || ip.serverDur <= 0 || elapsed <= 0 {
		return ip.displayed
	}
	ip.remainderMs += elapsed.Milliseconds()
	if ip.remainderMs >= 1000 {
		ip.displayed += int(ip.remainderMs / 1000)
		ip.remainderMs %= 1000
	}
	if ip.displayed > ip.serverDur {
		ip.displayed = ip.serverDur
	}
	return ip.displayed
}

// Reset forgets all state, e.g. when the media object disappears.
func (ip *Interpolator) Reset() {
	*ip = Interpolator{}
}

func (ip *Interpolator) Position() int { return ip.displayed }
func (ip *Interpolator) Duration() int { return ip.serverDur }
func (ip *Interpolator) Playing() bool { return ip.playing }

// SyncedAt is when the last hard resync happened.
func (ip *Interpolator) SyncedAt() time.Time { return ip.serverAt }
