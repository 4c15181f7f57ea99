package main

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"mediadash/artwork"
	"mediadash/protocol"
)

type simTrack struct {
	title    string
	artist   string
	album    string
	duration int
}

var defaultTracks = []simTrack{
	{"Harbor Lights", "The Quiet Tides", "Low Water", 200},
	{"Signal Fire", "Northbound", "Relay", 245},
	{"Glass Orchard", "Mira Vale", "Greenhouse", 187},
	{"Copper Wire", "Static Hymns", "Line Level", 221},
	{"Slow Orbit", "Kestrel", "Apogee", 312},
	{"Paper Boats", "June Harbor", "Shallows", 176},
}

var defaultProcs = []struct {
	pid  int
	name string
	mem  float64
}{
	{4120, "chrome.exe", 12.4},
	{988, "spotify.exe", 6.1},
	{2210, "code.exe", 5.3},
	{3302, "explorer.exe", 2.2},
	{17, "dwm.exe", 1.4},
}

// simHost is the simulated host player. apply runs on connection reader
// goroutines and snapshot on the writer, so state sits behind mu.
type simHost struct {
	mu       sync.Mutex
	tracks   []simTrack
	index    int
	queue    []int
	position float64
	playing  bool
	shuffle  bool
	repeat   protocol.RepeatMode
	liked    map[int]bool
	killed   map[int]bool
	tick     int

	format     artwork.Format
	artSentFor int
}

func newSimHost(format artwork.Format) *simHost {
	h := &simHost{
		tracks:     defaultTracks,
		playing:    true,
		liked:      make(map[int]bool),
		killed:     make(map[int]bool),
		format:     format,
		artSentFor: -1,
	}
	h.refillQueue()
	return h
}

func (h *simHost) refillQueue() {
	h.queue = h.queue[:0]
	for i := 1; i <= protocol.MaxQueue && i < len(h.tracks); i++ {
		h.queue = append(h.queue, (h.index+i)%len(h.tracks))
	}
}

// advance moves playback forward by dt, rolling to the next track at the end.
func (h *simHost) advance(dt time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tick++
	if !h.playing {
		return
	}
	h.position += dt.Seconds()
	if int(h.position) >= h.tracks[h.index].duration {
		if h.repeat == protocol.RepeatTrack {
			h.position = 0
			return
		}
		h.skipLocked(1)
	}
}

func (h *simHost) skipLocked(step int) {
	n := len(h.tracks)
	h.index = ((h.index+step)%n + n) % n
	h.position = 0
	h.refillQueue()
}

// apply executes cmd and returns the ack to send back, or "" when the host
// would stay silent.
func (h *simHost) apply(cmd protocol.Command) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch cmd.Name {
	case protocol.CmdPlay:
		h.playing = true
		return cmd.Name, nil
	case protocol.CmdPause:
		h.playing = false
		return cmd.Name, nil
	case protocol.CmdNext:
		h.skipLocked(1)
	case protocol.CmdPrevious:
		if h.position > 3 {
			h.position = 0
		} else {
			h.skipLocked(-1)
		}
	case protocol.CmdSeek:
		if cmd.Position == nil {
			return "", fmt.Errorf("seek without position")
		}
		pos := *cmd.Position
		if pos < 0 || pos > h.tracks[h.index].duration {
			return "", fmt.Errorf("seek %d out of range", pos)
		}
		h.position = float64(pos)
	case protocol.CmdShuffle:
		on, ok := cmd.State.(bool)
		if !ok {
			return "", fmt.Errorf("shuffle state %v is not a bool", cmd.State)
		}
		h.shuffle = on
	case protocol.CmdRepeat:
		mode, ok := cmd.State.(string)
		if !ok {
			return "", fmt.Errorf("repeat state %v is not a string", cmd.State)
		}
		h.repeat = protocol.ParseRepeatMode(mode)
	case protocol.CmdLike:
		on, ok := cmd.State.(bool)
		if !ok {
			return "", fmt.Errorf("like state %v is not a bool", cmd.State)
		}
		h.liked[h.index] = on
	case protocol.CmdKill:
		if cmd.PID == nil {
			return "", fmt.Errorf("kill without pid")
		}
		h.killed[*cmd.PID] = true
	case protocol.CmdQueueAction:
		if cmd.Index == nil || *cmd.Index < 0 || *cmd.Index >= len(h.queue) {
			return "", fmt.Errorf("queue index out of range")
		}
		i := *cmd.Index
		switch cmd.Action {
		case protocol.QueuePlayNow:
			h.index = h.queue[i]
			h.position = 0
			h.refillQueue()
		case protocol.QueueRemove:
			h.queue = append(h.queue[:i], h.queue[i+1:]...)
		default:
			return "", fmt.Errorf("unknown queue action %q", cmd.Action)
		}
	default:
		return "", fmt.Errorf("unknown command %q", cmd.Name)
	}
	return "", nil
}

// snapshot builds the current status. artworkB64 is non-empty only the first
// time a track is reported.
func (h *simHost) snapshot() (protocol.Snapshot, string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var s protocol.Snapshot
	s.CPU = 10 + float64(h.tick%40)
	s.Mem = 42.5
	s.GPU = float64(h.tick % 25)
	for _, p := range defaultProcs {
		if h.killed[p.pid] || s.ProcessCount == protocol.MaxProcesses {
			continue
		}
		s.Processes[s.ProcessCount] = protocol.Process{
			Label:   protocol.FormatProcessLabel(p.mem, p.name),
			Name:    p.name,
			Percent: p.mem,
			PID:     p.pid,
		}
		s.ProcessCount++
	}

	t := h.tracks[h.index]
	s.HasMedia = true
	s.Media = protocol.Media{
		Title:    t.title,
		Artist:   t.artist,
		Album:    t.album,
		Source:   "hostsim",
		TrackID:  fmt.Sprintf("sim:%d", h.index),
		Position: int(h.position),
		Duration: t.duration,
		Playing:  h.playing,
		Shuffle:  h.shuffle,
		Repeat:   h.repeat,
		Liked:    h.liked[h.index],
	}
	s.HasQueue = true
	for _, qi := range h.queue {
		q := h.tracks[qi]
		s.Queue[s.QueueCount] = protocol.QueueEntry{
			ID:       fmt.Sprintf("sim:%d", qi),
			Source:   "hostsim",
			Name:     q.title,
			Artist:   q.artist,
			Album:    q.album,
			Duration: q.duration,
		}
		s.QueueCount++
	}

	var b64 string
	if h.artSentFor != h.index && h.format.Size() > 0 {
		h.artSentFor = h.index
		b64 = base64.StdEncoding.EncodeToString(trackArtwork(h.format, h.index))
		s.HasArtwork = true
	}
	return s, b64
}

// forgetArtwork makes the next snapshot carry artwork again, for a new client.
func (h *simHost) forgetArtwork() {
	h.mu.Lock()
	h.artSentFor = -1
	h.mu.Unlock()
}

// trackArtwork renders a diagonal RGB565 gradient tinted per track.
func trackArtwork(format artwork.Format, seed int) []byte {
	out := make([]byte, format.Size())
	for y := 0; y < format.Height; y++ {
		for x := 0; x < format.Width; x++ {
			r := uint16((x*31/max(format.Width-1, 1) + seed*7) % 32)
			g := uint16((y * 63 / max(format.Height-1, 1)) % 64)
			b := uint16((31 - r + uint16(seed*5)) % 32)
			px := r<<11 | g<<5 | b
			i := (y*format.Width + x) * 2
			if format.BigEndian {
				binary.BigEndian.PutUint16(out[i:], px)
			} else {
				binary.LittleEndian.PutUint16(out[i:], px)
			}
		}
	}
	return out
}
