package ui

import (
	"fmt"
	"strings"

	"mediadash/protocol"
)

// formatClock renders seconds as m:ss, or h:mm:ss from an hour up.
func formatClock(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, sec/60%60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// progressBar fills width cells in proportion to pos/dur.
func progressBar(pos, dur, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if dur > 0 {
		if pos > dur {
			pos = dur
		}
		if pos > 0 {
			filled = pos * width / dur
		}
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// percentBar renders a 0..100 value as a bar plus its number.
func percentBar(label string, pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct*float64(width)/100 + 0.5)
	return fmt.Sprintf("%-4s %s%s %5.1f%%", label, strings.Repeat("█", filled), strings.Repeat("░", width-filled), pct)
}

func repeatGlyph(m protocol.RepeatMode) string {
	switch m {
	case protocol.RepeatTrack:
		return "repeat:track"
	case protocol.RepeatContext:
		return "repeat:all"
	default:
		return "repeat:off"
	}
}

func onOff(label string, on bool) string {
	if on {
		return label + ":on"
	}
	return label + ":off"
}

// trackLine is the one-line "title - artist" form used in logs.
func trackLine(m protocol.Media) string {
	if m.Artist == "" {
		return m.Title
	}
	return m.Title + " - " + m.Artist
}

// statusLine summarizes playback for the headless log and the media pane.
func statusLine(st State) string {
	glyph := "⏸"
	if st.Playing {
		glyph = "▶"
	}
	return fmt.Sprintf("%s %s / %s  %s %s %s", glyph,
		formatClock(st.Position), formatClock(st.Duration),
		onOff("shuffle", st.Snapshot.Media.Shuffle),
		repeatGlyph(st.Snapshot.Media.Repeat),
		onOff("liked", st.Snapshot.Media.Liked))
}
