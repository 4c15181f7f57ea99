package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mediadash/stats"
	"mediadash/transport"
)

const (
	ingestHealthInterval  = 15 * time.Second
	ingestIdleThreshold   = 30 * time.Second
	ingestHealthLogPrefix = "Ingest Health: "
)

// ingestHealthSnapshot is what the monitor needs from the link and the
// ingestion counters.
type ingestHealthSnapshot struct {
	Connected   bool
	Connects    uint64
	LastFrameAt time.Time
	Malformed   uint64
	Overflows   uint64
	Overwrites  uint64
}

type ingestHealthState struct {
	connected   bool
	idle        bool
	initialized bool
}

// Purpose: Periodically log host link health transitions with low noise.
// Key aspects: Reports only on connected/idle state changes; a connected host
// that stops sending frames shows up as idle.
// Upstream: main startup after the transport driver is created.
// Downstream: log.Printf.
func startIngestHealthMonitor(ctx context.Context, name string, interval time.Duration, snapshot func() ingestHealthSnapshot) {
	if snapshot == nil {
		return
	}
	if interval <= 0 {
		interval = ingestHealthInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		var state ingestHealthState
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var line string
				state, line = evaluateIngestHealth(state, name, snapshot(), time.Now().UTC())
				if line != "" {
					log.Printf("%s%s", ingestHealthLogPrefix, line)
				}
			}
		}
	}()
}

// evaluateIngestHealth returns the next state and a line to log when the
// state changed.
func evaluateIngestHealth(prev ingestHealthState, name string, snap ingestHealthSnapshot, now time.Time) (ingestHealthState, string) {
	idle := snap.Connected && ingestIsIdle(snap, now)
	if prev.initialized && prev.connected == snap.Connected && prev.idle == idle {
		return prev, ""
	}
	next := ingestHealthState{connected: snap.Connected, idle: idle, initialized: true}
	return next, formatIngestHealthLine(name, snap, idle, now)
}

func ingestIsIdle(snap ingestHealthSnapshot, now time.Time) bool {
	if snap.LastFrameAt.IsZero() {
		return true
	}
	return now.Sub(snap.LastFrameAt) > ingestIdleThreshold
}

func formatIngestHealthLine(name string, snap ingestHealthSnapshot, idle bool, now time.Time) string {
	status := "connected"
	if !snap.Connected {
		status = "disconnected"
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" ")
	b.WriteString(status)
	if snap.Connected {
		if idle {
			b.WriteString(" idle")
		} else {
			b.WriteString(" active")
		}
	}
	b.WriteString(" last_frame=")
	b.WriteString(ageString(now, snap.LastFrameAt))
	if snap.Connects > 0 {
		fmt.Fprintf(&b, " connects=%d", snap.Connects)
	}
	var dropParts []string
	if snap.Malformed > 0 {
		dropParts = append(dropParts, fmt.Sprintf("malformed=%d", snap.Malformed))
	}
	if snap.Overflows > 0 {
		dropParts = append(dropParts, fmt.Sprintf("overflow=%d", snap.Overflows))
	}
	if snap.Overwrites > 0 {
		dropParts = append(dropParts, fmt.Sprintf("superseded=%d", snap.Overwrites))
	}
	if len(dropParts) > 0 {
		b.WriteString(" drops=")
		b.WriteString(strings.Join(dropParts, ","))
	}
	return b.String()
}

func ageString(now time.Time, at time.Time) string {
	if at.IsZero() {
		return "never"
	}
	age := now.Sub(at)
	if age < 0 {
		age = 0
	}
	if age < time.Second {
		return "0s"
	}
	return age.Truncate(time.Second).String()
}

// driverHealthSource combines the driver's link counters with the ingestion
// tracker.
func driverHealthSource(driver *transport.Driver, tracker *stats.Tracker, overwrites func() uint64) func() ingestHealthSnapshot {
	return func() ingestHealthSnapshot {
		ds := driver.Stats()
		snap := ingestHealthSnapshot{
			Connected:   ds.Connected,
			Connects:    ds.Connects,
			LastFrameAt: tracker.LastFrame(),
			Malformed:   tracker.Malformed(),
			Overflows:   tracker.Overflows(),
		}
		if overwrites != nil {
			snap.Overwrites = overwrites()
		}
		return snap
	}
}
