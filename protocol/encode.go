package protocol

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// EncodeSnapshot renders s in the host's wire format (without the trailing
// newline). artworkB64, when non-empty, is attached to the media object.
// Rows with a Name use the rich process field; otherwise the labels go out
// in the legacy list.
func EncodeSnapshot(s *Snapshot, artworkB64 string) ([]byte, error) {
	cpu := s.CPU
	w := wireSnapshot{CPUTotal: &cpu, Mem: s.Mem, GPU: s.GPU}

	rich := false
	for _, p := range s.ProcessList() {
		if p.Name != "" {
			rich = true
			break
		}
	}
	for _, p := range s.ProcessList() {
		var raw []byte
		var err error
		if rich {
			raw, err = json.Marshal(wireProc{PID: float64(p.PID), Mem: p.Percent, Name: p.Name})
		} else {
			raw, err = json.Marshal(p.Label)
		}
		if err != nil {
			return nil, fmt.Errorf("encode process: %w", err)
		}
		if rich {
			w.ProcTop5 = append(w.ProcTop5, jsoniter.RawMessage(raw))
		} else {
			w.LegacyProcs = append(w.LegacyProcs, jsoniter.RawMessage(raw))
		}
	}

	if s.HasMedia {
		m := s.Media
		title := m.Title
		wm := &wireMedia{
			Title:    &title,
			Artist:   m.Artist,
			Album:    m.Album,
			Source:   m.Source,
			TrackID:  m.TrackID,
			Position: float64(m.Position),
			Duration: float64(m.Duration),
			Playing:  m.Playing,
			Shuffle:  m.Shuffle,
			Repeat:   m.Repeat.String(),
			Liked:    m.Liked,
		}
		if artworkB64 != "" {
			wm.ArtworkB64 = &artworkB64
		}
		if s.HasPlaylist {
			p := s.Playlist
			wm.Playlist = &wirePlaylist{
				ID:            p.ID,
				Name:          p.Name,
				SnapshotID:    p.Revision,
				TotalTracks:   float64(p.TotalTracks),
				Public:        p.Public,
				Collaborative: p.Collaborative,
				HasImage:      p.HasImage,
			}
		}
		if s.HasQueue {
			wm.Queue = make([]wireQueueEntry, 0, s.QueueCount)
			for _, q := range s.QueueList() {
				wm.Queue = append(wm.Queue, wireQueueEntry{
					ID:       q.ID,
					Source:   q.Source,
					Name:     q.Name,
					Artist:   q.Artist,
					Album:    q.Album,
					Duration: float64(q.Duration),
					Local:    q.Local,
				})
			}
		}
		w.Media = wm
	}
	return json.Marshal(&w)
}

// EncodeArtwork renders an out-of-band artwork frame.
func EncodeArtwork(artworkB64 string) ([]byte, error) {
	return json.Marshal(map[string]string{fieldArtwork: artworkB64})
}

// EncodeAck renders an acknowledgement frame.
func EncodeAck(action string) ([]byte, error) {
	return json.Marshal(map[string]string{fieldAck: action})
}
