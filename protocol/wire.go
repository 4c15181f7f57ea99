package protocol

import jsoniter "github.com/json-iterator/go"

// Wire field names. Rich fields win over their legacy counterparts.
const (
	fieldCPUTotal      = "cpu_percent_total"
	fieldCPULegacy     = "cpu_percent"
	fieldMem           = "mem_percent"
	fieldGPU           = "gpu_percent"
	fieldArtwork       = "artwork_b64"
	fieldAck           = "ack"
	fieldMedia         = "media"
	fieldProcTop5      = "proc_top5"
	fieldLegacyProcTop = "cpu_top5_process"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireSnapshot struct {
	CPUTotal    *float64              `json:"cpu_percent_total,omitempty"`
	CPU         *float64              `json:"cpu_percent,omitempty"`
	Mem         float64               `json:"mem_percent"`
	GPU         float64               `json:"gpu_percent"`
	ProcTop5    []jsoniter.RawMessage `json:"proc_top5,omitempty"`
	LegacyProcs []jsoniter.RawMessage `json:"cpu_top5_process,omitempty"`
	Media       *wireMedia            `json:"media,omitempty"`
}

type wireProc struct {
	PID  float64 `json:"pid"`
	Mem  float64 `json:"mem"`
	Name string  `json:"name"`
}

type wireMedia struct {
	Title      *string          `json:"title,omitempty"`
	Artist     string           `json:"artist,omitempty"`
	Album      string           `json:"album,omitempty"`
	Source     string           `json:"source,omitempty"`
	TrackID    string           `json:"track_id,omitempty"`
	Position   float64          `json:"position_seconds"`
	Duration   float64          `json:"duration_seconds"`
	Playing    bool             `json:"is_playing"`
	Shuffle    bool             `json:"shuffle"`
	Repeat     string           `json:"repeat,omitempty"`
	Liked      bool             `json:"liked"`
	ArtworkB64 *string          `json:"artwork_b64,omitempty"`
	Playlist   *wirePlaylist    `json:"playlist,omitempty"`
	Queue      []wireQueueEntry `json:"queue,omitempty"`
}

type wirePlaylist struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	SnapshotID    string  `json:"snapshot_id"`
	TotalTracks   float64 `json:"total_tracks"`
	Public        bool    `json:"public"`
	Collaborative bool    `json:"collaborative"`
	HasImage      bool    `json:"has_image"`
}

type wireQueueEntry struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Name     string  `json:"name"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	Duration float64 `json:"duration_seconds"`
	Local    bool    `json:"is_local"`
}
