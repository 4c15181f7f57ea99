// Package protocol defines the host wire format: the Snapshot data model, the
// frame classifier/decoder for inbound lines and the encoder for outbound
// control commands.
package protocol

import "mediadash/strutil"

// Fixed capacities. Every variable-length field is truncated to its limit on
// ingestion so a Snapshot is a fixed-shape value that is safe to copy.
const (
	MaxProcesses = 5
	MaxQueue     = 5

	MaxProcessLabel = 32
	MaxProcessName  = 32
	MaxTitle        = 64
	MaxArtist       = 64
	MaxAlbum        = 64
	MaxSource       = 16
	MaxTrackID      = 64
	MaxPlaylistID   = 64
	MaxPlaylistName = 64
	MaxRevision     = 64
	MaxQueueID      = 64
	MaxQueueName    = 64
	MaxAckAction    = 32
)

// NoMediaTitle is shown when the host sends a media object without a title.
const NoMediaTitle = "No media"

// Process is one row of the host's top-process list.
type Process struct {
	// Label is the preformatted display string, "<mem%> <name>".
	Label   string
	Name    string
	Percent float64
	// PID is zero when the host only sent legacy preformatted rows.
	PID int
}

// RepeatMode mirrors the host player's repeat setting.
type RepeatMode uint8

const (
	RepeatOff RepeatMode = iota
	RepeatTrack
	RepeatContext
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatTrack:
		return "track"
	case RepeatContext:
		return "context"
	default:
		return "off"
	}
}

// Next cycles off -> context -> track -> off, the order host players use.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatContext
	case RepeatContext:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// ParseRepeatMode maps the wire value; anything unknown is RepeatOff.
func ParseRepeatMode(s string) RepeatMode {
	switch strutil.NormalizeLower(s) {
	case "track":
		return RepeatTrack
	case "context", "playlist", "all":
		return RepeatContext
	default:
		return RepeatOff
	}
}

// Media is the now-playing state.
type Media struct {
	Title    string
	Artist   string
	Album    string
	Source   string
	TrackID  string
	Position int // seconds
	Duration int // seconds
	Playing  bool
	Shuffle  bool
	Repeat   RepeatMode
	Liked    bool
}

// QueueEntry is one upcoming track.
type QueueEntry struct {
	ID       string
	Source   string
	Name     string
	Artist   string
	Album    string
	Duration int // seconds
	Local    bool
}

// Playlist describes the context the current track plays from.
type Playlist struct {
	ID            string
	Name          string
	Revision      string
	TotalTracks   int
	Public        bool
	Collaborative bool
	HasImage      bool
}

// Snapshot is one complete status update. It replaces all prior state.
// Artwork pixels live in the artwork.Buffer; only the flags travel here.
type Snapshot struct {
	CPU float64
	Mem float64
	GPU float64

	Processes    [MaxProcesses]Process
	ProcessCount int

	HasMedia bool
	Media    Media

	HasQueue   bool
	Queue      [MaxQueue]QueueEntry
	QueueCount int

	HasPlaylist bool
	Playlist    Playlist

	HasArtwork     bool
	ArtworkUpdated bool
}

// ProcessList returns the populated process rows.
func (s *Snapshot) ProcessList() []Process {
	return s.Processes[:s.ProcessCount]
}

// QueueList returns the populated queue rows.
func (s *Snapshot) QueueList() []QueueEntry {
	return s.Queue[:s.QueueCount]
}
