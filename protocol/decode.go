package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"mediadash/artwork"
	"mediadash/strutil"

	jsoniter "github.com/json-iterator/go"
)

// MinFrameLen is the shortest line worth parsing; anything shorter is noise.
const MinFrameLen = 6

// MaxWireInt bounds integer fields decoded from JSON numbers.
const MaxWireInt = 1<<31 - 1

// ErrMalformed is returned for lines that are not a decodable frame.
var ErrMalformed = errors.New("protocol: malformed frame")

var (
	markerArtwork = []byte(`"` + fieldArtwork + `"`)
	// Any of these keys makes a line a snapshot even when it carries artwork.
	// fieldCPULegacy has no closing quote so it also matches fieldCPUTotal.
	markerMetrics = [][]byte{
		[]byte(`"` + fieldCPULegacy),
		[]byte(`"` + fieldMem + `"`),
		[]byte(`"` + fieldGPU + `"`),
		[]byte(`"` + fieldProcTop5 + `"`),
		[]byte(`"` + fieldLegacyProcTop + `"`),
	}
	markerAck     = []byte(`"` + fieldAck + `"`)

	chunkStart = [][]byte{[]byte("ART_START"), []byte("START")}
	chunkData  = [][]byte{[]byte("ART_CHUNK:"), []byte("CHUNK:")}
	chunkEnd   = [][]byte{[]byte("ART_END"), []byte("END")}
)

// Kind classifies a frame.
type Kind int

const (
	KindIgnore Kind = iota
	KindSnapshot
	KindArtwork
	KindAck
	KindArtworkChunk
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindArtwork:
		return "artwork"
	case KindAck:
		return "ack"
	case KindArtworkChunk:
		return "artwork-chunk"
	default:
		return "ignore"
	}
}

// ArtworkDecoder is the subset of artwork.Decoder the classifier drives.
type ArtworkDecoder interface {
	DecodeBase64(payload []byte) (artwork.Result, error)
	BeginChunks()
	AddChunk(hexData []byte) error
	EndChunks() (artwork.Result, error)
}

// Frame is the decoded form of one line. Only the fields for Kind are set.
type Frame struct {
	Kind     Kind
	Snapshot Snapshot
	Ack      string
	Artwork  artwork.Result
	// Err explains why a line was ignored or why artwork failed.
	Err error
}

// Decoder classifies lines and decodes them. It owns a payload scratch
// buffer and must stay on the ingestion goroutine.
type Decoder struct {
	art     ArtworkDecoder
	payload []byte
}

// NewDecoder returns a decoder that hands artwork payloads to art. art may
// be nil, in which case artwork is recognized but never decoded.
func NewDecoder(art ArtworkDecoder) *Decoder {
	return &Decoder{art: art}
}

// Decode classifies line before decoding it so artwork-only lines never pay
// for a full snapshot parse. line is not retained.
func (d *Decoder) Decode(line []byte) Frame {
	line = bytes.TrimSpace(line)
	if kind, ok := d.decodeChunkMarker(line); ok {
		return kind
	}
	if bytes.Contains(line, markerArtwork) && !hasMetrics(line) {
		return d.decodeArtworkOnly(line)
	}
	if bytes.Contains(line, markerAck) {
		if f, ok := decodeAck(line); ok {
			return f
		}
	}
	if len(line) < MinFrameLen {
		return Frame{Kind: KindIgnore}
	}
	return d.decodeSnapshot(line)
}

func hasMetrics(line []byte) bool {
	for _, m := range markerMetrics {
		if bytes.Contains(line, m) {
			return true
		}
	}
	return false
}

func (d *Decoder) decodeChunkMarker(line []byte) (Frame, bool) {
	if len(line) == 0 || line[0] == '{' {
		return Frame{}, false
	}
	for _, p := range chunkData {
		if bytes.HasPrefix(line, p) {
			f := Frame{Kind: KindArtworkChunk}
			if d.art != nil {
				f.Err = d.art.AddChunk(line[len(p):])
			}
			return f, true
		}
	}
	for _, p := range chunkStart {
		if bytes.Equal(line, p) {
			if d.art != nil {
				d.art.BeginChunks()
			}
			return Frame{Kind: KindArtworkChunk}, true
		}
	}
	for _, p := range chunkEnd {
		if bytes.Equal(line, p) {
			f := Frame{Kind: KindArtwork}
			if d.art != nil {
				f.Artwork, f.Err = d.art.EndChunks()
			}
			return f, true
		}
	}
	return Frame{}, false
}

func (d *Decoder) decodeArtworkOnly(line []byte) Frame {
	payload := jsoniter.Get(line, fieldArtwork)
	if payload.ValueType() != jsoniter.StringValue {
		payload = jsoniter.Get(line, fieldMedia, fieldArtwork)
	}
	if payload.ValueType() != jsoniter.StringValue {
		return Frame{Kind: KindIgnore, Err: fmt.Errorf("%w: artwork field missing or not a string", ErrMalformed)}
	}
	f := Frame{Kind: KindArtwork}
	if d.art != nil {
		f.Artwork, f.Err = d.submitArtwork(payload.ToString())
	}
	return f
}

func decodeAck(line []byte) (Frame, bool) {
	v := jsoniter.Get(line, fieldAck)
	if v.ValueType() != jsoniter.StringValue {
		return Frame{}, false
	}
	action := strutil.Truncate(strutil.NormalizeLower(v.ToString()), MaxAckAction)
	if action == "" {
		return Frame{Kind: KindIgnore, Err: fmt.Errorf("%w: empty ack", ErrMalformed)}, true
	}
	return Frame{Kind: KindAck, Ack: action}, true
}

func (d *Decoder) decodeSnapshot(line []byte) Frame {
	var w wireSnapshot
	if err := json.Unmarshal(line, &w); err != nil {
		return Frame{Kind: KindIgnore, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	f := Frame{Kind: KindSnapshot}
	s := &f.Snapshot

	switch {
	case w.CPUTotal != nil:
		s.CPU = *w.CPUTotal
	case w.CPU != nil:
		s.CPU = *w.CPU
	}
	s.Mem = w.Mem
	s.GPU = w.GPU

	if w.ProcTop5 != nil {
		decodeRichProcesses(s, w.ProcTop5)
	} else if w.LegacyProcs != nil {
		decodeLegacyProcesses(s, w.LegacyProcs)
	}

	if w.Media != nil {
		decodeMedia(s, w.Media)
		if w.Media.ArtworkB64 != nil && d.art != nil {
			res, err := d.submitArtwork(*w.Media.ArtworkB64)
			s.HasArtwork = res != artwork.Failed
			s.ArtworkUpdated = res == artwork.Updated
			f.Artwork, f.Err = res, err
		}
	}
	return f
}

func (d *Decoder) submitArtwork(payload string) (artwork.Result, error) {
	d.payload = append(d.payload[:0], payload...)
	return d.art.DecodeBase64(d.payload)
}

func decodeRichProcesses(s *Snapshot, rows []jsoniter.RawMessage) {
	n := 0
	for _, raw := range rows {
		if n >= MaxProcesses {
			break
		}
		var p wireProc
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		name := strutil.Truncate(strutil.ProcessName(p.Name), MaxProcessName)
		s.Processes[n] = Process{
			Label:   FormatProcessLabel(p.Mem, name),
			Name:    name,
			Percent: p.Mem,
			PID:     wireInt(p.PID),
		}
		n++
	}
	s.ProcessCount = n
}

func decodeLegacyProcesses(s *Snapshot, rows []jsoniter.RawMessage) {
	n := 0
	for _, raw := range rows {
		if n >= MaxProcesses {
			break
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			text = string(bytes.TrimSpace(raw))
		}
		s.Processes[n] = Process{Label: strutil.Truncate(text, MaxProcessLabel)}
		n++
	}
	s.ProcessCount = n
}

// wireInt converts a JSON number, clamping to +/-MaxWireInt. NaN is 0.
func wireInt(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= MaxWireInt:
		return MaxWireInt
	case f <= -MaxWireInt:
		return -MaxWireInt
	}
	return int(f)
}

// FormatProcessLabel renders the fixed display string for a process row.
func FormatProcessLabel(memPercent float64, name string) string {
	return strutil.Truncate(fmt.Sprintf("%.1f%% %s", memPercent, name), MaxProcessLabel)
}

func decodeMedia(s *Snapshot, w *wireMedia) {
	s.HasMedia = true
	m := &s.Media
	m.Title = NoMediaTitle
	if w.Title != nil {
		m.Title = strutil.Truncate(*w.Title, MaxTitle)
	}
	m.Artist = strutil.Truncate(w.Artist, MaxArtist)
	m.Album = strutil.Truncate(w.Album, MaxAlbum)
	m.Source = strutil.Truncate(strutil.NormalizeLower(w.Source), MaxSource)
	m.TrackID = strutil.Truncate(w.TrackID, MaxTrackID)
	m.Position = wireInt(w.Position)
	m.Duration = wireInt(w.Duration)
	m.Playing = w.Playing
	m.Shuffle = w.Shuffle
	m.Repeat = ParseRepeatMode(w.Repeat)
	m.Liked = w.Liked

	if p := w.Playlist; p != nil {
		s.HasPlaylist = true
		s.Playlist = Playlist{
			ID:            strutil.Truncate(p.ID, MaxPlaylistID),
			Name:          strutil.Truncate(p.Name, MaxPlaylistName),
			Revision:      strutil.Truncate(p.SnapshotID, MaxRevision),
			TotalTracks:   wireInt(p.TotalTracks),
			Public:        p.Public,
			Collaborative: p.Collaborative,
			HasImage:      p.HasImage,
		}
	}

	if w.Queue != nil {
		s.HasQueue = true
		n := 0
		for _, q := range w.Queue {
			if n >= MaxQueue {
				break
			}
			s.Queue[n] = QueueEntry{
				ID:       strutil.Truncate(q.ID, MaxQueueID),
				Source:   strutil.Truncate(strutil.NormalizeLower(q.Source), MaxSource),
				Name:     strutil.Truncate(q.Name, MaxQueueName),
				Artist:   strutil.Truncate(q.Artist, MaxArtist),
				Album:    strutil.Truncate(q.Album, MaxAlbum),
				Duration: wireInt(q.Duration),
				Local:    q.Local,
			}
			n++
		}
		s.QueueCount = n
	}
}
