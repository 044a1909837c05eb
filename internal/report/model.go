package report

import "time"

// SchemaVersion is bumped when fields change meaning.
const SchemaVersion = 1

// Report is the full analysis of one disc.
type Report struct {
	Version     int    `json:"version" yaml:"version"`
	Source      string `json:"source" yaml:"source"`
	VolumeLabel string `json:"volume_label" yaml:"volume_label"`
	Title       string `json:"title" yaml:"title"`
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	SizeBytes   int64  `json:"size_bytes" yaml:"size_bytes"`
	Flags       Flags  `json:"flags" yaml:"flags"`

	Playlists   []Playlist   `json:"playlists" yaml:"playlists"`
	Groups      [][]string   `json:"groups,omitempty" yaml:"groups,omitempty"`
	StreamFiles []StreamFile `json:"stream_files,omitempty" yaml:"stream_files,omitempty"`

	Scan *Outcome `json:"scan,omitempty" yaml:"scan,omitempty"`
}

// Flags are the disc capability flags.
type Flags struct {
	BDPlus bool `json:"bd_plus" yaml:"bd_plus"`
	BDJava bool `json:"bd_java" yaml:"bd_java"`
	PSP    bool `json:"psp" yaml:"psp"`
	ThreeD bool `json:"3d" yaml:"3d"`
	DBOX   bool `json:"dbox" yaml:"dbox"`
	Is50Hz bool `json:"50hz" yaml:"50hz"`
}

// Names lists the set flags in display form.
func (f Flags) Names() []string {
	var out []string
	for _, flag := range []struct {
		set  bool
		name string
	}{
		{f.BDPlus, "BD+"},
		{f.BDJava, "BD-Java"},
		{f.PSP, "PSP"},
		{f.ThreeD, "3D"},
		{f.DBOX, "D-BOX"},
		{f.Is50Hz, "50Hz"},
	} {
		if flag.set {
			out = append(out, flag.name)
		}
	}
	return out
}

// Playlist summarizes one playlist.
type Playlist struct {
	Name            string  `json:"name" yaml:"name"`
	Valid           bool    `json:"valid" yaml:"valid"`
	InvalidReason   string  `json:"invalid_reason,omitempty" yaml:"invalid_reason,omitempty"`
	LengthSeconds   float64 `json:"length_seconds" yaml:"length_seconds"`
	Length          string  `json:"length" yaml:"length"`
	FileSize        int64   `json:"file_size" yaml:"file_size"`
	InterleavedSize int64   `json:"interleaved_size,omitempty" yaml:"interleaved_size,omitempty"`
	MeasuredBytes   uint64  `json:"measured_bytes,omitempty" yaml:"measured_bytes,omitempty"`
	BitRate         int64   `json:"bitrate_bps,omitempty" yaml:"bitrate_bps,omitempty"`
	StreamBitRate   int64   `json:"stream_bitrate_bps,omitempty" yaml:"stream_bitrate_bps,omitempty"`
	HasHiddenTracks bool    `json:"has_hidden_tracks" yaml:"has_hidden_tracks"`
	HasLoops        bool    `json:"has_loops,omitempty" yaml:"has_loops,omitempty"`
	AngleCount      int     `json:"angle_count,omitempty" yaml:"angle_count,omitempty"`

	Chapters []float64 `json:"chapters,omitempty" yaml:"chapters,omitempty"`
	Clips    []Clip    `json:"clips" yaml:"clips"`
	Streams  []Stream  `json:"streams" yaml:"streams"`
}

// Clip is one play item or alternate angle of a playlist.
type Clip struct {
	Name          string  `json:"name" yaml:"name"`
	Angle         int     `json:"angle,omitempty" yaml:"angle,omitempty"`
	TimeIn        float64 `json:"time_in" yaml:"time_in"`
	TimeOut       float64 `json:"time_out" yaml:"time_out"`
	LengthSeconds float64 `json:"length_seconds" yaml:"length_seconds"`
	FileSize      int64   `json:"file_size" yaml:"file_size"`
	MeasuredBytes uint64  `json:"measured_bytes,omitempty" yaml:"measured_bytes,omitempty"`
	BitRate       int64   `json:"bitrate_bps,omitempty" yaml:"bitrate_bps,omitempty"`
}

// Stream is one elementary stream of a playlist.
type Stream struct {
	PID           uint16 `json:"pid" yaml:"pid"`
	Kind          string `json:"kind" yaml:"kind"`
	Codec         string `json:"codec" yaml:"codec"`
	CodecShort    string `json:"codec_short" yaml:"codec_short"`
	Language      string `json:"language,omitempty" yaml:"language,omitempty"`
	LanguageName  string `json:"language_name,omitempty" yaml:"language_name,omitempty"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	Hidden        bool   `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Angle         int    `json:"angle,omitempty" yaml:"angle,omitempty"`
	BitRate       int64  `json:"bitrate_bps,omitempty" yaml:"bitrate_bps,omitempty"`
	ActiveBitRate int64  `json:"active_bitrate_bps,omitempty" yaml:"active_bitrate_bps,omitempty"`
	PeakBitRate   int64  `json:"peak_bitrate_bps,omitempty" yaml:"peak_bitrate_bps,omitempty"`
}

// StreamFile carries the transport measurements of one scanned file.
type StreamFile struct {
	Name           string  `json:"name" yaml:"name"`
	Size           int64   `json:"size" yaml:"size"`
	Packets        uint64  `json:"packets" yaml:"packets"`
	CorruptPackets uint64  `json:"corrupt_packets,omitempty" yaml:"corrupt_packets,omitempty"`
	Resyncs        uint64  `json:"resyncs,omitempty" yaml:"resyncs,omitempty"`
	TruncatedBytes int64   `json:"truncated_bytes,omitempty" yaml:"truncated_bytes,omitempty"`
	LengthSeconds  float64 `json:"length_seconds" yaml:"length_seconds"`
	AverageRate    float64 `json:"average_rate_bps" yaml:"average_rate_bps"`
	MinRate        float64 `json:"min_rate_bps" yaml:"min_rate_bps"`
	MaxRate        float64 `json:"max_rate_bps" yaml:"max_rate_bps"`
}

// Outcome describes the bitrate phase.
type Outcome struct {
	ID             string            `json:"id" yaml:"id"`
	Phase          string            `json:"phase" yaml:"phase"`
	Cancelled      bool              `json:"cancelled" yaml:"cancelled"`
	Started        time.Time         `json:"started" yaml:"started"`
	ElapsedSeconds float64           `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	FinishedBytes  int64             `json:"finished_bytes" yaml:"finished_bytes"`
	TotalBytes     int64             `json:"total_bytes" yaml:"total_bytes"`
	Files          []string          `json:"files,omitempty" yaml:"files,omitempty"`
	FileErrors     map[string]string `json:"file_errors,omitempty" yaml:"file_errors,omitempty"`
	Error          string            `json:"error,omitempty" yaml:"error,omitempty"`
}
