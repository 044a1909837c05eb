package bdrom

import (
	"fmt"
	"strings"

	"bdscan/internal/language"
)

// StreamType is the MPEG-TS / BDMV stream coding type.
type StreamType uint8

const (
	StreamTypeUnknown              StreamType = 0x00
	StreamTypeMPEG1Video           StreamType = 0x01
	StreamTypeMPEG2Video           StreamType = 0x02
	StreamTypeMPEG1Audio           StreamType = 0x03
	StreamTypeMPEG2Audio           StreamType = 0x04
	StreamTypeAVCVideo             StreamType = 0x1b
	StreamTypeMVCVideo             StreamType = 0x20
	StreamTypeHEVCVideo            StreamType = 0x24
	StreamTypeLPCMAudio            StreamType = 0x80
	StreamTypeAC3Audio             StreamType = 0x81
	StreamTypeDTSAudio             StreamType = 0x82
	StreamTypeTrueHDAudio          StreamType = 0x83
	StreamTypeAC3PlusAudio         StreamType = 0x84
	StreamTypeDTSHDAudio           StreamType = 0x85
	StreamTypeDTSHDMasterAudio     StreamType = 0x86
	StreamTypePresentationGraphics StreamType = 0x90
	StreamTypeInteractiveGraphics  StreamType = 0x91
	StreamTypeSubtitle             StreamType = 0x92
	StreamTypeAC3PlusSecondary     StreamType = 0xa1
	StreamTypeDTSHDSecondary       StreamType = 0xa2
	StreamTypeVC1Video             StreamType = 0xea
)

// Kind is the broad classification of an elementary stream.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
	KindGraphics
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindGraphics:
		return "graphics"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

type typeInfo struct {
	kind  Kind
	name  string
	short string
	rank  int
}

var streamTypes = map[StreamType]typeInfo{
	StreamTypeMPEG1Video:           {KindVideo, "MPEG-1 Video", "MPEG-1", 1},
	StreamTypeMPEG2Video:           {KindVideo, "MPEG-2 Video", "MPEG-2", 2},
	StreamTypeAVCVideo:             {KindVideo, "MPEG-4 AVC Video", "AVC", 3},
	StreamTypeVC1Video:             {KindVideo, "VC-1 Video", "VC-1", 4},
	StreamTypeMVCVideo:             {KindVideo, "MPEG-4 MVC Video", "MVC", 5},
	StreamTypeHEVCVideo:            {KindVideo, "MPEG-H HEVC Video", "HEVC", 6},
	StreamTypeMPEG1Audio:           {KindAudio, "MPEG-1 Audio", "MP1", 1},
	StreamTypeMPEG2Audio:           {KindAudio, "MPEG-2 Audio", "MP2", 2},
	StreamTypeAC3PlusSecondary:     {KindAudio, "Dolby Digital Plus Audio", "AC3+", 3},
	StreamTypeDTSHDSecondary:       {KindAudio, "DTS Express", "DTS Express", 4},
	StreamTypeAC3Audio:             {KindAudio, "Dolby Digital Audio", "AC3", 5},
	StreamTypeDTSAudio:             {KindAudio, "DTS Audio", "DTS", 6},
	StreamTypeAC3PlusAudio:         {KindAudio, "Dolby Digital Plus Audio", "AC3+", 7},
	StreamTypeDTSHDAudio:           {KindAudio, "DTS-HD High-Res Audio", "DTS-HD HR", 8},
	StreamTypeTrueHDAudio:          {KindAudio, "Dolby TrueHD Audio", "TrueHD", 9},
	StreamTypeDTSHDMasterAudio:     {KindAudio, "DTS-HD Master Audio", "DTS-HD MA", 10},
	StreamTypeLPCMAudio:            {KindAudio, "LPCM Audio", "LPCM", 11},
	StreamTypeSubtitle:             {KindText, "Subtitle", "SUB", 1},
	StreamTypeInteractiveGraphics:  {KindGraphics, "Interactive Graphics", "IGS", 2},
	StreamTypePresentationGraphics: {KindGraphics, "Presentation Graphics", "PGS", 3},
}

// Kind classifies the stream type.
func (t StreamType) Kind() Kind { return streamTypes[t].kind }

// Known reports whether t is a stream type the analyzer recognizes.
func (t StreamType) Known() bool {
	_, ok := streamTypes[t]
	return ok
}

// CodecName returns the long codec name, e.g. "Dolby TrueHD Audio".
func (t StreamType) CodecName() string {
	if info, ok := streamTypes[t]; ok {
		return info.name
	}
	return fmt.Sprintf("Unknown (0x%02x)", uint8(t))
}

// CodecShortName returns the abbreviated codec name, e.g. "TrueHD".
func (t StreamType) CodecShortName() string {
	if info, ok := streamTypes[t]; ok {
		return info.short
	}
	return "UNKNOWN"
}

func (t StreamType) rank() int { return streamTypes[t].rank }

// IsSecondaryAudio reports whether t is a picture-in-picture commentary codec.
func (t StreamType) IsSecondaryAudio() bool {
	return t == StreamTypeAC3PlusSecondary || t == StreamTypeDTSHDSecondary
}

// VideoFormat is the clip-info video format code.
type VideoFormat uint8

const (
	VideoFormatUnknown VideoFormat = 0
	VideoFormat480i    VideoFormat = 1
	VideoFormat576i    VideoFormat = 2
	VideoFormat480p    VideoFormat = 3
	VideoFormat1080i   VideoFormat = 4
	VideoFormat720p    VideoFormat = 5
	VideoFormat1080p   VideoFormat = 6
	VideoFormat576p    VideoFormat = 7
	VideoFormat2160p   VideoFormat = 8
)

var videoFormats = map[VideoFormat]struct {
	height     int
	interlaced bool
	label      string
}{
	VideoFormat480i:  {480, true, "480i"},
	VideoFormat576i:  {576, true, "576i"},
	VideoFormat480p:  {480, false, "480p"},
	VideoFormat1080i: {1080, true, "1080i"},
	VideoFormat720p:  {720, false, "720p"},
	VideoFormat1080p: {1080, false, "1080p"},
	VideoFormat576p:  {576, false, "576p"},
	VideoFormat2160p: {2160, false, "2160p"},
}

// Height returns the frame height in lines, or 0 when unknown.
func (f VideoFormat) Height() int { return videoFormats[f].height }

// Interlaced reports whether the format is interlaced.
func (f VideoFormat) Interlaced() bool { return videoFormats[f].interlaced }

func (f VideoFormat) String() string {
	if v, ok := videoFormats[f]; ok {
		return v.label
	}
	return "unknown"
}

// FrameRate is the clip-info frame rate code.
type FrameRate uint8

const (
	FrameRateUnknown FrameRate = 0
	FrameRate23976   FrameRate = 1
	FrameRate24      FrameRate = 2
	FrameRate25      FrameRate = 3
	FrameRate2997    FrameRate = 4
	FrameRate50      FrameRate = 6
	FrameRate5994    FrameRate = 7
)

var frameRates = map[FrameRate]struct {
	num, den int
	label    string
}{
	FrameRate23976: {24000, 1001, "23.976"},
	FrameRate24:    {24, 1, "24"},
	FrameRate25:    {25, 1, "25"},
	FrameRate2997:  {30000, 1001, "29.97"},
	FrameRate50:    {50, 1, "50"},
	FrameRate5994:  {60000, 1001, "59.94"},
}

// Value returns frames per second, or 0 when unknown.
func (r FrameRate) Value() float64 {
	v, ok := frameRates[r]
	if !ok {
		return 0
	}
	return float64(v.num) / float64(v.den)
}

// Is50Hz reports whether the rate belongs to the PAL family.
func (r FrameRate) Is50Hz() bool { return r == FrameRate25 || r == FrameRate50 }

func (r FrameRate) String() string {
	if v, ok := frameRates[r]; ok {
		return v.label
	}
	return "unknown"
}

// AspectRatio is the clip-info display aspect code.
type AspectRatio uint8

const (
	AspectUnknown AspectRatio = 0
	Aspect4x3     AspectRatio = 2
	Aspect16x9    AspectRatio = 3
	Aspect2x21    AspectRatio = 4
)

func (a AspectRatio) String() string {
	switch a {
	case Aspect4x3:
		return "4:3"
	case Aspect16x9:
		return "16:9"
	case Aspect2x21:
		return "2.21:1"
	default:
		return "unknown"
	}
}

// ChannelLayout is the clip-info audio presentation type.
type ChannelLayout uint8

const (
	ChannelLayoutUnknown ChannelLayout = 0
	ChannelLayoutMono    ChannelLayout = 1
	ChannelLayoutStereo  ChannelLayout = 3
	ChannelLayoutMulti   ChannelLayout = 6
	ChannelLayoutCombo   ChannelLayout = 12
)

// Channels approximates the channel count. Exact counts need payload
// decoding, which the analyzer does not do.
func (c ChannelLayout) Channels() int {
	switch c {
	case ChannelLayoutMono:
		return 1
	case ChannelLayoutStereo:
		return 2
	case ChannelLayoutMulti, ChannelLayoutCombo:
		return 6
	default:
		return 0
	}
}

func (c ChannelLayout) String() string {
	switch c {
	case ChannelLayoutMono:
		return "mono"
	case ChannelLayoutStereo:
		return "stereo"
	case ChannelLayoutMulti:
		return "multi"
	case ChannelLayoutCombo:
		return "stereo+multi"
	default:
		return "unknown"
	}
}

// SampleRate is the clip-info audio sampling frequency code.
type SampleRate uint8

const (
	SampleRateUnknown SampleRate = 0
	SampleRate48      SampleRate = 1
	SampleRate96      SampleRate = 4
	SampleRate192     SampleRate = 5
	SampleRate48192   SampleRate = 12
	SampleRate4896    SampleRate = 14
)

// Hz returns the primary sampling frequency.
func (s SampleRate) Hz() int {
	switch s {
	case SampleRate48, SampleRate48192, SampleRate4896:
		return 48000
	case SampleRate96:
		return 96000
	case SampleRate192:
		return 192000
	default:
		return 0
	}
}

// Descriptor is a raw PMT descriptor.
type Descriptor struct {
	Tag   uint8
	Value []byte
}

// Stream is one elementary stream in a clip, stream file or playlist. The
// Kind selects which attribute group is meaningful.
type Stream struct {
	PID         uint16
	Type        StreamType
	Language    string
	Descriptors []Descriptor
	IsHidden    bool
	// AngleIndex is 0 for primary streams, n for the nth alternate angle.
	AngleIndex int

	VideoFormat   VideoFormat
	FrameRate     FrameRate
	AspectRatio   AspectRatio
	ChannelLayout ChannelLayout
	SampleRate    SampleRate
	CharacterCode uint8

	// Accumulated by the transport-stream scanner.
	PayloadBytes  uint64
	PacketCount   uint64
	PacketSeconds float64

	// BitRate is the average over the whole playlist timeline.
	BitRate int64
	// ActiveBitRate is the average over the time the stream carried data.
	ActiveBitRate int64
	// PeakBitRate is the highest sliding-window rate seen in a stream file.
	PeakBitRate int64
}

// Kind classifies the stream.
func (s *Stream) Kind() Kind { return s.Type.Kind() }

// CodecName returns the long codec name.
func (s *Stream) CodecName() string { return s.Type.CodecName() }

// CodecShortName returns the abbreviated codec name.
func (s *Stream) CodecShortName() string { return s.Type.CodecShortName() }

// LanguageName returns the display name of the stream language.
func (s *Stream) LanguageName() string {
	if s.Language == "" {
		return ""
	}
	return language.DisplayName(s.Language)
}

// Height returns the video height, 0 for non-video streams.
func (s *Stream) Height() int { return s.VideoFormat.Height() }

// ChannelCount approximates the audio channel count.
func (s *Stream) ChannelCount() int { return s.ChannelLayout.Channels() }

// PacketSize is the container bytes attributed to the stream.
func (s *Stream) PacketSize() uint64 { return s.PacketCount * PacketSize }

// Description summarizes the stream attributes, e.g. "1080p / 23.976 fps / 16:9".
func (s *Stream) Description() string {
	var parts []string
	switch s.Kind() {
	case KindVideo:
		if s.VideoFormat != VideoFormatUnknown {
			parts = append(parts, s.VideoFormat.String())
		}
		if s.FrameRate != FrameRateUnknown {
			parts = append(parts, s.FrameRate.String()+" fps")
		}
		if s.AspectRatio != AspectUnknown {
			parts = append(parts, s.AspectRatio.String())
		}
	case KindAudio:
		if s.ChannelLayout != ChannelLayoutUnknown {
			parts = append(parts, s.ChannelLayout.String())
		}
		if hz := s.SampleRate.Hz(); hz > 0 {
			parts = append(parts, fmt.Sprintf("%d kHz", hz/1000))
		}
		if s.Type.IsSecondaryAudio() {
			parts = append(parts, "secondary")
		}
	}
	return strings.Join(parts, " / ")
}

// Clone copies the descriptive attributes without the measured counters.
func (s *Stream) Clone() *Stream {
	c := *s
	c.Descriptors = append([]Descriptor(nil), s.Descriptors...)
	c.ResetCounters()
	c.IsHidden = false
	return &c
}

// ResetCounters zeroes the measured values.
func (s *Stream) ResetCounters() {
	s.PayloadBytes = 0
	s.PacketCount = 0
	s.PacketSeconds = 0
	s.BitRate = 0
	s.ActiveBitRate = 0
	s.PeakBitRate = 0
}

// fillFrom copies attributes missing on s from other with the same PID.
func (s *Stream) fillFrom(other *Stream) {
	if s.Type == StreamTypeUnknown {
		s.Type = other.Type
	}
	if s.Language == "" {
		s.Language = other.Language
	}
	if len(s.Descriptors) == 0 {
		s.Descriptors = append([]Descriptor(nil), other.Descriptors...)
	}
}
