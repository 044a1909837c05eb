package bdrom

import (
	"math"
	"sort"
	"strings"
	"time"

	"bdscan/internal/language"
)

// InitOptions tune playlist initialization.
type InitOptions struct {
	FilterShortPlaylists   bool
	MinPlaylistLength      time.Duration
	FilterLoopingPlaylists bool
	KeepStreamOrder        bool
}

// Initialize merges clip stream tables into playlist-wide lists, flags
// hidden streams, computes totals and decides validity.
func (p *Playlist) Initialize(opts InitOptions) {
	p.Streams = make(map[uint16]*Stream)
	p.AngleStreams = make([]map[uint16]*Stream, p.AngleCount)
	for i := range p.AngleStreams {
		p.AngleStreams[i] = make(map[uint16]*Stream)
	}

	var order []uint16
	presence := make(map[uint16]int)
	primaryClips := 0
	seenClip := make(map[string]bool)
	p.HasLoops = false
	p.totalTicks = 0

	for _, clip := range p.StreamClips {
		streams := clipStreams(clip)
		if clip.AngleIndex == 0 {
			primaryClips++
			p.totalTicks += clip.LengthTicks()
			if seenClip[clip.Name] {
				p.HasLoops = true
			}
			seenClip[clip.Name] = true
			for _, s := range streams {
				presence[s.PID]++
				if _, ok := p.Streams[s.PID]; !ok {
					p.Streams[s.PID] = s.Clone()
					order = append(order, s.PID)
				}
			}
			continue
		}
		angle := p.AngleStreams[clip.AngleIndex-1]
		for _, s := range streams {
			if _, ok := angle[s.PID]; !ok {
				c := s.Clone()
				c.AngleIndex = clip.AngleIndex
				angle[s.PID] = c
			}
		}
	}

	for pid, s := range p.Streams {
		s.IsHidden = presence[pid] < primaryClips
	}

	p.sortStreams(order, opts.KeepStreamOrder)
	p.validate(opts)
}

// clipStreams returns the clip-info streams of a clip, supplemented by any
// known PMT streams of its stream file that the clip info does not declare.
func clipStreams(clip *StreamClip) []*Stream {
	var out []*Stream
	seen := make(map[uint16]bool)
	if clip.ClipInfo != nil {
		for _, s := range clip.ClipInfo.SortedStreams() {
			merged := s
			if clip.StreamFile != nil {
				if probed, ok := clip.StreamFile.Streams[s.PID]; ok {
					merged = s.Clone()
					merged.fillFrom(probed)
				}
			}
			out = append(out, merged)
			seen[s.PID] = true
		}
	}
	if clip.StreamFile != nil {
		for _, s := range clip.StreamFile.KnownStreams() {
			if !seen[s.PID] {
				out = append(out, s)
			}
		}
	}
	return out
}

func (p *Playlist) sortStreams(order []uint16, keepOrder bool) {
	p.SortedStreams = nil
	p.VideoStreams, p.AudioStreams, p.GraphicsStreams, p.TextStreams = nil, nil, nil, nil
	for _, pid := range order {
		s := p.Streams[pid]
		switch s.Kind() {
		case KindVideo:
			p.VideoStreams = append(p.VideoStreams, s)
		case KindAudio:
			p.AudioStreams = append(p.AudioStreams, s)
		case KindGraphics:
			p.GraphicsStreams = append(p.GraphicsStreams, s)
		case KindText:
			p.TextStreams = append(p.TextStreams, s)
		}
	}
	if keepOrder {
		for _, pid := range order {
			if s := p.Streams[pid]; s.Kind() != KindUnknown {
				p.SortedStreams = append(p.SortedStreams, s)
			}
		}
		return
	}
	sort.SliceStable(p.VideoStreams, func(i, j int) bool { return lessVideo(p.VideoStreams[i], p.VideoStreams[j]) })
	sort.SliceStable(p.AudioStreams, func(i, j int) bool { return lessAudio(p.AudioStreams[i], p.AudioStreams[j]) })
	sort.SliceStable(p.GraphicsStreams, func(i, j int) bool { return lessLanguage(p.GraphicsStreams[i], p.GraphicsStreams[j]) })
	sort.SliceStable(p.TextStreams, func(i, j int) bool { return lessLanguage(p.TextStreams[i], p.TextStreams[j]) })
	for _, group := range [][]*Stream{p.VideoStreams, p.AudioStreams, p.GraphicsStreams, p.TextStreams} {
		p.SortedStreams = append(p.SortedStreams, group...)
	}
}

func lessVideo(a, b *Stream) bool {
	if a.Height() != b.Height() {
		return a.Height() > b.Height()
	}
	if a.Type.rank() != b.Type.rank() {
		return a.Type.rank() > b.Type.rank()
	}
	return a.PID < b.PID
}

func lessAudio(a, b *Stream) bool {
	if a.ChannelCount() != b.ChannelCount() {
		return a.ChannelCount() > b.ChannelCount()
	}
	if a.Type.rank() != b.Type.rank() {
		return a.Type.rank() > b.Type.rank()
	}
	return lessLanguage(a, b)
}

// lessLanguage orders codec rank, then English first, then language name
// and PID.
func lessLanguage(a, b *Stream) bool {
	if a.Kind() != KindAudio && a.Type.rank() != b.Type.rank() {
		return a.Type.rank() > b.Type.rank()
	}
	ae, be := language.IsEnglish(a.Language), language.IsEnglish(b.Language)
	if ae != be {
		return ae
	}
	an, bn := strings.ToLower(a.LanguageName()), strings.ToLower(b.LanguageName())
	if an != bn {
		return an < bn
	}
	return a.PID < b.PID
}

func (p *Playlist) validate(opts InitOptions) {
	p.IsValid = true
	p.InvalidReason = ""
	switch {
	case len(p.StreamClips) == 0:
		p.IsValid = false
		p.InvalidReason = "no resolvable clips"
	case opts.FilterShortPlaylists && p.TotalLength() < opts.MinPlaylistLength.Seconds():
		p.IsValid = false
		p.InvalidReason = "shorter than minimum length"
	case opts.FilterLoopingPlaylists && p.HasLoops:
		p.IsValid = false
		p.InvalidReason = "repeats a clip"
	}
}

// TotalLength sums the primary-angle clip durations, in seconds.
func (p *Playlist) TotalLength() float64 { return p.totalTicks.Seconds() }

// TotalTicks sums the primary-angle clip durations.
func (p *Playlist) TotalTicks() Ticks { return p.totalTicks }

// FileSize sums the primary-angle stream file sizes.
func (p *Playlist) FileSize() int64 {
	var size int64
	for _, c := range p.StreamClips {
		if c.AngleIndex == 0 {
			size += c.FileSize
		}
	}
	return size
}

// InterleavedFileSize sums the primary-angle SSIF sizes.
func (p *Playlist) InterleavedFileSize() int64 {
	var size int64
	for _, c := range p.StreamClips {
		if c.AngleIndex == 0 {
			size += c.InterleavedFileSize
		}
	}
	return size
}

// TotalSize sums the measured packet bytes of primary-angle clips.
func (p *Playlist) TotalSize() uint64 {
	var size uint64
	for _, c := range p.StreamClips {
		if c.AngleIndex == 0 {
			size += c.PacketSize()
		}
	}
	return size
}

// TotalAngleSize sums the measured packet bytes of alternate-angle clips.
func (p *Playlist) TotalAngleSize() uint64 {
	var size uint64
	for _, c := range p.StreamClips {
		if c.AngleIndex > 0 {
			size += c.PacketSize()
		}
	}
	return size
}

// HasHiddenTracks reports whether any merged stream is hidden.
func (p *Playlist) HasHiddenTracks() bool {
	for _, s := range p.Streams {
		if s.IsHidden {
			return true
		}
	}
	return false
}

// Is50Hz reports whether any video stream runs at a PAL frame rate.
func (p *Playlist) Is50Hz() bool {
	for _, s := range p.VideoStreams {
		if s.FrameRate.Is50Hz() {
			return true
		}
	}
	return false
}

// ClipNames lists the distinct stream file names referenced.
func (p *Playlist) ClipNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range p.StreamClips {
		if !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	return names
}

// ClearBitrates resets every measured counter on clips and streams.
func (p *Playlist) ClearBitrates() {
	for _, c := range p.StreamClips {
		c.ClearBitrates()
	}
	for _, s := range p.Streams {
		s.ResetCounters()
	}
	for _, angle := range p.AngleStreams {
		for _, s := range angle {
			s.ResetCounters()
		}
	}
}

// PrimarySeconds is the measured play time of primary-angle clips.
func (p *Playlist) PrimarySeconds() float64 {
	var seconds float64
	for _, c := range p.StreamClips {
		if c.AngleIndex == 0 {
			seconds += c.PacketSeconds
		}
	}
	return seconds
}

// UpdateBitrates derives BitRate and ActiveBitRate from the accumulated
// counters. BitRate averages over the playlist timeline; ActiveBitRate over
// the seconds the stream actually carried data.
func (p *Playlist) UpdateBitrates() {
	seconds := p.PrimarySeconds()
	if seconds <= 0 {
		seconds = p.TotalLength()
	}
	update := func(s *Stream) {
		s.BitRate = rate(s.PayloadBytes, seconds)
		s.ActiveBitRate = rate(s.PayloadBytes, s.PacketSeconds)
	}
	for _, s := range p.Streams {
		update(s)
	}
	for _, angle := range p.AngleStreams {
		for _, s := range angle {
			update(s)
		}
	}
}

// BitRate is the measured container rate of the primary angle: whole
// 192-byte source packets over the seconds they played, falling back to the
// playlist length before any packet time was measured.
func (p *Playlist) BitRate() int64 {
	seconds := p.PrimarySeconds()
	if seconds <= 0 {
		seconds = p.TotalLength()
	}
	return rate(p.TotalSize(), seconds)
}

// StreamBitRate sums the average rates of known primary streams. It counts
// transport payload only, so it sits below BitRate by the packet overhead.
func (p *Playlist) StreamBitRate() int64 {
	var total int64
	for _, s := range p.Streams {
		if s.Kind() != KindUnknown {
			total += s.BitRate
		}
	}
	return total
}

func rate(bytes uint64, seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(float64(bytes) * 8 / seconds))
}
