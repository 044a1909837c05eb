package bdrom

import "sort"

// StreamFile is one .m2ts container in BDMV/STREAM.
type StreamFile struct {
	Name string
	Path string
	Size int64

	ClipInfo    *ClipInfo
	Interleaved *InterleavedFile

	// Streams holds PMT-derived streams found by probing or scanning.
	Streams map[uint16]*Stream

	Measurements Measurements
}

// Measurements are file-level transport statistics from the last full scan.
type Measurements struct {
	Scanned        bool
	Packets        uint64
	CorruptPackets uint64
	Resyncs        uint64
	TruncatedBytes int64

	FirstPTS uint64
	LastPTS  uint64
	HasPTS   bool

	// Transport rates derived from PCR samples, in bits per second.
	AverageRate float64
	MinRate     float64
	MaxRate     float64
	PCRSeconds  float64
}

// Length is the content duration between the first and last PTS.
func (m Measurements) Length() float64 {
	if !m.HasPTS {
		return 0
	}
	return float64(PTSDelta(m.FirstPTS, m.LastPTS)) / PTSClock
}

// InterleavedFile is an .ssif file pairing base and dependent 3D views.
type InterleavedFile struct {
	Name string
	Path string
	Size int64
}

// ScanName returns the name of the file actually read when scanning.
func (f *StreamFile) ScanName(ssif bool) string {
	if ssif && f.Interleaved != nil {
		return f.Interleaved.Name
	}
	return f.Name
}

// ScanPath returns the path of the file actually read when scanning.
func (f *StreamFile) ScanPath(ssif bool) string {
	if ssif && f.Interleaved != nil {
		return f.Interleaved.Path
	}
	return f.Path
}

// ScanSize returns the byte count a scan of this file reads.
func (f *StreamFile) ScanSize(ssif bool) int64 {
	if ssif && f.Interleaved != nil {
		return f.Interleaved.Size
	}
	return f.Size
}

// KnownStreams returns streams that have a recognized type, by PID.
func (f *StreamFile) KnownStreams() []*Stream {
	out := make([]*Stream, 0, len(f.Streams))
	for _, s := range f.Streams {
		if s.Type.Known() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// SortStreamFilesBySize orders files ascending by size, keeping the given
// order for ties.
func SortStreamFilesBySize(files []*StreamFile, ssif bool) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ScanSize(ssif) < files[j].ScanSize(ssif)
	})
}
