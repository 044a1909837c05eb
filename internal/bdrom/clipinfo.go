package bdrom

import (
	"fmt"
	"sort"

	"bdscan/internal/bitio"
	"bdscan/internal/language"
)

// ClipInfo is a parsed .clpi file.
type ClipInfo struct {
	Name     string
	Path     string
	Version  string
	FileSize int64

	// Streams maps PID to the stream declared in the program info.
	Streams map[uint16]*Stream
	// StreamOrder lists PIDs in program-info order.
	StreamOrder []uint16
	PMTPID      uint16

	// EntryPoints is the EP map of the primary video PID, ascending by SPN.
	EntryPoints []EntryPoint
	EPMapPID    uint16
}

// EntryPoint pairs a presentation time (90 kHz) with a source packet number.
type EntryPoint struct {
	PTS uint64
	SPN uint32
}

// Offset returns the byte offset of the entry's source packet.
func (e EntryPoint) Offset() int64 { return int64(e.SPN) * PacketSize }

var supportedVersions = map[string]bool{"0100": true, "0200": true, "0300": true}

// ParseClipInfo decodes a clip-info file. A damaged CPI section leaves the
// time index empty rather than failing the clip.
func ParseClipInfo(name string, data []byte) (*ClipInfo, error) {
	r := bitio.NewReader(data)
	tag := r.ReadString(4)
	version := r.ReadString(4)
	if r.Err() != nil {
		return nil, parseErr(name, 0, "truncated header", r.Err())
	}
	if tag != "HDMV" || !supportedVersions[version] {
		return nil, parseErr(name, 0, fmt.Sprintf("clip info file has unknown file type %q", tag+version), nil)
	}
	r.ReadUint32() // sequence info
	programInfoStart := int(r.ReadUint32())
	cpiStart := int(r.ReadUint32())
	if r.Err() != nil {
		return nil, parseErr(name, 8, "truncated header", r.Err())
	}

	clip := &ClipInfo{
		Name:     name,
		Version:  version,
		FileSize: int64(len(data)),
		Streams:  make(map[uint16]*Stream),
	}
	if err := clip.parseProgramInfo(data, programInfoStart); err != nil {
		return nil, err
	}
	clip.parseCPI(data, cpiStart)
	return clip, nil
}

func (c *ClipInfo) parseProgramInfo(data []byte, start int) error {
	r := bitio.NewReader(data)
	r.Seek(start)
	r.ReadUint32() // length
	r.ReadUint8()  // reserved
	programs := int(r.ReadUint8())
	if r.Err() != nil {
		return parseErr(c.Name, int64(start), "truncated program info", r.Err())
	}
	for p := 0; p < programs; p++ {
		r.ReadUint32() // SPN_program_sequence_start
		pmtPID := r.ReadUint16()
		streams := int(r.ReadUint8())
		r.ReadUint8() // num_groups
		if r.Err() != nil {
			return parseErr(c.Name, int64(r.Pos()), fmt.Sprintf("truncated program %d", p), r.Err())
		}
		if p == 0 {
			c.PMTPID = pmtPID
		}
		for i := 0; i < streams; i++ {
			offset := int64(r.Pos())
			pid := r.ReadUint16()
			codingLen := int(r.ReadUint8())
			coding := r.Sub(codingLen)
			if r.Err() != nil {
				return parseErr(c.Name, offset, "truncated stream entry", r.Err())
			}
			if _, dup := c.Streams[pid]; dup {
				return parseErr(c.Name, offset, fmt.Sprintf("duplicate PID 0x%04x in program info", pid), nil)
			}
			stream := decodeCodingInfo(pid, coding)
			c.Streams[pid] = stream
			c.StreamOrder = append(c.StreamOrder, pid)
		}
	}
	return nil
}

// decodeCodingInfo reads a StreamCodingInfo body (the bytes after its
// length field).
func decodeCodingInfo(pid uint16, r *bitio.Reader) *Stream {
	s := &Stream{PID: pid, Type: StreamType(r.ReadUint8())}
	switch s.Type.Kind() {
	case KindVideo:
		s.VideoFormat = VideoFormat(r.ReadBits(4))
		s.FrameRate = FrameRate(r.ReadBits(4))
		s.AspectRatio = AspectRatio(r.ReadBits(4))
	case KindAudio:
		s.ChannelLayout = ChannelLayout(r.ReadBits(4))
		s.SampleRate = SampleRate(r.ReadBits(4))
		s.Language = language.Normalize(r.ReadString(3))
	case KindGraphics:
		s.Language = language.Normalize(r.ReadString(3))
	case KindText:
		s.CharacterCode = r.ReadUint8()
		s.Language = language.Normalize(r.ReadString(3))
	}
	return s
}

func (c *ClipInfo) parseCPI(data []byte, start int) {
	if start <= 0 || start >= len(data) {
		return
	}
	r := bitio.NewReader(data)
	r.Seek(start)
	length := r.ReadUint32()
	if length == 0 || r.Err() != nil {
		return
	}
	r.SkipBits(12)
	if cpiType := r.ReadBits(4); cpiType != 1 {
		return
	}
	epMapStart := r.Pos()
	r.ReadUint8() // reserved
	entries := int(r.ReadUint8())

	type pidEntry struct {
		pid        uint16
		streamType uint8
		coarse     int
		fine       int
		address    int
	}
	var chosen *pidEntry
	for i := 0; i < entries; i++ {
		e := pidEntry{pid: r.ReadUint16()}
		r.SkipBits(10)
		e.streamType = uint8(r.ReadBits(4))
		e.coarse = int(r.ReadBits(16))
		e.fine = int(r.ReadBits(18))
		e.address = int(r.ReadUint32())
		if r.Err() != nil {
			return
		}
		if chosen == nil || (chosen.streamType != 1 && e.streamType == 1) {
			ec := e
			chosen = &ec
		}
	}
	if chosen == nil {
		return
	}
	points, err := readEPMap(data, epMapStart+chosen.address, chosen.coarse, chosen.fine)
	if err != nil {
		return
	}
	c.EPMapPID = chosen.pid
	c.EntryPoints = points
}

func readEPMap(data []byte, base, coarseCount, fineCount int) ([]EntryPoint, error) {
	r := bitio.NewReader(data)
	r.Seek(base)
	fineStart := base + int(r.ReadUint32())

	type coarse struct {
		refFine int
		pts     uint64
		spn     uint32
	}
	coarses := make([]coarse, coarseCount)
	for i := range coarses {
		coarses[i].refFine = int(r.ReadBits(18))
		coarses[i].pts = r.ReadBits(14)
		coarses[i].spn = r.ReadUint32()
	}
	r.Seek(fineStart)
	points := make([]EntryPoint, 0, fineCount)
	ci := 0
	for i := 0; i < fineCount; i++ {
		r.SkipBits(1 + 3) // angle change point, I_end_position_offset
		ptsFine := r.ReadBits(11)
		spnFine := uint32(r.ReadBits(17))
		for ci+1 < len(coarses) && coarses[ci+1].refFine <= i {
			ci++
		}
		if len(coarses) == 0 {
			break
		}
		cc := coarses[ci]
		points = append(points, EntryPoint{
			PTS: (cc.pts&^1)<<19 + ptsFine<<9,
			SPN: cc.spn&^0x1FFFF | spnFine,
		})
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].SPN < points[j].SPN })
	return points, nil
}

// PTSAtOffset estimates the presentation time of the packet at byte offset
// using the last entry point at or before it.
func (c *ClipInfo) PTSAtOffset(offset int64) (uint64, bool) {
	if c == nil || len(c.EntryPoints) == 0 {
		return 0, false
	}
	spn := uint32(offset / PacketSize)
	i := sort.Search(len(c.EntryPoints), func(i int) bool { return c.EntryPoints[i].SPN > spn })
	if i == 0 {
		return 0, false
	}
	return c.EntryPoints[i-1].PTS, true
}

// OffsetAtPTS returns the byte offset of the last entry point at or before pts.
func (c *ClipInfo) OffsetAtPTS(pts uint64) (int64, bool) {
	if c == nil || len(c.EntryPoints) == 0 {
		return 0, false
	}
	best := -1
	for i, e := range c.EntryPoints {
		if e.PTS <= pts && (best < 0 || e.PTS >= c.EntryPoints[best].PTS) {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return c.EntryPoints[best].Offset(), true
}

// SortedStreams returns the clip streams in program-info order.
func (c *ClipInfo) SortedStreams() []*Stream {
	out := make([]*Stream, 0, len(c.StreamOrder))
	for _, pid := range c.StreamOrder {
		out = append(out, c.Streams[pid])
	}
	return out
}
