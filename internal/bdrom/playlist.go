package bdrom

import (
	"fmt"
	"strings"

	"bdscan/internal/bitio"
)

// PlayItem is one raw play item decoded from a playlist.
type PlayItem struct {
	ClipName            string
	CodecID             string
	IsMultiAngle        bool
	ConnectionCondition uint8
	STCID               uint8
	InTime              Ticks
	OutTime             Ticks
	// Angles lists the alternate-angle clips (angle 1..n).
	Angles []AngleRef
}

// AngleRef names the clip used by one alternate angle.
type AngleRef struct {
	ClipName string
	CodecID  string
	STCID    uint8
}

// Mark is a raw playlist mark.
type Mark struct {
	Type        uint8
	PlayItemRef uint16
	Time        Ticks
	EntryESPID  uint16
	Duration    Ticks
}

// MarkTypeEntry identifies chapter marks.
const MarkTypeEntry = 1

// StreamClip is one resolved play item (or alternate angle of it).
type StreamClip struct {
	Name       string
	ClipName   string
	AngleIndex int
	// ItemIndex is the play item this clip came from.
	ItemIndex int

	TimeIn          Ticks
	TimeOut         Ticks
	RelativeTimeIn  Ticks
	RelativeTimeOut Ticks

	FileSize            int64
	InterleavedFileSize int64

	PayloadBytes  uint64
	PacketCount   uint64
	PacketSeconds float64

	// Chapters are playlist-relative chapter starts, in seconds.
	Chapters []float64

	StreamFile *StreamFile
	ClipInfo   *ClipInfo
}

// Length returns the clip duration in seconds.
func (c *StreamClip) Length() float64 { return c.LengthTicks().Seconds() }

// LengthTicks returns the clip duration in 45 kHz ticks.
func (c *StreamClip) LengthTicks() Ticks { return c.TimeOut - c.TimeIn }

// PacketSize is the number of container bytes attributed to the clip.
func (c *StreamClip) PacketSize() uint64 { return c.PacketCount * PacketSize }

// Size returns the file size counted for this clip.
func (c *StreamClip) Size(ssif bool) int64 {
	if ssif && c.InterleavedFileSize > 0 {
		return c.InterleavedFileSize
	}
	return c.FileSize
}

// PacketBitRate is the measured container rate while the clip played.
func (c *StreamClip) PacketBitRate() int64 {
	if c.PacketSeconds <= 0 {
		return 0
	}
	return int64(float64(c.PacketSize())*8/c.PacketSeconds + 0.5)
}

// Covers reports whether a 90 kHz timestamp falls inside [TimeIn, TimeOut].
func (c *StreamClip) Covers(pts uint64) bool {
	in, out := c.TimeIn.PTS(), c.TimeOut.PTS()
	return pts >= in && pts <= out
}

// ClearBitrates zeroes the measured counters.
func (c *StreamClip) ClearBitrates() {
	c.PayloadBytes = 0
	c.PacketCount = 0
	c.PacketSeconds = 0
}

// Playlist is a parsed .mpls file.
type Playlist struct {
	Name     string
	Path     string
	Version  string
	MPLSSize int64

	Items []PlayItem
	Marks []Mark

	StreamClips []*StreamClip
	// Chapters are chapter start times in seconds on the playlist timeline.
	Chapters []float64
	// AngleCount is the number of alternate angles (0 when single-angle).
	AngleCount int

	// MissingClips lists clip names referenced but not found on disc.
	MissingClips []string

	Streams      map[uint16]*Stream
	AngleStreams []map[uint16]*Stream

	SortedStreams   []*Stream
	VideoStreams    []*Stream
	AudioStreams    []*Stream
	GraphicsStreams []*Stream
	TextStreams     []*Stream

	IsValid       bool
	InvalidReason string
	HasLoops      bool

	totalTicks Ticks
}

// ParsePlaylist decodes a playlist file into play items and marks.
// Clip references are resolved later by Resolve.
func ParsePlaylist(name string, data []byte) (*Playlist, error) {
	r := bitio.NewReader(data)
	tag := r.ReadString(4)
	version := r.ReadString(4)
	if r.Err() != nil {
		return nil, parseErr(name, 0, "truncated header", r.Err())
	}
	if tag != "MPLS" || !supportedVersions[version] {
		return nil, parseErr(name, 0, fmt.Sprintf("playlist file has unknown file type %q", tag+version), nil)
	}
	playlistStart := int(r.ReadUint32())
	markStart := int(r.ReadUint32())
	if r.Err() != nil {
		return nil, parseErr(name, 8, "truncated header", r.Err())
	}

	pl := &Playlist{Name: name, Version: version, MPLSSize: int64(len(data))}

	r.Seek(playlistStart)
	r.ReadUint32() // length
	r.ReadUint16() // reserved
	itemCount := int(r.ReadUint16())
	r.ReadUint16() // subpaths
	if r.Err() != nil {
		return nil, parseErr(name, int64(playlistStart), "truncated playlist section", r.Err())
	}

	for i := 0; i < itemCount; i++ {
		itemStart := r.Pos()
		itemLength := int(r.ReadUint16())
		item, err := decodePlayItem(r.Sub(itemLength))
		if err == nil {
			err = r.Err()
		}
		if err != nil {
			return nil, parseErr(name, int64(itemStart), fmt.Sprintf("play item %d", i), err)
		}
		if item.OutTime < item.InTime {
			return nil, parseErr(name, int64(itemStart), fmt.Sprintf("play item %d ends before it starts", i), nil)
		}
		pl.Items = append(pl.Items, item)
	}

	if markStart > 0 && markStart < len(data) {
		marks, err := decodeMarks(data, markStart)
		if err != nil {
			return nil, parseErr(name, int64(markStart), "mark section", err)
		}
		pl.Marks = marks
	}
	return pl, nil
}

func decodePlayItem(r *bitio.Reader) (PlayItem, error) {
	var item PlayItem
	item.ClipName = r.ReadString(5)
	item.CodecID = r.ReadString(4)
	r.SkipBits(11)
	item.IsMultiAngle = r.ReadFlag()
	item.ConnectionCondition = uint8(r.ReadBits(4))
	item.STCID = r.ReadUint8()
	item.InTime = Ticks(r.ReadUint32())
	item.OutTime = Ticks(r.ReadUint32())
	r.Skip(8)      // UO mask
	r.ReadUint8()  // random access flag
	r.ReadUint8()  // still mode
	r.ReadUint16() // still time
	if item.IsMultiAngle {
		angles := int(r.ReadUint8())
		r.ReadUint8() // angle flags
		for a := 1; a < angles; a++ {
			item.Angles = append(item.Angles, AngleRef{
				ClipName: r.ReadString(5),
				CodecID:  r.ReadString(4),
				STCID:    r.ReadUint8(),
			})
		}
	}
	return item, r.Err()
}

func decodeMarks(data []byte, start int) ([]Mark, error) {
	r := bitio.NewReader(data)
	r.Seek(start)
	r.ReadUint32() // length
	count := int(r.ReadUint16())
	marks := make([]Mark, 0, count)
	for i := 0; i < count; i++ {
		r.ReadUint8() // reserved
		m := Mark{
			Type:        r.ReadUint8(),
			PlayItemRef: r.ReadUint16(),
			Time:        Ticks(r.ReadUint32()),
			EntryESPID:  r.ReadUint16(),
			Duration:    Ticks(r.ReadUint32()),
		}
		if r.Err() != nil {
			return nil, r.Err()
		}
		marks = append(marks, m)
	}
	return marks, nil
}

// Resolve turns play items into StreamClips using the disc registries. Items
// whose stream file or clip info is missing are recorded in MissingClips.
func (p *Playlist) Resolve(streams map[string]*StreamFile, clips map[string]*ClipInfo) {
	p.StreamClips = nil
	p.MissingClips = nil
	p.Chapters = nil
	p.AngleCount = 0

	primary := make([]*StreamClip, len(p.Items))
	var relative Ticks
	for i, item := range p.Items {
		length := item.OutTime - item.InTime
		refs := append([]AngleRef{{ClipName: item.ClipName, CodecID: item.CodecID, STCID: item.STCID}}, item.Angles...)
		for angle, ref := range refs {
			clip := p.resolveClip(ref.ClipName, streams, clips)
			if clip == nil {
				continue
			}
			clip.AngleIndex = angle
			clip.ItemIndex = i
			clip.TimeIn = item.InTime
			clip.TimeOut = item.OutTime
			clip.RelativeTimeIn = relative
			clip.RelativeTimeOut = relative + length
			if angle > p.AngleCount {
				p.AngleCount = angle
			}
			if angle == 0 {
				primary[i] = clip
			}
			p.StreamClips = append(p.StreamClips, clip)
		}
		if primary[i] != nil {
			relative += length
		}
	}

	for _, mark := range p.Marks {
		if mark.Type != MarkTypeEntry || int(mark.PlayItemRef) >= len(primary) {
			continue
		}
		clip := primary[mark.PlayItemRef]
		if clip == nil || mark.Time < clip.TimeIn || mark.Time > clip.TimeOut {
			continue
		}
		at := (clip.RelativeTimeIn + mark.Time - clip.TimeIn).Seconds()
		p.Chapters = append(p.Chapters, at)
		clip.Chapters = append(clip.Chapters, at)
	}
}

func (p *Playlist) resolveClip(clipName string, streams map[string]*StreamFile, clips map[string]*ClipInfo) *StreamClip {
	base := strings.ToUpper(strings.TrimSpace(clipName))
	file := streams[base+".M2TS"]
	info := clips[base+".CLPI"]
	if file == nil || info == nil {
		p.MissingClips = append(p.MissingClips, base)
		return nil
	}
	clip := &StreamClip{
		Name:       file.Name,
		ClipName:   base,
		FileSize:   file.Size,
		StreamFile: file,
		ClipInfo:   info,
	}
	if file.Interleaved != nil {
		clip.InterleavedFileSize = file.Interleaved.Size
	}
	return clip
}
