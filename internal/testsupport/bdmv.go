package testsupport

import (
	"encoding/binary"
	"fmt"
)

// ClipStream describes one program-info stream of a synthetic clip-info file.
type ClipStream struct {
	PID  uint16
	Type uint8
	// Video attributes.
	Format, Rate, Aspect uint8
	// Audio attributes.
	Layout, Sample uint8
	// Audio, graphics and text language.
	Lang string
}

// EntryPoint is one EP-map entry. PTS must be a multiple of 512 to survive
// the coarse/fine split exactly.
type EntryPoint struct {
	PTS uint64
	SPN uint32
}

// BuildCLPI encodes a minimal HDMV0200 clip-info file.
func BuildCLPI(streams []ClipStream, eps []EntryPoint, epPID uint16) []byte {
	var program []byte
	program = append(program, 0, 1)       // reserved, number_of_programs
	program = be32(program, 0)            // SPN_program_sequence_start
	program = be16(program, 0x0100)       // program_map_PID
	program = append(program, byte(len(streams)), 0)
	for _, s := range streams {
		program = be16(program, s.PID)
		coding := []byte{s.Type}
		switch {
		case isVideo(s.Type):
			coding = append(coding, s.Format<<4|s.Rate&0x0F, s.Aspect<<4, 0, 0)
		case isAudio(s.Type):
			coding = append(coding, s.Layout<<4|s.Sample&0x0F)
			coding = append(coding, lang(s.Lang)...)
		case s.Type == 0x92:
			coding = append(coding, 0x01)
			coding = append(coding, lang(s.Lang)...)
		default:
			coding = append(coding, lang(s.Lang)...)
			coding = append(coding, 0)
		}
		program = append(program, byte(len(coding)))
		program = append(program, coding...)
	}

	var cpi []byte
	if len(eps) > 0 {
		var epMap []byte
		epMap = append(epMap, 0, 1) // reserved, number_of_stream_PID_entries
		epMap = be16(epMap, epPID)
		field := uint64(1)<<34 | uint64(len(eps))<<18 | uint64(len(eps))
		epMap = append(epMap, byte(field>>40), byte(field>>32), byte(field>>24), byte(field>>16), byte(field>>8), byte(field))
		epMap = be32(epMap, uint32(len(epMap)+4))
		epMap = be32(epMap, uint32(4+8*len(eps))) // fine table start, relative to this map
		for i, ep := range eps {
			epMap = be32(epMap, uint32(i)<<14|uint32(ep.PTS>>19)&0x3FFF)
			epMap = be32(epMap, ep.SPN)
		}
		for _, ep := range eps {
			epMap = be32(epMap, uint32(ep.PTS>>9)&0x7FF<<17|ep.SPN&0x1FFFF)
		}
		cpi = be32(cpi, uint32(len(epMap)+2))
		cpi = be16(cpi, 0x0001)
		cpi = append(cpi, epMap...)
	} else {
		cpi = be32(cpi, 0)
	}

	const header = 40
	seqInfo := header
	programInfo := seqInfo + 4
	cpiStart := programInfo + 4 + len(program)

	out := []byte("HDMV0200")
	out = be32(out, uint32(seqInfo))
	out = be32(out, uint32(programInfo))
	out = be32(out, uint32(cpiStart))
	out = append(out, make([]byte, header-len(out))...)
	out = be32(out, 0) // empty sequence info
	out = be32(out, uint32(len(program)))
	out = append(out, program...)
	out = append(out, cpi...)
	return out
}

// PlayItem describes one synthetic play item. In and Out are 45 kHz ticks.
type PlayItem struct {
	Clip   string
	In     uint32
	Out    uint32
	Angles []string
}

// Mark is a chapter mark on a play item, in 45 kHz ticks.
type Mark struct {
	Item uint16
	Time uint32
}

// BuildMPLS encodes a minimal MPLS0200 playlist file.
func BuildMPLS(items []PlayItem, marks []Mark) []byte {
	var section []byte
	section = be16(section, 0) // reserved
	section = be16(section, uint16(len(items)))
	section = be16(section, 0) // subpaths
	for _, item := range items {
		var body []byte
		body = append(body, clipName(item.Clip)...)
		body = append(body, "M2TS"...)
		flags := uint16(0x01)
		if len(item.Angles) > 0 {
			flags |= 1 << 4
		}
		body = be16(body, flags)
		body = append(body, 0) // STC id
		body = be32(body, item.In)
		body = be32(body, item.Out)
		body = append(body, make([]byte, 8)...) // UO mask
		body = append(body, 0, 0)               // random access, still mode
		body = be16(body, 0)                    // still time
		if len(item.Angles) > 0 {
			body = append(body, byte(len(item.Angles)+1), 0)
			for _, angle := range item.Angles {
				body = append(body, clipName(angle)...)
				body = append(body, "M2TS"...)
				body = append(body, 0)
			}
		}
		section = be16(section, uint16(len(body)))
		section = append(section, body...)
	}

	var markSection []byte
	markSection = be16(markSection, uint16(len(marks)))
	for _, m := range marks {
		markSection = append(markSection, 0, 1)
		markSection = be16(markSection, m.Item)
		markSection = be32(markSection, m.Time)
		markSection = be16(markSection, 0xFFFF)
		markSection = be32(markSection, 0)
	}

	const header = 40
	playlistStart := header
	markStart := playlistStart + 4 + len(section)

	out := []byte("MPLS0200")
	out = be32(out, uint32(playlistStart))
	out = be32(out, uint32(markStart))
	out = append(out, make([]byte, header-len(out))...)
	out = be32(out, uint32(len(section)))
	out = append(out, section...)
	out = be32(out, uint32(len(markSection)))
	out = append(out, markSection...)
	return out
}

func clipName(name string) []byte {
	b := []byte(fmt.Sprintf("%-5s", name))
	return b[:5]
}

func lang(code string) []byte {
	b := []byte(fmt.Sprintf("%-3s", code))
	return b[:3]
}

func isVideo(t uint8) bool {
	switch t {
	case 0x01, 0x02, 0x1b, 0x20, 0x24, 0xea:
		return true
	}
	return false
}

func isAudio(t uint8) bool {
	switch t {
	case 0x03, 0x04, 0x80, 0x81, 0x82, 0x83, 0x84, 0x85, 0x86, 0xa1, 0xa2:
		return true
	}
	return false
}

func be16(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }

func be32(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }
