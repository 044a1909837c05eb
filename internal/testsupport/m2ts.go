package testsupport

// PacketSize is the size of one BDAV source packet.
const PacketSize = 192

// TSStream is one elementary stream carried by a synthetic transport stream.
type TSStream struct {
	PID  uint16
	Type uint8
}

// TSOptions controls BuildM2TS. Zero values pick the defaults noted below.
type TSOptions struct {
	// Streams are interleaved round-robin. The first one carries the PCR.
	Streams []TSStream
	// PMTPID defaults to 0x0100.
	PMTPID uint16
	// BitRate is the container rate in bits per second (default 20 Mbps).
	BitRate float64
	// Size is the total output size. A remainder that is not a whole packet
	// is written as a truncated tail.
	Size int64
	// StartPTS is the 90 kHz time of packet 0.
	StartPTS uint64
	// StartPCR is the 27 MHz clock of packet 0.
	StartPCR uint64
	// PCRInterval is the number of PCR-stream packets between PCRs (default 4).
	PCRInterval int
	// PESInterval is the number of packets per stream between PES starts (default 4).
	PESInterval int
	// PSIInterval is the packet distance between PAT/PMT repeats (default 2000).
	PSIInterval int
	// CorruptPackets lists packet indexes whose sync byte is broken.
	CorruptPackets []int
}

const (
	ptsWrap = uint64(1) << 33
	pcrWrap = ptsWrap * 300
)

func (o TSOptions) withDefaults() TSOptions {
	if o.PMTPID == 0 {
		o.PMTPID = 0x0100
	}
	if o.BitRate <= 0 {
		o.BitRate = 20_000_000
	}
	if o.PCRInterval <= 0 {
		o.PCRInterval = 4
	}
	if o.PESInterval <= 0 {
		o.PESInterval = 4
	}
	if o.PSIInterval <= 2 {
		o.PSIInterval = 2000
	}
	return o
}

// PacketSeconds is the time one packet occupies at the given container rate.
func PacketSeconds(bitRate float64) float64 {
	return PacketSize * 8 / bitRate
}

// BuildM2TS generates a constant-rate BDAV stream with PAT, PMT, PCR and PES
// timestamps.
func BuildM2TS(opts TSOptions) []byte {
	opts = opts.withDefaults()
	packets := int(opts.Size / PacketSize)
	corrupt := make(map[int]bool, len(opts.CorruptPackets))
	for _, n := range opts.CorruptPackets {
		corrupt[n] = true
	}

	var pcrPID uint16 = 0x1FFF
	if len(opts.Streams) > 0 {
		pcrPID = opts.Streams[0].PID
	}
	pat := PATSection(opts.PMTPID)
	pmt := PMTSection(pcrPID, opts.Streams)

	cc := make(map[uint16]uint8)
	sent := make([]int, len(opts.Streams))
	next := 0
	out := make([]byte, 0, opts.Size)
	for n := 0; n < packets; n++ {
		seconds := float64(n) * PacketSeconds(opts.BitRate)
		var pkt []byte
		switch {
		case n%opts.PSIInterval == 0 || len(opts.Streams) == 0:
			pkt = SectionPackets(0, pat, 184, cc)[0]
		case n%opts.PSIInterval == 1:
			pkt = SectionPackets(opts.PMTPID, pmt, 184, cc)[0]
		default:
			i := next % len(opts.Streams)
			next++
			s := opts.Streams[i]
			var pcr *uint64
			if i == 0 && sent[i]%opts.PCRInterval == 0 {
				v := (opts.StartPCR + uint64(seconds*27_000_000)) % pcrWrap
				pcr = &v
			}
			var payload []byte
			start := sent[i]%opts.PESInterval == 0
			if start {
				pts := (opts.StartPTS + uint64(seconds*90_000)) % ptsWrap
				payload = PESHeader(streamID(s.Type), pts)
			}
			pkt = Packet(s.PID, start, nextCC(cc, s.PID), pcr, payload)
			sent[i]++
		}
		if corrupt[n] {
			pkt[4] = 0x00
		}
		out = append(out, pkt...)
	}
	if tail := int(opts.Size % PacketSize); tail > 0 && len(opts.Streams) > 0 {
		s := opts.Streams[len(opts.Streams)-1]
		pkt := Packet(s.PID, false, nextCC(cc, s.PID), nil, nil)
		out = append(out, pkt[:tail]...)
	}
	return out
}

// Packet builds one 192-byte source packet with a zero arrival timestamp.
// A non-nil pcr adds an adaptation field carrying it. Unused payload bytes
// are 0xFF.
func Packet(pid uint16, unitStart bool, cc uint8, pcr *uint64, payload []byte) []byte {
	pkt := make([]byte, PacketSize)
	pkt[4] = 0x47
	pkt[5] = byte(pid>>8) & 0x1F
	if unitStart {
		pkt[5] |= 0x40
	}
	pkt[6] = byte(pid)
	body := pkt[8:]
	control := byte(0x10)
	pos := 0
	if pcr != nil {
		control = 0x30
		base, ext := *pcr/300, *pcr%300
		body[0] = 7
		body[1] = 0x10
		body[2] = byte(base >> 25)
		body[3] = byte(base >> 17)
		body[4] = byte(base >> 9)
		body[5] = byte(base >> 1)
		body[6] = byte(base<<7) | 0x7E | byte(ext>>8)&0x01
		body[7] = byte(ext)
		pos = 8
	}
	pkt[7] = control | cc&0x0F
	n := copy(body[pos:], payload)
	for i := pos + n; i < len(body); i++ {
		body[i] = 0xFF
	}
	return pkt
}

// PESHeader returns a PES header carrying only a PTS.
func PESHeader(streamID byte, pts uint64) []byte {
	return []byte{
		0x00, 0x00, 0x01, streamID,
		0x00, 0x00, // unbounded length
		0x80, 0x80, 0x05,
		0x21 | byte(pts>>29)&0x0E,
		byte(pts >> 22),
		byte(pts>>14)&0xFE | 0x01,
		byte(pts >> 7),
		byte(pts<<1)&0xFE | 0x01,
	}
}

// PATSection encodes a single-program PAT with a valid CRC.
func PATSection(pmtPID uint16) []byte {
	section := []byte{
		0x00, 0xB0, 13,
		0x00, 0x01, // transport_stream_id
		0xC1, 0x00, 0x00,
		0x00, 0x01, // program_number
		0xE0 | byte(pmtPID>>8)&0x1F, byte(pmtPID),
	}
	return be32(section, CRC32MPEG(section))
}

// PMTSection encodes a PMT for program 1 with a valid CRC.
func PMTSection(pcrPID uint16, streams []TSStream) []byte {
	body := []byte{
		0x00, 0x01, // program_number
		0xC1, 0x00, 0x00,
		0xE0 | byte(pcrPID>>8)&0x1F, byte(pcrPID),
		0xF0, 0x00,
	}
	for _, s := range streams {
		body = append(body, s.Type, 0xE0|byte(s.PID>>8)&0x1F, byte(s.PID), 0xF0, 0x00)
	}
	length := len(body) + 4
	section := append([]byte{0x02, 0xB0 | byte(length>>8)&0x0F, byte(length)}, body...)
	return be32(section, CRC32MPEG(section))
}

// SectionPackets splits a PSI section over packets carrying at most chunk
// payload bytes each. The first packet holds the pointer field.
func SectionPackets(pid uint16, section []byte, chunk int, cc map[uint16]uint8) [][]byte {
	if chunk <= 0 || chunk > 184 {
		chunk = 184
	}
	data := append([]byte{0x00}, section...)
	var out [][]byte
	for first := true; len(data) > 0; first = false {
		n := min(chunk, len(data))
		out = append(out, Packet(pid, first, nextCC(cc, pid), nil, data[:n]))
		data = data[n:]
	}
	return out
}

// CRC32MPEG computes the MPEG-2 section CRC.
func CRC32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func nextCC(cc map[uint16]uint8, pid uint16) uint8 {
	v := cc[pid]
	cc[pid] = (v + 1) & 0x0F
	return v
}

func streamID(streamType uint8) byte {
	if isVideo(streamType) {
		return 0xE0
	}
	return 0xBD
}
