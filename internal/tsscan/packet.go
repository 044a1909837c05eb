package tsscan

const (
	pidPAT  = 0x0000
	pidNull = 0x1FFF

	// pcrWrap is the modulus of the 27 MHz extended program clock.
	pcrWrap = uint64(1) << 33 * 300
	pcrHz   = 27_000_000
)

// tsHeader is the decoded 4-byte transport packet header plus the
// adaptation-field fields the scanner uses.
type tsHeader struct {
	PID        uint16
	UnitStart  bool
	Scrambled  bool
	Continuity uint8
	HasPCR     bool
	PCR        uint64
	// Payload is the packet payload after any adaptation field; nil when the
	// packet carries none.
	Payload []byte
}

// decodeHeader parses a 188-byte transport packet. It reports false when the
// adaptation field length is inconsistent.
func decodeHeader(pkt []byte) (tsHeader, bool) {
	h := tsHeader{
		PID:        uint16(pkt[1]&0x1F)<<8 | uint16(pkt[2]),
		UnitStart:  pkt[1]&0x40 != 0,
		Scrambled:  pkt[3]>>6 != 0,
		Continuity: pkt[3] & 0x0F,
	}
	control := pkt[3] >> 4 & 0x03
	pos := 4
	if control&0x02 != 0 {
		afLen := int(pkt[4])
		if 5+afLen > len(pkt) {
			return h, false
		}
		if afLen >= 7 && pkt[5]&0x10 != 0 {
			h.HasPCR = true
			h.PCR = decodePCR(pkt[6:12])
		}
		pos = 5 + afLen
	}
	if control&0x01 != 0 && pos < len(pkt) {
		h.Payload = pkt[pos:]
	}
	return h, true
}

// decodePCR combines the 33-bit base and 9-bit extension into one 27 MHz value.
func decodePCR(b []byte) uint64 {
	base := uint64(b[0])<<25 | uint64(b[1])<<17 | uint64(b[2])<<9 | uint64(b[3])<<1 | uint64(b[4])>>7
	ext := uint64(b[4]&0x01)<<8 | uint64(b[5])
	return base*300 + ext
}

// pcrDelta returns end-start on the wrapping 27 MHz clock.
func pcrDelta(start, end uint64) uint64 {
	if end < start {
		end += pcrWrap
	}
	return end - start
}

// pesTimestamps extracts PTS and DTS from the start of a PES packet.
func pesTimestamps(payload []byte) (pts, dts uint64, hasPTS, hasDTS bool) {
	if len(payload) < 9 || payload[0] != 0 || payload[1] != 0 || payload[2] != 1 {
		return 0, 0, false, false
	}
	switch payload[3] {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return 0, 0, false, false // no optional PES header
	}
	flags := payload[7] >> 6
	if flags&0x02 != 0 && len(payload) >= 14 {
		pts, hasPTS = decodeTimestamp(payload[9:14]), true
	}
	if flags == 0x03 && len(payload) >= 19 {
		dts, hasDTS = decodeTimestamp(payload[14:19]), true
	}
	return pts, dts, hasPTS, hasDTS
}

func decodeTimestamp(b []byte) uint64 {
	return uint64(b[0]>>1&0x07)<<30 |
		uint64(b[1])<<22 |
		uint64(b[2]>>1)<<15 |
		uint64(b[3])<<7 |
		uint64(b[4]>>1)
}
