package tsscan

import (
	"encoding/binary"
	"fmt"

	"bdscan/internal/bdrom"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
	// maxSectionLength bounds PSI sections (ISO/IEC 13818-1 private limit).
	maxSectionLength = 4096
)

var crcTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// crc32MPEG is the MPEG-2 section CRC. Running it over a section including
// its trailing CRC yields zero.
func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// sectionAssembler reassembles PSI sections that span transport packets.
type sectionAssembler struct {
	buf     []byte
	active  bool
	lastCRC uint32
	seen    bool
}

// push feeds one packet payload and returns every section completed by it.
func (a *sectionAssembler) push(payload []byte, unitStart bool) [][]byte {
	var done [][]byte
	if unitStart {
		if len(payload) == 0 {
			return nil
		}
		pointer := int(payload[0])
		payload = payload[1:]
		if pointer > len(payload) {
			a.reset()
			return nil
		}
		if a.active {
			a.buf = append(a.buf, payload[:pointer]...)
			if s := a.complete(); s != nil {
				done = append(done, s)
			}
		}
		a.reset()
		payload = payload[pointer:]
		for len(payload) >= 3 && payload[0] != 0xFF {
			length := 3 + int(binary.BigEndian.Uint16(payload[1:3])&0x0FFF)
			if length > len(payload) {
				a.active = true
				a.buf = append(a.buf[:0], payload...)
				return done
			}
			done = append(done, append([]byte(nil), payload[:length]...))
			payload = payload[length:]
		}
		return done
	}
	if !a.active {
		return nil
	}
	a.buf = append(a.buf, payload...)
	if s := a.complete(); s != nil {
		done = append(done, s)
		a.reset()
	}
	return done
}

func (a *sectionAssembler) complete() []byte {
	if len(a.buf) < 3 {
		return nil
	}
	length := 3 + int(binary.BigEndian.Uint16(a.buf[1:3])&0x0FFF)
	if length > maxSectionLength {
		a.reset()
		return nil
	}
	if len(a.buf) < length {
		return nil
	}
	return append([]byte(nil), a.buf[:length]...)
}

func (a *sectionAssembler) reset() {
	a.active = false
	a.buf = a.buf[:0]
}

// changed reports whether a verified section differs from the last one
// accepted, so repeated tables are decoded once.
func (a *sectionAssembler) changed(section []byte) bool {
	crc := binary.BigEndian.Uint32(section[len(section)-4:])
	if a.seen && crc == a.lastCRC {
		return false
	}
	a.seen, a.lastCRC = true, crc
	return true
}

func verifySection(section []byte) error {
	if len(section) < 12 {
		return fmt.Errorf("section too short (%d bytes)", len(section))
	}
	if crc32MPEG(section) != 0 {
		return fmt.Errorf("section crc mismatch for table 0x%02x", section[0])
	}
	return nil
}

// patInfo is the decoded program association table.
type patInfo struct {
	TransportStreamID uint16
	PMTPID            uint16
}

func parsePAT(section []byte) (patInfo, error) {
	if err := verifySection(section); err != nil {
		return patInfo{}, err
	}
	if section[0] != tableIDPAT {
		return patInfo{}, fmt.Errorf("unexpected table id 0x%02x in PAT", section[0])
	}
	info := patInfo{TransportStreamID: binary.BigEndian.Uint16(section[3:5])}
	body := section[8 : len(section)-4]
	for len(body) >= 4 {
		program := binary.BigEndian.Uint16(body[0:2])
		pid := binary.BigEndian.Uint16(body[2:4]) & 0x1FFF
		body = body[4:]
		if program == 0 {
			continue // network PID
		}
		info.PMTPID = pid
		return info, nil
	}
	return info, fmt.Errorf("PAT lists no program")
}

// pmtStream is one elementary stream entry of a PMT.
type pmtStream struct {
	PID         uint16
	Type        bdrom.StreamType
	Descriptors []bdrom.Descriptor
}

type pmtInfo struct {
	PCRPID  uint16
	Streams []pmtStream
}

func parsePMT(section []byte) (pmtInfo, error) {
	if err := verifySection(section); err != nil {
		return pmtInfo{}, err
	}
	if section[0] != tableIDPMT {
		return pmtInfo{}, fmt.Errorf("unexpected table id 0x%02x in PMT", section[0])
	}
	info := pmtInfo{PCRPID: binary.BigEndian.Uint16(section[8:10]) & 0x1FFF}
	programInfoLen := int(binary.BigEndian.Uint16(section[10:12]) & 0x0FFF)
	body := section[12 : len(section)-4]
	if programInfoLen > len(body) {
		return info, fmt.Errorf("PMT program info overruns section")
	}
	body = body[programInfoLen:]
	for len(body) >= 5 {
		entry := pmtStream{
			Type: bdrom.StreamType(body[0]),
			PID:  binary.BigEndian.Uint16(body[1:3]) & 0x1FFF,
		}
		esLen := int(binary.BigEndian.Uint16(body[3:5]) & 0x0FFF)
		body = body[5:]
		if esLen > len(body) {
			return info, fmt.Errorf("PMT entry for PID 0x%04x overruns section", entry.PID)
		}
		entry.Descriptors = parseDescriptors(body[:esLen])
		body = body[esLen:]
		info.Streams = append(info.Streams, entry)
	}
	return info, nil
}

func parseDescriptors(data []byte) []bdrom.Descriptor {
	var out []bdrom.Descriptor
	for len(data) >= 2 {
		tag, n := data[0], int(data[1])
		if 2+n > len(data) {
			break
		}
		out = append(out, bdrom.Descriptor{Tag: tag, Value: append([]byte(nil), data[2:2+n]...)})
		data = data[2+n:]
	}
	return out
}
