package tsscan

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bdscan/internal/bdrom"
	"bdscan/internal/testsupport"
)

func TestCRC32MPEG(t *testing.T) {
	section := testsupport.PATSection(0x0100)
	body := section[:len(section)-4]
	if got, want := crc32MPEG(body), testsupport.CRC32MPEG(body); got != want {
		t.Fatalf("crc = %08x, want %08x", got, want)
	}
	if got := crc32MPEG(section); got != 0 {
		t.Fatalf("crc over section with its crc = %08x, want 0", got)
	}
}

func TestSectionAssemblerSpansPackets(t *testing.T) {
	var streams []testsupport.TSStream
	for i := 0; i < 100; i++ {
		streams = append(streams, testsupport.TSStream{PID: 0x1100 + uint16(i), Type: 0x81})
	}
	section := testsupport.PMTSection(0x1011, streams)
	packets := testsupport.SectionPackets(0x0100, section, 184, map[uint16]uint8{})
	if len(packets) < 3 {
		t.Fatalf("expected the section to span packets, got %d", len(packets))
	}

	var a sectionAssembler
	var got [][]byte
	for i, pkt := range packets {
		h, ok := decodeHeader(pkt[syncOffset:])
		if !ok {
			t.Fatalf("packet %d header rejected", i)
		}
		done := a.push(h.Payload, h.UnitStart)
		if len(done) > 0 && i != len(packets)-1 {
			t.Fatalf("section completed early at packet %d", i)
		}
		got = append(got, done...)
	}
	if len(got) != 1 || !bytes.Equal(got[0], section) {
		t.Fatalf("reassembled %d sections, want the original", len(got))
	}

	info, err := parsePMT(got[0])
	if err != nil {
		t.Fatalf("parsePMT: %v", err)
	}
	if info.PCRPID != 0x1011 || len(info.Streams) != 100 || info.Streams[99].PID != 0x1163 {
		t.Fatalf("unexpected PMT: pcr=0x%04x streams=%d", info.PCRPID, len(info.Streams))
	}
}

func TestSectionAssemblerHandlesTrailingStuffing(t *testing.T) {
	section := testsupport.PATSection(0x0100)
	pkt := testsupport.Packet(0, true, 0, nil, append([]byte{0x00}, section...))
	h, _ := decodeHeader(pkt[syncOffset:])

	var a sectionAssembler
	got := a.push(h.Payload, h.UnitStart)
	if len(got) != 1 || !bytes.Equal(got[0], section) {
		t.Fatalf("got %d sections", len(got))
	}
	if !a.changed(got[0]) {
		t.Fatal("first section should count as changed")
	}
	if a.changed(got[0]) {
		t.Fatal("repeated section should not count as changed")
	}
}

func TestParseTablesRejectBadInput(t *testing.T) {
	pat := testsupport.PATSection(0x0100)
	corrupt := append([]byte(nil), pat...)
	corrupt[9] ^= 0xFF

	if _, err := parsePAT(corrupt); err == nil {
		t.Fatal("expected crc error for damaged PAT")
	}
	if _, err := parsePMT(pat); err == nil {
		t.Fatal("expected table id error when parsing a PAT as PMT")
	}
	if _, err := parsePAT(pat[:8]); err == nil {
		t.Fatal("expected error for short section")
	}
	info, err := parsePAT(pat)
	if err != nil || info.PMTPID != 0x0100 || info.TransportStreamID != 1 {
		t.Fatalf("parsePAT = %+v, %v", info, err)
	}
}

func TestParsePMTDescriptors(t *testing.T) {
	body := []byte{
		0x00, 0x01, 0xC1, 0x00, 0x00,
		0xF0, 0x11, // PCR PID 0x1011
		0xF0, 0x00,
		0x1b, 0xF0, 0x11, 0xF0, 0x00,
		0x81, 0xF1, 0x00, 0xF0, 0x06, descriptorISO639, 0x04, 'f', 'r', 'a', 0x00,
	}
	length := len(body) + 4
	section := append([]byte{0x02, 0xB0 | byte(length>>8), byte(length)}, body...)
	section = append(section, 0, 0, 0, 0)
	crc := testsupport.CRC32MPEG(section[:len(section)-4])
	section[len(section)-4] = byte(crc >> 24)
	section[len(section)-3] = byte(crc >> 16)
	section[len(section)-2] = byte(crc >> 8)
	section[len(section)-1] = byte(crc)

	info, err := parsePMT(section)
	if err != nil {
		t.Fatalf("parsePMT: %v", err)
	}
	want := []pmtStream{
		{PID: 0x1011, Type: bdrom.StreamTypeAVCVideo},
		{PID: 0x1100, Type: bdrom.StreamTypeAC3Audio, Descriptors: []bdrom.Descriptor{{Tag: descriptorISO639, Value: []byte{'f', 'r', 'a', 0x00}}}},
	}
	if diff := cmp.Diff(want, info.Streams); diff != "" {
		t.Fatalf("streams mismatch (-want +got):\n%s", diff)
	}
	if got := descriptorLanguage(info.Streams[1].Descriptors); got != "fra" {
		t.Fatalf("language = %q, want fra", got)
	}
}
