package bdrom

import (
	"errors"
	"testing"

	"bdscan/internal/testsupport"
)

func TestParseClipInfoStreams(t *testing.T) {
	data := testsupport.BuildCLPI([]testsupport.ClipStream{
		{PID: 0x1011, Type: 0x1b, Format: 6, Rate: 1, Aspect: 3},
		{PID: 0x1100, Type: 0x83, Layout: 6, Sample: 1, Lang: "eng"},
		{PID: 0x1101, Type: 0x81, Layout: 3, Sample: 1, Lang: "fra"},
		{PID: 0x1200, Type: 0x90, Lang: "spa"},
		{PID: 0x1800, Type: 0x92, Lang: "deu"},
	}, nil, 0)

	clip, err := ParseClipInfo("00001.CLPI", data)
	if err != nil {
		t.Fatalf("ParseClipInfo: %v", err)
	}
	if clip.Version != "0200" {
		t.Fatalf("version = %q", clip.Version)
	}
	if clip.PMTPID != 0x0100 {
		t.Fatalf("PMT PID = 0x%04x", clip.PMTPID)
	}
	want := []uint16{0x1011, 0x1100, 0x1101, 0x1200, 0x1800}
	if len(clip.StreamOrder) != len(want) {
		t.Fatalf("stream order = %v", clip.StreamOrder)
	}
	for i, pid := range want {
		if clip.StreamOrder[i] != pid {
			t.Fatalf("stream %d = 0x%04x, want 0x%04x", i, clip.StreamOrder[i], pid)
		}
	}

	video := clip.Streams[0x1011]
	if video.VideoFormat != VideoFormat1080p || video.FrameRate != FrameRate23976 || video.Height() != 1080 {
		t.Fatalf("video = %+v", video)
	}
	truehd := clip.Streams[0x1100]
	if truehd.Language != "eng" || truehd.ChannelLayout != ChannelLayoutMulti || truehd.CodecShortName() != "TrueHD" {
		t.Fatalf("truehd = %+v (%s)", truehd, truehd.CodecShortName())
	}
	if clip.Streams[0x1101].ChannelCount() != 2 {
		t.Fatalf("ac3 channels = %d", clip.Streams[0x1101].ChannelCount())
	}
	if got := clip.Streams[0x1200].Language; got != "spa" {
		t.Fatalf("graphics language = %q", got)
	}
	if got := clip.Streams[0x1800].Language; got != "deu" {
		t.Fatalf("text language = %q", got)
	}
	if len(clip.EntryPoints) != 0 {
		t.Fatalf("expected no entry points, got %d", len(clip.EntryPoints))
	}
}

func TestParseClipInfoEntryPoints(t *testing.T) {
	eps := []testsupport.EntryPoint{
		{PTS: 900 * 512, SPN: 0},
		{PTS: 1_000_000 * 512, SPN: 0x20010},
		{PTS: 2_000_000 * 512, SPN: 0x51234},
	}
	data := testsupport.BuildCLPI(testsupport.StandardClip, eps, 0x1011)

	clip, err := ParseClipInfo("00002.CLPI", data)
	if err != nil {
		t.Fatalf("ParseClipInfo: %v", err)
	}
	if clip.EPMapPID != 0x1011 {
		t.Fatalf("EP map PID = 0x%04x", clip.EPMapPID)
	}
	if len(clip.EntryPoints) != len(eps) {
		t.Fatalf("entry points = %d, want %d", len(clip.EntryPoints), len(eps))
	}
	for i, ep := range eps {
		got := clip.EntryPoints[i]
		if got.PTS != ep.PTS || got.SPN != ep.SPN {
			t.Fatalf("entry %d = %+v, want %+v", i, got, ep)
		}
	}

	pts, ok := clip.PTSAtOffset(int64(0x20011) * PacketSize)
	if !ok || pts != eps[1].PTS {
		t.Fatalf("PTSAtOffset = %d,%v", pts, ok)
	}
	offset, ok := clip.OffsetAtPTS(eps[2].PTS + 1)
	if !ok || offset != int64(eps[2].SPN)*PacketSize {
		t.Fatalf("OffsetAtPTS = %d,%v", offset, ok)
	}
}

func TestParseClipInfoRejectsBadInput(t *testing.T) {
	dup := testsupport.BuildCLPI([]testsupport.ClipStream{
		{PID: 0x1011, Type: 0x1b},
		{PID: 0x1011, Type: 0x1b},
	}, nil, 0)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "wrong magic", data: []byte("MPLS0200\x00\x00\x00\x00")},
		{name: "unknown version", data: []byte("HDMV0900\x00\x00\x00\x00")},
		{name: "duplicate pid", data: dup},
		{name: "truncated", data: testsupport.BuildCLPI(testsupport.StandardClip, nil, 0)[:50]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClipInfo("BAD.CLPI", tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			var perr *ParseError
			if !errors.As(err, &perr) || perr.File != "BAD.CLPI" {
				t.Fatalf("expected ParseError for BAD.CLPI, got %#v", err)
			}
		})
	}
}
