package tsscan_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"testing/iotest"

	"bdscan/internal/bdrom"
	"bdscan/internal/testsupport"
	"bdscan/internal/tsscan"
)

const (
	minute   = 45_000 * 60
	fileSize = 1_000_000
	bitRate  = 20_000_000
	// transportShare is the part of each source packet the stream counters see.
	transportShare = 188.0 / 192.0
)

type fixture struct {
	disc *bdrom.Disc
	data []byte
}

func newFixture(t *testing.T, opts testsupport.TSOptions, items ...[]testsupport.PlayItem) fixture {
	t.Helper()
	if opts.Streams == nil {
		opts.Streams = testsupport.StandardTS
	}
	if opts.Size == 0 {
		opts.Size = fileSize
	}
	data := testsupport.BuildM2TS(opts)
	d := testsupport.NewDisc("SCAN_TEST")
	d.AddClip("00001", testsupport.BuildCLPI(testsupport.StandardClip, nil, 0), data)
	if len(items) == 0 {
		items = [][]testsupport.PlayItem{{{Clip: "00001", In: 0, Out: 30 * minute}}}
	}
	for i, pl := range items {
		d.AddPlaylist(fmt.Sprintf("%05d", i), testsupport.BuildMPLS(pl, nil))
	}
	disc, err := bdrom.Open(context.Background(), d.FS(), bdrom.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return fixture{disc: disc, data: data}
}

func (f fixture) scan(t *testing.T, opts tsscan.Options) (*tsscan.Result, *bdrom.StreamFile) {
	t.Helper()
	file := f.disc.StreamFiles["00001.M2TS"]
	job := tsscan.Job{File: file, Targets: tsscan.TargetsFor(file, f.disc.SortedPlaylists())}
	res, err := tsscan.Scan(context.Background(), bytes.NewReader(f.data), job, opts)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return res, file
}

func within(got, want, tolerance float64) bool {
	return math.Abs(got-want) <= want*tolerance
}

func TestScanMeasuresConstantRateStream(t *testing.T) {
	f := newFixture(t, testsupport.TSOptions{})
	var progress atomic.Int64
	res, file := f.scan(t, tsscan.Options{Progress: &progress})

	m := res.Measurements
	if m.Packets != fileSize/192 || m.TruncatedBytes != fileSize%192 || m.CorruptPackets != 0 {
		t.Fatalf("measurements = %+v", m)
	}
	if got := progress.Load(); got != fileSize {
		t.Fatalf("progress = %d, want %d", got, fileSize)
	}
	if !within(m.AverageRate, bitRate, 0.01) || m.MinRate <= 0 || m.MaxRate < m.MinRate {
		t.Fatalf("transport rate avg=%.0f min=%.0f max=%.0f", m.AverageRate, m.MinRate, m.MaxRate)
	}
	if res.PMTPID != 0x0100 || res.PCRPID != 0x1011 {
		t.Fatalf("pmt=0x%04x pcr=0x%04x", res.PMTPID, res.PCRPID)
	}
	if file.Measurements.Scanned {
		t.Fatal("stream file changed before Commit")
	}

	res.Commit()
	pl := f.disc.Playlists["00000.MPLS"]
	pl.UpdateBitrates()

	if !file.Measurements.Scanned || len(file.Streams) != 2 {
		t.Fatalf("file after commit: scanned=%v streams=%d", file.Measurements.Scanned, len(file.Streams))
	}
	if got := file.Streams[0x1011].Type; got != bdrom.StreamTypeAVCVideo {
		t.Fatalf("video type = %v", got)
	}

	clip := pl.StreamClips[0]
	if clip.PacketCount != fileSize/192 {
		t.Fatalf("clip packets = %d, want %d", clip.PacketCount, fileSize/192)
	}
	if !within(float64(clip.PacketBitRate()), bitRate, 0.01) {
		t.Fatalf("clip packet rate = %d", clip.PacketBitRate())
	}
	if got := float64(pl.BitRate()); !within(got, bitRate, 0.01) {
		t.Fatalf("playlist bitrate = %.0f, want about %d", got, bitRate)
	}
	if got := float64(pl.StreamBitRate()); !within(got, bitRate*transportShare, 0.01) {
		t.Fatalf("stream bitrate = %.0f, want about %.0f", got, bitRate*transportShare)
	}
	video := pl.Streams[0x1011]
	audio := pl.Streams[0x1100]
	if !within(float64(video.BitRate), bitRate*transportShare/2, 0.01) {
		t.Fatalf("video bitrate = %d", video.BitRate)
	}
	if !within(float64(audio.ActiveBitRate), float64(audio.BitRate), 0.02) {
		t.Fatalf("audio active %d vs average %d", audio.ActiveBitRate, audio.BitRate)
	}
	if !within(float64(video.PeakBitRate), float64(video.BitRate), 0.02) {
		t.Fatalf("video peak %d vs average %d", video.PeakBitRate, video.BitRate)
	}
}

func TestScanAttributesByPlaylistRange(t *testing.T) {
	half := uint32(testsupport.PacketSeconds(bitRate) * float64(fileSize/192) / 2 * 45_000)
	f := newFixture(t, testsupport.TSOptions{},
		[]testsupport.PlayItem{{Clip: "00001", In: 0, Out: 30 * minute}},
		[]testsupport.PlayItem{{Clip: "00001", In: half, Out: 30 * minute}},
	)
	res, _ := f.scan(t, tsscan.Options{})
	res.Commit()

	playlists := f.disc.SortedPlaylists()
	if len(playlists) != 2 {
		t.Fatalf("playlists = %d", len(playlists))
	}
	full := playlists[0].StreamClips[0]
	tail := playlists[1].StreamClips[0]
	if full.PacketCount != fileSize/192 {
		t.Fatalf("full clip packets = %d", full.PacketCount)
	}
	ratio := float64(tail.PacketCount) / float64(full.PacketCount)
	if ratio < 0.45 || ratio > 0.55 {
		t.Fatalf("tail clip got %.2f of the packets, want about half", ratio)
	}
	if !within(tail.PacketSeconds*2, full.PacketSeconds, 0.05) {
		t.Fatalf("tail seconds %.3f vs full %.3f", tail.PacketSeconds, full.PacketSeconds)
	}
}

func TestScanHandlesClockRollover(t *testing.T) {
	f := newFixture(t, testsupport.TSOptions{
		StartPTS: bdrom.PTSWrap - 9_000,
		StartPCR: bdrom.PTSWrap*300 - 2_700_000,
	})
	res, _ := f.scan(t, tsscan.Options{})
	m := res.Measurements

	want := testsupport.PacketSeconds(bitRate) * float64(fileSize/192)
	if !within(m.Length(), want, 0.02) {
		t.Fatalf("length across wrap = %.4f, want about %.4f", m.Length(), want)
	}
	if !within(m.AverageRate, bitRate, 0.01) || !within(m.MaxRate, bitRate, 0.05) {
		t.Fatalf("rates across wrap avg=%.0f max=%.0f", m.AverageRate, m.MaxRate)
	}
	if m.FirstPTS < m.LastPTS {
		t.Fatalf("expected wrapped timestamps, first=%d last=%d", m.FirstPTS, m.LastPTS)
	}
	video := res.Streams[0x1011]
	if !within(video.Seconds, want, 0.02) {
		t.Fatalf("video seconds = %.4f", video.Seconds)
	}
}

func TestScanRecoversFromCorruptPackets(t *testing.T) {
	f := newFixture(t, testsupport.TSOptions{CorruptPackets: []int{100, 101, 2500}})
	res, _ := f.scan(t, tsscan.Options{})
	m := res.Measurements
	if m.CorruptPackets != 3 || m.Resyncs != 2 {
		t.Fatalf("corrupt=%d resyncs=%d", m.CorruptPackets, m.Resyncs)
	}
	if m.Packets != fileSize/192-3 {
		t.Fatalf("packets = %d", m.Packets)
	}
}

func TestScanRecoversFromMisalignedData(t *testing.T) {
	data := testsupport.BuildM2TS(testsupport.TSOptions{Streams: testsupport.StandardTS, Size: 192 * 100})
	// Drop 50 bytes out of packet 10 so every later packet is shifted.
	shifted := append(append([]byte(nil), data[:192*10+20]...), data[192*10+70:]...)

	res, err := tsscan.Scan(context.Background(), bytes.NewReader(shifted), tsscan.Job{Name: "SHIFT.M2TS"}, tsscan.Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Measurements.Resyncs != 1 || res.Measurements.Packets != 99 {
		t.Fatalf("measurements = %+v", res.Measurements)
	}
}

func TestScanGivesUpOnGarbage(t *testing.T) {
	data := make([]byte, 192*40)
	_, err := tsscan.Scan(context.Background(), bytes.NewReader(data), tsscan.Job{Name: "BAD.M2TS"}, tsscan.Options{MaxResyncFailures: 4})
	if !errors.Is(err, tsscan.ErrStreamCorrupted) || !errors.Is(err, bdrom.ErrParse) {
		t.Fatalf("err = %v", err)
	}
	var perr *bdrom.ParseError
	if !errors.As(err, &perr) || perr.File != "BAD.M2TS" {
		t.Fatalf("expected ParseError for BAD.M2TS, got %#v", err)
	}
}

func TestScanToleratesTruncatedFile(t *testing.T) {
	data := testsupport.BuildM2TS(testsupport.TSOptions{Streams: testsupport.StandardTS, Size: 192*20 + 100})
	res, err := tsscan.Scan(context.Background(), bytes.NewReader(data), tsscan.Job{Name: "CUT.M2TS"}, tsscan.Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Measurements.TruncatedBytes != 100 || res.Measurements.Packets != 20 {
		t.Fatalf("measurements = %+v", res.Measurements)
	}
}

func TestScanReportsReadErrors(t *testing.T) {
	_, err := tsscan.Scan(context.Background(), iotest.ErrReader(errors.New("medium error")), tsscan.Job{Name: "IO.M2TS"}, tsscan.Options{})
	if !errors.Is(err, bdrom.ErrIO) {
		t.Fatalf("err = %v, want an I/O error", err)
	}
}

func TestScanStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := testsupport.BuildM2TS(testsupport.TSOptions{Streams: testsupport.StandardTS, Size: 192 * 10})
	_, err := tsscan.Scan(ctx, bytes.NewReader(data), tsscan.Job{Name: "X.M2TS"}, tsscan.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestScanKeepsUnknownPIDsOutOfTotals(t *testing.T) {
	streams := append(append([]testsupport.TSStream(nil), testsupport.StandardTS...), testsupport.TSStream{PID: 0x1800, Type: 0x06})
	f := newFixture(t, testsupport.TSOptions{Streams: streams})
	res, file := f.scan(t, tsscan.Options{})
	res.Commit()
	pl := f.disc.Playlists["00000.MPLS"]
	pl.UpdateBitrates()

	unknown, ok := file.Streams[0x1800]
	if !ok || unknown.Kind() != bdrom.KindUnknown || unknown.PacketCount == 0 {
		t.Fatalf("unknown stream = %+v", unknown)
	}
	if _, ok := pl.Streams[0x1800]; ok {
		t.Fatal("unknown PID leaked into playlist streams")
	}
	if pl.StreamClips[0].PacketCount != fileSize/192 {
		t.Fatalf("clip packets = %d", pl.StreamClips[0].PacketCount)
	}
	if got := float64(pl.StreamBitRate()); !within(got, bitRate*transportShare*2/3, 0.02) {
		t.Fatalf("stream bitrate = %.0f", got)
	}
}
