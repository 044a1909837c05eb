package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"

	"bdscan/internal/bdrom"
	"bdscan/internal/discfs"
	"bdscan/internal/report"
	"bdscan/internal/scan"
	"bdscan/internal/testsupport"
)

const minute = 45_000 * 60

func scannedDisc(t *testing.T) (*bdrom.Disc, *scan.Result) {
	t.Helper()
	d := testsupport.NewDisc("MOVIE_DISC")
	data := testsupport.BuildM2TS(testsupport.TSOptions{Streams: testsupport.StandardTS, Size: 192 * 500})
	d.AddClip("00001", testsupport.BuildCLPI(testsupport.StandardClip, nil, 0), data)
	d.AddClip("00002", testsupport.BuildCLPI(testsupport.StandardClip, nil, 0), data)
	d.AddPlaylist("00800", testsupport.BuildMPLS([]testsupport.PlayItem{
		{Clip: "00001", In: 0, Out: 20 * minute},
		{Clip: "00002", In: 0, Out: 10 * minute},
	}, []testsupport.Mark{{Item: 0, Time: 0}, {Item: 0, Time: 5 * minute}}))
	d.AddPlaylist("00801", testsupport.BuildMPLS([]testsupport.PlayItem{{Clip: "00002", In: 0, Out: 10 * minute}}, nil))

	fsys := d.FS()
	s := scan.New("/discs/movie", scan.WithFileSystemOpener(func(string) (discfs.FileSystem, error) { return fsys, nil }))
	disc, err := s.ScanStructure(context.Background())
	if err != nil {
		t.Fatalf("ScanStructure: %v", err)
	}
	res := s.ScanBitrates(context.Background(), nil, nil)
	if err := res.Err(); err != nil {
		t.Fatalf("ScanBitrates: %v", err)
	}
	return disc, res
}

func TestBuildSummarizesDisc(t *testing.T) {
	disc, res := scannedDisc(t)
	r := report.Build(disc, res, report.Options{Source: "/discs/movie", Fingerprint: "abc"})

	if r.Version != report.SchemaVersion || r.VolumeLabel != "MOVIE_DISC" || r.Fingerprint != "abc" {
		t.Fatalf("header = %+v", r)
	}
	var names []string
	for _, pl := range r.Playlists {
		names = append(names, pl.Name)
	}
	if diff := cmp.Diff([]string{"00800.MPLS", "00801.MPLS"}, names); diff != "" {
		t.Fatalf("playlists, longest first (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"00800.MPLS", "00801.MPLS"}}, r.Groups); diff != "" {
		t.Fatalf("groups (-want +got):\n%s", diff)
	}

	main := r.Playlists[0]
	if main.Length != "0:30:00.000" || len(main.Clips) != 2 || len(main.Streams) != 2 {
		t.Fatalf("main playlist = %+v", main)
	}
	if main.BitRate <= 0 || main.Streams[0].BitRate <= 0 || main.Streams[0].Kind != "video" {
		t.Fatalf("main playlist rates = %+v", main.Streams)
	}
	if main.StreamBitRate <= 0 || main.StreamBitRate >= main.BitRate {
		t.Fatalf("playlist bitrate %d should include packet overhead over streams %d", main.BitRate, main.StreamBitRate)
	}
	if main.Streams[1].Language != "eng" || main.Streams[1].LanguageName != "English" {
		t.Fatalf("audio stream = %+v", main.Streams[1])
	}
	if len(r.StreamFiles) != 2 || r.StreamFiles[0].Packets != 500 {
		t.Fatalf("stream files = %+v", r.StreamFiles)
	}
	if r.Scan == nil || r.Scan.Phase != "done" || r.Scan.TotalBytes != 2*192*500 {
		t.Fatalf("scan outcome = %+v", r.Scan)
	}
}

func TestBuildWithoutBitrates(t *testing.T) {
	disc, _ := scannedDisc(t)
	r := report.Build(disc, nil, report.Options{Playlists: []string{"00801"}})
	if r.Scan != nil || len(r.Playlists) != 1 || r.Playlists[0].Name != "00801.MPLS" {
		t.Fatalf("report = %+v", r)
	}
	if r.Groups != nil {
		t.Fatalf("single playlist formed groups: %v", r.Groups)
	}
}

func TestWriteRoundTripsThroughBothFormats(t *testing.T) {
	disc, res := scannedDisc(t)
	r := report.Build(disc, res, report.Options{Source: "/discs/movie"})

	var js bytes.Buffer
	if err := r.Write(&js, report.FormatJSON); err != nil {
		t.Fatalf("Write json: %v", err)
	}
	var fromJSON map[string]any
	if err := json.Unmarshal(js.Bytes(), &fromJSON); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if fromJSON["volume_label"] != "MOVIE_DISC" {
		t.Fatalf("json volume_label = %v", fromJSON["volume_label"])
	}

	var ym bytes.Buffer
	if err := r.Write(&ym, report.FormatYAML); err != nil {
		t.Fatalf("Write yaml: %v", err)
	}
	var fromYAML map[string]any
	if err := yaml.Unmarshal(ym.Bytes(), &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if fromYAML["title"] != r.Title || !strings.Contains(ym.String(), "playlists:") {
		t.Fatalf("yaml output:\n%s", ym.String())
	}
}

func TestDecodeReadsStoredReport(t *testing.T) {
	disc, res := scannedDisc(t)
	r := report.Build(disc, res, report.Options{Source: "/discs/movie", Fingerprint: "abc123"})
	stored, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	got, err := report.Decode(strings.NewReader(stored))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(r, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("decoded report mismatch (-want +got):\n%s", diff)
	}

	if _, err := report.Decode(strings.NewReader(`{"version": 99}`)); err == nil {
		t.Fatal("expected newer schema to be rejected")
	}
	if _, err := report.Decode(strings.NewReader(`{`)); err == nil {
		t.Fatal("expected truncated json to fail")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    report.Format
		wantErr bool
	}{
		{"json", report.FormatJSON, false},
		{" YAML ", report.FormatYAML, false},
		{"yml", report.FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := report.ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFlagNames(t *testing.T) {
	f := report.Flags{BDJava: true, ThreeD: true, Is50Hz: true}
	if diff := cmp.Diff([]string{"BD-Java", "3D", "50Hz"}, f.Names()); diff != "" {
		t.Fatalf("flags (-want +got):\n%s", diff)
	}
}
