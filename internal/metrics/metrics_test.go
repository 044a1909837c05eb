package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bdscan/internal/metrics"
	"bdscan/internal/report"
)

func sampleReport() *report.Report {
	return &report.Report{
		SizeBytes: 25_000_000_000,
		Playlists: []report.Playlist{{
			Name:          "00800.MPLS",
			LengthSeconds: 7200,
			BitRate:       32_000_000,
			Streams: []report.Stream{
				{PID: 0x1011, CodecShort: "AVC", BitRate: 28_000_000},
				{PID: 0x1100, CodecShort: "TrueHD", BitRate: 4_000_000},
			},
		}},
		Scan: &report.Outcome{
			FinishedBytes:  20_000_000_000,
			TotalBytes:     24_000_000_000,
			ElapsedSeconds: 600,
			FileErrors:     map[string]string{"00002.M2TS": "corrupt"},
		},
	}
}

func TestObserveSetsGauges(t *testing.T) {
	c := metrics.NewCollectors()
	c.Observe(sampleReport())

	if got := testutil.ToFloat64(c.DiscSize); got != 25e9 {
		t.Fatalf("disc size = %v", got)
	}
	if got := testutil.ToFloat64(c.ScanBytes.WithLabelValues("finished")); got != 20e9 {
		t.Fatalf("finished bytes = %v", got)
	}
	if got := testutil.ToFloat64(c.FileErrors); got != 1 {
		t.Fatalf("file errors = %v", got)
	}
	if got := testutil.ToFloat64(c.StreamRate.WithLabelValues("00800.MPLS", "0x1011", "AVC")); got != 28e6 {
		t.Fatalf("video rate = %v", got)
	}
	if got := testutil.CollectAndCount(c.StreamRate); got != 2 {
		t.Fatalf("stream series = %d", got)
	}
}

func TestObserveWithoutScan(t *testing.T) {
	r := sampleReport()
	r.Scan = nil
	c := metrics.NewCollectors()
	c.Observe(r)
	if got := testutil.CollectAndCount(c.ScanBytes); got != 0 {
		t.Fatalf("scan series = %d", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "bdscan.prom")
	if err := metrics.WriteTextfile(path, sampleReport()); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{
		"bdscan_disc_size_bytes 2.5e+10",
		`bdscan_playlist_length_seconds{playlist="00800.MPLS"} 7200`,
		`bdscan_scan_bytes{kind="total"} 2.4e+10`,
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("textfile missing %q:\n%s", want, data)
		}
	}
}
