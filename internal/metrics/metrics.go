package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bdscan/internal/report"
)

const namespace = "bdscan"

// Collectors holds the gauges for one report on a private registry.
type Collectors struct {
	Registry *prometheus.Registry

	DiscSize       prometheus.Gauge
	ScanBytes      *prometheus.GaugeVec
	ScanDuration   prometheus.Gauge
	FileErrors     prometheus.Gauge
	PlaylistLength *prometheus.GaugeVec
	PlaylistRate   *prometheus.GaugeVec
	StreamRate     *prometheus.GaugeVec
}

// NewCollectors registers the bdscan gauges on a fresh registry.
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collectors{
		Registry: reg,
		DiscSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disc_size_bytes",
			Help:      "Total size of the disc content in bytes",
		}),
		ScanBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_bytes",
			Help:      "Bytes read by the bitrate scan",
		}, []string{"kind"}), // finished | total
		ScanDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of the bitrate scan",
		}),
		FileErrors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_file_errors",
			Help:      "Stream files that failed to scan",
		}),
		PlaylistLength: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playlist_length_seconds",
			Help:      "Playlist duration",
		}, []string{"playlist"}),
		PlaylistRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playlist_bitrate_bps",
			Help:      "Measured playlist bitrate over known streams",
		}, []string{"playlist"}),
		StreamRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_bitrate_bps",
			Help:      "Measured average bitrate of one playlist stream",
		}, []string{"playlist", "pid", "codec"}),
	}
}

// Observe sets every gauge from r.
func (c *Collectors) Observe(r *report.Report) {
	c.DiscSize.Set(float64(r.SizeBytes))
	if r.Scan != nil {
		c.ScanBytes.WithLabelValues("finished").Set(float64(r.Scan.FinishedBytes))
		c.ScanBytes.WithLabelValues("total").Set(float64(r.Scan.TotalBytes))
		c.ScanDuration.Set(r.Scan.ElapsedSeconds)
		c.FileErrors.Set(float64(len(r.Scan.FileErrors)))
	}
	for _, pl := range r.Playlists {
		c.PlaylistLength.WithLabelValues(pl.Name).Set(pl.LengthSeconds)
		c.PlaylistRate.WithLabelValues(pl.Name).Set(float64(pl.BitRate))
		for _, s := range pl.Streams {
			pid := "0x" + strconv.FormatUint(uint64(s.PID), 16)
			c.StreamRate.WithLabelValues(pl.Name, pid, s.CodecShort).Set(float64(s.BitRate))
		}
	}
}

// WriteTextfile writes the metrics for r to path atomically.
func WriteTextfile(path string, r *report.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	c := NewCollectors()
	c.Observe(r)
	if err := prometheus.WriteToTextfile(path, c.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
