package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bdscan/internal/bdrom"
	"bdscan/internal/config"
	"bdscan/internal/discfs"
	"bdscan/internal/fingerprint"
	"bdscan/internal/history"
	"bdscan/internal/logging"
	"bdscan/internal/metrics"
	"bdscan/internal/report"
	"bdscan/internal/scan"
)

type analyzeOptions struct {
	path        string
	bitrates    bool
	playlists   []string
	ssif        bool
	onError     string
	noHistory   bool
	metricsFile string
}

// analysis is everything a finished run produced. err is the scan outcome;
// history and metrics failures are only logged.
type analysis struct {
	disc    *bdrom.Disc
	result  *scan.Result
	report  *report.Report
	started time.Time
	ended   time.Time
	err     error
}

// analyze runs the structure phase, then the bitrate phase when requested,
// and records the outcome. A structure failure is returned directly; a
// bitrate outcome is carried in analysis.err.
func analyze(ctx context.Context, base *config.Config, logger *slog.Logger, ui *terminalUI, opts analyzeOptions) (*analysis, error) {
	cfg := *base
	if opts.ssif {
		cfg.Scan.EnableSSIF = true
	}
	if opts.onError != "" {
		cfg.Scan.OnError = opts.onError
	}

	scanOpts := scan.OptionsFromConfig(&cfg, logger)
	if cfg.Scan.OnError == config.OnErrorPrompt {
		if ui.interactive {
			scanOpts = append(scanOpts, scan.WithPolicy(ui.policy()))
		} else {
			scanOpts = append(scanOpts, scan.WithPolicy(bdrom.ContinueAll()))
		}
	}
	scanner := scan.New(opts.path, scanOpts...)

	a := &analysis{started: time.Now()}
	disc, err := scanner.ScanStructure(ctx)
	if err != nil {
		return nil, err
	}
	a.disc = disc

	files, err := streamFilesFor(disc, opts.playlists)
	if err != nil {
		return nil, err
	}

	fp := discFingerprint(ctx, opts.path, disc, logger)

	if opts.bitrates {
		a.result = scanner.ScanBitrates(ctx, files, ui.onProgress)
		ui.finish()
		a.err = a.result.Err()
	}
	a.ended = time.Now()

	a.report = report.Build(disc, a.result, report.Options{
		Source:      opts.path,
		Fingerprint: fp,
		Playlists:   opts.playlists,
	})

	if cfg.History.Enabled && !opts.noHistory {
		recordHistory(&cfg, a, logger)
	}
	metricsFile := opts.metricsFile
	if metricsFile == "" {
		metricsFile = cfg.Metrics.TextfilePath
	}
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, a.report); err != nil {
			logging.WarnWithContext(logger, "metrics export failed", "metrics_write_failed",
				logging.String("path", metricsFile),
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics textfile not updated"),
			)
		}
	}
	return a, nil
}

// streamFilesFor lists the stream files the named playlists reference. No
// names means every stream file.
func streamFilesFor(disc *bdrom.Disc, playlists []string) ([]string, error) {
	var files []string
	for _, raw := range playlists {
		name := bdrom.RegistryName(raw, ".MPLS")
		pl, ok := disc.Playlists[name]
		if !ok {
			return nil, fmt.Errorf("playlist %s not found on disc", name)
		}
		files = append(files, pl.ClipNames()...)
	}
	return files, nil
}

func discFingerprint(ctx context.Context, path string, disc *bdrom.Disc, logger *slog.Logger) string {
	fsys, err := discfs.Open(path)
	if err == nil {
		defer fsys.Close()
		var fp string
		fp, err = fingerprint.ComputeTimeout(ctx, fsys, disc.BDMVDir, 0)
		if err == nil {
			return fp
		}
	}
	if ctx.Err() == nil {
		logging.WarnWithContext(logger, "disc fingerprint unavailable", "fingerprint_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history entry has no fingerprint"),
		)
	}
	return ""
}

func recordHistory(cfg *config.Config, a *analysis, logger *slog.Logger) {
	store, err := history.Open(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "scan not recorded"),
		)
		return
	}
	defer store.Close()

	// The scan itself may have been interrupted; recording must still finish.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry, err := historyEntry(a)
	if err == nil {
		err = store.Record(ctx, entry)
	}
	if err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "scan not recorded"),
		)
		return
	}
	if keep := cfg.History.KeepScans; keep > 0 {
		if removed, err := store.Prune(ctx, keep); err != nil {
			logger.Warn("history prune failed", logging.Error(err))
		} else if removed > 0 {
			logger.Debug("history pruned", logging.Int64("removed", removed))
		}
	}
}

func historyEntry(a *analysis) (history.Entry, error) {
	summary, err := a.report.JSON()
	if err != nil {
		return history.Entry{}, fmt.Errorf("encode report: %w", err)
	}
	entry := history.Entry{
		ID:          uuid.NewString(),
		Fingerprint: a.report.Fingerprint,
		SourcePath:  a.report.Source,
		VolumeLabel: a.report.VolumeLabel,
		Title:       a.report.Title,
		StartedAt:   a.started,
		FinishedAt:  a.ended,
		Phase:       scan.PhaseDone.String(),
		DiscSize:    a.disc.Size,
		Playlists:   len(a.disc.Playlists),
		StreamFiles: len(a.disc.StreamFiles),
		SummaryJSON: summary,
	}
	if res := a.result; res != nil {
		entry.ID = res.ID
		entry.Phase = res.Phase.String()
		entry.Cancelled = res.Cancelled
		entry.TotalBytes = res.TotalBytes
		entry.FinishedBytes = res.FinishedBytes
		if len(res.FileErrors) > 0 {
			entry.FileErrors = make(map[string]string, len(res.FileErrors))
			for name, err := range res.FileErrors {
				entry.FileErrors[name] = err.Error()
			}
		}
	}
	if a.err != nil {
		var agg *scan.AggregateFileError
		if !errors.As(a.err, &agg) {
			entry.ErrorMessage = a.err.Error()
		}
	}
	return entry, nil
}
