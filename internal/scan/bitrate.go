package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bdscan/internal/bdrom"
	"bdscan/internal/discfs"
	"bdscan/internal/logging"
	"bdscan/internal/tsscan"
)

// Result is the outcome of a bitrate phase.
type Result struct {
	ID        string
	Phase     Phase
	Cancelled bool
	// FileErrors maps stream file names to the error that stopped their scan.
	FileErrors map[string]error

	FinishedBytes int64
	TotalBytes    int64
	Started       time.Time
	Elapsed       time.Duration

	Disc *bdrom.Disc
	// Files lists the stream files scanned successfully, in scan order.
	Files []string
	// Fatal is set when the phase could not run or an error policy aborted it.
	Fatal error

	cancelledFile string
}

// Err summarizes the result: cancellation first, then a fatal error, then
// the per-file failures.
func (r *Result) Err() error {
	switch {
	case r.Cancelled:
		return &CancellationError{Phase: PhaseBitrate, File: r.cancelledFile}
	case r.Fatal != nil:
		return r.Fatal
	case len(r.FileErrors) > 0:
		return &AggregateFileError{Files: r.FileErrors}
	}
	return nil
}

// bitrateState is shared between the worker and the progress ticker.
type bitrateState struct {
	mu        sync.Mutex
	current   string
	finished  int64
	filesDone int

	currentBytes atomic.Int64
}

func (b *bitrateState) start(name string) {
	b.mu.Lock()
	b.current = name
	b.mu.Unlock()
	b.currentBytes.Store(0)
}

func (b *bitrateState) complete(size int64) {
	b.mu.Lock()
	b.finished += size
	b.filesDone++
	b.current = ""
	b.mu.Unlock()
	b.currentBytes.Store(0)
}

func (b *bitrateState) snapshot(base Snapshot, started time.Time) Snapshot {
	b.mu.Lock()
	base.CurrentFile = b.current
	base.FinishedBytes = b.finished
	base.FilesDone = b.filesDone
	b.mu.Unlock()
	if base.CurrentFile != "" {
		base.CurrentFileBytes = b.currentBytes.Load()
	}
	base.Elapsed = time.Since(started)
	return base
}

type fileOutcome struct {
	res *tsscan.Result
	err error
}

// ScanBitrates scans the named stream files, or every stream file when files
// is empty, and finalizes playlist bitrates. onProgress, when set, receives
// snapshots at the progress interval and once at the end. The structure
// phase must have completed first.
func (s *Scanner) ScanBitrates(ctx context.Context, files []string, onProgress func(Snapshot)) *Result {
	res := &Result{
		ID:         uuid.NewString(),
		Phase:      PhaseDone,
		FileErrors: make(map[string]error),
		Started:    time.Now(),
	}
	disc := s.Disc()
	if disc == nil {
		res.Fatal = ErrNoStructure
		return res
	}
	res.Disc = disc

	ctx, end, err := s.begin(ctx)
	if err != nil {
		res.Fatal = err
		return res
	}
	defer end()

	ctx = logging.WithPhase(logging.WithScanID(ctx, res.ID), PhaseBitrate.String())
	logger := logging.WithContext(ctx, s.logger)
	ssif := disc.Options().EnableSSIF

	selected := selectFiles(disc, files, res.FileErrors)
	for _, f := range selected {
		res.TotalBytes += f.ScanSize(ssif)
	}
	playlists := disc.SortedPlaylists()
	for _, pl := range playlists {
		pl.ClearBitrates()
	}

	base := Snapshot{ScanID: res.ID, Phase: PhaseBitrate, TotalBytes: res.TotalBytes, FilesTotal: len(selected)}
	state := &bitrateState{}
	sampler := logging.NewProgressSampler(5)
	emit := func(snap Snapshot) {
		s.publish(snap)
		if onProgress != nil {
			onProgress(snap)
		}
		percent := snap.Progress() * 100
		if sampler.ShouldLog(percent, snap.Phase.String()) {
			logger.Info("bitrate scan progress",
				logging.Float64(logging.FieldProgressPercent, percent),
				logging.Duration(logging.FieldProgressETA, snap.Remaining()),
				logging.Int64(logging.FieldBytesFinished, snap.FinishedBytes+snap.CurrentFileBytes),
				logging.Int64(logging.FieldBytesTotal, snap.TotalBytes),
				logging.File(snap.CurrentFile),
			)
		}
	}
	emit(state.snapshot(base, res.Started))

	fsys, err := s.open(s.path)
	if err != nil {
		res.Fatal = fmt.Errorf("open disc %s: %w", s.path, err)
		res.Elapsed = time.Since(res.Started)
		emit(Snapshot{ScanID: res.ID, Phase: PhaseDone, TotalBytes: res.TotalBytes, Elapsed: res.Elapsed})
		return res
	}
	var readers sync.WaitGroup
	defer s.closeWhenIdle(fsys, &readers, logger)

	logger.Info("bitrate scan started",
		logging.Int("stream_files", len(selected)),
		logging.Int64(logging.FieldBytesTotal, res.TotalBytes),
	)

	workerDone := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(workerDone)
		for _, file := range selected {
			name := file.ScanName(ssif)
			if ctx.Err() != nil {
				res.Cancelled = true
				return nil
			}
			state.start(name)
			targets := tsscan.TargetsFor(file, playlists)

			var out fileOutcome
			select {
			case out = <-s.scanFile(ctx, fsys, &readers, file, ssif, targets, &state.currentBytes, logger):
			case <-ctx.Done():
				res.Cancelled, res.cancelledFile = true, name
				return nil
			}
			if out.err != nil && ctx.Err() != nil {
				res.Cancelled, res.cancelledFile = true, name
				return nil
			}
			if out.err != nil {
				res.FileErrors[name] = out.err
				state.complete(file.ScanSize(ssif))
				logging.WarnWithContext(logger, "stream file scan failed", "stream_scan_failed",
					logging.File(name),
					logging.Error(out.err),
					logging.String(logging.FieldImpact, "playlists using this file report partial bitrates"),
				)
				if s.decide(name, out.err) == bdrom.Abort {
					res.Fatal = fmt.Errorf("%w at %s: %w", bdrom.ErrAborted, name, out.err)
					return nil
				}
				continue
			}
			out.res.Commit()
			res.Files = append(res.Files, name)
			state.complete(file.ScanSize(ssif))
			logger.Debug("stream file scanned",
				logging.File(name),
				logging.Uint64("packets", out.res.Measurements.Packets),
				logging.Int("targets", len(targets)),
			)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				emit(state.snapshot(base, res.Started))
			case <-workerDone:
				return nil
			}
		}
	})
	_ = g.Wait()

	res.Elapsed = time.Since(res.Started)
	final := state.snapshot(base, res.Started)
	res.FinishedBytes = final.FinishedBytes
	if res.Cancelled {
		res.Phase = PhaseCancelled
		final.Phase = PhaseCancelled
		emit(final)
		logger.Info("bitrate scan cancelled",
			logging.File(res.cancelledFile),
			logging.Int64(logging.FieldBytesFinished, res.FinishedBytes),
		)
		return res
	}

	for _, pl := range playlists {
		pl.UpdateBitrates()
	}
	disc.Refresh50Hz()

	final.Phase = PhaseDone
	emit(final)
	logger.Info("bitrate scan finished",
		logging.Int("stream_files", len(res.Files)),
		logging.Int("failed_files", len(res.FileErrors)),
		logging.Int64(logging.FieldBytesFinished, res.FinishedBytes),
		logging.Duration("elapsed", res.Elapsed),
	)
	return res
}

// scanFile reads one stream file on its own goroutine. The goroutine owns
// the file handle; when the caller stops waiting it exits at the scanner's
// next context check. readers is done once the handle is closed.
func (s *Scanner) scanFile(ctx context.Context, fsys discfs.FileSystem, readers *sync.WaitGroup, file *bdrom.StreamFile, ssif bool, targets []tsscan.Target, progress *atomic.Int64, logger *slog.Logger) <-chan fileOutcome {
	out := make(chan fileOutcome, 1)
	readers.Add(1)
	go func() {
		defer readers.Done()
		name := file.ScanName(ssif)
		f, err := fsys.Open(file.ScanPath(ssif))
		if err != nil {
			out <- fileOutcome{err: &bdrom.IOError{File: name, Op: "open", Err: err}}
			return
		}
		defer f.Close()

		opts := s.scanOpts
		opts.Progress = progress
		opts.Logger = logger
		res, err := tsscan.Scan(ctx, f, tsscan.Job{File: file, Name: name, Targets: targets}, opts)
		out <- fileOutcome{res: res, err: err}
	}()
	return out
}

// closeWhenIdle closes fsys after every stream reader has returned. A reader
// still blocked in a read after the grace period is left to fail on the
// closed disc.
func (s *Scanner) closeWhenIdle(fsys discfs.FileSystem, readers *sync.WaitGroup, logger *slog.Logger) {
	idle := make(chan struct{})
	go func() {
		readers.Wait()
		close(idle)
	}()
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
		logging.WarnWithContext(logger, "stream reader still busy, closing disc", "reader_close_timeout",
			logging.Duration("grace", s.grace),
			logging.String(logging.FieldImpact, "the abandoned read fails on the closed disc"),
			logging.String(logging.FieldErrorHint, "check for a stalled drive or network mount"),
		)
	}
	if err := fsys.Close(); err != nil {
		logger.Debug("disc close failed", logging.Error(err))
	}
}

// decide asks the policy about a failed stream file. Without a handler the
// bitrate phase keeps going.
func (s *Scanner) decide(name string, err error) bdrom.Decision {
	if s.policy == nil {
		return bdrom.Continue
	}
	if d, ok := s.policy.OnStreamError(name, err); ok {
		return d
	}
	return bdrom.Continue
}

// selectFiles resolves requested names against the disc, smallest first.
// Names may omit the extension and are matched case-insensitively. Unknown
// names are recorded in errs.
func selectFiles(disc *bdrom.Disc, names []string, errs map[string]error) []*bdrom.StreamFile {
	if len(names) == 0 {
		return disc.StreamFilesBySize()
	}
	seen := make(map[string]bool, len(names))
	var out []*bdrom.StreamFile
	for _, raw := range names {
		name := bdrom.RegistryName(raw, ".M2TS")
		if seen[name] {
			continue
		}
		seen[name] = true
		f, ok := disc.StreamFiles[name]
		if !ok {
			errs[name] = &bdrom.IOError{File: name, Op: "open", Err: fs.ErrNotExist}
			continue
		}
		out = append(out, f)
	}
	bdrom.SortStreamFilesBySize(out, disc.Options().EnableSSIF)
	return out
}
