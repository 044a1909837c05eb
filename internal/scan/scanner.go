package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bdscan/internal/bdrom"
	"bdscan/internal/config"
	"bdscan/internal/discfs"
	"bdscan/internal/logging"
	"bdscan/internal/tsscan"
)

// FileSystemOpener opens the disc at path.
type FileSystemOpener func(path string) (discfs.FileSystem, error)

// Scanner runs the structure and bitrate phases for one disc path. Only one
// phase runs at a time.
type Scanner struct {
	path     string
	open     FileSystemOpener
	logger   *slog.Logger
	policy   bdrom.ErrorPolicy
	discOpts bdrom.Options
	scanOpts tsscan.Options
	interval time.Duration
	grace    time.Duration
	probe    bdrom.StreamProbe

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	disc    *bdrom.Disc

	snapshot atomic.Pointer[Snapshot]
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFileSystemOpener replaces discfs.Open, mainly for tests.
func WithFileSystemOpener(open FileSystemOpener) Option {
	return func(s *Scanner) { s.open = open }
}

// WithLogger sets the logger used by both phases.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// WithPolicy sets the per-file error policy.
func WithPolicy(policy bdrom.ErrorPolicy) Option {
	return func(s *Scanner) { s.policy = policy }
}

// WithDiscOptions sets the structure-phase options. Policy, Probe and Logger
// are taken from the scanner.
func WithDiscOptions(opts bdrom.Options) Option {
	return func(s *Scanner) { s.discOpts = opts }
}

// WithScanOptions sets the transport stream scanner options.
func WithScanOptions(opts tsscan.Options) Option {
	return func(s *Scanner) { s.scanOpts = opts }
}

// WithProgressInterval sets how often bitrate progress is reported.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCloseGrace bounds how long a cancelled bitrate phase waits for its
// stream reader to return before closing the disc anyway.
func WithCloseGrace(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithProbe enables a structure-phase stream probe.
func WithProbe(probe bdrom.StreamProbe) Option {
	return func(s *Scanner) { s.probe = probe }
}

// OptionsFromConfig maps the [scan] configuration onto scanner options. The
// error policy is left to the caller unless on_error is continue or abort.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) []Option {
	opts := []Option{
		WithLogger(logger),
		WithDiscOptions(bdrom.Options{
			EnableSSIF: cfg.Scan.EnableSSIF,
			InitOptions: bdrom.InitOptions{
				FilterShortPlaylists:   cfg.Scan.FilterShortPlaylists,
				MinPlaylistLength:      cfg.MinPlaylistLength(),
				FilterLoopingPlaylists: cfg.Scan.FilterLoopingPlaylists,
				KeepStreamOrder:        cfg.Scan.KeepStreamOrder,
			},
		}),
		WithScanOptions(tsscan.Options{
			PeakWindow:        cfg.PeakWindow(),
			MaxResyncFailures: cfg.Scan.MaxResyncFailures,
		}),
		WithProgressInterval(cfg.ProgressInterval()),
	}
	if cfg.Scan.ProbeStreams {
		opts = append(opts, WithProbe(tsscan.NewProbe(cfg.Scan.ProbeBytes, logger)))
	}
	if policy := PolicyFromConfig(cfg.Scan.OnError); policy != nil {
		opts = append(opts, WithPolicy(policy))
	}
	return opts
}

// PolicyFromConfig returns the fixed policy for on_error, or nil for prompt.
func PolicyFromConfig(onError string) bdrom.ErrorPolicy {
	switch onError {
	case config.OnErrorContinue:
		return bdrom.ContinueAll()
	case config.OnErrorAbort:
		return bdrom.AbortAll()
	default:
		return nil
	}
}

// New constructs a Scanner for the disc at path.
func New(path string, opts ...Option) *Scanner {
	s := &Scanner{
		path:     path,
		open:     discfs.Open,
		interval: time.Second,
		grace:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "scan")
	s.snapshot.Store(&Snapshot{Phase: PhaseIdle})
	return s
}

// Path returns the disc path.
func (s *Scanner) Path() string { return s.path }

// Disc returns the model from the last successful structure scan.
func (s *Scanner) Disc() *bdrom.Disc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disc
}

// Snapshot returns the latest progress snapshot. It is safe to call from any
// goroutine.
func (s *Scanner) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Cancel stops the running phase, if any.
func (s *Scanner) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Scanner) publish(snap Snapshot) {
	s.snapshot.Store(&snap)
}

// begin marks a phase as running and returns its cancellable context.
func (s *Scanner) begin(ctx context.Context) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, nil, errors.New("a scan phase is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	return ctx, func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}, nil
}

// ScanStructure locates and parses the disc. With no policy every per-file
// failure is fatal.
func (s *Scanner) ScanStructure(ctx context.Context) (*bdrom.Disc, error) {
	ctx, end, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	id := uuid.NewString()
	started := time.Now()
	ctx = logging.WithPhase(logging.WithScanID(ctx, id), PhaseStructure.String())
	logger := logging.WithContext(ctx, s.logger)
	s.publish(Snapshot{ScanID: id, Phase: PhaseStructure})

	fsys, err := s.open(s.path)
	if err != nil {
		s.publish(Snapshot{ScanID: id, Phase: PhaseDone, Elapsed: time.Since(started)})
		return nil, fmt.Errorf("open disc %s: %w", s.path, err)
	}
	defer fsys.Close()

	opts := s.discOpts
	opts.Policy = s.policy
	opts.Probe = s.probe
	opts.Logger = logger
	logger.Info("structure scan started", logging.String("source", fsys.Root()))

	disc, err := bdrom.Open(ctx, fsys, opts)
	elapsed := time.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			s.publish(Snapshot{ScanID: id, Phase: PhaseCancelled, Elapsed: elapsed})
			logger.Info("structure scan cancelled")
			return nil, &CancellationError{Phase: PhaseStructure}
		}
		s.publish(Snapshot{ScanID: id, Phase: PhaseDone, Elapsed: elapsed})
		logging.ErrorWithContext(logger, "structure scan failed", "structure_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the path holds a BDMV folder"),
		)
		return nil, err
	}

	s.mu.Lock()
	s.disc = disc
	s.mu.Unlock()
	s.publish(Snapshot{ScanID: id, Phase: PhaseDone, Elapsed: elapsed, TotalBytes: disc.Size})
	logger.Info("structure scan finished",
		logging.String("disc_label", disc.VolumeLabel),
		logging.Int("playlists", len(disc.Playlists)),
		logging.Int("stream_files", len(disc.StreamFiles)),
		logging.Int64("disc_size", disc.Size),
		logging.Duration("elapsed", elapsed),
	)
	return disc, nil
}

// StartStructure runs ScanStructure in the background.
func (s *Scanner) StartStructure(ctx context.Context) *Task[*bdrom.Disc] {
	return startTask(ctx, func(ctx context.Context, report func(Snapshot)) (*bdrom.Disc, error) {
		report(s.Snapshot())
		disc, err := s.ScanStructure(ctx)
		report(s.Snapshot())
		return disc, err
	})
}

// StartBitrates runs ScanBitrates in the background. Wait returns the result
// together with its Err.
func (s *Scanner) StartBitrates(ctx context.Context, files []string) *Task[*Result] {
	return startTask(ctx, func(ctx context.Context, report func(Snapshot)) (*Result, error) {
		res := s.ScanBitrates(ctx, files, report)
		return res, res.Err()
	})
}
