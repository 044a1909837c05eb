package testsupport

import (
	"path/filepath"
	"testing"

	"bdscan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Errors never prompt, so tests stay non-interactive.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.History.DatabasePath = filepath.Join(base, "state", "history.db")
	cfgVal.Scan.OnError = config.OnErrorContinue
	cfgVal.Scan.ProgressIntervalMS = 50

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSSIF enables interleaved-file scanning.
func WithSSIF() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.EnableSSIF = true
	}
}

// WithOnError sets the per-file error mode.
func WithOnError(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.OnError = mode
	}
}

// WithMetricsFile points the textfile export into the test directory.
func WithMetricsFile(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.TextfilePath = filepath.Join(b.baseDir, name)
	}
}

// WithoutHistory disables the history database.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// WithDrive sets the watched optical drive.
func WithDrive(device string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Drive.Device = device
	}
}
