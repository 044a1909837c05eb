package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Scan contains the analyzer knobs.
type Scan struct {
	EnableSSIF                  bool   `toml:"enable_ssif"`
	ProbeStreams                bool   `toml:"probe_streams"`
	ProbeBytes                  int64  `toml:"probe_bytes"`
	PeakWindowMS                int    `toml:"peak_window_ms"`
	MaxResyncFailures           int    `toml:"max_resync_failures"`
	ProgressIntervalMS          int    `toml:"progress_interval_ms"`
	OnError                     string `toml:"on_error"`
	FilterShortPlaylists        bool   `toml:"filter_short_playlists"`
	FilterShortPlaylistsSeconds int    `toml:"filter_short_playlists_seconds"`
	FilterLoopingPlaylists      bool   `toml:"filter_looping_playlists"`
	KeepStreamOrder             bool   `toml:"keep_stream_order"`
}

// History contains configuration for the scan history database.
type History struct {
	Enabled      bool   `toml:"enabled"`
	DatabasePath string `toml:"database_path"`
	KeepScans    int    `toml:"keep_scans"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Drive contains configuration for the optical drive used by watch mode.
type Drive struct {
	Device string `toml:"device"`
}

// Error handling modes for Scan.OnError.
const (
	OnErrorPrompt   = "prompt"
	OnErrorContinue = "continue"
	OnErrorAbort    = "abort"
)

// Config encapsulates all configuration values for bdscan.
//
// Configuration sections:
//   - Paths: log and state directories
//   - Logging: log format and level
//   - Scan: structure and bitrate scan behaviour
//   - History: SQLite scan history
//   - Metrics: Prometheus textfile export
//   - Drive: optical drive used by watch mode
type Config struct {
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
	Scan    Scan    `toml:"scan"`
	History History `toml:"history"`
	Metrics Metrics `toml:"metrics"`
	Drive   Drive   `toml:"drive"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return expandPath(filepath.Join(base, "bdscan", "config.toml"))
	}
	return expandPath("~/.config/bdscan/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strings.TrimSpace(strict.String()))
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PeakWindow is the sliding window used for peak bitrates.
func (c *Config) PeakWindow() time.Duration {
	return time.Duration(c.Scan.PeakWindowMS) * time.Millisecond
}

// ProgressInterval is how often scan progress is published.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Scan.ProgressIntervalMS) * time.Millisecond
}

// MinPlaylistLength is the short-playlist filter threshold.
func (c *Config) MinPlaylistLength() time.Duration {
	return time.Duration(c.Scan.FilterShortPlaylistsSeconds) * time.Second
}

// HistoryPath returns the history database path.
func (c *Config) HistoryPath() string {
	return c.History.DatabasePath
}

// WatchLockPath is the single-instance lock used by watch mode.
func (c *Config) WatchLockPath() string {
	return filepath.Join(c.Paths.StateDir, "bdscan-watch.lock")
}

// LogPath is the log file written by NewFromConfig.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "bdscan.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string { return sampleConfig }

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
