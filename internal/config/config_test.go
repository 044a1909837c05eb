package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"bdscan/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("BDSCAN_DEVICE", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "bdscan", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "bdscan", "logs"); cfg.Paths.LogDir != want {
		t.Fatalf("log dir = %q, want %q", cfg.Paths.LogDir, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "bdscan", "history.db"); cfg.HistoryPath() != want {
		t.Fatalf("history path = %q, want %q", cfg.HistoryPath(), want)
	}
	if cfg.PeakWindow() != time.Second || cfg.ProgressInterval() != time.Second {
		t.Fatalf("windows = %v / %v", cfg.PeakWindow(), cfg.ProgressInterval())
	}
	if cfg.Scan.MaxResyncFailures != 16 {
		t.Fatalf("max resync failures = %d", cfg.Scan.MaxResyncFailures)
	}
	if cfg.MinPlaylistLength() != 20*time.Second {
		t.Fatalf("min playlist length = %v", cfg.MinPlaylistLength())
	}
	if cfg.Scan.OnError != config.OnErrorPrompt {
		t.Fatalf("on_error = %q", cfg.Scan.OnError)
	}
	if cfg.Drive.Device != "/dev/sr0" {
		t.Fatalf("device = %q", cfg.Drive.Device)
	}
	if cfg.WatchLockPath() != filepath.Join(cfg.Paths.StateDir, "bdscan-watch.lock") {
		t.Fatalf("lock path = %q", cfg.WatchLockPath())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BDSCAN_DEVICE", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[paths]
log_dir = "~/logs"
state_dir = "~/state"

[logging]
format = "JSON"
level = "Debug"

[scan]
enable_ssif = true
peak_window_ms = 500
on_error = "abort"
keep_stream_order = true

[history]
enabled = false

[metrics]
textfile_path = "~/metrics/bdscan.prom"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "logs") {
		t.Fatalf("log dir = %q", cfg.Paths.LogDir)
	}
	if cfg.HistoryPath() != filepath.Join(tempHome, "state", "history.db") {
		t.Fatalf("history path = %q", cfg.HistoryPath())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if !cfg.Scan.EnableSSIF || !cfg.Scan.KeepStreamOrder || cfg.PeakWindow() != 500*time.Millisecond {
		t.Fatalf("scan = %+v", cfg.Scan)
	}
	if cfg.Scan.OnError != config.OnErrorAbort || cfg.History.Enabled {
		t.Fatalf("on_error = %q history = %v", cfg.Scan.OnError, cfg.History.Enabled)
	}
	if cfg.Metrics.TextfilePath != filepath.Join(tempHome, "metrics", "bdscan.prom") {
		t.Fatalf("metrics path = %q", cfg.Metrics.TextfilePath)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tests := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{name: "unknown key", contents: "[scan]\nturbo = true\n", wantErr: "turbo"},
		{name: "bad on_error", contents: "[scan]\non_error = \"retry\"\n", wantErr: "scan.on_error"},
		{name: "bad format", contents: "[logging]\nformat = \"xml\"\n", wantErr: "logging.format"},
		{name: "tiny window", contents: "[scan]\npeak_window_ms = 1\n", wantErr: "scan.peak_window_ms"},
		{name: "relative device", contents: "[drive]\ndevice = \"sr0\"\n", wantErr: "drive.device"},
		{name: "negative keep", contents: "[history]\nkeep_scans = -1\n", wantErr: "history.keep_scans"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.contents), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceFromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BDSCAN_DEVICE", "/dev/sr1")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Drive.Device != "/dev/sr1" {
		t.Fatalf("device = %q", cfg.Drive.Device)
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	var parsed config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	def := config.Default()
	if parsed.Scan != def.Scan {
		t.Fatalf("sample scan section = %+v, defaults = %+v", parsed.Scan, def.Scan)
	}
	if parsed.Drive != def.Drive || parsed.Logging != def.Logging {
		t.Fatalf("sample drive/logging differ from defaults")
	}

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	t.Setenv("HOME", t.TempDir())
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load(sample) exists=%v err=%v", exists, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.LogDir, cfg.Paths.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
