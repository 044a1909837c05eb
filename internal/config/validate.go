package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return c.validateDrive()
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateScan() error {
	switch c.Scan.OnError {
	case OnErrorPrompt, OnErrorContinue, OnErrorAbort:
	default:
		return fmt.Errorf("scan.on_error must be prompt, continue or abort, got %q", c.Scan.OnError)
	}
	if c.Scan.ProbeBytes < 0 {
		return errors.New("scan.probe_bytes must be positive")
	}
	if c.Scan.PeakWindowMS < 10 {
		return errors.New("scan.peak_window_ms must be at least 10")
	}
	if c.Scan.MaxResyncFailures < 1 {
		return errors.New("scan.max_resync_failures must be at least 1")
	}
	if c.Scan.ProgressIntervalMS < 50 {
		return errors.New("scan.progress_interval_ms must be at least 50")
	}
	if c.Scan.FilterShortPlaylistsSeconds < 0 {
		return errors.New("scan.filter_short_playlists_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.KeepScans < 0 {
		return errors.New("history.keep_scans must not be negative")
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DatabasePath) == "" {
		return errors.New("history.database_path must be set when history.enabled is true")
	}
	return nil
}

func (c *Config) validateDrive() error {
	if !strings.HasPrefix(c.Drive.Device, "/") {
		return fmt.Errorf("drive.device must be an absolute device path, got %q", c.Drive.Device)
	}
	return nil
}
