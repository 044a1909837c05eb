package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeScan()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeDrive()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeScan() {
	c.Scan.OnError = strings.ToLower(strings.TrimSpace(c.Scan.OnError))
	if c.Scan.OnError == "" {
		c.Scan.OnError = OnErrorPrompt
	}
	if c.Scan.ProbeBytes == 0 {
		c.Scan.ProbeBytes = defaultProbeBytes
	}
	if c.Scan.PeakWindowMS == 0 {
		c.Scan.PeakWindowMS = defaultPeakWindowMS
	}
	if c.Scan.MaxResyncFailures == 0 {
		c.Scan.MaxResyncFailures = defaultMaxResyncFailures
	}
	if c.Scan.ProgressIntervalMS == 0 {
		c.Scan.ProgressIntervalMS = defaultProgressIntervalMS
	}
}

func (c *Config) normalizeHistory() error {
	path := strings.TrimSpace(c.History.DatabasePath)
	if path == "" {
		path = filepath.Join(c.Paths.StateDir, defaultHistoryDatabase)
	}
	var err error
	if c.History.DatabasePath, err = expandPath(path); err != nil {
		return fmt.Errorf("history.database_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	var err error
	if c.Metrics.TextfilePath, err = expandPath(path); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDrive() {
	if value, ok := os.LookupEnv("BDSCAN_DEVICE"); ok && strings.TrimSpace(value) != "" {
		c.Drive.Device = strings.TrimSpace(value)
	}
	c.Drive.Device = strings.TrimSpace(c.Drive.Device)
	if c.Drive.Device == "" {
		c.Drive.Device = defaultOpticalDrive
	}
}
