package config

const (
	defaultLogDir                 = "~/.local/share/bdscan/logs"
	defaultStateDir               = "~/.local/share/bdscan"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultProbeBytes             = 4 << 20
	defaultPeakWindowMS           = 1000
	defaultMaxResyncFailures      = 16
	defaultProgressIntervalMS     = 1000
	defaultMinPlaylistSeconds     = 20
	defaultHistoryDatabase        = "history.db"
	defaultHistoryKeepScans       = 200
	defaultOpticalDrive           = "/dev/sr0"
	defaultFilterLoopingPlaylists = true
)

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Scan: Scan{
			ProbeStreams:                true,
			ProbeBytes:                  defaultProbeBytes,
			PeakWindowMS:                defaultPeakWindowMS,
			MaxResyncFailures:           defaultMaxResyncFailures,
			ProgressIntervalMS:          defaultProgressIntervalMS,
			OnError:                     OnErrorPrompt,
			FilterShortPlaylists:        true,
			FilterShortPlaylistsSeconds: defaultMinPlaylistSeconds,
			FilterLoopingPlaylists:      defaultFilterLoopingPlaylists,
		},
		History: History{
			Enabled:   true,
			KeepScans: defaultHistoryKeepScans,
		},
		Drive: Drive{
			Device: defaultOpticalDrive,
		},
	}
}
