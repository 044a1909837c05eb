package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bdscan/internal/config"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)
	return slog.New(newPrettyHandler(buf, lv, false))
}

func TestConsoleHandlerHeaderAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo)
	ctx := WithPhase(WithScanID(context.Background(), "1a2b3c4d-5e6f"), "bitrate")
	logger = WithContext(ctx, NewComponentLogger(logger, "scan"))

	logger.Info("file scanned",
		String(FieldFile, "00001.M2TS"),
		Int64(FieldBytesFinished, 3*1024*1024),
		Float64(FieldProgressPercent, 42.5),
		String("pid", "0x1011"),
	)

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	header := lines[0]
	for _, want := range []string{"INFO", "[scan]", "Scan 1a2b3c4d (bitrate)", "– file scanned"} {
		if !strings.Contains(header, want) {
			t.Fatalf("header %q missing %q", header, want)
		}
	}
	for _, want := range []string{
		"    - File: 00001.M2TS",
		"    - Progress: 42.5%",
		"    - Scanned: 3.0 MiB",
		"    + 1 more field hidden",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Scan Id") {
		t.Fatalf("scan id should only appear in the subject:\n%s", out)
	}
}

func TestConsoleHandlerDebugShowsRawFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelDebug)
	logger.Debug("resync", Int64("offset", 384), String("pid", "0x1011"))

	out := buf.String()
	if !strings.Contains(out, "DEBUG") || !strings.Contains(out, "    offset: 384") || !strings.Contains(out, "    pid: 0x1011") {
		t.Fatalf("unexpected debug output:\n%s", out)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelWarn)
	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}
	logger.Warn("loud")
	if !strings.Contains(buf.String(), "WARN") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestConsoleHandlerDedupesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo).With(String("playlist", "00000.MPLS"))
	logger.Info("selected", String("playlist", "00800.MPLS"))
	out := buf.String()
	if strings.Count(out, "Playlist:") != 1 || !strings.Contains(out, "Playlist: 00800.MPLS") {
		t.Fatalf("expected single deduped playlist field:\n%s", out)
	}
}

func TestJSONHandlerFields(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lv, false))
	logger = WithContext(WithScanID(context.Background(), "abc"), logger)
	logger.Warn("corrupt packet", String(FieldFile, "00001.M2TS"), Int("count", 2))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json record: %v\n%s", err, buf.String())
	}
	if record["level"] != "warn" || record["msg"] != "corrupt packet" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record[FieldScanID] != "abc" || record[FieldFile] != "00001.M2TS" {
		t.Fatalf("context fields missing: %v", record)
	}
	ts, ok := record["ts"].(string)
	if !ok {
		t.Fatalf("ts missing: %v", record)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("ts %q is not RFC3339: %v", ts, err)
	}
}

func TestJSONHandlerAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newJSONHandler(&buf, new(slog.LevelVar), false))
	ctx := WithPhase(WithScanID(context.Background(), "abc"), "bitrate")
	logger.InfoContext(ctx, "stream file scanned", Duration("elapsed", 1500*time.Millisecond), String(FieldPhase, "structure"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json record: %v\n%s", err, buf.String())
	}
	if record[FieldScanID] != "abc" {
		t.Fatalf("scan id not taken from context: %v", record)
	}
	if record[FieldPhase] != "structure" {
		t.Fatalf("record phase should win over context: %v", record)
	}
	if record["elapsed"] != 1.5 {
		t.Fatalf("elapsed = %v, want seconds", record["elapsed"])
	}
}

func TestWarnWithContextAddsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo)
	WarnWithContext(logger, "playlist skipped", "playlist_skipped", Error(errors.New("bad header")))

	out := buf.String()
	for _, want := range []string{"Event: playlist_skipped", "Hint: check the disc and rerun the scan", "Impact: scan completed with warnings", "Error: bad header"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWarnWithContextKeepsCallerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo)
	WarnWithContext(logger, "stream file contains corrupt packets", "stream_corrupt_packets",
		File("00003.M2TS"),
		Alert("corrupt_packets"),
		String(FieldErrorHint, "clean the disc"),
	)

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) < 2 || !strings.Contains(lines[1], "Alert: corrupt_packets") {
		t.Fatalf("alert should be the first field:\n%s", out)
	}
	for _, want := range []string{"File: 00003.M2TS", "Hint: clean the disc", "Impact: scan completed with warnings"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "check the disc and rerun the scan") {
		t.Fatalf("default hint replaced the caller's:\n%s", out)
	}
}

func TestErrorWithContextAddsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo)
	ErrorWithContext(logger, "history write failed", "history_write_failed", Error(errors.New("disk full")))

	out := buf.String()
	for _, want := range []string{"ERROR", "Event: history_write_failed", "Hint: check the log file for details", "Error: disk full"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Impact:") {
		t.Fatalf("errors carry no default impact:\n%s", out)
	}
}

func TestNilLoggersAreSafe(t *testing.T) {
	WarnWithContext(nil, "ignored", "ignored")
	ErrorWithContext(nil, "ignored", "ignored")
	NewComponentLogger(nil, "scan").Info("discarded")
	if NewNop().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("no-op logger should be disabled")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "json"

	logger, err := NewFromConfig(&cfg, false)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("hello", String("disc_label", "TEST_MOVIE"))

	data, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"disc_label":"TEST_MOVIE"`) {
		t.Fatalf("log file missing record: %s", data)
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatBytes(0), "0 B"},
		{formatBytes(1536), "1.5 KiB"},
		{formatPercent(-1), "unknown"},
		{formatPercent(12.34), "12.3%"},
		{formatDurationHuman(1500 * time.Millisecond), "2s"},
		{formatDurationHuman(90 * time.Second), "1m 30s"},
		{formatDurationHuman(2*time.Hour + 5*time.Second), "2h 00m 05s"},
		{composeSubject("", "structure"), "structure"},
		{composeSubject("abcdefghij", ""), "Scan abcdefgh"},
		{titleizeKey("peak_bitrate"), "Peak Bitrate"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
