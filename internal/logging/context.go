package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent names the package or subsystem emitting the record.
	FieldComponent = "component"
	// FieldScanID identifies one scan run.
	FieldScanID = "scan_id"
	// FieldPhase is the scan phase (structure, bitrate).
	FieldPhase = "phase"
	// FieldFile is the disc-relative file a record is about.
	FieldFile = "file"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint is the suggested next step for the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldProgressPercent is the overall scan progress.
	FieldProgressPercent = "progress_percent"
	// FieldProgressETA is the estimated remaining scan time.
	FieldProgressETA = "progress_eta"
	// FieldBytesFinished is the number of bytes scanned so far.
	FieldBytesFinished = "bytes_finished"
	// FieldBytesTotal is the number of bytes the scan will read.
	FieldBytesTotal = "bytes_total"
	// FieldAlert flags anomalies that should stand out.
	FieldAlert = "alert"
)

type contextKey int

const (
	scanIDKey contextKey = iota
	phaseKey
)

// WithScanID returns a context carrying the scan ID.
func WithScanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scanIDKey, id)
}

// WithPhase returns a context carrying the current scan phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey, phase)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(scanIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldScanID, id))
	}
	if phase, ok := ctx.Value(phaseKey).(string); ok && phase != "" {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
