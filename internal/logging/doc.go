// Package logging assembles structured slog loggers and formatting helpers
// used across bdscan.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so scan code can tag log lines with
// the scan ID and phase. A no-op logger covers tests and library callers that
// do not care about output.
package logging
