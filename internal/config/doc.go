// Package config loads, normalizes, and validates bdscan configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files strictly, and exposes derived values such as the peak window and
// the history database location. Commands obtain every scan knob through
// this package so flags and files resolve the same way.
package config
