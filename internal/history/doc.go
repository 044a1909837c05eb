// Package history persists completed scans in SQLite so earlier results
// can be listed and compared without rescanning the disc.
//
// Scans are keyed by a random ID and indexed by disc fingerprint. Schema
// changes ship as embedded migrations recorded in schema_migrations.
package history
