// Package main hosts the bdscan CLI entrypoint and command graph.
//
// The Cobra-based command tree runs disc analyses, browses the scan history,
// watches an optical drive for new discs, and scaffolds configuration. It
// centralizes configuration resolution and logging setup so subcommands can
// focus on presentation.
//
// Keep this package lean: the analysis itself lives in internal/scan and the
// report model in internal/report. Commands here only wire them together and
// render the results.
package main
