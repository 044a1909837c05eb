// Package scan drives the two analysis phases of a disc.
//
// The structure phase locates the BDMV tree and parses every playlist and
// clip. The bitrate phase then reads the selected stream files one at a time,
// smallest first, and commits each file's counters to the shared disc model
// only after the file completes. Both phases can run synchronously or as a
// Task that reports progress snapshots and can be cancelled.
package scan
