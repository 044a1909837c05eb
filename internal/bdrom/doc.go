// Package bdrom models a Blu-ray BDMV disc and decodes its metadata.
//
// Open resolves the BDMV layout on a discfs.FileSystem, parses every clip-info
// (.clpi) and playlist (.mpls) file into registries keyed by uppercased file
// name, and derives disc-wide capability flags. Playlists are initialized into
// merged, sorted stream lists with hidden-track detection.
//
// Measured bitrates are filled in later by the transport-stream scanner; this
// package only owns the counters and the arithmetic that turns them into rates.
package bdrom
