// Package tsscan demultiplexes BDAV transport streams (.m2ts and .ssif).
//
// Scan reads a stream file packet by packet, reassembles the PAT and PMT,
// decodes PCR and PES timestamps and accumulates per-PID byte counts. The
// counts are attributed to the playlist clips whose time range covers the
// position of each packet, and per-PID peak rates are tracked over a sliding
// window of presentation time. Probe is the cheap variant used while the disc
// structure is resolved: it only reads far enough to learn the PMT.
package tsscan
