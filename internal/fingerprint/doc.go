// Package fingerprint derives a stable identifier for a disc from its
// navigation metadata. The fingerprint keys the scan history, so the same
// disc scanned from a drive, a directory copy or an image maps to one entry.
package fingerprint
