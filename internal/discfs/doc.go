// Package discfs exposes a Blu-ray disc as a read-only file tree.
//
// The analyzer only needs directory listings, seekable byte streams, file
// lengths and a volume label. Backends cover a plain directory, a mounted
// optical device (resolved through /proc/mounts) and any fs.FS, which is the
// seam for disc-image drivers registered with RegisterImageDriver.
//
// All names passed to a FileSystem are slash separated and relative to the
// disc root.
package discfs
