package discfs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMountNotFound is returned when a device has no mounted filesystem.
var ErrMountNotFound = errors.New("optical drive mount point not found")

// Overridden in tests.
var (
	procMounts = "/proc/mounts"
	byLabelDir = "/dev/disk/by-label"
)

type mountEntry struct {
	device string
	path   string
}

// OpenDevice opens the filesystem mounted from a block device such as /dev/sr0.
func OpenDevice(device string) (FileSystem, error) {
	mountPoint, err := ResolveMountPoint(device)
	if err != nil {
		return nil, err
	}
	fsys, err := OpenDir(mountPoint)
	if err != nil {
		return nil, err
	}
	d := fsys.(*dirFS)
	d.root = device + " (" + mountPoint + ")"
	if label := deviceLabel(device); label != "" {
		d.label = label
	}
	return d, nil
}

// ResolveMountPoint returns where device is mounted according to /proc/mounts.
func ResolveMountPoint(device string) (string, error) {
	entries, err := readMounts()
	if err != nil {
		return "", err
	}
	requested := canonicalPath(device)
	for _, entry := range entries {
		if sameDevice(requested, canonicalPath(entry.device)) {
			return entry.path, nil
		}
	}
	return "", fmt.Errorf("%s: %w", device, ErrMountNotFound)
}

func readMounts() ([]mountEntry, error) {
	f, err := os.Open(procMounts)
	if err != nil {
		return nil, fmt.Errorf("open mounts: %w", err)
	}
	defer f.Close()

	var entries []mountEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, mountEntry{
			device: decodeMountField(fields[0]),
			path:   decodeMountField(fields[1]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan mounts: %w", err)
	}
	return entries, nil
}

// mountLabel finds the filesystem label for a directory that is itself a
// mount point. Empty when the directory is not a mount point or unlabeled.
func mountLabel(dir string) string {
	entries, err := readMounts()
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.path == dir && strings.HasPrefix(entry.device, "/dev/") {
			return deviceLabel(entry.device)
		}
	}
	return ""
}

func deviceLabel(device string) string {
	entries, err := os.ReadDir(byLabelDir)
	if err != nil {
		return ""
	}
	want := canonicalPath(device)
	for _, entry := range entries {
		target := canonicalPath(filepath.Join(byLabelDir, entry.Name()))
		if sameDevice(want, target) {
			return decodeMountField(strings.ReplaceAll(entry.Name(), `\x20`, " "))
		}
	}
	return ""
}

func canonicalPath(p string) string {
	resolved, _ := filepath.EvalSymlinks(p)
	if resolved == "" {
		return p
	}
	return resolved
}

func decodeMountField(field string) string {
	replacer := strings.NewReplacer(
		"\\040", " ",
		"\\011", "\t",
		"\\012", "\n",
		"\\134", "\\",
	)
	return replacer.Replace(field)
}

func sameDevice(a, b string) bool {
	if a == b {
		return true
	}
	if strings.HasPrefix(a, "/dev/") && strings.HasPrefix(b, "/dev/") {
		return filepath.Base(a) == filepath.Base(b)
	}
	return false
}
