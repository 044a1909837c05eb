package discfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrImageUnsupported is returned when no driver handles a disc image.
	ErrImageUnsupported = errors.New("disc image format not supported")
	// ErrNotSeekable is returned when a backend file cannot seek.
	ErrNotSeekable = errors.New("file does not support seeking")
)

// File is an open byte stream inside a disc.
type File interface {
	io.ReadSeekCloser
	Stat() (fs.FileInfo, error)
}

// FileSystem is the read-only view of a disc the analyzer works against.
type FileSystem interface {
	// Root describes where the disc lives (directory, device or image path).
	Root() string
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
	Open(name string) (File, error)
	VolumeLabel() string
	Close() error
}

// ImageDriver opens a disc image as a FileSystem.
type ImageDriver func(path string) (FileSystem, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]ImageDriver{}
)

// RegisterImageDriver associates a file extension (".iso") with a driver.
func RegisterImageDriver(ext string, driver ImageDriver) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || driver == nil {
		return
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[ext] = driver
}

func lookupDriver(p string) (ImageDriver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[strings.ToLower(filepath.Ext(p))]
	return d, ok
}

// Open picks a backend for p: a directory tree, a block device with a
// mounted filesystem, or a disc image with a registered driver.
func Open(p string) (FileSystem, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return nil, errors.New("disc path is empty")
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat disc path: %w", err)
	}
	switch {
	case info.IsDir():
		return OpenDir(p)
	case info.Mode()&fs.ModeDevice != 0:
		return OpenDevice(p)
	}
	if driver, ok := lookupDriver(p); ok {
		fsys, err := driver(p)
		if err != nil {
			return nil, fmt.Errorf("open disc image %s: %w", p, err)
		}
		return fsys, nil
	}
	return nil, fmt.Errorf("%s: %w", p, ErrImageUnsupported)
}

// Glob lists regular files in dir whose names match pattern, sorted by name.
// Matching is case-sensitive, like path.Match.
func Glob(fsys FileSystem, dir, pattern string) ([]fs.DirEntry, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []fs.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := path.Match(pattern, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}
		if ok {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Subdirs lists the directory names directly under dir, sorted.
func Subdirs(fsys FileSystem, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Exists reports whether name can be stat'ed.
func Exists(fsys FileSystem, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}

// IsDir reports whether name exists and is a directory.
func IsDir(fsys FileSystem, name string) bool {
	info, err := fsys.Stat(name)
	return err == nil && info.IsDir()
}

// WalkFiles calls fn for every regular file under dir, depth first in name
// order.
func WalkFiles(fsys FileSystem, dir string, fn func(name string, info fs.FileInfo) error) error {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		name := Join(dir, entry.Name())
		if entry.IsDir() {
			if err := WalkFiles(fsys, name, fn); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		if err := fn(name, info); err != nil {
			return err
		}
	}
	return nil
}

// Join joins slash-separated elements, treating "" and "." as the root.
func Join(elem ...string) string {
	parts := elem[:0:0]
	for _, e := range elem {
		if e == "" || e == "." {
			continue
		}
		parts = append(parts, e)
	}
	if len(parts) == 0 {
		return "."
	}
	return path.Join(parts...)
}
