package discfs

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type dirFS struct {
	root  string
	label string
}

// OpenDir opens a directory tree (an extracted or mounted disc).
func OpenDir(root string) (FileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve disc root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat disc root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("disc root %q is not a directory", abs)
	}
	label := mountLabel(abs)
	if label == "" {
		label = filepath.Base(abs)
	}
	return &dirFS{root: abs, label: label}, nil
}

func (d *dirFS) resolve(name string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(name))
	if strings.Contains(clean, "\x00") {
		return "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (d *dirFS) Root() string { return d.root }

func (d *dirFS) VolumeLabel() string { return d.label }

func (d *dirFS) ReadDir(name string) ([]fs.DirEntry, error) {
	p, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(p)
}

func (d *dirFS) Stat(name string) (fs.FileInfo, error) {
	p, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

func (d *dirFS) Open(name string) (File, error) {
	p, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	adviseSequential(f)
	return f, nil
}

func (d *dirFS) Close() error { return nil }
