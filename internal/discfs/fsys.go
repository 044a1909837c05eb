package discfs

import (
	"io"
	"io/fs"
)

type wrappedFS struct {
	fsys  fs.FS
	label string
	root  string
}

// FromFS adapts an fs.FS. Files must implement io.Seeker to be opened.
func FromFS(fsys fs.FS, label string) FileSystem {
	return &wrappedFS{fsys: fsys, label: label, root: "fs:" + label}
}

func (w *wrappedFS) Root() string { return w.root }

func (w *wrappedFS) VolumeLabel() string { return w.label }

func (w *wrappedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(w.fsys, name)
}

func (w *wrappedFS) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(w.fsys, name)
}

func (w *wrappedFS) Open(name string) (File, error) {
	f, err := w.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		_ = f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: ErrNotSeekable}
	}
	return &seekFile{File: f, ReadSeeker: rs}, nil
}

func (w *wrappedFS) Close() error {
	if c, ok := w.fsys.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type seekFile struct {
	fs.File
	io.ReadSeeker
}

func (s *seekFile) Read(p []byte) (int, error) { return s.ReadSeeker.Read(p) }
