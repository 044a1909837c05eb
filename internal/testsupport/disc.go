package testsupport

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"testing"
	"testing/fstest"

	"bdscan/internal/discfs"
)

// Disc assembles a synthetic BDMV tree in memory.
type Disc struct {
	Label string
	Files fstest.MapFS
}

// NewDisc returns a disc with the mandatory BDMV directories in place.
func NewDisc(label string) *Disc {
	d := &Disc{Label: label, Files: fstest.MapFS{}}
	for _, dir := range []string{"BDMV", "BDMV/CLIPINF", "BDMV/PLAYLIST", "BDMV/STREAM"} {
		d.Files[dir] = &fstest.MapFile{Mode: fs.ModeDir | 0o755}
	}
	return d
}

// Add places raw bytes at name.
func (d *Disc) Add(name string, data []byte) *Disc {
	d.Files[name] = &fstest.MapFile{Data: data, Mode: 0o644}
	return d
}

// AddClip writes BDMV/CLIPINF/<name>.clpi and BDMV/STREAM/<name>.m2ts.
func (d *Disc) AddClip(name string, clpi, m2ts []byte) *Disc {
	d.Add(path.Join("BDMV/CLIPINF", name+".clpi"), clpi)
	return d.Add(path.Join("BDMV/STREAM", name+".m2ts"), m2ts)
}

// AddPlaylist writes BDMV/PLAYLIST/<name>.mpls.
func (d *Disc) AddPlaylist(name string, mpls []byte) *Disc {
	return d.Add(path.Join("BDMV/PLAYLIST", name+".mpls"), mpls)
}

// Remove deletes a file or directory entry.
func (d *Disc) Remove(name string) *Disc {
	delete(d.Files, name)
	return d
}

// FS exposes the tree through discfs.
func (d *Disc) FS() discfs.FileSystem {
	return discfs.FromFS(d.Files, d.Label)
}

// WriteDir materializes the tree under a fresh temp directory and returns it.
func (d *Disc) WriteDir(t testing.TB) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), d.Label)
	for name, file := range d.Files {
		target := filepath.Join(root, filepath.FromSlash(name))
		if file.Mode.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", target, err)
		}
		if err := os.WriteFile(target, file.Data, 0o644); err != nil {
			t.Fatalf("write %s: %v", target, err)
		}
	}
	return root
}

// StandardClip describes the video+audio clip most tests use.
var StandardClip = []ClipStream{
	{PID: 0x1011, Type: 0x1b, Format: 6, Rate: 1, Aspect: 3},
	{PID: 0x1100, Type: 0x83, Layout: 6, Sample: 1, Lang: "eng"},
}

// StandardTS lists the transport streams matching StandardClip.
var StandardTS = []TSStream{
	{PID: 0x1011, Type: 0x1b},
	{PID: 0x1100, Type: 0x83},
}
