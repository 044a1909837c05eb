package bdrom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"bdscan/internal/discfs"
	"bdscan/internal/logging"
)

// StreamProbe inspects a stream file during the structure phase, typically
// filling StreamFile.Streams from the PAT/PMT.
type StreamProbe func(ctx context.Context, fsys discfs.FileSystem, file *StreamFile) error

// Options configure disc resolution.
type Options struct {
	EnableSSIF bool
	InitOptions
	Policy ErrorPolicy
	Probe  StreamProbe
	Logger *slog.Logger
}

// Disc is a resolved BDMV layout with its registries.
type Disc struct {
	FS          discfs.FileSystem
	VolumeLabel string

	// Directories relative to the filesystem root; empty when absent.
	RootDir     string
	BDMVDir     string
	BDJODir     string
	ClipInfoDir string
	PlaylistDir string
	SNPDir      string
	StreamDir   string
	SSIFDir     string

	Size int64

	IsBDPlus bool
	IsBDJava bool
	IsPSP    bool
	Is3D     bool
	IsDBOX   bool
	Is50Hz   bool

	Playlists        map[string]*Playlist
	ClipInfos        map[string]*ClipInfo
	StreamFiles      map[string]*StreamFile
	InterleavedFiles map[string]*InterleavedFile

	opts   Options
	logger *slog.Logger
}

// Open locates the BDMV structure and loads every playlist and clip.
func Open(ctx context.Context, fsys discfs.FileSystem, opts Options) (*Disc, error) {
	disc, err := Locate(fsys, opts)
	if err != nil {
		return nil, err
	}
	if err := disc.Load(ctx); err != nil {
		return disc, err
	}
	return disc, nil
}

// Locate finds the BDMV directory, derives capability flags, computes the
// disc size and lists the registry files. Nothing is parsed yet.
func Locate(fsys discfs.FileSystem, opts Options) (*Disc, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Disc{
		FS:               fsys,
		VolumeLabel:      fsys.VolumeLabel(),
		Playlists:        make(map[string]*Playlist),
		ClipInfos:        make(map[string]*ClipInfo),
		StreamFiles:      make(map[string]*StreamFile),
		InterleavedFiles: make(map[string]*InterleavedFile),
		opts:             opts,
		logger:           logging.NewComponentLogger(logger, "bdrom"),
	}

	bdmv, err := findBDMV(fsys)
	if err != nil {
		return nil, err
	}
	d.BDMVDir = bdmv
	d.RootDir = path.Dir(bdmv)

	d.BDJODir = d.subdir("BDJO")
	d.ClipInfoDir = d.subdir("CLIPINF")
	d.PlaylistDir = d.subdir("PLAYLIST")
	d.SNPDir = d.subdir("SNP")
	d.StreamDir = d.subdir("STREAM")
	if d.StreamDir != "" {
		if ssif := discfs.Join(d.StreamDir, "SSIF"); discfs.IsDir(fsys, ssif) {
			d.SSIFDir = ssif
		}
	}
	if d.ClipInfoDir == "" {
		return nil, &StructureError{Missing: "CLIPINF", Root: bdmv}
	}
	if d.PlaylistDir == "" {
		return nil, &StructureError{Missing: "PLAYLIST", Root: bdmv}
	}

	for _, dir := range []string{"BDSVM", "SLYVM", "ANYVM"} {
		if discfs.IsDir(fsys, discfs.Join(d.RootDir, dir)) {
			d.IsBDPlus = true
		}
	}
	d.IsBDJava = d.BDJODir != "" && hasFiles(fsys, d.BDJODir)
	d.Is3D = d.SSIFDir != "" && hasFiles(fsys, d.SSIFDir)
	d.IsDBOX = discfs.Exists(fsys, discfs.Join(d.RootDir, "FilmIndex.xml"))
	if d.SNPDir != "" {
		d.IsPSP = len(globFold(fsys, d.SNPDir, "mnv")) > 0
	}

	size, err := discSize(fsys, d.RootDir)
	if err != nil {
		return nil, &IOError{File: d.RootDir, Op: "walk", Err: err}
	}
	d.Size = size

	if err := d.listRegistries(); err != nil {
		return nil, err
	}
	return d, nil
}

// findBDMV returns the BDMV directory: at the root by exact name, or one
// level down.
func findBDMV(fsys discfs.FileSystem) (string, error) {
	if discfs.IsDir(fsys, "BDMV") {
		return "BDMV", nil
	}
	children, err := discfs.Subdirs(fsys, ".")
	if err != nil {
		return "", &IOError{File: fsys.Root(), Op: "list", Err: err}
	}
	for _, child := range children {
		candidate := discfs.Join(child, "BDMV")
		if discfs.IsDir(fsys, candidate) {
			return candidate, nil
		}
	}
	return "", &StructureError{Missing: "BDMV", Root: fsys.Root()}
}

func (d *Disc) subdir(name string) string {
	p := discfs.Join(d.BDMVDir, name)
	if discfs.IsDir(d.FS, p) {
		return p
	}
	return ""
}

func hasFiles(fsys discfs.FileSystem, dir string) bool {
	entries, err := fsys.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// globFold matches "*.ext" and falls back to "*.EXT" when the lowercase
// pattern finds nothing.
func globFold(fsys discfs.FileSystem, dir, ext string) []fs.DirEntry {
	entries, err := discfs.Glob(fsys, dir, "*."+strings.ToLower(ext))
	if err == nil && len(entries) > 0 {
		return entries
	}
	entries, err = discfs.Glob(fsys, dir, "*."+strings.ToUpper(ext))
	if err != nil {
		return nil
	}
	return entries
}

func discSize(fsys discfs.FileSystem, root string) (int64, error) {
	var total int64
	err := discfs.WalkFiles(fsys, root, func(name string, info fs.FileInfo) error {
		if strings.EqualFold(path.Ext(name), ".ssif") {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func (d *Disc) listRegistries() error {
	for _, e := range globFold(d.FS, d.ClipInfoDir, "clpi") {
		key := strings.ToUpper(e.Name())
		d.ClipInfos[key] = &ClipInfo{Name: key, Path: discfs.Join(d.ClipInfoDir, e.Name())}
	}
	for _, e := range globFold(d.FS, d.PlaylistDir, "mpls") {
		key := strings.ToUpper(e.Name())
		d.Playlists[key] = &Playlist{Name: key, Path: discfs.Join(d.PlaylistDir, e.Name())}
	}
	if d.StreamDir != "" {
		for _, e := range globFold(d.FS, d.StreamDir, "m2ts") {
			info, err := e.Info()
			if err != nil {
				return &IOError{File: e.Name(), Op: "stat", Err: err}
			}
			key := strings.ToUpper(e.Name())
			d.StreamFiles[key] = &StreamFile{
				Name:    key,
				Path:    discfs.Join(d.StreamDir, e.Name()),
				Size:    info.Size(),
				Streams: make(map[uint16]*Stream),
			}
		}
	}
	if d.SSIFDir != "" {
		for _, e := range globFold(d.FS, d.SSIFDir, "ssif") {
			info, err := e.Info()
			if err != nil {
				return &IOError{File: e.Name(), Op: "stat", Err: err}
			}
			key := strings.ToUpper(e.Name())
			d.InterleavedFiles[key] = &InterleavedFile{Name: key, Path: discfs.Join(d.SSIFDir, e.Name()), Size: info.Size()}
		}
	}
	return nil
}

// Load parses clip infos, pairs interleaved files, parses playlists, runs the
// optional stream probe and initializes playlists. Per-file failures go
// through the error policy.
func (d *Disc) Load(ctx context.Context) error {
	for _, name := range sortedKeys(d.ClipInfos) {
		if err := ctx.Err(); err != nil {
			return err
		}
		stub := d.ClipInfos[name]
		clip, err := d.loadClipInfo(stub)
		if err != nil {
			delete(d.ClipInfos, name)
			if stop := d.decide(d.policy().OnClipError, name, err); stop != nil {
				return stop
			}
			continue
		}
		d.ClipInfos[name] = clip
	}

	for _, name := range sortedKeys(d.StreamFiles) {
		file := d.StreamFiles[name]
		base := strings.TrimSuffix(name, path.Ext(name))
		file.ClipInfo = d.ClipInfos[base+".CLPI"]
		if ssif, ok := d.InterleavedFiles[base+".SSIF"]; ok {
			file.Interleaved = ssif
		}
	}

	for _, name := range sortedKeys(d.Playlists) {
		if err := ctx.Err(); err != nil {
			return err
		}
		stub := d.Playlists[name]
		pl, err := d.loadPlaylist(stub)
		if err != nil {
			stub.IsValid = false
			stub.InvalidReason = err.Error()
			if stop := d.decide(d.policy().OnPlaylistError, name, err); stop != nil {
				return stop
			}
			continue
		}
		d.Playlists[name] = pl
	}

	if d.opts.Probe != nil {
		for _, file := range d.StreamFilesBySize() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.opts.Probe(ctx, d.FS, file); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if stop := d.decide(d.policy().OnStreamError, file.Name, err); stop != nil {
					return stop
				}
			}
		}
	}

	d.Is50Hz = false
	for _, name := range sortedKeys(d.Playlists) {
		pl := d.Playlists[name]
		if pl.Items == nil && pl.InvalidReason != "" {
			continue
		}
		pl.Resolve(d.StreamFiles, d.ClipInfos)
		pl.Initialize(d.opts.InitOptions)
		if len(pl.MissingClips) > 0 {
			logging.WarnWithContext(d.logger, "playlist references missing clips", "playlist_missing_clips",
				logging.String("playlist", pl.Name),
				logging.String("clips", strings.Join(pl.MissingClips, ",")),
				logging.String(logging.FieldImpact, "missing clips are left out of the playlist"),
			)
		}
		if pl.Is50Hz() {
			d.Is50Hz = true
		}
	}
	d.logger.Debug("disc structure loaded",
		logging.Int("playlists", len(d.Playlists)),
		logging.Int("clips", len(d.ClipInfos)),
		logging.Int("stream_files", len(d.StreamFiles)),
		logging.Int64("disc_size", d.Size),
	)
	return nil
}

func (d *Disc) policy() ErrorPolicy {
	if d.opts.Policy == nil {
		return PolicyFuncs{}
	}
	return d.opts.Policy
}

// decide consults the policy and returns nil to continue, or the error that
// ends the phase.
func (d *Disc) decide(handler func(string, error) (Decision, bool), name string, err error) error {
	decision, handled := handler(name, err)
	if !handled {
		return err
	}
	logging.WarnWithContext(d.logger, "skipping unreadable file", "disc_file_error",
		logging.File(name),
		logging.String("decision", decision.String()),
		logging.Error(err),
	)
	if decision == Abort {
		return fmt.Errorf("%w at %s: %w", ErrAborted, name, err)
	}
	return nil
}

func (d *Disc) readFile(name string) ([]byte, error) {
	f, err := d.FS.Open(name)
	if err != nil {
		return nil, &IOError{File: name, Op: "open", Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &IOError{File: name, Op: "read", Err: err}
	}
	return data, nil
}

func (d *Disc) loadClipInfo(stub *ClipInfo) (*ClipInfo, error) {
	data, err := d.readFile(stub.Path)
	if err != nil {
		return nil, err
	}
	clip, err := ParseClipInfo(stub.Name, data)
	if err != nil {
		return nil, err
	}
	clip.Path = stub.Path
	return clip, nil
}

func (d *Disc) loadPlaylist(stub *Playlist) (*Playlist, error) {
	data, err := d.readFile(stub.Path)
	if err != nil {
		return nil, err
	}
	pl, err := ParsePlaylist(stub.Name, data)
	if err != nil {
		return nil, err
	}
	pl.Path = stub.Path
	return pl, nil
}

// Options returns the options the disc was opened with.
func (d *Disc) Options() Options { return d.opts }

// Title returns a cleaned-up disc title derived from the volume label.
func (d *Disc) Title() string { return TitleFromVolumeLabel(d.VolumeLabel) }

// SortedPlaylists returns all playlists by name.
func (d *Disc) SortedPlaylists() []*Playlist {
	out := make([]*Playlist, 0, len(d.Playlists))
	for _, name := range sortedKeys(d.Playlists) {
		out = append(out, d.Playlists[name])
	}
	return out
}

// ValidPlaylists returns the valid playlists, longest first.
func (d *Disc) ValidPlaylists() []*Playlist {
	var out []*Playlist
	for _, pl := range d.SortedPlaylists() {
		if pl.IsValid {
			out = append(out, pl)
		}
	}
	SortPlaylists(out)
	return out
}

// StreamFilesBySize returns stream files ascending by scan size, name order
// breaking ties.
func (d *Disc) StreamFilesBySize() []*StreamFile {
	out := make([]*StreamFile, 0, len(d.StreamFiles))
	for _, name := range sortedKeys(d.StreamFiles) {
		out = append(out, d.StreamFiles[name])
	}
	SortStreamFilesBySize(out, d.opts.EnableSSIF)
	return out
}

// PlaylistsReferencing maps each stream file name to the playlists that use it.
func (d *Disc) PlaylistsReferencing() map[string][]*Playlist {
	out := make(map[string][]*Playlist)
	for _, pl := range d.SortedPlaylists() {
		for _, name := range pl.ClipNames() {
			out[name] = append(out[name], pl)
		}
	}
	return out
}

// Refresh50Hz recomputes Is50Hz from the initialized playlists.
func (d *Disc) Refresh50Hz() {
	d.Is50Hz = false
	for _, pl := range d.Playlists {
		if pl.Is50Hz() {
			d.Is50Hz = true
			return
		}
	}
}

// MinPlaylistLength converts seconds to the InitOptions duration.
func MinPlaylistLength(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// sortedKeys returns registry keys in sorted order.
func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegistryName maps a user-supplied file name to its registry key: trimmed,
// uppercased, with ext (".MPLS") appended when the name has no extension.
func RegistryName(name, ext string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name != "" && path.Ext(name) == "" {
		name += strings.ToUpper(ext)
	}
	return name
}

// IsStructureError reports whether err is fatal for the whole disc.
func IsStructureError(err error) bool { return errors.Is(err, ErrStructure) }
