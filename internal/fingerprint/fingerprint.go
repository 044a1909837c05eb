package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"bdscan/internal/discfs"
)

// ErrNoMetadata is returned when the disc has none of the files the
// fingerprint covers.
var ErrNoMetadata = errors.New("expected metadata files missing")

// Compute returns a hex SHA-256 over the disc's navigation files:
// CERTIFICATE/id.bdmv, index.bdmv, MovieObject.bdmv and every playlist and
// clip info file. bdmvDir is the BDMV directory relative to the filesystem
// root, as resolved by the structure scan.
func Compute(ctx context.Context, fsys discfs.FileSystem, bdmvDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	files := manifest(fsys, bdmvDir)
	if len(files) == 0 {
		return "", ErrNoMetadata
	}
	h := sha256.New()
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := appendFileToHash(h, fsys, name); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeTimeout wraps Compute with a deadline for slow drives. The default
// timeout is 30 seconds.
func ComputeTimeout(ctx context.Context, fsys discfs.FileSystem, bdmvDir string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return Compute(ctx, fsys, bdmvDir)
}

// manifest lists the covered files in sorted order. Discs of a multi-disc set
// share one certificate, so it never stands in for the BDMV metadata.
func manifest(fsys discfs.FileSystem, bdmvDir string) []string {
	root := path.Dir(bdmvDir)
	var files []string
	for _, name := range []string{
		discfs.Join(root, "CERTIFICATE", "id.bdmv"),
		discfs.Join(bdmvDir, "index.bdmv"),
		discfs.Join(bdmvDir, "MovieObject.bdmv"),
	} {
		if discfs.Exists(fsys, name) && !discfs.IsDir(fsys, name) {
			files = append(files, name)
		}
	}
	for _, sub := range []struct{ dir, ext string }{
		{"PLAYLIST", ".mpls"},
		{"CLIPINF", ".clpi"},
	} {
		dir := discfs.Join(bdmvDir, sub.dir)
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), sub.ext) {
				continue
			}
			files = append(files, discfs.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files
}

func appendFileToHash(h hash.Hash, fsys discfs.FileSystem, name string) error {
	info, err := fsys.Stat(name)
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	_, _ = h.Write([]byte{0})

	file, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("hash %s: %w", name, err)
	}
	_, _ = h.Write([]byte{0})
	return nil
}
