// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"
)

const stampLayout = "20060102-150405"

// Archive describes one backup file.
type Archive struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ArchiveName returns the file name of an archive taken at t.
func ArchiveName(name string, t time.Time) string {
	return fmt.Sprintf("%s-%s.tar.gz", name, t.UTC().Format(stampLayout))
}

func archivePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `-\d{8}-\d{6}\.tar\.gz$`)
}

// writeArchive writes root into a new archive under dest and returns its
// path and size. Files under dest, and files matching an exclude pattern,
// are skipped. The archive only appears under its final name once complete.
func writeArchive(ctx context.Context, name, root, dest string, exclude []string, at time.Time) (string, int64, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", 0, err
	}

	final := filepath.Join(dest, ArchiveName(name, at))
	tmp, err := os.CreateTemp(dest, "."+filepath.Base(final)+".partial-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if within(path, dest) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return addEntry(tw, path, rel, d)
	})

	closeErr := tw.Close()
	if err := gz.Close(); closeErr == nil {
		closeErr = err
	}
	if err := tmp.Close(); closeErr == nil {
		closeErr = err
	}
	if walkErr != nil {
		return "", 0, walkErr
	}
	if closeErr != nil {
		return "", 0, closeErr
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", 0, err
	}
	info, err := os.Stat(final)
	if err != nil {
		return "", 0, err
	}
	return final, info.Size(), nil
}

func addEntry(tw *tar.Writer, path, rel string, d fs.DirEntry) error {
	// Regular files are opened before the header is written so that a file
	// removed since the directory was read is skipped, not half-written.
	var f *os.File
	if d.Type().IsRegular() {
		var err error
		if f, err = os.Open(path); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		defer f.Close()
	}

	var info fs.FileInfo
	var err error
	if f != nil {
		info, err = f.Stat()
	} else {
		info, err = d.Info()
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		// Sockets and other special files have no tar representation.
		return nil
	}
	hdr.Name = rel
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if f == nil || !info.Mode().IsRegular() {
		return nil
	}
	return copyPadded(tw, f, hdr.Size)
}

// copyPadded writes exactly size bytes of r to w. Live files such as the
// workload log can shrink mid-read; the missing tail is written as zeros so
// the entry still matches its header.
func copyPadded(w io.Writer, r io.Reader, size int64) error {
	n, err := io.CopyN(w, r, size)
	if errors.Is(err, io.EOF) {
		_, err = io.CopyN(w, zeroReader{}, size-n)
	}
	return err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func excluded(rel string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// ListArchives returns the archives of name found in dest, newest first.
// A missing directory has none.
func ListArchives(dest, name string) ([]Archive, error) {
	entries, err := os.ReadDir(dest)
	if os.IsNotExist(err) {
		return []Archive{}, nil
	}
	if err != nil {
		return nil, err
	}

	pattern := archivePattern(name)
	archives := []Archive{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !pattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, Archive{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(archives, func(i, j int) bool {
		if archives[i].ModTime.Equal(archives[j].ModTime) {
			return archives[i].Name > archives[j].Name
		}
		return archives[i].ModTime.After(archives[j].ModTime)
	})
	return archives, nil
}

// EnforceRetention deletes all but the keep newest archives of name in dest
// and returns the names it removed. keep <= 0 keeps everything.
func EnforceRetention(dest, name string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	archives, err := ListArchives(dest, name)
	if err != nil {
		return nil, err
	}
	if len(archives) <= keep {
		return nil, nil
	}

	var removed []string
	for _, a := range archives[keep:] {
		if err := os.Remove(filepath.Join(dest, a.Name)); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, a.Name)
	}
	return removed, nil
}
