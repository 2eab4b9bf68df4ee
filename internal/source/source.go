// Package source resolves a MangaRef + page index into the raw bytes of
// that page's image, whether the ref names a loose image file, a directory
// of numbered pages, or a comic archive (zip/cbz, rar/cbr, tar variants).
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mholt/archiver/v3"
)

var imageExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".bmp": true, ".gif": true,
}

// ErrPageOutOfRange is returned when pageIndex has no corresponding entry.
type ErrPageOutOfRange struct {
	MangaRef  string
	PageIndex int
	PageCount int
}

func (e *ErrPageOutOfRange) Error() string {
	return fmt.Sprintf("source: page %d out of range for %q (%d pages)", e.PageIndex, e.MangaRef, e.PageCount)
}

// Loader resolves page bytes for a MangaRef. Implementations may be slow
// (archive scan, disk I/O); callers should treat Load as a suspension point.
type Loader interface {
	Load(mangaRef string, pageIndex int) ([]byte, error)
}

// FileLoader is the default Loader: MangaRef is an absolute path to either
// a loose image, a directory of images, or a supported archive file.
type FileLoader struct{}

// NewFileLoader returns a Loader backed by the local filesystem.
func NewFileLoader() *FileLoader { return &FileLoader{} }

// Load reads page pageIndex (0-based) from mangaRef.
func (l *FileLoader) Load(mangaRef string, pageIndex int) ([]byte, error) {
	info, err := os.Stat(mangaRef)
	if err != nil {
		return nil, fmt.Errorf("source: stat %q: %w", mangaRef, err)
	}

	switch {
	case info.IsDir():
		return loadFromDir(mangaRef, pageIndex)
	case isArchive(mangaRef):
		return loadFromArchive(mangaRef, pageIndex)
	default:
		if pageIndex != 0 {
			return nil, &ErrPageOutOfRange{MangaRef: mangaRef, PageIndex: pageIndex, PageCount: 1}
		}
		data, err := os.ReadFile(mangaRef)
		if err != nil {
			return nil, fmt.Errorf("source: read %q: %w", mangaRef, err)
		}
		return data, nil
	}
}

func isArchive(path string) bool {
	if strings.HasSuffix(strings.ToLower(path), ".tar.gz") {
		return true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".cbz", ".rar", ".cbr", ".tar", ".tar.gz", ".tgz":
		return true
	}
	return false
}

func loadFromDir(dir string, pageIndex int) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("source: read dir %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExt[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if pageIndex < 0 || pageIndex >= len(names) {
		return nil, &ErrPageOutOfRange{MangaRef: dir, PageIndex: pageIndex, PageCount: len(names)}
	}
	data, err := os.ReadFile(filepath.Join(dir, names[pageIndex]))
	if err != nil {
		return nil, fmt.Errorf("source: read page file: %w", err)
	}
	return data, nil
}

// loadFromArchive walks the archive's entries without extracting to disk,
// collecting image-like members in name order, then returns the one at
// pageIndex.
func loadFromArchive(archivePath string, pageIndex int) ([]byte, error) {
	type member struct {
		name string
		data []byte
	}
	var members []member

	err := archiver.Walk(archivePath, func(f archiver.File) error {
		defer f.Close()
		if f.IsDir() {
			return nil
		}
		name := f.Name()
		if !imageExt[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("source: read archive member %q: %w", name, err)
		}
		members = append(members, member{name: name, data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: walk archive %q: %w", archivePath, err)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })

	if pageIndex < 0 || pageIndex >= len(members) {
		return nil, &ErrPageOutOfRange{MangaRef: archivePath, PageIndex: pageIndex, PageCount: len(members)}
	}
	return members[pageIndex].data, nil
}
