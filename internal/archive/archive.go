// Package archive unpacks labeled document archives and packs fixed
// documents back into ZIP files.
//
// Archives produced on Korean Windows machines often store entry names in
// EUC-KR without setting the UTF-8 flag; such names are decoded before they
// touch the filesystem.
package archive

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/korean"

	"labelqc/internal/logger"
)

// Ext is the extension of document archives.
const Ext = ".zip"

var (
	// ErrUnsafePath is returned when an entry would be written outside the
	// extraction directory.
	ErrUnsafePath = errors.New("archive entry escapes extraction directory")

	// ErrEntryNotFound is returned by ReadFirst and ReadMatch when no entry
	// matches.
	ErrEntryNotFound = errors.New("no matching archive entry")
)

// Extract unpacks zipPath into destBase/<archive name without extension> and
// returns that directory. A previous extraction of the same archive is
// removed first.
func Extract(zipPath, destBase string) (string, error) {
	return ExtractAs(zipPath, destBase, Stem(zipPath))
}

// ExtractAs unpacks zipPath into destBase/name, replacing any previous
// content of that directory. Use Names to pick collision-free names.
func ExtractAs(zipPath, destBase, name string) (string, error) {
	const op = "Extract"
	log := logger.WithFile("archive", zipPath)

	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%s: %q: %w", op, name, ErrUnsafePath)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("%s: failed to open %s: %w", op, zipPath, err)
	}
	defer r.Close()

	dir := filepath.Join(destBase, name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("%s: failed to clear %s: %w", op, dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%s: failed to create %s: %w", op, dir, err)
	}

	files := 0
	for _, f := range r.File {
		entry := EntryName(f.Name)
		target, err := safeJoin(dir, entry)
		if err != nil {
			return "", fmt.Errorf("%s: %s: %w", op, entry, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", fmt.Errorf("%s: failed to create %s: %w", op, target, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return "", fmt.Errorf("%s: failed to extract %s: %w", op, entry, err)
		}
		files++
	}

	log.Debug().Str("dir", dir).Int("files", files).Msg("Extracted archive")
	return dir, nil
}

// Stem returns the archive file name without its extension.
func Stem(zipPath string) string {
	return strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
}

// Names maps each archive path to a directory name for extraction and
// recompression. The name is the stem, with a short hash of the absolute path
// appended when several archives share that stem.
func Names(paths []string) map[string]string {
	stems := make(map[string]map[string]bool, len(paths))
	for _, p := range paths {
		stem := Stem(p)
		if stems[stem] == nil {
			stems[stem] = map[string]bool{}
		}
		stems[stem][absPath(p)] = true
	}

	out := make(map[string]string, len(paths))
	for _, p := range paths {
		stem := Stem(p)
		if len(stems[stem]) > 1 {
			h := fnv.New32a()
			h.Write([]byte(absPath(p)))
			stem = fmt.Sprintf("%s-%08x", stem, h.Sum32())
		}
		out[p] = stem
	}
	return out
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// EntryName returns the entry name as UTF-8. Names that are not valid UTF-8
// are decoded as EUC-KR; if that fails too the raw name is returned.
func EntryName(name string) string {
	if utf8.ValidString(name) {
		return name
	}
	decoded, err := korean.EUCKR.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return decoded
}

func safeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", ErrUnsafePath
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	root := filepath.Clean(dir)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", ErrUnsafePath
	}
	return target, nil
}

// Recompress packs every regular file below dir into outDir/<dir name>.zip
// with paths relative to dir. The archive is removed again if writing fails.
func Recompress(dir, outDir string) (zipPath string, err error) {
	const op = "Recompress"
	log := logger.WithFile("archive", dir)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%s: failed to create %s: %w", op, outDir, err)
	}
	zipPath = filepath.Join(outDir, filepath.Base(filepath.Clean(dir))+Ext)

	out, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("%s: failed to create %s: %w", op, zipPath, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(zipPath)
		}
	}()

	w := zip.NewWriter(out)
	files := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() || path == zipPath {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err := addFile(w, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err = w.Close(); err != nil {
		return "", fmt.Errorf("%s: failed to finish %s: %w", op, zipPath, err)
	}
	if err = out.Close(); err != nil {
		return "", fmt.Errorf("%s: failed to close %s: %w", op, zipPath, err)
	}

	log.Debug().Str("archive", zipPath).Int("files", files).Msg("Recompressed directory")
	return zipPath, nil
}

func addFile(w *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := w.CreateHeader(header)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

// FindArchives returns the archives under root in lexical order. A root that
// is itself an archive is returned as the only result.
func FindArchives(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if IsArchive(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var found []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsArchive(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// IsArchive reports whether path names a ZIP file.
func IsArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Ext)
}

// ReadFirst returns the content and decoded name of the first entry, in
// archive order, whose extension matches ext (case-insensitive).
func ReadFirst(zipPath, ext string) ([]byte, string, error) {
	return ReadMatch(zipPath, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ext)
	})
}

// ReadMatch returns the content and decoded name of the first file entry, in
// archive order, for which match reports true.
func ReadMatch(zipPath string, match func(name string) bool) ([]byte, string, error) {
	const op = "ReadMatch"

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, "", fmt.Errorf("%s: failed to open %s: %w", op, zipPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		name := EntryName(f.Name)
		if f.FileInfo().IsDir() || !match(name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, name, fmt.Errorf("%s: failed to open %s: %w", op, name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, name, fmt.Errorf("%s: failed to read %s: %w", op, name, err)
		}
		return data, name, nil
	}
	return nil, "", fmt.Errorf("%s: %s: %w", op, zipPath, ErrEntryNotFound)
}
