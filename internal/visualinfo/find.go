package visualinfo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned by Find when a directory holds no visual-info file.
var ErrNotFound = errors.New("visual-info file not found")

// Suffix is the conventional file name suffix of visual-info files.
const Suffix = "_visualinfo.json"

// Find locates the visual-info file of an extracted document directory:
// visualinfo/*_visualinfo.json, falling back to any visualinfo/*.json.
// When several match, the lexically first is returned.
func Find(dir string) (string, error) {
	viDir := filepath.Join(dir, "visualinfo")
	entries, err := os.ReadDir(viDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	var named, other []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, Suffix):
			named = append(named, name)
		case strings.EqualFold(filepath.Ext(name), ".json"):
			other = append(other, name)
		}
	}
	for _, names := range [][]string{named, other} {
		if len(names) > 0 {
			sort.Strings(names)
			return filepath.Join(viDir, names[0]), nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
}

// Key returns the document key of a visual-info path: the base name without
// the _visualinfo.json (or .json) suffix.
func Key(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, Suffix) {
		return strings.TrimSuffix(base, Suffix)
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
