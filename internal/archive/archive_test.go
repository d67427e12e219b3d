package archive

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

type entry struct {
	name    string
	content string
	nonUTF8 bool
}

func writeZip(t *testing.T, path string, entries ...entry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, e := range entries {
		dst, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, NonUTF8: e.nonUTF8})
		require.NoError(t, err)
		_, err = dst.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestExtract(t *testing.T) {
	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "DOC001.zip")
	writeZip(t, zipPath,
		entry{name: "visualinfo/DOC001_visualinfo.json", content: `{"elements":[]}`},
		entry{name: "DOC001.pdf", content: "%PDF-1.4"},
	)

	dir, err := Extract(zipPath, filepath.Join(tmp, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "out", "DOC001"), dir)

	data, err := os.ReadFile(filepath.Join(dir, "visualinfo", "DOC001_visualinfo.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"elements":[]}`, string(data))
	assert.FileExists(t, filepath.Join(dir, "DOC001.pdf"))
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "evil.zip")
	writeZip(t, zipPath, entry{name: "../escaped.txt", content: "x"})

	_, err := Extract(zipPath, filepath.Join(tmp, "out"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(tmp, "out", "escaped.txt"))
	assert.NoFileExists(t, filepath.Join(tmp, "escaped.txt"))
}

func TestExtract_DecodesKoreanNames(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().String("문서.json")
	require.NoError(t, err)

	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "kr.zip")
	writeZip(t, zipPath, entry{name: encoded, content: "{}", nonUTF8: true})

	dir, err := Extract(zipPath, tmp)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "문서.json"))
}

func TestSafeJoin(t *testing.T) {
	root := filepath.Join("base", "doc")
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"a/b.json", false},
		{"./a.json", false},
		{"a/../b.json", false},
		{"../x", true},
		{"a/../../x", true},
		{"/etc/passwd", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := safeJoin(root, tt.name)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsafePath))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecompress_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "DOC002")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "visualinfo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "visualinfo", "DOC002_visualinfo.json"), []byte(`{"elements":[{"id":"e1"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "DOC002.pdf"), []byte("%PDF"), 0o644))

	zipPath, err := Recompress(src, filepath.Join(tmp, "fixed"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "fixed", "DOC002.zip"), zipPath)

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
	}
	require.NoError(t, r.Close())
	assert.ElementsMatch(t, []string{"DOC002.pdf", "visualinfo/DOC002_visualinfo.json"}, names)

	dir, err := Extract(zipPath, filepath.Join(tmp, "again"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "visualinfo", "DOC002_visualinfo.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"elements":[{"id":"e1"}]}`, string(data))
}

func TestFindArchives(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "sub"), 0o755))
	for _, name := range []string{"b.zip", "a.ZIP", "sub/c.zip", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmp, name), nil, 0o644))
	}

	found, err := FindArchives(tmp)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(tmp, "a.ZIP"),
		filepath.Join(tmp, "b.zip"),
		filepath.Join(tmp, "sub", "c.zip"),
	}, found)

	single, err := FindArchives(filepath.Join(tmp, "b.zip"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tmp, "b.zip")}, single)

	none, err := FindArchives(filepath.Join(tmp, "notes.txt"))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = FindArchives(filepath.Join(tmp, "missing"))
	assert.Error(t, err)
}

func TestReadFirst(t *testing.T) {
	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "doc.zip")
	writeZip(t, zipPath,
		entry{name: "readme.txt", content: "hi"},
		entry{name: "first.PDF", content: "one"},
		entry{name: "second.pdf", content: "two"},
	)

	data, name, err := ReadFirst(zipPath, ".pdf")
	require.NoError(t, err)
	assert.Equal(t, "first.PDF", name)
	assert.Equal(t, "one", string(data))

	_, _, err = ReadFirst(zipPath, ".json")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestNames(t *testing.T) {
	a := filepath.Join("in", "a", "doc.zip")
	b := filepath.Join("in", "b", "doc.zip")
	c := filepath.Join("in", "a", "other.zip")

	names := Names([]string{a, b, c, a})
	require.Len(t, names, 3)
	assert.Equal(t, "other", names[c])
	assert.NotEqual(t, names[a], names[b])
	assert.True(t, strings.HasPrefix(names[a], "doc-"), names[a])
	assert.True(t, strings.HasPrefix(names[b], "doc-"), names[b])
	assert.Equal(t, names, Names([]string{a, b, c}))

	assert.Equal(t, map[string]string{a: "doc"}, Names([]string{a, a}))
}

func TestExtractAs(t *testing.T) {
	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "doc.zip")
	writeZip(t, zipPath, entry{name: "visualinfo/doc_visualinfo.json", content: "{}"})
	dest := filepath.Join(tmp, "out")

	dir, err := ExtractAs(zipPath, dest, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "doc-1"), dir)
	assert.FileExists(t, filepath.Join(dir, "visualinfo", "doc_visualinfo.json"))

	for _, bad := range []string{"", "..", "a/b"} {
		_, err := ExtractAs(zipPath, dest, bad)
		assert.ErrorIs(t, err, ErrUnsafePath, bad)
	}
}
