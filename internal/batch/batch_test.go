package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelqc/internal/fixer"
	"labelqc/internal/rules"
	"labelqc/internal/visualinfo"
)

func el(id, label, typ, text string) string {
	return fmt.Sprintf(`{"id": %q, "pageIndex": 0, "category": {"label": %q, "type": %q}, "content": {"text": %q}}`,
		id, label, typ, text)
}

func docJSON(elements ...string) string {
	return `{"elements": [` + strings.Join(elements, ",\n") + `]}`
}

// needsFixing has an R009 relabel and an empty paragraph.
var needsFixing = docJSON(
	el("e1", "ListText", "LIST", "원문"),
	el("e2", "ParaText", "PARAGRAPH", ""),
)

var clean = docJSON(el("e1", "ParaText", "PARAGRAPH", "정상 문단입니다"))

func writeArchive(t *testing.T, dir, key, doc string) string {
	t.Helper()
	path := filepath.Join(dir, key+".zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	dst, err := w.Create("visualinfo/" + key + visualinfo.Suffix)
	require.NoError(t, err)
	_, err = dst.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func writeDocDir(t *testing.T, root, key, doc string) string {
	t.Helper()
	dir := filepath.Join(root, key)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "visualinfo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visualinfo", key+visualinfo.Suffix), []byte(doc), 0o644))
	return dir
}

func TestRun_ValidateKeepsInputOrder(t *testing.T) {
	root := t.TempDir()
	var inputs []string
	for i := 0; i < 6; i++ {
		doc := clean
		if i%2 == 0 {
			doc = needsFixing
		}
		inputs = append(inputs, writeArchive(t, root, fmt.Sprintf("DOC%d", i), doc))
	}

	var mu sync.Mutex
	calls := 0
	p, err := New(Options{
		Mode:       ModeValidate,
		Workers:    3,
		RuleSet:    rules.DefaultRuleSet(),
		ExtractDir: filepath.Join(root, "extracted"),
		Progress: func(done, total int, _ Result) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			assert.Equal(t, 6, total)
		},
	})
	require.NoError(t, err)

	results := p.Run(context.Background(), inputs)
	require.Len(t, results, 6)
	assert.Equal(t, 6, calls)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, inputs[i], r.Input)
		assert.Equal(t, inputs[i], r.Summary.Source)
		require.NoError(t, r.Err)
		if i%2 == 0 {
			assert.Equal(t, StatusWarning, r.Status)
			assert.NotEmpty(t, r.Summary.Issues)
		} else {
			assert.Equal(t, StatusSuccess, r.Status, r.Summary.Issues)
		}
	}
	assert.Equal(t, map[Status]int{StatusSuccess: 3, StatusWarning: 3, StatusError: 0}, Count(results))
}

func TestRun_FixSavesAndRecompresses(t *testing.T) {
	root := t.TempDir()
	input := writeArchive(t, root, "DOCX", needsFixing)
	out := filepath.Join(root, "fixed")

	p, err := New(Options{
		Mode:       ModeFix,
		RuleSet:    rules.DefaultRuleSet(),
		ExtractDir: filepath.Join(root, "extracted"),
		OutputDir:  out,
	})
	require.NoError(t, err)

	results := p.Run(context.Background(), []string{input})
	require.Len(t, results, 1)
	r := results[0]
	require.NoError(t, r.Err)
	assert.Equal(t, StatusSuccess, r.Status)
	assert.NotEmpty(t, r.Summary.Issues)
	assert.Empty(t, r.Summary.IssuesAfter)
	assert.Len(t, r.Summary.Fixes[fixer.PassLabels], 1)
	assert.Len(t, r.Summary.Fixes[fixer.PassUnnecessary], 1)
	assert.Equal(t, filepath.Join(out, "DOCX.zip"), r.Summary.Output)

	saved, err := visualinfo.Load(r.Summary.Path)
	require.NoError(t, err)
	require.Len(t, saved.Elements, 1)
	assert.Equal(t, visualinfo.LabelParaText, saved.Elements[0].Label())

	zr, err := zip.OpenReader(r.Summary.Output)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "visualinfo/DOCX"+visualinfo.Suffix, zr.File[0].Name)
}

func TestRun_FixDryRunLeavesFiles(t *testing.T) {
	root := t.TempDir()
	dir := writeDocDir(t, root, "DOCY", needsFixing)
	path := filepath.Join(dir, "visualinfo", "DOCY"+visualinfo.Suffix)

	p, err := New(Options{Mode: ModeFix, RuleSet: rules.DefaultRuleSet(), DryRun: true})
	require.NoError(t, err)

	results := p.Run(context.Background(), []string{dir})
	require.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Summary.Fixes[fixer.PassLabels])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, needsFixing, string(data))
}

func TestRun_ReportsPerInputErrors(t *testing.T) {
	root := t.TempDir()
	good := writeDocDir(t, root, "GOOD", clean)
	empty := filepath.Join(root, "EMPTY")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	p, err := New(Options{Mode: ModeFix, RuleSet: rules.DefaultRuleSet()})
	require.NoError(t, err)

	results := p.Run(context.Background(), []string{empty, good})
	assert.Equal(t, StatusError, results[0].Status)
	assert.ErrorIs(t, results[0].Err, fixer.ErrVisualInfoNotFound)
	assert.Equal(t, empty, results[0].Summary.Path)
	assert.NotEmpty(t, results[0].Summary.Error)
	assert.Equal(t, StatusSuccess, results[1].Status)
}

func TestRun_CancelledContext(t *testing.T) {
	root := t.TempDir()
	inputs := []string{writeDocDir(t, root, "A", clean), writeDocDir(t, root, "B", clean)}

	p, err := New(Options{RuleSet: rules.DefaultRuleSet()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := p.Run(ctx, inputs)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, StatusError, r.Status)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := New(Options{Mode: "publish", RuleSet: rules.DefaultRuleSet()})
	assert.Error(t, err)

	set := rules.DefaultRuleSet()
	set.TitlePatterns = []string{"("}
	_, err = New(Options{RuleSet: set})
	assert.ErrorIs(t, err, rules.ErrInvalidRuleSet)
}

func TestDiscover(t *testing.T) {
	withArchives := t.TempDir()
	a := writeArchive(t, withArchives, "A", clean)
	found, err := Discover(withArchives)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, found)

	docRoot := t.TempDir()
	d2 := writeDocDir(t, docRoot, "D2", clean)
	d1 := writeDocDir(t, docRoot, "D1", clean)
	require.NoError(t, os.MkdirAll(filepath.Join(docRoot, "other"), 0o755))
	found, err = Discover(docRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{d1, d2}, found)

	found, err = Discover(d1)
	require.NoError(t, err)
	assert.Equal(t, []string{d1}, found)

	file := filepath.Join(d1, "visualinfo", "D1"+visualinfo.Suffix)
	found, err = Discover(file)
	require.NoError(t, err)
	assert.Equal(t, []string{file}, found)

	_, err = Discover(filepath.Join(docRoot, "missing"))
	assert.Error(t, err)
}

func TestRun_FixKeepsSameNamedArchivesApart(t *testing.T) {
	root := t.TempDir()
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, sub), 0o755))
	}
	first := writeArchive(t, filepath.Join(root, "a"), "doc", needsFixing)
	second := writeArchive(t, filepath.Join(root, "b"), "doc", clean)
	out := filepath.Join(root, "fixed")

	p, err := New(Options{
		Mode:       ModeFix,
		Workers:    2,
		RuleSet:    rules.DefaultRuleSet(),
		ExtractDir: filepath.Join(root, "extracted"),
		OutputDir:  out,
	})
	require.NoError(t, err)

	results := p.Run(context.Background(), []string{first, second, first})
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.NotEqual(t, results[0].Summary.Output, results[1].Summary.Output)
	assert.NotEqual(t, filepath.Dir(results[0].Summary.Path), filepath.Dir(results[1].Summary.Path))
	assert.ErrorIs(t, results[2].Err, ErrDuplicateInput)
	assert.Equal(t, StatusError, results[2].Status)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	saved, err := visualinfo.Load(results[0].Summary.Path)
	require.NoError(t, err)
	require.Len(t, saved.Elements, 1)
	assert.Equal(t, visualinfo.LabelParaText, saved.Elements[0].Label())
}
