package fixer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelqc/internal/quality"
	"labelqc/internal/rules"
	"labelqc/internal/visualinfo"
)

func el(id, label, typ, text string) string {
	return fmt.Sprintf(`{"id": %q, "pageIndex": 0, "category": {"label": %q, "type": %q}, "content": {"text": %q}}`,
		id, label, typ, text)
}

func elAt(id string, page int, top float64, text string) string {
	return fmt.Sprintf(`{"id": %q, "pageIndex": %d, "category": {"label": "ParaText", "type": "PARAGRAPH"}, "content": {"text": %q}, "bbox": {"top": %g}}`,
		id, page, text, top)
}

func docJSON(elements ...string) string {
	return `{"elements": [` + strings.Join(elements, ",\n") + `]}`
}

func writeDocDir(t *testing.T, elements ...string) string {
	t.Helper()
	dir := t.TempDir()
	vi := filepath.Join(dir, "visualinfo")
	require.NoError(t, os.MkdirAll(vi, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vi, "DOC_visualinfo.json"), []byte(docJSON(elements...)), 0o644))
	return dir
}

func newFixer(t *testing.T, opts []Option, elements ...string) *Fixer {
	t.Helper()
	doc, err := visualinfo.Parse([]byte(docJSON(elements...)))
	require.NoError(t, err)
	f, err := New(doc, filepath.Join(t.TempDir(), "doc_visualinfo.json"), opts...)
	require.NoError(t, err)
	return f
}

func issueKeys(issues []quality.Issue, autoFixable bool) []string {
	var out []string
	for _, i := range issues {
		if i.AutoFixable() == autoFixable {
			out = append(out, i.RuleID()+"@"+i.ElementID())
		}
	}
	return out
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(t.TempDir())
	var fixErr *FixError
	require.ErrorAs(t, err, &fixErr)
	assert.Equal(t, "Open", fixErr.Op)
	assert.ErrorIs(t, err, ErrVisualInfoNotFound)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "visualinfo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visualinfo", "x_visualinfo.json"), []byte(`[1, 2`), 0o644))
	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, visualinfo.ErrInvalidDocument)
}

func TestRunAll_AllPassesPresent(t *testing.T) {
	f := newFixer(t, nil, el("e1", "ParaText", "PARAGRAPH", "본문 내용입니다"))

	results := f.RunAll()
	for _, name := range PassNames {
		got, ok := results[name]
		assert.True(t, ok, name)
		assert.NotNil(t, got, name)
	}
	assert.Zero(t, quality.CountSuccessful(results))
}

func TestScenario_SpecificTextRelabel(t *testing.T) {
	dir := writeDocDir(t, el("e1", "ListText", "LIST", "원문"))
	f, err := Open(dir)
	require.NoError(t, err)

	results := f.RunAll()
	require.Len(t, results[PassLabels], 1)
	r := results[PassLabels][0]
	assert.True(t, r.Success())
	assert.Equal(t, "R009", r.Metadata()[MetaRules].([]string)[0])

	e := f.Document().Elements[0]
	assert.Equal(t, visualinfo.LabelParaText, e.Label())
	assert.Equal(t, visualinfo.TypeParagraph, e.Type())

	issues := f.Validator().Validate(f.Document(), f.Path())
	assert.NotContains(t, issueKeys(issues, true), "R009@e1")
}

func TestScenario_StatutePass(t *testing.T) {
	f := newFixer(t, []Option{WithRelabelRules("R009", "R010")}, el("e1", "ParaText", "PARAGRAPH", "제52편 총칙과 선거"))

	results := f.RunAll()
	require.Len(t, results[PassLabels], 1)
	assert.True(t, results[PassLabels][0].Success())

	e := f.Document().Elements[0]
	assert.Equal(t, visualinfo.LabelParaTitle, e.Label())
	assert.Equal(t, visualinfo.TypeHeading, e.Type())
}

func TestScenario_EmptyTextPruned(t *testing.T) {
	elements := []string{el("e1", "ParaText", "PARAGRAPH", ""), el("e2", "ParaText", "PARAGRAPH", "내용 있음")}

	f := newFixer(t, nil, elements...)
	results := f.RunAll()
	require.Len(t, results[PassUnnecessary], 1)
	assert.Equal(t, ReasonEmptyText, results[PassUnnecessary][0].Metadata()[MetaReason])
	require.Len(t, f.Document().Elements, 1)
	assert.Equal(t, "e2", f.Document().Elements[0].ID())
	assert.Empty(t, issueKeys(f.Validator().Validate(f.Document(), ""), true))

	kept := newFixer(t, []Option{WithPruneEmptyText(false)}, elements...)
	kept.RunAll()
	assert.Len(t, kept.Document().Elements, 2)
}

func TestScenario_EmptyTableUntouched(t *testing.T) {
	table := `{"id": "t1", "pageIndex": 0, "category": {"label": "Table", "type": "TABLE"}, "content": {"text": ""}, "table": {"cells": []}}`
	f := newFixer(t, nil, table)
	before := f.Document().Elements[0].Raw()

	f.RunAll()
	require.Len(t, f.Document().Elements, 1)
	assert.Equal(t, string(before), string(f.Document().Elements[0].Raw()))
	assert.Contains(t, issueKeys(f.Validator().Validate(f.Document(), ""), false), "R005@t1")
}

func TestUnnecessary_Stoplist(t *testing.T) {
	f := newFixer(t, nil,
		el("e1", "ParaText", "PARAGRAPH", "첨부자료 목록"),
		el("e2", "ParaText", "PARAGRAPH", "the  현안 보고"),
		el("e3", "ParaText", "PARAGRAPH", "로그인 화면"),
		el("e4", "ParaText", "PARAGRAPH", "시스템 로그"),
		el("e5", "RegionTitle", "HEADING", "헤더 영역 정보"),
	)

	results := f.RunAll()
	require.Len(t, results[PassUnnecessary], 4)
	for _, r := range results[PassUnnecessary] {
		assert.Equal(t, ReasonStoplist, r.Metadata()[MetaReason])
	}
	require.Len(t, f.Document().Elements, 1)
	assert.Equal(t, "e4", f.Document().Elements[0].ID())
}

func TestUnnecessary_TablesKept(t *testing.T) {
	table := `{"id": "t1", "category": {"label": "Table", "type": "TABLE"}, "content": {"text": "참고자료"}, "table": {"cells": []}}`
	f := newFixer(t, nil, table)

	results := f.RunAll()
	assert.Empty(t, results[PassUnnecessary])
	require.Len(t, f.Document().Elements, 1)
	assert.Contains(t, issueKeys(f.Validator().Validate(f.Document(), ""), false), "R005@t1")
}

func TestLabels_ConflictAndMissingMapping(t *testing.T) {
	f := newFixer(t, []Option{WithRelabelRules("R003", "R004", "R010")},
		el("h", "ParaText", "PARAGRAPH", "제1조 목적"),
		el("s", "ParaText", "PARAGRAPH", "1. 목적 규정"),
		el("d", "ParaText", "PARAGRAPH", "2021-02-03"),
	)

	results := f.RunAll()[PassLabels]
	require.Len(t, results, 3)

	assert.True(t, results[0].Success())
	assert.Equal(t, visualinfo.LabelParaTitle, f.Document().Elements[0].Label())

	assert.False(t, results[1].Success())
	assert.Contains(t, results[1].ErrorMessage(), "conflicting suggestions")
	assert.Equal(t, visualinfo.LabelParaText, f.Document().Elements[1].Label())

	assert.False(t, results[2].Success())
	assert.Contains(t, results[2].ErrorMessage(), "no type mapping")
	assert.Equal(t, results[2].Before(), results[2].After())
}

func TestLabelTypeSync(t *testing.T) {
	f := newFixer(t, []Option{WithRelabelRules("R002", "R003", "R009", "R010")},
		el("a", "ListText", "LIST", "번역문"),
		el("b", "ParaText", "LIST", "제3조 (정의)"),
		el("c", "ParaText", "PARAGRAPH", "(1) 첫째 정의"),
		el("d", "ParaTitle", "PARAGRAPH", "I. 서론"),
	)

	results := f.RunAll()[PassLabels]
	require.NotEmpty(t, results)
	for _, r := range results {
		if !r.Success() {
			continue
		}
		after := r.After().(map[string]string)
		want, ok := visualinfo.TypeFor(visualinfo.Label(after["label"]))
		require.True(t, ok)
		assert.Equal(t, string(want), after["type"])
	}
	assert.Equal(t, visualinfo.TypeHeading, f.Document().Elements[1].Type())
	assert.Equal(t, visualinfo.TypeList, f.Document().Elements[2].Type())
}

func TestReorder(t *testing.T) {
	elements := []string{
		elAt("p1", 1, 5, "둘째 페이지"),
		elAt("b", 0, 30, "아래 문단"),
		elAt("a", 0, 10, "위 문단"),
	}

	off := newFixer(t, nil, elements...)
	assert.Empty(t, off.RunAll()[PassOrder])
	assert.Equal(t, "p1", off.Document().Elements[0].ID())

	on := newFixer(t, []Option{WithReorder(true)}, elements...)
	results := on.RunAll()[PassOrder]
	require.Len(t, results, 1)
	assert.Equal(t, []string{"p1", "b", "a"}, results[0].Before())
	assert.Equal(t, []string{"a", "b", "p1"}, results[0].After())
	assert.Empty(t, on.RunAll()[PassOrder])
}

func TestTags(t *testing.T) {
	f := newFixer(t, nil,
		`{"id": "e1", "category": {"label": "ParaText", "type": "PARAGRAPH"}, "content": {"text": "본문 내용"}, "tags": ["연결", "keep", "요약"]}`,
		`{"id": "e2", "category": {"label": "ParaText", "type": "PARAGRAPH"}, "content": {"text": "다른 내용"}, "tags": ["keep"]}`,
	)

	results := f.RunAll()[PassTags]
	require.Len(t, results, 1)
	assert.Equal(t, []string{"연결", "요약"}, results[0].Metadata()[MetaRemovedTags])
	assert.Equal(t, []string{"keep"}, f.Document().Elements[0].Tags())
	assert.Equal(t, []string{"keep"}, f.Document().Elements[1].Tags())
}

func TestFixer_Idempotent(t *testing.T) {
	input := docJSON(
		el("e1", "ListText", "LIST", "원문"),
		el("e2", "ParaText", "PARAGRAPH", " "),
		el("e3", "ParaText", "PARAGRAPH", "참고자료"),
		`{"id": "t1", "category": {"label": "Table", "type": "TABLE"}, "content": {"text": "원문 번역 표"}, "table": {"cells": [
			{"row": 0, "col": 1, "content": {"text": "번역문"}},
			{"row": 1, "col": 0, "content": {"text": "본문 A"}},
			{"row": 0, "col": 0, "content": {"text": "원문"}},
			{"row": 1, "col": 1, "content": {"text": "Text A"}}
		]}}`,
		`{"id": "e4", "category": {"label": "ParaText", "type": "PARAGRAPH"}, "content": {"text": "제2조 정의"}, "tags": ["요약"]}`,
		`{"id": "bad", "category": 7}`,
	)
	opts := []Option{WithRelabelRules("R009", "R010"), WithReorder(true)}

	doc, err := visualinfo.Parse([]byte(input))
	require.NoError(t, err)
	first, err := New(doc, "", opts...)
	require.NoError(t, err)
	assert.NotZero(t, quality.CountSuccessful(first.RunAll()))
	once, err := first.Document().Encode()
	require.NoError(t, err)

	doc, err = visualinfo.Parse(once)
	require.NoError(t, err)
	second, err := New(doc, "", opts...)
	require.NoError(t, err)
	assert.Zero(t, quality.CountSuccessful(second.RunAll()))
	twice, err := second.Document().Encode()
	require.NoError(t, err)

	assert.Equal(t, string(once), string(twice))
	assert.Contains(t, string(twice), `{"id": "bad", "category": 7}`)
}

func TestFixer_MonotonicAndNonFixablePreserved(t *testing.T) {
	f := newFixer(t, nil,
		el("e1", "ListText", "LIST", "번역문"),
		el("e2", "ParaText", "PARAGRAPH", ""),
		el("e3", "ParaText", "PARAGRAPH", "별첨 1"),
		`{"id": "t1", "category": {"label": "Table", "type": "TABLE"}, "content": {"text": "빈 표"}, "table": {"cells": []}}`,
		`{"id": "e4", "category": {"label": "ParaText", "type": "PARAGRAPH"}, "content": {"text": "정상 문단"}, "tags": ["국가명"]}`,
	)
	v := f.Validator()

	before := v.Validate(f.Document(), "")
	require.NotEmpty(t, issueKeys(before, true))
	f.RunAll()
	after := v.Validate(f.Document(), "")

	assert.Less(t, len(after), len(before))
	assert.Equal(t, issueKeys(before, false), issueKeys(after, false))
}

func TestCustomRuleSet(t *testing.T) {
	set := rules.DefaultRuleSet()
	set.Stoplist = []string{"^DRAFT"}
	set.ForbiddenLabels = []string{"internal"}

	f := newFixer(t, []Option{WithRuleSet(set)},
		el("e1", "ParaText", "PARAGRAPH", "draft copy"),
		el("e2", "ParaText", "PARAGRAPH", "첨부자료"),
		`{"id": "e3", "category": {"label": "ParaText", "type": "PARAGRAPH"}, "content": {"text": "내용"}, "tags": ["internal", "연결"]}`,
	)
	results := f.RunAll()

	require.Len(t, results[PassUnnecessary], 1)
	assert.Equal(t, "e1", results[PassUnnecessary][0].Metadata()[MetaElementID])
	assert.Equal(t, []string{"연결"}, f.Document().Elements[1].Tags())

	set.Stoplist = []string{"(bad"}
	doc, err := visualinfo.Parse([]byte(docJSON()))
	require.NoError(t, err)
	_, err = New(doc, "", WithRuleSet(set))
	assert.ErrorIs(t, err, rules.ErrInvalidRuleSet)
}

func TestSave(t *testing.T) {
	dir := writeDocDir(t, el("e1", "ListText", "LIST", "원문"), el("e2", "ParaText", "PARAGRAPH", "그대로 둔 문단"))
	path := filepath.Join(dir, "visualinfo", "DOC_visualinfo.json")
	require.NoError(t, os.Chmod(path, 0o640))

	f, err := Open(dir)
	require.NoError(t, err)
	f.RunAll()
	require.NoError(t, f.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	saved, err := visualinfo.Load(path)
	require.NoError(t, err)
	assert.Equal(t, visualinfo.LabelParaText, saved.Elements[0].Label())
	assert.Contains(t, string(saved.Elements[1].Raw()), `"그대로 둔 문단"`)
}

func TestSave_FailureKeepsStateForRetry(t *testing.T) {
	parent := t.TempDir()
	target := filepath.Join(parent, "doc_visualinfo.json")
	// a non-empty directory in place of the file makes the final rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(target, "keep"), 0o755))

	doc, err := visualinfo.Parse([]byte(docJSON(el("e1", "ListText", "LIST", "원문"))))
	require.NoError(t, err)
	f, err := New(doc, target)
	require.NoError(t, err)
	f.RunAll()

	err = f.Save()
	var fixErr *FixError
	require.ErrorAs(t, err, &fixErr)
	assert.Equal(t, "Save", fixErr.Op)
	assert.ErrorIs(t, err, ErrSaveFailed)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is cleaned up")
	assert.DirExists(t, filepath.Join(target, "keep"))

	require.NoError(t, os.RemoveAll(target))
	require.NoError(t, f.Save())
	saved, err := visualinfo.Load(target)
	require.NoError(t, err)
	assert.Equal(t, visualinfo.LabelParaText, saved.Elements[0].Label())
}
