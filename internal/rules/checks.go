package rules

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"labelqc/internal/quality"
	"labelqc/internal/visualinfo"
)

type rule struct {
	id          string
	name        string
	severity    quality.Severity
	category    quality.Category
	autoFixable bool
	check       func(v *Validator, r rule, s *scan) []finding
}

// ruleTable is the registered rule order. Output order follows it.
var ruleTable = []rule{
	{"R001", "EmptyText", quality.SeverityError, quality.CategoryLabelContent, true, checkEmptyText},
	{"R002", "LabelConsistency", quality.SeverityWarning, quality.CategoryLabelType, true, checkLabelConsistency},
	{"R003", "TitlePattern", quality.SeverityWarning, quality.CategoryLabelType, true, checkTitlePattern},
	{"R004", "DateFormat", quality.SeverityWarning, quality.CategoryLabelType, true, checkDateFormat},
	{"R005", "TableStructure", quality.SeverityError, quality.CategoryStructure, false, checkTableStructure},
	{"R006", "OrderConsistency", quality.SeverityWarning, quality.CategoryStructure, true, checkOrderConsistency},
	{"R007", "Duplicate", quality.SeverityWarning, quality.CategoryConsistency, true, checkDuplicate},
	{"R008", "ForbiddenLabel", quality.SeverityError, quality.CategoryLabelType, true, checkForbiddenLabel},
	{"R009", "SpecificTextLabel", quality.SeverityWarning, quality.CategoryLabelType, true, checkSpecificTextLabel},
	{"R010", "LegalStructure", quality.SeverityWarning, quality.CategoryLabelType, true, checkLegalStructure},
}

// issue builds a finding carrying the rule's severity, category and
// fixability.
func (r rule) issue(s *scan, it item, message, suggestedFix string, metadata map[string]any) finding {
	page := it.el.PageIndex()
	return finding{index: it.index, issue: quality.NewIssue(quality.IssueSpec{
		RuleID:       r.id,
		Severity:     r.severity,
		Message:      message,
		FilePath:     s.path,
		ElementID:    it.el.Ref(),
		PageIndex:    &page,
		Category:     r.category,
		SuggestedFix: suggestedFix,
		AutoFixable:  r.autoFixable,
		Metadata:     metadata,
	})}
}

func (r rule) relabel(s *scan, it item, message string, newLabel visualinfo.Label, extra map[string]any) finding {
	return finding{index: it.index, issue: quality.NewLabelIssue(
		r.id, message, s.path, it.el.Ref(), it.el.PageIndex(),
		string(it.el.Label()), string(newLabel), extra,
	)}
}

func checkEmptyText(_ *Validator, r rule, s *scan) []finding {
	var out []finding
	for _, it := range s.items {
		if it.el.Text() == "" {
			out = append(out, r.issue(s, it, "empty text element", "remove the element or add text", nil))
		}
	}
	return out
}

// normalizePattern folds text into the key R002 groups by: NFC, lower case,
// ASCII digits and non-word characters removed.
func normalizePattern(text string) string {
	text = strings.ToLower(norm.NFC.String(text))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return -1
		case r == '_', unicode.IsLetter(r), unicode.IsNumber(r):
			return r
		default:
			return -1
		}
	}, text)
}

func checkLabelConsistency(v *Validator, r rule, s *scan) []finding {
	type group struct {
		counts map[visualinfo.Label]int
		order  []visualinfo.Label
	}
	groups := make(map[string]*group)
	keys := make([]string, len(s.items))

	for i, it := range s.items {
		label := it.el.Label()
		text := it.el.Text()
		if text == "" || label == "" {
			continue
		}
		key := normalizePattern(text)
		if utf8.RuneCountInString(key) < v.set.ConsistencyMinLength {
			continue
		}
		keys[i] = key
		g, ok := groups[key]
		if !ok {
			g = &group{counts: make(map[visualinfo.Label]int)}
			groups[key] = g
		}
		if g.counts[label] == 0 {
			g.order = append(g.order, label)
		}
		g.counts[label]++
	}

	// majority label per group; ties go to the label seen first
	majority := make(map[string]visualinfo.Label, len(groups))
	for key, g := range groups {
		if len(g.order) < 2 {
			continue
		}
		best := g.order[0]
		for _, l := range g.order[1:] {
			if g.counts[l] > g.counts[best] {
				best = l
			}
		}
		majority[key] = best
	}

	var out []finding
	for i, it := range s.items {
		want, ok := majority[keys[i]]
		if !ok || keys[i] == "" || it.el.Label() == want {
			continue
		}
		message := fmt.Sprintf("label '%s' differs from '%s' used for similar text", it.el.Label(), want)
		out = append(out, r.relabel(s, it, message, want, nil))
	}
	return out
}

func checkTitlePattern(v *Validator, r rule, s *scan) []finding {
	var out []finding
	for _, it := range s.items {
		text := it.el.Text()
		if text == "" || !matchAny(v.titles, text) {
			continue
		}
		if _, ok := v.titleLabels[it.el.Label()]; ok {
			continue
		}
		message := fmt.Sprintf("heading-like text labeled '%s'", it.el.Label())
		out = append(out, r.relabel(s, it, message, visualinfo.LabelParaTitle, nil))
	}
	return out
}

func checkDateFormat(v *Validator, r rule, s *scan) []finding {
	var out []finding
	for _, it := range s.items {
		text := it.el.Text()
		if text == "" || !matchAny(v.dates, text) || it.el.Label() == visualinfo.LabelDate {
			continue
		}
		message := fmt.Sprintf("date literal labeled '%s'", it.el.Label())
		out = append(out, r.relabel(s, it, message, visualinfo.LabelDate, nil))
	}
	return out
}

func checkTableStructure(_ *Validator, r rule, s *scan) []finding {
	var out []finding
	for _, it := range s.items {
		if it.el.IsTable() && len(it.el.Cells()) == 0 {
			out = append(out, r.issue(s, it, "table has no cells", "", nil))
		}
	}
	return out
}

func checkOrderConsistency(_ *Validator, r rule, s *scan) []finding {
	type slot struct {
		current, expected int
	}
	pages := make(map[int][]int)
	for i, it := range s.items {
		pages[it.el.PageIndex()] = append(pages[it.el.PageIndex()], i)
	}

	slots := make(map[int]slot)
	for _, members := range pages {
		sorted := append([]int(nil), members...)
		sort.SliceStable(sorted, func(a, b int) bool {
			return s.items[sorted[a]].el.Top() < s.items[sorted[b]].el.Top()
		})
		for expected, idx := range sorted {
			slots[idx] = slot{expected: expected}
		}
		for current, idx := range members {
			sl := slots[idx]
			sl.current = current
			slots[idx] = sl
		}
	}

	var out []finding
	for i, it := range s.items {
		sl := slots[i]
		if sl.current == sl.expected {
			continue
		}
		message := fmt.Sprintf("element out of reading order (current: %d, expected: %d)", sl.current, sl.expected)
		out = append(out, r.issue(s, it, message, "reorder elements by position", map[string]any{
			quality.MetaCurrentPosition:  sl.current,
			quality.MetaExpectedPosition: sl.expected,
		}))
	}
	return out
}

func checkDuplicate(v *Validator, r rule, s *scan) []finding {
	seen := make(map[string]string)
	var out []finding
	for _, it := range s.items {
		text := it.el.Text()
		if utf8.RuneCountInString(text) < v.set.DuplicateMinLength {
			continue
		}
		first, ok := seen[text]
		if !ok {
			seen[text] = it.el.Ref()
			continue
		}
		message := fmt.Sprintf("duplicate text: %s", truncate(text, 50))
		out = append(out, r.issue(s, it, message, "remove or merge the duplicate element", map[string]any{
			quality.MetaDuplicateOf: first,
			quality.MetaText:        text,
		}))
	}
	return out
}

func checkForbiddenLabel(v *Validator, r rule, s *scan) []finding {
	var out []finding
	for _, it := range s.items {
		label := it.el.Label()
		if _, ok := v.forbidden[label]; !ok {
			continue
		}
		out = append(out, r.issue(s, it, fmt.Sprintf("forbidden label: %s", label), "change to an allowed label",
			map[string]any{quality.MetaOldLabel: string(label)}))
	}
	return out
}

func checkSpecificTextLabel(v *Validator, r rule, s *scan) []finding {
	var out []finding
	for _, it := range s.items {
		text := it.el.Text()
		if _, ok := v.specificTexts[text]; !ok || it.el.Label() == visualinfo.LabelParaText {
			continue
		}
		message := fmt.Sprintf("'%s' must be labeled ParaText, not '%s'", text, it.el.Label())
		out = append(out, r.relabel(s, it, message, visualinfo.LabelParaText, nil))
	}
	return out
}

// checkLegalStructure labels statute headings as ParaTitle and numbered
// sub-items of an article as ListText. A sub-item is inside an article when
// the nearest preceding non-empty element is an article heading or another
// sub-item that is itself inside an article.
func checkLegalStructure(v *Validator, r rule, s *scan) []finding {
	var out []finding
	inArticle := false
	for _, it := range s.items {
		text := it.el.Text()
		if text == "" {
			continue
		}
		label := it.el.Label()

		if matchAny(v.statutes, text) {
			if label != visualinfo.LabelParaTitle {
				message := fmt.Sprintf("statute heading labeled '%s': %s", label, truncate(text, 50))
				out = append(out, r.relabel(s, it, message, visualinfo.LabelParaTitle, map[string]any{
					quality.MetaTargetType: string(visualinfo.TypeHeading),
				}))
			}
			inArticle = v.article != nil && v.article.MatchString(text)
			continue
		}

		if inArticle && matchAny(v.subItems, text) {
			if label != visualinfo.LabelListText {
				message := fmt.Sprintf("article sub-item labeled '%s': %s", label, truncate(text, 50))
				out = append(out, r.relabel(s, it, message, visualinfo.LabelListText, map[string]any{
					quality.MetaTargetType: string(visualinfo.TypeList),
				}))
			}
			continue
		}
		inArticle = false
	}
	return out
}

func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}
