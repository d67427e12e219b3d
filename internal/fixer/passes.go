package fixer

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"labelqc/internal/quality"
	"labelqc/internal/rules"
	"labelqc/internal/visualinfo"
)

// Metadata keys used in fix results.
const (
	MetaElementID   = "element_id"
	MetaReason      = "reason"
	MetaRules       = "rules"
	MetaRemovedTags = "removed_tags"
	MetaLayout      = "layout"
	MetaMoved       = "moved"
)

// Removal reasons reported by the unnecessary pass.
const (
	ReasonStoplist  = "stoplist"
	ReasonEmptyText = "empty_text"
)

// removeUnnecessary drops boilerplate elements and, when enabled, textual
// elements without text. Survivors keep their order. Tables and malformed
// elements are never removed.
func (f *Fixer) removeUnnecessary() []quality.FixResult {
	var results []quality.FixResult
	kept := make([]*visualinfo.Element, 0, len(f.doc.Elements))
	for _, e := range f.doc.Elements {
		reason := f.unnecessary(e)
		if reason == "" {
			kept = append(kept, e)
			continue
		}
		results = append(results, quality.Fixed(
			fmt.Sprintf("removed element %s", e.Ref()),
			e.RawText(), nil,
			map[string]any{MetaElementID: e.Ref(), MetaReason: reason},
		))
	}
	f.doc.Elements = kept
	return results
}

func (f *Fixer) unnecessary(e *visualinfo.Element) string {
	if e.Err() != nil || e.IsTable() {
		return ""
	}
	text := e.Text()
	for _, re := range f.stoplist {
		if text != "" && re.MatchString(text) {
			return ReasonStoplist
		}
	}
	if f.opts.PruneEmptyText && text == "" && e.Type().IsTextual() {
		return ReasonEmptyText
	}
	return ""
}

// normalizeLabels applies the label suggestions of the configured relabel
// rules. Each element receives at most one change. Conflicting suggestions,
// labels without a type mapping and tables are reported as not fixed.
func (f *Fixer) normalizeLabels() []quality.FixResult {
	if len(f.opts.RelabelRules) == 0 {
		return nil
	}
	suggestions := f.validator.Suggestions(f.doc, f.opts.RelabelRules...)

	byIndex := make(map[int][]rules.Suggestion)
	var order []int
	for _, s := range suggestions {
		if _, ok := byIndex[s.Index]; !ok {
			order = append(order, s.Index)
		}
		byIndex[s.Index] = append(byIndex[s.Index], s)
	}
	sort.Ints(order)

	var results []quality.FixResult
	for _, idx := range order {
		results = append(results, f.relabel(f.doc.Elements[idx], byIndex[idx]))
	}
	return results
}

func (f *Fixer) relabel(e *visualinfo.Element, suggestions []rules.Suggestion) quality.FixResult {
	description := fmt.Sprintf("relabel element %s", e.Ref())
	before := labelState(e)
	ruleIDs := make([]string, 0, len(suggestions))
	labels := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		ruleIDs = append(ruleIDs, s.RuleID)
		if !slices.Contains(labels, string(s.NewLabel)) {
			labels = append(labels, string(s.NewLabel))
		}
	}
	metadata := map[string]any{MetaElementID: e.Ref(), MetaRules: ruleIDs}

	if len(labels) > 1 {
		return quality.NotFixed(description, "conflicting suggestions: "+strings.Join(labels, ", "), before, metadata)
	}
	if e.IsTable() {
		return quality.NotFixed(description, "tables are not relabeled", before, metadata)
	}

	newLabel := suggestions[0].NewLabel
	newType, ok := visualinfo.TypeFor(newLabel)
	if !ok {
		return quality.NotFixed(description, fmt.Sprintf("no type mapping for label '%s'", newLabel), before, metadata)
	}
	if err := e.SetCategory(newLabel, newType); err != nil {
		return quality.NotFixed(description, err.Error(), before, metadata)
	}

	metadata[quality.MetaOldLabel] = before["label"]
	metadata[quality.MetaNewLabel] = string(newLabel)
	metadata[quality.MetaTargetType] = string(newType)
	return quality.Fixed(
		fmt.Sprintf("changed label of %s from '%s' to '%s'", e.Ref(), before["label"], newLabel),
		before, labelState(e), metadata,
	)
}

func labelState(e *visualinfo.Element) map[string]string {
	return map[string]string{"label": string(e.Label()), "type": string(e.Type())}
}

// reorder groups elements by page and sorts each page by bbox.top. It is a
// no-op unless ReorderElements is set.
func (f *Fixer) reorder() []quality.FixResult {
	if !f.opts.ReorderElements {
		return nil
	}
	sorted := append([]*visualinfo.Element(nil), f.doc.Elements...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PageIndex() != b.PageIndex() {
			return a.PageIndex() < b.PageIndex()
		}
		return a.Top() < b.Top()
	})

	moved := 0
	for i := range sorted {
		if sorted[i] != f.doc.Elements[i] {
			moved++
		}
	}
	if moved == 0 {
		return nil
	}

	before := elementRefs(f.doc.Elements)
	f.doc.Elements = sorted
	return []quality.FixResult{quality.Fixed(
		"reordered elements by page and position",
		before, elementRefs(sorted),
		map[string]any{MetaMoved: moved},
	)}
}

func elementRefs(elements []*visualinfo.Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.Ref()
	}
	return out
}

// stripForbiddenTags removes forbidden tags from every element's tag list.
func (f *Fixer) stripForbiddenTags() []quality.FixResult {
	var results []quality.FixResult
	for _, e := range f.doc.Elements {
		if e.Err() != nil || !e.HasTagList() {
			continue
		}
		tags := e.Tags()
		kept := make([]string, 0, len(tags))
		var removed []string
		for _, tag := range tags {
			if _, forbidden := f.forbiddenTags[tag]; forbidden {
				removed = append(removed, tag)
				continue
			}
			kept = append(kept, tag)
		}
		if len(removed) == 0 {
			continue
		}

		description := fmt.Sprintf("removed forbidden tags from %s", e.Ref())
		metadata := map[string]any{MetaElementID: e.Ref(), MetaRemovedTags: removed}
		if err := e.SetTags(kept); err != nil {
			results = append(results, quality.NotFixed(description, err.Error(), tags, metadata))
			continue
		}
		results = append(results, quality.Fixed(description, tags, kept, metadata))
	}
	return results
}
