// Package rules implements the label validator: schema checks at the parse
// boundary followed by a fixed, ordered table of independent rules.
//
// Validation is pure. It never mutates the document, and two runs over the
// same document return identical issue slices: rule order outer, document
// order inner.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"labelqc/internal/logger"
	"labelqc/internal/quality"
	"labelqc/internal/visualinfo"
)

// Synthetic rule ids for problems found before the rule table runs.
const (
	RuleNoElements   = "S001"
	RuleMalformed    = "S002"
	RuleUnknownLabel = "S003"
	RuleSystemError  = "SYSTEM_ERROR"
)

const metaElementIndex = "element_index"

// Validator runs the rule table against documents. It is safe for concurrent
// use once built.
type Validator struct {
	set   RuleSet
	rules []rule

	forbidden     map[visualinfo.Label]struct{}
	specificTexts map[string]struct{}
	titleLabels   map[visualinfo.Label]struct{}

	titles   []*regexp.Regexp
	dates    []*regexp.Regexp
	statutes []*regexp.Regexp
	article  *regexp.Regexp
	subItems []*regexp.Regexp

	log zerolog.Logger
}

// NewValidator compiles set into a validator.
func NewValidator(set RuleSet) (*Validator, error) {
	v := &Validator{
		set:           set,
		rules:         append([]rule(nil), ruleTable...),
		forbidden:     make(map[visualinfo.Label]struct{}, len(set.ForbiddenLabels)),
		specificTexts: make(map[string]struct{}, len(set.SpecificTexts)),
		titleLabels:   make(map[visualinfo.Label]struct{}, len(set.TitleLabels)),
		log:           logger.WithComponent("rules"),
	}
	for _, l := range set.ForbiddenLabels {
		v.forbidden[visualinfo.Label(l)] = struct{}{}
	}
	for _, t := range set.SpecificTexts {
		v.specificTexts[t] = struct{}{}
	}
	for _, l := range set.TitleLabels {
		v.titleLabels[visualinfo.Label(l)] = struct{}{}
	}

	var err error
	if v.titles, err = compileAll("title_patterns", set.TitlePatterns); err != nil {
		return nil, err
	}
	if v.dates, err = compileAll("date_patterns", set.DatePatterns); err != nil {
		return nil, err
	}
	if v.statutes, err = compileAll("statute_heading_patterns", set.StatuteHeadingPatterns); err != nil {
		return nil, err
	}
	if v.subItems, err = compileAll("sub_item_patterns", set.SubItemPatterns); err != nil {
		return nil, err
	}
	if set.ArticlePattern != "" {
		if v.article, err = regexp.Compile(set.ArticlePattern); err != nil {
			return nil, fmt.Errorf("%w: article_pattern: %v", ErrInvalidRuleSet, err)
		}
	}
	return v, nil
}

// MustDefault returns a validator for DefaultRuleSet. It panics only if the
// built-in patterns fail to compile.
func MustDefault() *Validator {
	v, err := NewValidator(DefaultRuleSet())
	if err != nil {
		panic(err)
	}
	return v
}

// RuleSet returns the configuration the validator was built from.
func (v *Validator) RuleSet() RuleSet { return v.set }

// RuleIDs lists the rule table ids in execution order.
func (v *Validator) RuleIDs() []string {
	ids := make([]string, 0, len(v.rules))
	for _, r := range v.rules {
		ids = append(ids, r.id)
	}
	return ids
}

// Validate runs the schema checks and every enabled rule over doc.
func (v *Validator) Validate(doc *visualinfo.Document, filePath string) []quality.Issue {
	findings := v.run(doc, filePath, nil)
	issues := make([]quality.Issue, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, f.issue)
	}
	v.log.Debug().
		Str("file", filePath).
		Int("issues", len(issues)).
		Msg("Validated document")
	return issues
}

// ValidateFile loads and validates the document at path. A document that
// cannot be loaded yields a single SYSTEM_ERROR issue.
func (v *Validator) ValidateFile(path string) []quality.Issue {
	doc, err := visualinfo.Load(path)
	if err != nil {
		return []quality.Issue{quality.NewIssue(quality.IssueSpec{
			RuleID:   RuleSystemError,
			Severity: quality.SeverityError,
			Message:  fmt.Sprintf("failed to load document: %v", err),
			FilePath: path,
			Category: quality.CategoryFormat,
		})}
	}
	return v.Validate(doc, path)
}

// Suggestion is a label change proposed by a rule for one element.
type Suggestion struct {
	Index      int
	ElementID  string
	RuleID     string
	OldLabel   visualinfo.Label
	NewLabel   visualinfo.Label
	TargetType visualinfo.ElementType
}

// Suggestions returns the label changes proposed by the listed rules, in
// rule order then document order. TargetType is empty when the new label
// has no type mapping.
func (v *Validator) Suggestions(doc *visualinfo.Document, ruleIDs ...string) []Suggestion {
	only := make(map[string]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		only[id] = true
	}

	var out []Suggestion
	for _, f := range v.run(doc, "", only) {
		newLabel := f.issue.MetaString(quality.MetaNewLabel)
		if f.index < 0 || newLabel == "" {
			continue
		}
		target := visualinfo.ElementType(f.issue.MetaString(quality.MetaTargetType))
		if target == "" {
			target, _ = visualinfo.TypeFor(visualinfo.Label(newLabel))
		}
		out = append(out, Suggestion{
			Index:      f.index,
			ElementID:  f.issue.ElementID(),
			RuleID:     f.issue.RuleID(),
			OldLabel:   visualinfo.Label(f.issue.MetaString(quality.MetaOldLabel)),
			NewLabel:   visualinfo.Label(newLabel),
			TargetType: target,
		})
	}
	return out
}

// finding ties an issue to the index of the element it was raised on, or -1.
type finding struct {
	index int
	issue quality.Issue
}

type item struct {
	index int
	el    *visualinfo.Element
}

// scan is the per-run view rules work on: well-formed elements only, in
// document order.
type scan struct {
	path  string
	items []item
}

// run executes the checks. When only is non-nil, schema checks are skipped
// and just the named rules run.
func (v *Validator) run(doc *visualinfo.Document, filePath string, only map[string]bool) []finding {
	if doc == nil || len(doc.Elements) == 0 {
		if only != nil {
			return nil
		}
		return []finding{{index: -1, issue: quality.NewStructureIssue(RuleNoElements, "no elements", filePath)}}
	}

	s := &scan{path: filePath}
	for i, e := range doc.Elements {
		if e.Err() == nil {
			s.items = append(s.items, item{index: i, el: e})
		}
	}

	var findings []finding
	if only == nil {
		findings = append(findings, v.checkSchema(doc, filePath)...)
	}
	for _, r := range v.rules {
		if !v.set.Enabled(r.id) || (only != nil && !only[r.id]) {
			continue
		}
		findings = append(findings, v.runRule(r, s)...)
	}
	return findings
}

// runRule isolates a single rule so a failure inside it cannot stop the
// others.
func (v *Validator) runRule(r rule, s *scan) (out []finding) {
	defer func() {
		if rec := recover(); rec != nil {
			v.log.Error().
				Str("rule", r.id).
				Str("file", s.path).
				Interface("panic", rec).
				Msg("Rule failed, skipping")
			out = nil
		}
	}()
	return r.check(v, r, s)
}

func (v *Validator) checkSchema(doc *visualinfo.Document, filePath string) []finding {
	var malformed, unknown []finding
	for i, e := range doc.Elements {
		page := e.PageIndex()
		if err := e.Err(); err != nil {
			malformed = append(malformed, finding{index: i, issue: quality.NewIssue(quality.IssueSpec{
				RuleID:    RuleMalformed,
				Severity:  quality.SeverityError,
				Message:   fmt.Sprintf("element cannot be decoded: %v", err),
				FilePath:  filePath,
				ElementID: e.Ref(),
				Category:  quality.CategoryFormat,
				Metadata:  map[string]any{metaElementIndex: i},
			})})
			continue
		}

		label := e.Label()
		if label.IsKnown() {
			continue
		}
		message := "missing label"
		if label != "" {
			message = fmt.Sprintf("unrecognised label %q", label)
		}
		unknown = append(unknown, finding{index: i, issue: quality.NewIssue(quality.IssueSpec{
			RuleID:       RuleUnknownLabel,
			Severity:     quality.SeverityError,
			Message:      message,
			FilePath:     filePath,
			ElementID:    e.Ref(),
			PageIndex:    &page,
			Category:     quality.CategoryLabelType,
			SuggestedFix: allowedHint,
			Metadata:     map[string]any{quality.MetaOldLabel: string(label)},
		})})
	}
	return append(malformed, unknown...)
}

var allowedHint = func() string {
	labels := visualinfo.AllowedLabels()
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = string(l)
	}
	return "use one of: " + strings.Join(names, ", ")
}()

func compileAll(key string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRuleSet, key, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
