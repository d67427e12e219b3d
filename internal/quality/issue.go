// Package quality defines the report artifacts produced by the labeling
// quality engine: issues found by the validator and results of fixes applied
// by the fixer.
//
// Both types are write-once. They are built through the constructors in this
// package and are never mutated afterwards; accessors that expose maps return
// copies.
package quality

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity grades how serious an issue is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Level returns a numeric rank (error=3, warning=2, info=1, unknown=0).
func (s Severity) Level() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Category groups issues by the kind of problem they describe.
type Category string

const (
	CategoryLabelType    Category = "label_type"
	CategoryLabelContent Category = "label_content"
	CategoryStructure    Category = "structure"
	CategoryFormat       Category = "format"
	CategoryConsistency  Category = "consistency"
)

// Well-known metadata keys.
const (
	MetaOldLabel         = "old_label"
	MetaNewLabel         = "new_label"
	MetaTargetType       = "target_type"
	MetaDuplicateOf      = "duplicate_of"
	MetaText             = "text"
	MetaCurrentPosition  = "current_position"
	MetaExpectedPosition = "expected_position"
)

// Issue is one problem detected in a visual-info document.
type Issue struct {
	ruleID       string
	severity     Severity
	message      string
	filePath     string
	elementID    string
	pageIndex    *int
	category     Category
	suggestedFix string
	autoFixable  bool
	metadata     map[string]any
}

// IssueSpec carries the fields of an issue at construction time.
type IssueSpec struct {
	RuleID       string
	Severity     Severity
	Message      string
	FilePath     string
	ElementID    string
	PageIndex    *int
	Category     Category
	SuggestedFix string
	AutoFixable  bool
	Metadata     map[string]any
}

// NewIssue freezes spec into an Issue. The metadata map is copied.
func NewIssue(spec IssueSpec) Issue {
	var page *int
	if spec.PageIndex != nil {
		p := *spec.PageIndex
		page = &p
	}
	return Issue{
		ruleID:       spec.RuleID,
		severity:     spec.Severity,
		message:      spec.Message,
		filePath:     spec.FilePath,
		elementID:    spec.ElementID,
		pageIndex:    page,
		category:     spec.Category,
		suggestedFix: spec.SuggestedFix,
		autoFixable:  spec.AutoFixable,
		metadata:     copyMap(spec.Metadata),
	}
}

// NewLabelIssue builds the warning emitted when an element should carry a
// different label.
func NewLabelIssue(ruleID, message, filePath, elementID string, pageIndex int, oldLabel, newLabel string, extra map[string]any) Issue {
	metadata := map[string]any{
		MetaOldLabel: oldLabel,
		MetaNewLabel: newLabel,
	}
	for k, v := range extra {
		metadata[k] = v
	}
	return NewIssue(IssueSpec{
		RuleID:       ruleID,
		Severity:     SeverityWarning,
		Message:      message,
		FilePath:     filePath,
		ElementID:    elementID,
		PageIndex:    &pageIndex,
		Category:     CategoryLabelType,
		SuggestedFix: fmt.Sprintf("change label to '%s'", newLabel),
		AutoFixable:  true,
		Metadata:     metadata,
	})
}

// NewStructureIssue builds a document-level structural error.
func NewStructureIssue(ruleID, description, filePath string) Issue {
	return NewIssue(IssueSpec{
		RuleID:   ruleID,
		Severity: SeverityError,
		Message:  "structure problem: " + description,
		FilePath: filePath,
		Category: CategoryStructure,
	})
}

func (i Issue) RuleID() string { return i.ruleID }
func (i Issue) Severity() Severity { return i.severity }
func (i Issue) Message() string { return i.message }
func (i Issue) FilePath() string { return i.filePath }
func (i Issue) ElementID() string { return i.elementID }
func (i Issue) Category() Category { return i.category }
func (i Issue) SuggestedFix() string { return i.suggestedFix }
func (i Issue) AutoFixable() bool { return i.autoFixable }
func (i Issue) Metadata() map[string]any { return copyMap(i.metadata) }

// PageIndex returns the zero-based page and whether it is set.
func (i Issue) PageIndex() (int, bool) {
	if i.pageIndex == nil {
		return 0, false
	}
	return *i.pageIndex, true
}

// MetaString returns a string metadata value, or "" if absent.
func (i Issue) MetaString(key string) string {
	if s, ok := i.metadata[key].(string); ok {
		return s
	}
	return ""
}

// String renders the issue as "[ERROR] R001: message (element: e1) (page: 1)".
func (i Issue) String() string {
	var location strings.Builder
	if i.elementID != "" {
		fmt.Fprintf(&location, " (element: %s)", i.elementID)
	}
	if i.pageIndex != nil {
		fmt.Fprintf(&location, " (page: %d)", *i.pageIndex+1)
	}
	return fmt.Sprintf("[%s] %s: %s%s", strings.ToUpper(string(i.severity)), i.ruleID, i.message, location.String())
}

type issueJSON struct {
	RuleID       string         `json:"rule_id"`
	Severity     Severity       `json:"severity"`
	Message      string         `json:"message"`
	FilePath     string         `json:"file_path"`
	ElementID    *string        `json:"element_id"`
	PageIndex    *int           `json:"page_index"`
	Category     Category       `json:"category"`
	SuggestedFix *string        `json:"suggested_fix"`
	AutoFixable  bool           `json:"auto_fixable"`
	Metadata     map[string]any `json:"metadata"`
}

// MarshalJSON exposes the issue with the snake_case field set used by reports.
func (i Issue) MarshalJSON() ([]byte, error) {
	out := issueJSON{
		RuleID:      i.ruleID,
		Severity:    i.severity,
		Message:     i.message,
		FilePath:    i.filePath,
		PageIndex:   i.pageIndex,
		Category:    i.category,
		AutoFixable: i.autoFixable,
		Metadata:    i.metadata,
	}
	if i.elementID != "" {
		out.ElementID = &i.elementID
	}
	if i.suggestedFix != "" {
		out.SuggestedFix = &i.suggestedFix
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return marshal(out)
}

// UnmarshalJSON reads an issue back from a report file.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var in issueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	spec := IssueSpec{
		RuleID:      in.RuleID,
		Severity:    in.Severity,
		Message:     in.Message,
		FilePath:    in.FilePath,
		PageIndex:   in.PageIndex,
		Category:    in.Category,
		AutoFixable: in.AutoFixable,
		Metadata:    in.Metadata,
	}
	if in.ElementID != nil {
		spec.ElementID = *in.ElementID
	}
	if in.SuggestedFix != nil {
		spec.SuggestedFix = *in.SuggestedFix
	}
	*i = NewIssue(spec)
	return nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
