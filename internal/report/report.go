// Package report aggregates validation and fix runs over many documents and
// exports them as JSON or CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"labelqc/internal/quality"
)

// FileSummary is the outcome for one document.
type FileSummary struct {
	Path   string `json:"file_path"`
	Source string `json:"source,omitempty"` // archive the document came from

	Issues      []quality.Issue                `json:"issues"`
	Fixes       map[string][]quality.FixResult `json:"fixes,omitempty"`
	IssuesAfter []quality.Issue                `json:"issues_after,omitempty"`
	Output      string                         `json:"output,omitempty"` // recompressed archive

	Error string `json:"error,omitempty"`
}

// Fixed reports whether a fix run was recorded for the document.
func (f FileSummary) Fixed() bool { return f.Fixes != nil }

// Remaining returns the issues left in the final state of the document:
// the issues after fixing for fix runs, the validation issues otherwise.
func (f FileSummary) Remaining() []quality.Issue {
	if f.Fixed() {
		return f.IssuesAfter
	}
	return f.Issues
}

// Summary aggregates a run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Command    string    `json:"command"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TotalFiles  int `json:"total_files"`
	FailedFiles int `json:"failed_files"`

	TotalIssues      int            `json:"total_issues"`
	IssuesAfter      int            `json:"issues_after"`
	IssuesByRule     map[string]int `json:"issues_by_rule"`
	IssuesBySeverity map[string]int `json:"issues_by_severity"`

	FixesByPass         map[string]int `json:"fixes_by_pass"`
	TotalFixes          int            `json:"total_fixes"`
	FailedFixes         int            `json:"failed_fixes"`
	RemainingNonFixable int            `json:"remaining_non_fixable"`

	Files []FileSummary `json:"files"`
}

// New starts a summary for command with a fresh run id.
func New(command string) *Summary {
	return &Summary{
		RunID:            uuid.NewString(),
		Command:          command,
		StartedAt:        time.Now(),
		IssuesByRule:     map[string]int{},
		IssuesBySeverity: map[string]int{},
		FixesByPass:      map[string]int{},
		Files:            []FileSummary{},
	}
}

// Add records one document.
func (s *Summary) Add(f FileSummary) {
	s.Files = append(s.Files, f)
	s.TotalFiles++
	if f.Error != "" {
		s.FailedFiles++
	}

	s.TotalIssues += len(f.Issues)
	for _, issue := range f.Issues {
		s.IssuesByRule[issue.RuleID()]++
		s.IssuesBySeverity[string(issue.Severity())]++
	}

	for pass, results := range f.Fixes {
		for _, r := range results {
			if r.Success() {
				s.FixesByPass[pass]++
				s.TotalFixes++
			} else {
				s.FailedFixes++
			}
		}
	}
	if f.Fixed() {
		s.IssuesAfter += len(f.IssuesAfter)
	}
	for _, issue := range f.Remaining() {
		if !issue.AutoFixable() {
			s.RemainingNonFixable++
		}
	}
}

// Finish stamps the end time.
func (s *Summary) Finish() { s.FinishedAt = time.Now() }

// Issues returns the remaining issues of every document, in file order.
func (s *Summary) Issues() []quality.Issue {
	var out []quality.Issue
	for _, f := range s.Files {
		out = append(out, f.Remaining()...)
	}
	return out
}

// RuleCounts returns the per-rule issue counts ordered by rule id.
func (s *Summary) RuleCounts() []RuleCount {
	out := make([]RuleCount, 0, len(s.IssuesByRule))
	for id, n := range s.IssuesByRule {
		out = append(out, RuleCount{RuleID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// RuleCount is one entry of RuleCounts.
type RuleCount struct {
	RuleID string
	Count  int
}

// EncodeJSON writes v as indented JSON. Non-ASCII text and HTML characters
// are written literally.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := EncodeJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// Columns is the header of issue rows.
var Columns = []string{
	"file_path", "rule_id", "severity", "category", "element_id",
	"page", "message", "suggested_fix", "auto_fixable",
}

// Row flattens an issue into the Columns layout. Pages are one-based.
func Row(issue quality.Issue) []string {
	page := ""
	if p, ok := issue.PageIndex(); ok {
		page = strconv.Itoa(p + 1)
	}
	return []string{
		issue.FilePath(),
		issue.RuleID(),
		string(issue.Severity()),
		string(issue.Category()),
		issue.ElementID(),
		page,
		issue.Message(),
		issue.SuggestedFix(),
		strconv.FormatBool(issue.AutoFixable()),
	}
}

// EncodeCSV writes a header and one row per issue.
func EncodeCSV(w io.Writer, issues []quality.Issue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, issue := range issues {
		if err := cw.Write(Row(issue)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV writes issues as CSV to path.
func WriteCSV(path string, issues []quality.Issue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := EncodeCSV(f, issues); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}
